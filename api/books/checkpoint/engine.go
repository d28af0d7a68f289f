package checkpoint

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"BizBooks/api/books/ledger"
)

// Store is the persistence surface the reconciliation engine needs. Lookups
// that find nothing return (nil, nil); only real failures error.
type Store interface {
	GetCheckpointByID(ctx context.Context, id string) (*ledger.Checkpoint, error)
	GetCheckpointAt(ctx context.Context, accountID, date string) (*ledger.Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp *ledger.Checkpoint) error
	RemoveCheckpoint(ctx context.Context, id string) error
	// CheckpointsOnOrAfter returns checkpoints for the account with
	// date >= from, ascending by date.
	CheckpointsOnOrAfter(ctx context.Context, accountID, from string) ([]ledger.Checkpoint, error)
	// NearestPriorReconciled returns the latest reconciled checkpoint with
	// date strictly before the given date.
	NearestPriorReconciled(ctx context.Context, accountID, date string) (*ledger.Checkpoint, error)
	// SumSignedAmounts replays credit-debit over the account's transactions
	// with fromExclusive < date <= toInclusive in sequence order, skipping
	// the adjustment transaction owned by excludeCheckpointID. An empty
	// fromExclusive means "from the beginning".
	SumSignedAmounts(ctx context.Context, accountID, fromExclusive, toInclusive, excludeCheckpointID string) (decimal.Decimal, error)
	// LastStatementBalanceOn returns the balance recorded on the
	// chronologically last non-adjustment transaction dated exactly `date`,
	// when the import carried a balance column.
	LastStatementBalanceOn(ctx context.Context, accountID, date string) (decimal.NullDecimal, error)
	UpsertAdjustment(ctx context.Context, adj *ledger.Transaction) error
	RemoveAdjustmentFor(ctx context.Context, checkpointID string) error
}

// Engine owns the checkpoint state machine:
// no-checkpoint -> pending-recalculation -> reconciled | adjusted.
// Adjustment transactions are created, replaced, and deleted only here.
type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// CreateInput is one declared balance snapshot.
type CreateInput struct {
	AccountID       string          `json:"account_id"`
	Date            string          `json:"date"`
	DeclaredBalance decimal.Decimal `json:"declared_balance"`
	Notes           string          `json:"notes,omitempty"`
	BatchID         string          `json:"batch_id,omitempty"`
}

// RecalcSummary reports the cascade a mutation caused.
type RecalcSummary struct {
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// CreateOrUpdateCheckpoint computes the replayed balance up to the given
// date, derives the adjustment, persists the checkpoint (replacing any
// checkpoint already on that date), maintains the linked adjustment
// transaction, and recalculates every later checkpoint on the account.
func (e *Engine) CreateOrUpdateCheckpoint(ctx context.Context, in CreateInput) (*ledger.Checkpoint, *RecalcSummary, error) {
	if in.AccountID == "" || in.Date == "" {
		return nil, nil, fmt.Errorf("account_id and date are required")
	}

	declared := in.DeclaredBalance
	// the statement's own running balance beats a manually retyped number
	if stmtBal, err := e.store.LastStatementBalanceOn(ctx, in.AccountID, in.Date); err != nil {
		return nil, nil, err
	} else if stmtBal.Valid {
		if stmtBal.Decimal.Sub(declared).Abs().GreaterThan(ledger.ReconcileEpsilon) {
			log.Printf("[CHECKPOINT] account %s %s: declared balance %s differs from statement balance %s, preferring statement",
				in.AccountID, in.Date, declared, stmtBal.Decimal)
		}
		declared = stmtBal.Decimal
	}

	cp := &ledger.Checkpoint{
		AccountID:       in.AccountID,
		Date:            in.Date,
		DeclaredBalance: declared,
		BatchID:         in.BatchID,
		Notes:           in.Notes,
	}
	if prev, err := e.store.GetCheckpointAt(ctx, in.AccountID, in.Date); err != nil {
		return nil, nil, err
	} else if prev != nil {
		// one checkpoint per (account, date): replace in place
		cp.ID = prev.ID
	} else {
		cp.ID = uuid.NewString()
	}

	if err := e.reconcile(ctx, cp); err != nil {
		return nil, nil, err
	}
	summary, err := e.RecalculateFrom(ctx, in.AccountID, in.Date, cp.ID)
	if err != nil {
		return nil, nil, err
	}
	return cp, summary, nil
}

// DeleteCheckpoint removes the checkpoint and its adjustment transaction,
// then recalculates all later checkpoints on the account.
func (e *Engine) DeleteCheckpoint(ctx context.Context, id string) (*RecalcSummary, error) {
	cp, err := e.store.GetCheckpointByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, ledger.ErrCheckpointNotFound
	}
	if err := e.store.RemoveAdjustmentFor(ctx, id); err != nil {
		return nil, err
	}
	if err := e.store.RemoveCheckpoint(ctx, id); err != nil {
		return nil, err
	}
	return e.RecalculateFrom(ctx, cp.AccountID, cp.Date, cp.ID)
}

// RecalculateFrom re-runs reconciliation for every checkpoint of the account
// dated on or after `from`, in date order, excluding `excludeID` (the
// checkpoint that triggered the cascade, already handled). Every mutation
// path that touches history — import, edit, delete, rollback — funnels
// through here; the cascade is business logic, not a database trigger.
func (e *Engine) RecalculateFrom(ctx context.Context, accountID, from, excludeID string) (*RecalcSummary, error) {
	laters, err := e.store.CheckpointsOnOrAfter(ctx, accountID, from)
	if err != nil {
		return nil, err
	}
	count := 0
	for i := range laters {
		if laters[i].ID == excludeID {
			continue
		}
		if err := e.reconcile(ctx, &laters[i]); err != nil {
			return nil, fmt.Errorf("recalculate checkpoint %s: %w", laters[i].ID, err)
		}
		count++
	}
	msg := fmt.Sprintf("%d later checkpoint(s) recalculated", count)
	if count == 0 {
		msg = "no later checkpoints affected"
	}
	return &RecalcSummary{Count: count, Message: msg}, nil
}

// reconcile runs steps 1-3 for a single checkpoint: replay, derive the
// adjustment, persist, and maintain the linked adjustment transaction.
func (e *Engine) reconcile(ctx context.Context, cp *ledger.Checkpoint) error {
	base := decimal.Zero
	fromExclusive := ""
	if prior, err := e.store.NearestPriorReconciled(ctx, cp.AccountID, cp.Date); err != nil {
		return err
	} else if prior != nil {
		base = prior.CalculatedBalance
		fromExclusive = prior.Date
	}

	// replay excludes only this checkpoint's own adjustment; adjustments of
	// earlier checkpoints are part of the running balance
	sum, err := e.store.SumSignedAmounts(ctx, cp.AccountID, fromExclusive, cp.Date, cp.ID)
	if err != nil {
		return err
	}
	cp.CalculatedBalance = base.Add(sum)
	cp.AdjustmentAmount = cp.DeclaredBalance.Sub(cp.CalculatedBalance)
	cp.IsReconciled = cp.AdjustmentAmount.Abs().LessThan(ledger.ReconcileEpsilon)

	if err := e.store.SaveCheckpoint(ctx, cp); err != nil {
		return err
	}
	if cp.IsReconciled {
		return e.store.RemoveAdjustmentFor(ctx, cp.ID)
	}
	return e.store.UpsertAdjustment(ctx, adjustmentFor(cp))
}

// adjustmentFor builds the synthetic transaction carrying the unexplained
// difference: positive adjustment means an unexplained credit.
func adjustmentFor(cp *ledger.Checkpoint) *ledger.Transaction {
	adj := &ledger.Transaction{
		ID:                  "adj-" + cp.ID,
		AccountID:           cp.AccountID,
		Date:                cp.Date,
		Description:         fmt.Sprintf("Balance adjustment for checkpoint %s", cp.Date),
		IsBalanceAdjustment: true,
		CheckpointID:        cp.ID,
	}
	if cp.AdjustmentAmount.IsNegative() {
		adj.DebitAmount = decimal.NewNullDecimal(cp.AdjustmentAmount.Abs())
	} else {
		adj.CreditAmount = decimal.NewNullDecimal(cp.AdjustmentAmount)
	}
	return adj
}
