package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"BizBooks/api/books/ledger"
)

// PGStore implements Store on the bookkeeping Postgres schema.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const checkpointColumns = `id, account_id, checkpoint_date, declared_balance, calculated_balance, adjustment_amount, is_reconciled, COALESCE(batch_id,''), COALESCE(notes,'')`

func scanCheckpoint(row interface{ Scan(...interface{}) error }) (*ledger.Checkpoint, error) {
	var cp ledger.Checkpoint
	var day time.Time
	if err := row.Scan(&cp.ID, &cp.AccountID, &day, &cp.DeclaredBalance, &cp.CalculatedBalance, &cp.AdjustmentAmount, &cp.IsReconciled, &cp.BatchID, &cp.Notes); err != nil {
		return nil, err
	}
	cp.Date = day.Format(ledger.DateLayout)
	return &cp, nil
}

func (s *PGStore) GetCheckpointByID(ctx context.Context, id string) (*ledger.Checkpoint, error) {
	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx,
		`SELECT `+checkpointColumns+` FROM balance_checkpoints WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cp, err
}

func (s *PGStore) GetCheckpointAt(ctx context.Context, accountID, date string) (*ledger.Checkpoint, error) {
	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx,
		`SELECT `+checkpointColumns+` FROM balance_checkpoints WHERE account_id = $1 AND checkpoint_date = $2::date`, accountID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cp, err
}

func (s *PGStore) SaveCheckpoint(ctx context.Context, cp *ledger.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balance_checkpoints (
			id, account_id, checkpoint_date, declared_balance, calculated_balance, adjustment_amount, is_reconciled, batch_id, notes
		) VALUES ($1,$2,$3::date,$4,$5,$6,$7,NULLIF($8,''),NULLIF($9,''))
		ON CONFLICT (account_id, checkpoint_date) DO UPDATE SET
			declared_balance = EXCLUDED.declared_balance,
			calculated_balance = EXCLUDED.calculated_balance,
			adjustment_amount = EXCLUDED.adjustment_amount,
			is_reconciled = EXCLUDED.is_reconciled,
			batch_id = EXCLUDED.batch_id,
			notes = EXCLUDED.notes
	`, cp.ID, cp.AccountID, cp.Date, cp.DeclaredBalance, cp.CalculatedBalance, cp.AdjustmentAmount, cp.IsReconciled, cp.BatchID, cp.Notes)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *PGStore) RemoveCheckpoint(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM balance_checkpoints WHERE id = $1`, id)
	return err
}

func (s *PGStore) CheckpointsOnOrAfter(ctx context.Context, accountID, from string) ([]ledger.Checkpoint, error) {
	if from == "" {
		from = "0001-01-01"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+checkpointColumns+`
		FROM balance_checkpoints
		WHERE account_id = $1 AND checkpoint_date >= $2::date
		ORDER BY checkpoint_date ASC
	`, accountID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ledger.Checkpoint{}
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	return out, rows.Err()
}

func (s *PGStore) NearestPriorReconciled(ctx context.Context, accountID, date string) (*ledger.Checkpoint, error) {
	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx, `
		SELECT `+checkpointColumns+`
		FROM balance_checkpoints
		WHERE account_id = $1 AND checkpoint_date < $2::date AND is_reconciled
		ORDER BY checkpoint_date DESC
		LIMIT 1
	`, accountID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cp, err
}

func (s *PGStore) SumSignedAmounts(ctx context.Context, accountID, fromExclusive, toInclusive, excludeCheckpointID string) (decimal.Decimal, error) {
	q := `
		SELECT COALESCE(SUM(COALESCE(credit_amount, 0) - COALESCE(debit_amount, 0)), 0)
		FROM transactions
		WHERE account_id = $1
		  AND txn_date <= $2::date
		  AND NOT (is_balance_adjustment AND checkpoint_id = $3)
	`
	args := []interface{}{accountID, toInclusive, excludeCheckpointID}
	if fromExclusive != "" {
		q += ` AND txn_date > $4::date`
		args = append(args, fromExclusive)
	}
	var sum decimal.Decimal
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("replay sum: %w", err)
	}
	return sum, nil
}

func (s *PGStore) LastStatementBalanceOn(ctx context.Context, accountID, date string) (decimal.NullDecimal, error) {
	var bal decimal.NullDecimal
	err := s.db.QueryRowContext(ctx, `
		SELECT balance
		FROM transactions
		WHERE account_id = $1 AND txn_date = $2::date
		  AND NOT is_balance_adjustment AND balance IS NOT NULL
		ORDER BY sequence DESC, id DESC
		LIMIT 1
	`, accountID, date).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.NullDecimal{}, nil
	}
	return bal, err
}

func (s *PGStore) UpsertAdjustment(ctx context.Context, adj *ledger.Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, account_id, txn_date, description, debit_amount, credit_amount, sequence, is_balance_adjustment, checkpoint_id
		) VALUES ($1,$2,$3::date,$4,$5,$6,0,true,$7)
		ON CONFLICT (id) DO UPDATE SET
			txn_date = EXCLUDED.txn_date,
			description = EXCLUDED.description,
			debit_amount = EXCLUDED.debit_amount,
			credit_amount = EXCLUDED.credit_amount
	`, adj.ID, adj.AccountID, adj.Date, adj.Description, adj.DebitAmount, adj.CreditAmount, adj.CheckpointID)
	if err != nil {
		return fmt.Errorf("upsert adjustment: %w", err)
	}
	return nil
}

func (s *PGStore) RemoveAdjustmentFor(ctx context.Context, checkpointID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE checkpoint_id = $1 AND is_balance_adjustment`, checkpointID)
	return err
}
