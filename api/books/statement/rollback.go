package statement

import (
	"context"
	"fmt"
	"log"

	"BizBooks/api/books/checkpoint"
	"BizBooks/api/books/ledger"
	"BizBooks/internal/logger"
)

// RollbackCoordinator undoes one import batch: the atomic delete lives in
// the store, the checkpoint fallout is handled here.
type RollbackCoordinator struct {
	store Store
	recon Reconciler
}

func NewRollbackCoordinator(store Store, recon Reconciler) *RollbackCoordinator {
	return &RollbackCoordinator{store: store, recon: recon}
}

type RollbackResult struct {
	BatchID      string                    `json:"batch_id"`
	DeletedCount int                       `json:"deleted_count"`
	Recalculated *checkpoint.RecalcSummary `json:"recalculated,omitempty"`
}

func auditLog(msg string) {
	if l := logger.GlobalLogger; l != nil {
		l.LogAudit(msg)
		return
	}
	log.Println(msg)
}

// Rollback deletes everything batch batchID inserted, marks it rolled back
// with an audit record, and recalculates every checkpoint dated on or after
// the batch's earliest transaction or removed checkpoint. Rolling back twice
// is an error, not a no-op.
func (rc *RollbackCoordinator) Rollback(ctx context.Context, batchID, reason string) (*RollbackResult, error) {
	batch, err := rc.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, ledger.ErrBatchNotFound
	}
	if batch.Status == ledger.BatchRolledBack {
		return nil, ledger.ErrAlreadyRolledBack
	}
	if reason == "" {
		reason = "user requested rollback"
	}

	deleted, earliest, err := rc.store.RollbackBatch(ctx, batchID, reason)
	if err != nil {
		return nil, err
	}

	result := &RollbackResult{BatchID: batchID, DeletedCount: deleted}
	if rc.recon != nil && earliest != "" {
		recalc, err := rc.recon.RecalculateFrom(ctx, batch.AccountID, earliest, "")
		if err != nil {
			// the delete committed; report it, but surface the recalc failure
			log.Printf("[STATEMENT-ROLLBACK] batch %s: recalculate from %s: %v", batchID, earliest, err)
			return result, err
		}
		result.Recalculated = recalc
	}

	auditLog(fmt.Sprintf("[STATEMENT-ROLLBACK] batch %s rolled back: %d transaction(s) deleted (account %s, file %s, reason: %s)",
		batchID, deleted, batch.AccountID, batch.FileName, reason))
	return result, nil
}
