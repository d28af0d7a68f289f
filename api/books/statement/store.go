package statement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"BizBooks/api/books/ledger"
	"BizBooks/internal/config"
)

// Store is the persistence surface the import pipeline and rollback
// coordinator run against. Lookups that find nothing return (nil, nil).
type Store interface {
	FindBatchByFileHash(ctx context.Context, accountID, fileHash string) (*ledger.ImportBatch, error)
	CreateBatch(ctx context.Context, b *ledger.ImportBatch) error
	// FinalizeBatch writes the terminal status, counts and error log.
	FinalizeBatch(ctx context.Context, b *ledger.ImportBatch) error
	GetBatch(ctx context.Context, id string) (*ledger.ImportBatch, error)
	ListBatches(ctx context.Context, accountID string) ([]ledger.ImportBatch, error)
	// ExistingBetween returns the account's non-rolled-back transactions with
	// from <= date <= to, the candidate set for cross-batch duplicate checks.
	ExistingBetween(ctx context.Context, accountID, from, to string) ([]ledger.Transaction, error)
	// InsertTransactions persists in fixed-size chunks, stopping at the first
	// failed chunk. It returns how many rows made it in either way.
	InsertTransactions(ctx context.Context, txns []ledger.Transaction) (int, error)
	CountTransactions(ctx context.Context, accountID string) (int, error)
	// RenumberAccountSequences rewrites sequence to a dense 1..N over the
	// whole account ordered by (date, sequence, id).
	RenumberAccountSequences(ctx context.Context, accountID string) (int, error)
	// RollbackBatch atomically deletes the batch's transactions, drops any
	// checkpoints the batch created (with their adjustments), records an
	// audit entry on the batch, and marks it rolled back. It reports the
	// delete count and the earliest deleted date — transaction or dropped
	// checkpoint, whichever is older — the point recalculation must restart
	// from.
	RollbackBatch(ctx context.Context, batchID, reason string) (deleted int, earliestDate string, err error)
}

type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const batchColumns = `id, account_id, file_name, COALESCE(file_hash,''), total_rows, successful_count, failed_count, status, COALESCE(error_log::text,''), created_at`

func scanBatch(row interface{ Scan(...interface{}) error }) (*ledger.ImportBatch, error) {
	var b ledger.ImportBatch
	if err := row.Scan(&b.ID, &b.AccountID, &b.FileName, &b.FileHash, &b.TotalRows,
		&b.SuccessfulCount, &b.FailedCount, &b.Status, &b.ErrorLog, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PGStore) FindBatchByFileHash(ctx context.Context, accountID, fileHash string) (*ledger.ImportBatch, error) {
	if fileHash == "" {
		return nil, nil
	}
	b, err := scanBatch(s.db.QueryRowContext(ctx, `
		SELECT `+batchColumns+`
		FROM import_batches
		WHERE account_id = $1 AND file_hash = $2 AND status <> $3
		ORDER BY created_at DESC
		LIMIT 1
	`, accountID, fileHash, ledger.BatchRolledBack))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *PGStore) CreateBatch(ctx context.Context, b *ledger.ImportBatch) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_batches (id, account_id, file_name, file_hash, total_rows, successful_count, failed_count, status, created_at)
		VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,$9)
	`, b.ID, b.AccountID, b.FileName, b.FileHash, b.TotalRows, b.SuccessfulCount, b.FailedCount, b.Status, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("create import batch: %s", pqFriendly(err))
	}
	return nil
}

func (s *PGStore) FinalizeBatch(ctx context.Context, b *ledger.ImportBatch) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE import_batches
		SET status = $2, total_rows = $3, successful_count = $4, failed_count = $5,
		    error_log = NULLIF($6,'')::jsonb, updated_at = now()
		WHERE id = $1
	`, b.ID, b.Status, b.TotalRows, b.SuccessfulCount, b.FailedCount, b.ErrorLog)
	if err != nil {
		return fmt.Errorf("finalize import batch: %s", pqFriendly(err))
	}
	return nil
}

func (s *PGStore) GetBatch(ctx context.Context, id string) (*ledger.ImportBatch, error) {
	b, err := scanBatch(s.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM import_batches WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *PGStore) ListBatches(ctx context.Context, accountID string) ([]ledger.ImportBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM import_batches
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ledger.ImportBatch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

const txnColumns = `id, account_id, txn_date, description, debit_amount, credit_amount, balance,
	COALESCE(bank_reference,''), COALESCE(branch,''), sequence, COALESCE(batch_id,''),
	COALESCE(source_file_name,''), is_balance_adjustment, COALESCE(checkpoint_id,'')`

func scanTxn(row interface{ Scan(...interface{}) error }) (*ledger.Transaction, error) {
	var t ledger.Transaction
	var day time.Time
	if err := row.Scan(&t.ID, &t.AccountID, &day, &t.Description, &t.DebitAmount, &t.CreditAmount,
		&t.Balance, &t.BankReference, &t.Branch, &t.Sequence, &t.BatchID, &t.SourceFileName,
		&t.IsBalanceAdjustment, &t.CheckpointID); err != nil {
		return nil, err
	}
	t.Date = day.Format(ledger.DateLayout)
	return &t, nil
}

func (s *PGStore) ExistingBetween(ctx context.Context, accountID, from, to string) ([]ledger.Transaction, error) {
	q := `SELECT ` + txnColumns + ` FROM transactions WHERE account_id = $1`
	args := []interface{}{accountID}
	if from != "" {
		args = append(args, from)
		q += fmt.Sprintf(" AND txn_date >= $%d::date", len(args))
	}
	if to != "" {
		args = append(args, to)
		q += fmt.Sprintf(" AND txn_date <= $%d::date", len(args))
	}
	q += " ORDER BY txn_date, sequence"
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ledger.Transaction{}
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *PGStore) InsertTransactions(ctx context.Context, txns []ledger.Transaction) (int, error) {
	inserted := 0
	for start := 0; start < len(txns); start += config.InsertChunkSize {
		end := start + config.InsertChunkSize
		if end > len(txns) {
			end = len(txns)
		}
		if err := s.insertChunk(ctx, txns[start:end]); err != nil {
			return inserted, fmt.Errorf("insert chunk starting at row %d: %s", start+1, pqFriendly(err))
		}
		inserted += end - start
	}
	return inserted, nil
}

func (s *PGStore) insertChunk(ctx context.Context, chunk []ledger.Transaction) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO transactions (
		id, account_id, txn_date, description, debit_amount, credit_amount, balance,
		bank_reference, branch, sequence, batch_id, source_file_name, is_balance_adjustment
	) VALUES `)
	args := make([]interface{}, 0, len(chunk)*13)
	for i, t := range chunk {
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * 13
		sb.WriteString(fmt.Sprintf("($%d,$%d,$%d::date,$%d,$%d,$%d,$%d,NULLIF($%d,''),NULLIF($%d,''),$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11, base+12, base+13))
		args = append(args, t.ID, t.AccountID, t.Date, t.Description, t.DebitAmount, t.CreditAmount,
			t.Balance, t.BankReference, t.Branch, t.Sequence, t.BatchID, t.SourceFileName, t.IsBalanceAdjustment)
	}
	_, err := s.db.ExecContext(ctx, sb.String(), args...)
	return err
}

func (s *PGStore) CountTransactions(ctx context.Context, accountID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE account_id = $1`, accountID).Scan(&n)
	return n, err
}

func (s *PGStore) RenumberAccountSequences(ctx context.Context, accountID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		WITH ordered AS (
			SELECT id, ROW_NUMBER() OVER (ORDER BY txn_date, sequence, id) AS rn
			FROM transactions
			WHERE account_id = $1
		)
		UPDATE transactions t
		SET sequence = o.rn
		FROM ordered o
		WHERE t.id = o.id AND t.sequence <> o.rn
	`, accountID)
	if err != nil {
		return 0, fmt.Errorf("renumber sequences: %s", pqFriendly(err))
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PGStore) RollbackBatch(ctx context.Context, batchID, reason string) (int, string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, "", err
	}
	defer tx.Rollback()

	var earliest sql.NullTime
	if err := tx.QueryRowContext(ctx,
		`SELECT MIN(txn_date) FROM transactions WHERE batch_id = $1`, batchID).Scan(&earliest); err != nil {
		return 0, "", err
	}
	// a checkpoint-only batch (all rows were duplicates) still shifts later
	// checkpoints when its checkpoint goes away
	var cpEarliest sql.NullTime
	if err := tx.QueryRowContext(ctx,
		`SELECT MIN(checkpoint_date) FROM balance_checkpoints WHERE batch_id = $1`, batchID).Scan(&cpEarliest); err != nil {
		return 0, "", err
	}

	// checkpoints created by this batch go too, adjustments first
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM transactions
		WHERE is_balance_adjustment
		  AND checkpoint_id IN (SELECT id FROM balance_checkpoints WHERE batch_id = $1)
	`, batchID); err != nil {
		return 0, "", fmt.Errorf("rollback adjustments: %s", pqFriendly(err))
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM balance_checkpoints WHERE batch_id = $1`, batchID); err != nil {
		return 0, "", fmt.Errorf("rollback checkpoints: %s", pqFriendly(err))
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM transactions WHERE batch_id = $1 AND NOT is_balance_adjustment`, batchID)
	if err != nil {
		return 0, "", fmt.Errorf("rollback transactions: %s", pqFriendly(err))
	}
	deleted, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `
		UPDATE import_batches
		SET status = $2,
		    error_log = COALESCE(error_log, '{}'::jsonb)
		        || jsonb_build_object('rollback', jsonb_build_object(
		            'at', now(), 'deleted', $3::int, 'reason', $4::text)),
		    updated_at = now()
		WHERE id = $1
	`, batchID, ledger.BatchRolledBack, deleted, reason); err != nil {
		return 0, "", fmt.Errorf("mark batch rolled back: %s", pqFriendly(err))
	}

	if err := tx.Commit(); err != nil {
		return 0, "", err
	}
	day := ""
	if earliest.Valid {
		day = earliest.Time.Format(ledger.DateLayout)
	}
	if cpEarliest.Valid {
		if cpDay := cpEarliest.Time.Format(ledger.DateLayout); day == "" || cpDay < day {
			day = cpDay
		}
	}
	return int(deleted), day, nil
}

// pqFriendly turns driver errors into messages fit for an import error log.
func pqFriendly(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return "a transaction with the same identifier already exists"
		case "23503":
			return "the referenced account does not exist"
		case "22P02", "22007", "22008":
			return "a value could not be converted to its column type"
		case "23514":
			return "a value violated a data consistency rule"
		default:
			return pqErr.Message
		}
	}
	return err.Error()
}
