package statement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"BizBooks/api/books/checkpoint"
	"BizBooks/api/books/ledger"
	"BizBooks/internal/config"
)

// Reconciler is the slice of the checkpoint engine the import pipeline
// needs: create a closing-balance checkpoint and re-run later ones.
type Reconciler interface {
	CreateOrUpdateCheckpoint(ctx context.Context, in checkpoint.CreateInput) (*ledger.Checkpoint, *checkpoint.RecalcSummary, error)
	RecalculateFrom(ctx context.Context, accountID, from, excludeID string) (*checkpoint.RecalcSummary, error)
}

// Archiver stores the raw uploaded file after a batch commits.
type Archiver interface {
	Archive(ctx context.Context, batchID, fileName string, data []byte)
}

// Importer runs the whole statement import pipeline. Imports for the same
// account are serialized; different accounts proceed concurrently.
type Importer struct {
	store    Store
	recon    Reconciler
	archiver Archiver

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewImporter(store Store, recon Reconciler, archiver Archiver) *Importer {
	return &Importer{
		store:    store,
		recon:    recon,
		archiver: archiver,
		locks:    map[string]*sync.Mutex{},
	}
}

func (im *Importer) accountLock(accountID string) *sync.Mutex {
	im.mu.Lock()
	defer im.mu.Unlock()
	l, ok := im.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		im.locks[accountID] = l
	}
	return l
}

// CheckpointRequest asks the import to finish by declaring the statement's
// closing balance as a checkpoint.
type CheckpointRequest struct {
	Date            string          `json:"date"`
	DeclaredBalance decimal.Decimal `json:"declared_balance"`
}

// ImportRequest is one confirmed import: the raw file plus the mapping the
// user reviewed in the preview step.
type ImportRequest struct {
	AccountID  string             `json:"account_id"`
	FileName   string             `json:"file_name"`
	FileKind   string             `json:"file_kind,omitempty"`
	Data       []byte             `json:"-"`
	Mappings   []ColumnMapping    `json:"mappings"`
	Options    MapOptions         `json:"options"`
	Period     Period             `json:"period"`
	Checkpoint *CheckpointRequest `json:"checkpoint,omitempty"`
}

// ImportResult reports everything the batch did, including what it skipped.
type ImportResult struct {
	Batch             *ledger.ImportBatch       `json:"batch"`
	InsertedCount     int                       `json:"inserted_count"`
	FailedCount       int                       `json:"failed_count"`
	DuplicateWarnings []ledger.DuplicateWarning `json:"duplicate_warnings"`
	Errors            []ledger.RowError         `json:"errors"`
	Descending        bool                      `json:"descending"`
	Checkpoint        *ledger.Checkpoint        `json:"checkpoint,omitempty"`
	Recalculated      *checkpoint.RecalcSummary `json:"recalculated,omitempty"`
}

type errorLog struct {
	Errors     []ledger.RowError         `json:"errors,omitempty"`
	Duplicates []ledger.DuplicateWarning `json:"duplicates,omitempty"`
	Fatal      string                    `json:"fatal,omitempty"`
}

func marshalErrorLog(el errorLog) string {
	if len(el.Errors) == 0 && len(el.Duplicates) == 0 && el.Fatal == "" {
		return ""
	}
	b, err := json.Marshal(el)
	if err != nil {
		return fmt.Sprintf(`{"fatal":%q}`, el.Fatal)
	}
	return string(b)
}

// FileHash is the idempotency key of an upload.
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Import runs the pipeline: dedupe the file itself, normalize, map, resolve
// order and duplicates, persist in chunks, then renumber and optionally
// declare the closing balance. A chunk failure keeps what already landed and
// marks the batch failed with partial counts.
func (im *Importer) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if req.AccountID == "" {
		return nil, fmt.Errorf("account_id is required")
	}
	if len(req.Data) == 0 {
		return nil, ledger.FileFormatErrorf("uploaded file is empty")
	}
	if err := ValidateMappings(req.Mappings); err != nil {
		return nil, err
	}

	hash := FileHash(req.Data)
	lock := im.accountLock(req.AccountID)
	lock.Lock()
	defer lock.Unlock()

	// checked under the lock, so two concurrent uploads of the same file
	// cannot both pass
	if prev, err := im.store.FindBatchByFileHash(ctx, req.AccountID, hash); err != nil {
		return nil, err
	} else if prev != nil {
		log.Printf("[STATEMENT-IMPORT] account %s: file %s already imported as batch %s", req.AccountID, req.FileName, prev.ID)
		return nil, ledger.ErrFileAlreadyUploaded
	}

	batch := &ledger.ImportBatch{
		ID:        uuid.NewString(),
		AccountID: req.AccountID,
		FileName:  req.FileName,
		FileHash:  hash,
		Status:    ledger.BatchProcessing,
		CreatedAt: time.Now(),
	}
	if err := im.store.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}

	res, err := im.run(ctx, req, batch)
	if err != nil {
		return res, err
	}

	if im.archiver != nil {
		im.archiver.Archive(ctx, batch.ID, req.FileName, req.Data)
	}
	return res, nil
}

func (im *Importer) run(ctx context.Context, req ImportRequest, batch *ledger.ImportBatch) (*ImportResult, error) {
	fail := func(el errorLog, cause error) (*ImportResult, error) {
		batch.Status = ledger.BatchFailed
		batch.ErrorLog = marshalErrorLog(el)
		if err := im.store.FinalizeBatch(ctx, batch); err != nil {
			log.Printf("[STATEMENT-IMPORT] batch %s: finalize after failure: %v", batch.ID, err)
		}
		return &ImportResult{Batch: batch, InsertedCount: batch.SuccessfulCount, FailedCount: batch.FailedCount}, cause
	}

	nf, err := NormalizeFile(req.Data, req.FileKind)
	if err != nil {
		return fail(errorLog{Fatal: err.Error()}, err)
	}
	batch.TotalRows = len(nf.Rows)

	nonce := time.Now().UnixNano()
	mapped := make([]ledger.Transaction, 0, len(nf.Rows))
	rowErrors := []ledger.RowError{}
	for i, row := range nf.Rows {
		txn, rowErr := MapRow(row, nf.Headers, req.Mappings, req.Options, MapContext{
			AccountID: req.AccountID,
			BatchID:   batch.ID,
			FileName:  req.FileName,
			RowIndex:  i,
			Nonce:     nonce,
		})
		if rowErr != nil {
			rowErrors = append(rowErrors, *rowErr)
			continue
		}
		mapped = append(mapped, *txn)
	}
	if len(mapped) == 0 {
		err := ledger.FileFormatErrorf("no importable rows in %s", req.FileName)
		batch.FailedCount = batch.TotalRows
		return fail(errorLog{Errors: rowErrors, Fatal: err.Error()}, err)
	}

	winFrom, winTo := dedupWindow(req.Period, mapped)
	existing, err := im.store.ExistingBetween(ctx, req.AccountID, winFrom, winTo)
	if err != nil {
		return fail(errorLog{Errors: rowErrors, Fatal: err.Error()}, err)
	}

	resolution := ResolveOrderAndDuplicates(mapped, existing, req.Period)
	rowErrors = append(rowErrors, resolution.Errors...)

	inserted, insErr := im.store.InsertTransactions(ctx, resolution.InsertSet)
	batch.SuccessfulCount = inserted
	batch.FailedCount = batch.TotalRows - inserted
	el := errorLog{Errors: rowErrors, Duplicates: resolution.DuplicateWarnings}
	if insErr != nil {
		el.Fatal = insErr.Error()
		log.Printf("[STATEMENT-IMPORT] batch %s: aborted after %d of %d rows: %v",
			batch.ID, inserted, len(resolution.InsertSet), insErr)
		return fail(el, insErr)
	}

	batch.Status = ledger.BatchCompleted
	batch.ErrorLog = marshalErrorLog(el)
	if err := im.store.FinalizeBatch(ctx, batch); err != nil {
		return nil, err
	}

	im.renumber(ctx, req.AccountID)

	result := &ImportResult{
		Batch:             batch,
		InsertedCount:     inserted,
		FailedCount:       batch.FailedCount,
		DuplicateWarnings: resolution.DuplicateWarnings,
		Errors:            rowErrors,
		Descending:        resolution.Descending,
	}

	if req.Checkpoint != nil && im.recon != nil {
		cp, recalc, err := im.recon.CreateOrUpdateCheckpoint(ctx, checkpoint.CreateInput{
			AccountID:       req.AccountID,
			Date:            req.Checkpoint.Date,
			DeclaredBalance: req.Checkpoint.DeclaredBalance,
			BatchID:         batch.ID,
			Notes:           fmt.Sprintf("Closing balance of %s", req.FileName),
		})
		if err != nil {
			// the import itself committed; surface the checkpoint failure
			log.Printf("[STATEMENT-IMPORT] batch %s: closing checkpoint: %v", batch.ID, err)
		} else {
			result.Checkpoint = cp
			result.Recalculated = recalc
		}
	} else if im.recon != nil && inserted > 0 {
		from := resolution.InsertSet[0].Date
		recalc, err := im.recon.RecalculateFrom(ctx, req.AccountID, from, "")
		if err != nil {
			log.Printf("[STATEMENT-IMPORT] batch %s: recalculate from %s: %v", batch.ID, from, err)
		} else {
			result.Recalculated = recalc
		}
	}

	log.Printf("[STATEMENT-IMPORT] batch %s: %d inserted, %d duplicates, %d errors (account %s, file %s)",
		batch.ID, inserted, len(result.DuplicateWarnings), len(rowErrors), req.AccountID, req.FileName)
	return result, nil
}

// renumber compacts account sequences unless the account is too large for a
// synchronous pass; the nightly job catches those.
func (im *Importer) renumber(ctx context.Context, accountID string) {
	n, err := im.store.CountTransactions(ctx, accountID)
	if err != nil {
		log.Printf("[STATEMENT-IMPORT] account %s: count for renumber: %v", accountID, err)
		return
	}
	if n > config.SequenceRenumberCutoff {
		log.Printf("[STATEMENT-IMPORT] account %s: %d transactions, deferring renumber to nightly job", accountID, n)
		return
	}
	if _, err := im.store.RenumberAccountSequences(ctx, accountID); err != nil {
		log.Printf("[STATEMENT-IMPORT] account %s: renumber: %v", accountID, err)
	}
}

// dedupWindow pads the statement period on both sides; with no declared
// period it derives the span from the mapped rows themselves.
func dedupWindow(p Period, mapped []ledger.Transaction) (string, string) {
	from, to := p.Start, p.End
	if from == "" || to == "" {
		for _, t := range mapped {
			if from == "" || t.Date < from {
				from = t.Date
			}
			if to == "" || t.Date > to {
				to = t.Date
			}
		}
	}
	return shiftDay(from, -config.DedupWindowDays), shiftDay(to, config.DedupWindowDays)
}

func shiftDay(day string, days int) string {
	if day == "" {
		return ""
	}
	t, err := time.Parse(ledger.DateLayout, day)
	if err != nil {
		return day
	}
	return t.AddDate(0, 0, days).Format(ledger.DateLayout)
}

// PreviewResult is what the user reviews before confirming an import.
type PreviewResult struct {
	Headers    []string          `json:"headers"`
	Columns    []ColumnDetection `json:"columns"`
	SampleRows [][]string        `json:"sample_rows"`
	TotalRows  int               `json:"total_rows"`
}

// Preview normalizes the file and guesses a column mapping without touching
// the database.
func Preview(data []byte, kind string) (*PreviewResult, error) {
	nf, err := NormalizeFile(data, kind)
	if err != nil {
		return nil, err
	}
	sample := nf.Rows
	if len(sample) > config.ClassifierSampleRows {
		sample = sample[:config.ClassifierSampleRows]
	}
	return &PreviewResult{
		Headers:    nf.Headers,
		Columns:    ClassifyColumns(nf.Headers, nf.Rows),
		SampleRows: sample,
		TotalRows:  len(nf.Rows),
	}, nil
}
