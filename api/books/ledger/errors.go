package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers as user-facing failures.
var (
	ErrBatchNotFound       = errors.New("import batch not found")
	ErrAlreadyRolledBack   = errors.New("import batch already rolled back")
	ErrFileAlreadyUploaded = errors.New("this statement file was already uploaded")
	ErrCheckpointNotFound  = errors.New("checkpoint not found")
)

// FileFormatError aborts the whole import: unreadable file, no rows after
// cleaning, or an unusable column mapping.
type FileFormatError struct {
	Reason string
}

func (e *FileFormatError) Error() string {
	return "file format error: " + e.Reason
}

func FileFormatErrorf(format string, args ...interface{}) *FileFormatError {
	return &FileFormatError{Reason: fmt.Sprintf(format, args...)}
}

// RowError excludes a single row; the import continues. The raw cells are
// kept so the batch error log stays actionable.
type RowError struct {
	RowIndex int      `json:"row_index"`
	Message  string   `json:"message"`
	Raw      []string `json:"raw,omitempty"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.RowIndex, e.Message)
}

// DuplicateWarning pairs a rejected import row with the record it collided
// with. Duplicates are never dropped without this trail.
type DuplicateWarning struct {
	Incoming Transaction  `json:"incoming"`
	Existing *Transaction `json:"existing,omitempty"`
	Reason   string       `json:"reason"`
}
