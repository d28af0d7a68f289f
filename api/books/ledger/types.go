package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the semantic meaning assigned to one source column of an uploaded
// statement file.
type Role string

const (
	RoleDate         Role = "date"
	RoleDescription  Role = "description"
	RoleDebit        Role = "debit"
	RoleCredit       Role = "credit"
	RoleSignedAmount Role = "signedAmount"
	RoleBalance      Role = "balance"
	RoleReference    Role = "reference"
	RoleBranch       Role = "branch"
	RoleIgnore       Role = "ignore"
)

// Transaction is the canonical persisted record. Date is a plain calendar day
// rendered as YYYY-MM-DD — never a timestamp that could shift by timezone.
// Exactly one of DebitAmount/CreditAmount is set, and it is positive.
type Transaction struct {
	ID                  string              `json:"id"`
	AccountID           string              `json:"account_id"`
	Date                string              `json:"date"`
	Description         string              `json:"description"`
	DebitAmount         decimal.NullDecimal `json:"debit_amount"`
	CreditAmount        decimal.NullDecimal `json:"credit_amount"`
	Balance             decimal.NullDecimal `json:"balance"`
	BankReference       string              `json:"bank_reference,omitempty"`
	Branch              string              `json:"branch,omitempty"`
	Sequence            int                 `json:"sequence"`
	BatchID             string              `json:"batch_id,omitempty"`
	SourceFileName      string              `json:"source_file_name,omitempty"`
	IsBalanceAdjustment bool                `json:"is_balance_adjustment,omitempty"`
	// CheckpointID links an adjustment transaction to its checkpoint. Empty on
	// ordinary transactions.
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

// SignedAmount returns credit minus debit.
func (t Transaction) SignedAmount() decimal.Decimal {
	out := decimal.Zero
	if t.CreditAmount.Valid {
		out = out.Add(t.CreditAmount.Decimal)
	}
	if t.DebitAmount.Valid {
		out = out.Sub(t.DebitAmount.Decimal)
	}
	return out
}

type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
	BatchRolledBack BatchStatus = "rolledBack"
)

// ImportBatch is one completed file-import operation, the unit of rollback.
type ImportBatch struct {
	ID              string      `json:"id"`
	AccountID       string      `json:"account_id"`
	FileName        string      `json:"file_name"`
	FileHash        string      `json:"file_hash,omitempty"`
	TotalRows       int         `json:"total_rows"`
	SuccessfulCount int         `json:"successful_count"`
	FailedCount     int         `json:"failed_count"`
	Status          BatchStatus `json:"status"`
	ErrorLog        string      `json:"error_log,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Checkpoint is a user-declared balance snapshot at a specific date.
// AdjustmentAmount = DeclaredBalance - CalculatedBalance.
type Checkpoint struct {
	ID                string          `json:"id"`
	AccountID         string          `json:"account_id"`
	Date              string          `json:"date"`
	DeclaredBalance   decimal.Decimal `json:"declared_balance"`
	CalculatedBalance decimal.Decimal `json:"calculated_balance"`
	AdjustmentAmount  decimal.Decimal `json:"adjustment_amount"`
	IsReconciled      bool            `json:"is_reconciled"`
	BatchID           string          `json:"batch_id,omitempty"`
	Notes             string          `json:"notes,omitempty"`
}

// DateLayout is the canonical calendar-day rendering used everywhere in the
// books domain, both in Go structs and in SQL DATE round-trips.
const DateLayout = "2006-01-02"

// ReconcileEpsilon is the tolerance under which declared and calculated
// balances count as matching.
var ReconcileEpsilon = decimal.RequireFromString("0.01")
