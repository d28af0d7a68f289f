package statement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"BizBooks/api/books/ledger"
)

// ColumnMapping binds one source column to a semantic role. DateFormat and
// IsNegativeDebit override the batch-level options for this column only.
type ColumnMapping struct {
	SourceColumn    string      `json:"source_column"`
	Role            ledger.Role `json:"role"`
	DateFormat      string      `json:"date_format,omitempty"`
	IsNegativeDebit bool        `json:"is_negative_debit,omitempty"`
}

// MapOptions are the batch-level knobs the user confirms before import.
type MapOptions struct {
	DateFormat        string `json:"date_format,omitempty"`
	HasNegativeDebits bool   `json:"has_negative_debits,omitempty"`
}

// MapContext carries the identifiers a mapped row inherits.
type MapContext struct {
	AccountID string
	BatchID   string
	FileName  string
	RowIndex  int
	// Nonce disambiguates synthetic ids across batches without a DB round
	// trip; zero means "derive from the clock".
	Nonce int64
}

// roleOrder is the fixed evaluation order mappings are applied in.
var roleOrder = []ledger.Role{
	ledger.RoleDate,
	ledger.RoleDescription,
	ledger.RoleDebit,
	ledger.RoleCredit,
	ledger.RoleSignedAmount,
	ledger.RoleBalance,
	ledger.RoleReference,
	ledger.RoleBranch,
}

// ValidateMappings enforces the minimum an import needs: exactly one date
// column and at least one amount-bearing column.
func ValidateMappings(mappings []ColumnMapping) error {
	dates, amounts := 0, 0
	for _, m := range mappings {
		switch m.Role {
		case ledger.RoleDate:
			dates++
		case ledger.RoleDebit, ledger.RoleCredit, ledger.RoleSignedAmount:
			amounts++
		}
	}
	if dates != 1 {
		return ledger.FileFormatErrorf("mapping needs exactly one date column, got %d", dates)
	}
	if amounts == 0 {
		return ledger.FileFormatErrorf("mapping needs a debit, credit, or signed amount column")
	}
	return nil
}

// cleanAmount strips thousands separators and folds accountant-style
// parentheses into a leading minus.
func cleanAmount(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}
	return s
}

// parseAmount returns (value, present, error). Empty cells are absent, not
// zero.
func parseAmount(s string) (decimal.Decimal, bool, error) {
	s = cleanAmount(s)
	if s == "" {
		return decimal.Zero, false, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, err
	}
	return d, true, nil
}

// sanitizeText removes the control characters and backslashes that break
// Postgres string handling downstream.
func sanitizeText(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.ReplaceAll(s, "\\", "/")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

// MapRow applies a confirmed column mapping to one normalized row and
// produces a canonical transaction, or a row-level error that excludes just
// this row. Sequence is provisional file order; the resolver corrects it.
func MapRow(row []string, headers []string, mappings []ColumnMapping, opts MapOptions, mc MapContext) (*ledger.Transaction, *ledger.RowError) {
	colIdx := map[string]int{}
	for i, h := range headers {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cellFor := func(m ColumnMapping) (string, bool) {
		idx, ok := colIdx[strings.ToLower(strings.TrimSpace(m.SourceColumn))]
		if !ok || idx >= len(row) {
			return "", false
		}
		v := strings.TrimSpace(row[idx])
		return v, v != ""
	}
	rowErr := func(format string, args ...interface{}) *ledger.RowError {
		return &ledger.RowError{RowIndex: mc.RowIndex, Message: fmt.Sprintf(format, args...), Raw: row}
	}

	txn := &ledger.Transaction{
		AccountID:      mc.AccountID,
		BatchID:        mc.BatchID,
		SourceFileName: mc.FileName,
		Sequence:       mc.RowIndex + 1,
	}

	for _, role := range roleOrder {
		for _, m := range mappings {
			if m.Role != role {
				continue
			}
			val, present := cellFor(m)
			if !present {
				continue
			}
			switch role {
			case ledger.RoleDate:
				format := m.DateFormat
				if format == "" {
					format = opts.DateFormat
				}
				day, err := ParseDay(val, format)
				if err != nil {
					return nil, rowErr("unparseable date %q", val)
				}
				txn.Date = day
			case ledger.RoleDescription:
				if txn.Description != "" {
					txn.Description += " "
				}
				txn.Description += sanitizeText(val)
			case ledger.RoleDebit:
				amt, present, err := parseAmount(val)
				if err != nil {
					return nil, rowErr("unparseable debit amount %q", val)
				}
				// zero is absence; negative debits are magnitudes in disguise
				if present && !amt.IsZero() {
					txn.DebitAmount = decimal.NewNullDecimal(amt.Abs())
				}
			case ledger.RoleCredit:
				amt, present, err := parseAmount(val)
				if err != nil {
					return nil, rowErr("unparseable credit amount %q", val)
				}
				if present && !amt.IsZero() {
					txn.CreditAmount = decimal.NewNullDecimal(amt.Abs())
				}
			case ledger.RoleSignedAmount:
				amt, present, err := parseAmount(val)
				if err != nil {
					return nil, rowErr("unparseable amount %q", val)
				}
				if !present || amt.IsZero() {
					continue
				}
				negIsDebit := m.IsNegativeDebit || opts.HasNegativeDebits
				if (amt.IsNegative() && negIsDebit) || (amt.IsPositive() && !negIsDebit) {
					txn.DebitAmount = decimal.NewNullDecimal(amt.Abs())
				} else {
					txn.CreditAmount = decimal.NewNullDecimal(amt.Abs())
				}
			case ledger.RoleBalance:
				amt, present, err := parseAmount(val)
				if err == nil && present {
					txn.Balance = decimal.NewNullDecimal(amt)
				}
			case ledger.RoleReference:
				txn.BankReference = sanitizeText(val)
			case ledger.RoleBranch:
				txn.Branch = sanitizeText(val)
			}
		}
	}

	if txn.Date == "" {
		return nil, rowErr("missing or unparseable date")
	}
	if txn.DebitAmount.Valid && txn.CreditAmount.Valid {
		return nil, rowErr("row carries both a debit and a credit amount")
	}
	if !txn.DebitAmount.Valid && !txn.CreditAmount.Valid {
		return nil, rowErr("missing both debit and credit amounts")
	}

	nonce := mc.Nonce
	if nonce == 0 {
		nonce = time.Now().UnixNano()
	}
	txn.ID = fmt.Sprintf("%s-%d-%d", mc.BatchID, mc.RowIndex, nonce%1_000_000_000)
	return txn, nil
}
