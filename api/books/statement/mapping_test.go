package statement

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"BizBooks/api/books/ledger"
)

var testHeaders = []string{"Date", "Description", "Debit", "Credit", "Balance", "Ref"}

var testMappings = []ColumnMapping{
	{SourceColumn: "Date", Role: ledger.RoleDate},
	{SourceColumn: "Description", Role: ledger.RoleDescription},
	{SourceColumn: "Debit", Role: ledger.RoleDebit},
	{SourceColumn: "Credit", Role: ledger.RoleCredit},
	{SourceColumn: "Balance", Role: ledger.RoleBalance},
	{SourceColumn: "Ref", Role: ledger.RoleReference},
}

func testCtx(rowIndex int) MapContext {
	return MapContext{AccountID: "acc-1", BatchID: "batch-1", FileName: "dec.csv", RowIndex: rowIndex, Nonce: 42}
}

func TestMapRowDebitCredit(t *testing.T) {
	txn, rowErr := MapRow(
		[]string{"2024-12-25", "COFFEE SHOP", "50,000.00", "", "949,000", "FT001"},
		testHeaders, testMappings, MapOptions{DateFormat: "yyyy-mm-dd"}, testCtx(0))
	assert.Nil(t, rowErr)
	assert.Equal(t, "2024-12-25", txn.Date)
	assert.Equal(t, "COFFEE SHOP", txn.Description)
	assert.True(t, txn.DebitAmount.Valid)
	assert.Equal(t, "50000", txn.DebitAmount.Decimal.String())
	assert.False(t, txn.CreditAmount.Valid)
	assert.True(t, txn.Balance.Valid)
	assert.Equal(t, "FT001", txn.BankReference)
	assert.Equal(t, 1, txn.Sequence)
	assert.Equal(t, fmt.Sprintf("batch-1-0-%d", 42), txn.ID)
}

func TestMapRowValidation(t *testing.T) {
	// both amounts present
	_, rowErr := MapRow(
		[]string{"2024-12-25", "X", "100", "200", "", ""},
		testHeaders, testMappings, MapOptions{}, testCtx(3))
	assert.NotNil(t, rowErr)
	assert.Equal(t, 3, rowErr.RowIndex)

	// neither amount present; zero counts as absent
	_, rowErr = MapRow(
		[]string{"2024-12-25", "X", "0", "0.00", "", ""},
		testHeaders, testMappings, MapOptions{}, testCtx(4))
	assert.NotNil(t, rowErr)

	// unparseable date
	_, rowErr = MapRow(
		[]string{"not a date", "X", "100", "", "", ""},
		testHeaders, testMappings, MapOptions{}, testCtx(5))
	assert.NotNil(t, rowErr)

	// unparseable amount
	_, rowErr = MapRow(
		[]string{"2024-12-25", "X", "1oo", "", "", ""},
		testHeaders, testMappings, MapOptions{}, testCtx(6))
	assert.NotNil(t, rowErr)
}

func TestMapRowNegativeDebitColumn(t *testing.T) {
	// banks that export debits as negatives in the debit column
	txn, rowErr := MapRow(
		[]string{"2024-12-25", "X", "-75000", "", "", ""},
		testHeaders, testMappings, MapOptions{}, testCtx(0))
	assert.Nil(t, rowErr)
	assert.Equal(t, "75000", txn.DebitAmount.Decimal.String())
}

func TestMapRowSignedAmount(t *testing.T) {
	headers := []string{"Date", "Description", "Amount"}
	mappings := []ColumnMapping{
		{SourceColumn: "Date", Role: ledger.RoleDate},
		{SourceColumn: "Description", Role: ledger.RoleDescription},
		{SourceColumn: "Amount", Role: ledger.RoleSignedAmount},
	}

	// negative means debit under the conventional sign option
	opts := MapOptions{HasNegativeDebits: true}
	txn, rowErr := MapRow([]string{"2024-12-25", "SHOP", "-50000"}, headers, mappings, opts, testCtx(0))
	assert.Nil(t, rowErr)
	assert.True(t, txn.DebitAmount.Valid)
	assert.Equal(t, "50000", txn.DebitAmount.Decimal.String())

	txn, rowErr = MapRow([]string{"2024-12-25", "SALARY", "120000"}, headers, mappings, opts, testCtx(1))
	assert.Nil(t, rowErr)
	assert.True(t, txn.CreditAmount.Valid)

	// inverted sign convention flips both
	txn, rowErr = MapRow([]string{"2024-12-25", "SHOP", "-50000"}, headers, mappings, MapOptions{}, testCtx(2))
	assert.Nil(t, rowErr)
	assert.True(t, txn.CreditAmount.Valid)
	txn, rowErr = MapRow([]string{"2024-12-25", "FEE", "120000"}, headers, mappings, MapOptions{}, testCtx(3))
	assert.Nil(t, rowErr)
	assert.True(t, txn.DebitAmount.Valid)

	// accountant parentheses
	txn, rowErr = MapRow([]string{"2024-12-25", "SHOP", "(9,500.25)"}, headers, mappings, opts, testCtx(4))
	assert.Nil(t, rowErr)
	assert.Equal(t, "9500.25", txn.DebitAmount.Decimal.String())
}

func TestMapRowSanitizesText(t *testing.T) {
	txn, rowErr := MapRow(
		[]string{"2024-12-25", "LINE1\nLINE2\tTAB\\X", "100", "", "", ""},
		testHeaders, testMappings, MapOptions{}, testCtx(0))
	assert.Nil(t, rowErr)
	assert.Equal(t, "LINE1 LINE2 TAB/X", txn.Description)
}

func TestValidateMappings(t *testing.T) {
	assert.NoError(t, ValidateMappings(testMappings))

	var ffe *ledger.FileFormatError
	err := ValidateMappings([]ColumnMapping{{SourceColumn: "Debit", Role: ledger.RoleDebit}})
	assert.ErrorAs(t, err, &ffe)

	err = ValidateMappings([]ColumnMapping{
		{SourceColumn: "Date", Role: ledger.RoleDate},
		{SourceColumn: "Note", Role: ledger.RoleDescription},
	})
	assert.ErrorAs(t, err, &ffe)
}
