package statement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"BizBooks/api/books/ledger"
)

func batchTxn(seq int, date, desc, debit, credit, ref string) ledger.Transaction {
	t := ledger.Transaction{
		AccountID:   "acc-1",
		Date:        date,
		Description: desc,
		Sequence:    seq,
		BatchID:     "batch-1",
	}
	if debit != "" {
		t.DebitAmount = decimal.NewNullDecimal(decimal.RequireFromString(debit))
	}
	if credit != "" {
		t.CreditAmount = decimal.NewNullDecimal(decimal.RequireFromString(credit))
	}
	t.BankReference = ref
	return t
}

func TestResolveDescendingFileIsReversed(t *testing.T) {
	txns := []ledger.Transaction{
		batchTxn(1, "2024-12-25", "LATEST", "100", "", ""),
		batchTxn(2, "2024-12-24", "EARLIER", "200", "", ""),
	}
	res := ResolveOrderAndDuplicates(txns, nil, Period{})
	assert.True(t, res.Descending)
	assert.Equal(t, 0.75, res.OrderConfidence)
	assert.Len(t, res.InsertSet, 2)
	// chronological order with dense sequences
	assert.Equal(t, "EARLIER", res.InsertSet[0].Description)
	assert.Equal(t, 1, res.InsertSet[0].Sequence)
	assert.Equal(t, "LATEST", res.InsertSet[1].Description)
	assert.Equal(t, 2, res.InsertSet[1].Sequence)
}

func TestResolveAscendingKeptAsIs(t *testing.T) {
	txns := []ledger.Transaction{
		batchTxn(1, "2024-12-24", "A", "100", "", ""),
		batchTxn(2, "2024-12-25", "B", "200", "", ""),
	}
	res := ResolveOrderAndDuplicates(txns, nil, Period{})
	assert.False(t, res.Descending)
	assert.Equal(t, "A", res.InsertSet[0].Description)
}

func TestResolveSingleDayLowConfidence(t *testing.T) {
	txns := []ledger.Transaction{
		batchTxn(1, "2024-12-25", "A", "100", "", ""),
		batchTxn(2, "2024-12-25", "B", "200", "", ""),
	}
	res := ResolveOrderAndDuplicates(txns, nil, Period{})
	assert.Equal(t, 0.5, res.OrderConfidence)
}

func TestResolveInBatchDuplicates(t *testing.T) {
	// two identical rows collapse; a same-amount row with another
	// description survives
	txns := []ledger.Transaction{
		batchTxn(1, "2024-12-25", "COFFEE", "50", "", ""),
		batchTxn(2, "2024-12-25", "COFFEE", "50", "", ""),
		batchTxn(3, "2024-12-25", "LUNCH", "50", "", ""),
	}
	res := ResolveOrderAndDuplicates(txns, nil, Period{})
	assert.Len(t, res.InsertSet, 2)
	assert.Len(t, res.DuplicateWarnings, 1)
	assert.Contains(t, res.DuplicateWarnings[0].Reason, "duplicate")
	assert.NotNil(t, res.DuplicateWarnings[0].Existing)
}

func TestResolveCrossBatchByDescription(t *testing.T) {
	existing := []ledger.Transaction{
		batchTxn(7, "2024-12-25", "COFFEE SHOP DOWNTOWN BRANCH NUMBER FIVE EXTRA TEXT", "50", "", ""),
	}
	incoming := []ledger.Transaction{
		// same date, amount, and first 50 description chars
		batchTxn(1, "2024-12-25", "COFFEE SHOP DOWNTOWN BRANCH NUMBER FIVE EXTRA TEXT TRAILING", "50", "", ""),
		batchTxn(2, "2024-12-26", "NEW PAYMENT", "70", "", ""),
	}
	res := ResolveOrderAndDuplicates(incoming, existing, Period{})
	assert.Len(t, res.InsertSet, 1)
	assert.Equal(t, "NEW PAYMENT", res.InsertSet[0].Description)
	assert.Len(t, res.DuplicateWarnings, 1)
	assert.Contains(t, res.DuplicateWarnings[0].Reason, "earlier batch")
}

func TestResolveCrossBatchByReference(t *testing.T) {
	existing := []ledger.Transaction{
		batchTxn(7, "2024-12-25", "BANK WORDING ONE", "", "300", "FT24360X"),
	}
	incoming := []ledger.Transaction{
		// bank reworded the narration but the reference matches
		batchTxn(1, "2024-12-25", "DIFFERENT WORDING ENTIRELY", "", "300", "FT24360X"),
	}
	res := ResolveOrderAndDuplicates(incoming, existing, Period{})
	assert.Empty(t, res.InsertSet)
	assert.Len(t, res.DuplicateWarnings, 1)
}

func TestResolveDifferentAmountIsNotDuplicate(t *testing.T) {
	existing := []ledger.Transaction{
		batchTxn(7, "2024-12-25", "COFFEE", "50", "", ""),
	}
	incoming := []ledger.Transaction{
		batchTxn(1, "2024-12-25", "COFFEE", "51", "", ""),
	}
	res := ResolveOrderAndDuplicates(incoming, existing, Period{})
	assert.Len(t, res.InsertSet, 1)
	assert.Empty(t, res.DuplicateWarnings)
}

func TestResolveSkipsAdjustmentCandidates(t *testing.T) {
	adj := batchTxn(7, "2024-12-25", "COFFEE", "50", "", "")
	adj.IsBalanceAdjustment = true
	res := ResolveOrderAndDuplicates(
		[]ledger.Transaction{batchTxn(1, "2024-12-25", "COFFEE", "50", "", "")},
		[]ledger.Transaction{adj}, Period{})
	assert.Len(t, res.InsertSet, 1)
}

func TestResolvePeriodFilter(t *testing.T) {
	txns := []ledger.Transaction{
		batchTxn(1, "2024-11-30", "STRAY", "10", "", ""),
		batchTxn(2, "2024-12-05", "IN PERIOD", "20", "", ""),
		batchTxn(3, "2025-01-02", "STRAY TOO", "30", "", ""),
	}
	res := ResolveOrderAndDuplicates(txns, nil, Period{Start: "2024-12-01", End: "2024-12-31"})
	assert.Len(t, res.InsertSet, 1)
	assert.Equal(t, "IN PERIOD", res.InsertSet[0].Description)
	assert.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0].Message, "outside statement period")
	// sequence compacts after the drops
	assert.Equal(t, 1, res.InsertSet[0].Sequence)
}
