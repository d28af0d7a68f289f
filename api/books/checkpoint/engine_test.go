package checkpoint

import (
	"context"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"BizBooks/api/books/ledger"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// memStore is an in-memory Store for engine tests.
type memStore struct {
	checkpoints map[string]*ledger.Checkpoint
	txns        map[string]*ledger.Transaction
}

func newMemStore() *memStore {
	return &memStore{
		checkpoints: map[string]*ledger.Checkpoint{},
		txns:        map[string]*ledger.Transaction{},
	}
}

func (m *memStore) addTxn(accountID, date, debit, credit string, seq int) *ledger.Transaction {
	t := &ledger.Transaction{
		ID:        accountID + "-" + date + "-" + decimal.NewFromInt(int64(seq)).String(),
		AccountID: accountID,
		Date:      date,
		Sequence:  seq,
	}
	if debit != "" {
		t.DebitAmount = decimal.NewNullDecimal(d(debit))
	}
	if credit != "" {
		t.CreditAmount = decimal.NewNullDecimal(d(credit))
	}
	m.txns[t.ID] = t
	return t
}

func (m *memStore) GetCheckpointByID(_ context.Context, id string) (*ledger.Checkpoint, error) {
	if cp, ok := m.checkpoints[id]; ok {
		c := *cp
		return &c, nil
	}
	return nil, nil
}

func (m *memStore) GetCheckpointAt(_ context.Context, accountID, date string) (*ledger.Checkpoint, error) {
	for _, cp := range m.checkpoints {
		if cp.AccountID == accountID && cp.Date == date {
			c := *cp
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) SaveCheckpoint(_ context.Context, cp *ledger.Checkpoint) error {
	c := *cp
	m.checkpoints[cp.ID] = &c
	return nil
}

func (m *memStore) RemoveCheckpoint(_ context.Context, id string) error {
	delete(m.checkpoints, id)
	return nil
}

func (m *memStore) CheckpointsOnOrAfter(_ context.Context, accountID, from string) ([]ledger.Checkpoint, error) {
	out := []ledger.Checkpoint{}
	for _, cp := range m.checkpoints {
		if cp.AccountID == accountID && cp.Date >= from {
			out = append(out, *cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (m *memStore) NearestPriorReconciled(_ context.Context, accountID, date string) (*ledger.Checkpoint, error) {
	var best *ledger.Checkpoint
	for _, cp := range m.checkpoints {
		if cp.AccountID == accountID && cp.Date < date && cp.IsReconciled {
			if best == nil || cp.Date > best.Date {
				best = cp
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	c := *best
	return &c, nil
}

func (m *memStore) SumSignedAmounts(_ context.Context, accountID, fromExclusive, toInclusive, excludeCheckpointID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, t := range m.txns {
		if t.AccountID != accountID || t.Date > toInclusive {
			continue
		}
		if fromExclusive != "" && t.Date <= fromExclusive {
			continue
		}
		if t.IsBalanceAdjustment && t.CheckpointID == excludeCheckpointID {
			continue
		}
		sum = sum.Add(t.SignedAmount())
	}
	return sum, nil
}

func (m *memStore) LastStatementBalanceOn(_ context.Context, accountID, date string) (decimal.NullDecimal, error) {
	var best *ledger.Transaction
	for _, t := range m.txns {
		if t.AccountID != accountID || t.Date != date || t.IsBalanceAdjustment || !t.Balance.Valid {
			continue
		}
		if best == nil || t.Sequence > best.Sequence {
			best = t
		}
	}
	if best == nil {
		return decimal.NullDecimal{}, nil
	}
	return best.Balance, nil
}

func (m *memStore) UpsertAdjustment(_ context.Context, adj *ledger.Transaction) error {
	a := *adj
	m.txns[adj.ID] = &a
	return nil
}

func (m *memStore) RemoveAdjustmentFor(_ context.Context, checkpointID string) error {
	for id, t := range m.txns {
		if t.IsBalanceAdjustment && t.CheckpointID == checkpointID {
			delete(m.txns, id)
		}
	}
	return nil
}

func (m *memStore) adjustmentsFor(checkpointID string) []*ledger.Transaction {
	out := []*ledger.Transaction{}
	for _, t := range m.txns {
		if t.IsBalanceAdjustment && t.CheckpointID == checkpointID {
			out = append(out, t)
		}
	}
	return out
}

func TestCheckpointOnEmptyAccount(t *testing.T) {
	store := newMemStore()
	eng := NewEngine(store)

	cp, summary, err := eng.CreateOrUpdateCheckpoint(context.Background(), CreateInput{
		AccountID:       "acc-1",
		Date:            "2024-01-31",
		DeclaredBalance: d("100"),
	})
	assert.NoError(t, err)
	assert.True(t, cp.CalculatedBalance.IsZero())
	assert.True(t, cp.AdjustmentAmount.Equal(d("100")))
	assert.False(t, cp.IsReconciled)
	assert.Equal(t, 0, summary.Count)

	adjs := store.adjustmentsFor(cp.ID)
	assert.Len(t, adjs, 1)
	assert.True(t, adjs[0].CreditAmount.Valid)
	assert.True(t, adjs[0].CreditAmount.Decimal.Equal(d("100")))
	assert.Equal(t, "2024-01-31", adjs[0].Date)
}

func TestCheckpointReconciledWithinEpsilon(t *testing.T) {
	store := newMemStore()
	store.addTxn("acc-1", "2024-01-10", "", "500.00", 1)
	eng := NewEngine(store)

	cp, _, err := eng.CreateOrUpdateCheckpoint(context.Background(), CreateInput{
		AccountID:       "acc-1",
		Date:            "2024-01-31",
		DeclaredBalance: d("500.005"),
	})
	assert.NoError(t, err)
	assert.True(t, cp.IsReconciled)
	assert.Empty(t, store.adjustmentsFor(cp.ID))
}

func TestCheckpointUnexplainedCredit(t *testing.T) {
	store := newMemStore()
	store.addTxn("acc-1", "2024-01-05", "", "200000", 1)
	store.addTxn("acc-1", "2024-01-20", "30000", "", 2)
	eng := NewEngine(store)

	// bank says 220,000 but the ledger only replays to 170,000
	cp, _, err := eng.CreateOrUpdateCheckpoint(context.Background(), CreateInput{
		AccountID:       "acc-1",
		Date:            "2024-01-31",
		DeclaredBalance: d("220000"),
	})
	assert.NoError(t, err)
	assert.True(t, cp.CalculatedBalance.Equal(d("170000")))
	assert.True(t, cp.AdjustmentAmount.Equal(d("50000")))
	assert.False(t, cp.IsReconciled)

	adjs := store.adjustmentsFor(cp.ID)
	assert.Len(t, adjs, 1)
	assert.True(t, adjs[0].CreditAmount.Decimal.Equal(d("50000")))
}

func TestCheckpointUnexplainedDebit(t *testing.T) {
	store := newMemStore()
	store.addTxn("acc-1", "2024-01-05", "", "1000", 1)
	eng := NewEngine(store)

	cp, _, err := eng.CreateOrUpdateCheckpoint(context.Background(), CreateInput{
		AccountID:       "acc-1",
		Date:            "2024-01-31",
		DeclaredBalance: d("750"),
	})
	assert.NoError(t, err)
	assert.True(t, cp.AdjustmentAmount.Equal(d("-250")))

	adjs := store.adjustmentsFor(cp.ID)
	assert.Len(t, adjs, 1)
	assert.True(t, adjs[0].DebitAmount.Valid)
	assert.True(t, adjs[0].DebitAmount.Decimal.Equal(d("250")))
}

func TestStatementBalancePreferredOverDeclared(t *testing.T) {
	store := newMemStore()
	txn := store.addTxn("acc-1", "2024-01-31", "", "400", 3)
	txn.Balance = decimal.NewNullDecimal(d("400"))
	eng := NewEngine(store)

	cp, _, err := eng.CreateOrUpdateCheckpoint(context.Background(), CreateInput{
		AccountID:       "acc-1",
		Date:            "2024-01-31",
		DeclaredBalance: d("999"),
	})
	assert.NoError(t, err)
	assert.True(t, cp.DeclaredBalance.Equal(d("400")))
	assert.True(t, cp.IsReconciled)
}

func TestSameDateCheckpointReplacedInPlace(t *testing.T) {
	store := newMemStore()
	eng := NewEngine(store)
	ctx := context.Background()

	first, _, err := eng.CreateOrUpdateCheckpoint(ctx, CreateInput{
		AccountID: "acc-1", Date: "2024-01-31", DeclaredBalance: d("100"),
	})
	assert.NoError(t, err)
	second, _, err := eng.CreateOrUpdateCheckpoint(ctx, CreateInput{
		AccountID: "acc-1", Date: "2024-01-31", DeclaredBalance: d("120"),
	})
	assert.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.checkpoints, 1)
	adjs := store.adjustmentsFor(second.ID)
	assert.Len(t, adjs, 1)
	assert.True(t, adjs[0].CreditAmount.Decimal.Equal(d("120")))
}

func TestCascadeShiftsLaterCheckpointOnly(t *testing.T) {
	store := newMemStore()
	store.addTxn("acc-1", "2024-01-10", "", "1000", 1)
	store.addTxn("acc-1", "2024-02-10", "", "2000", 2)
	eng := NewEngine(store)
	ctx := context.Background()

	c1, _, err := eng.CreateOrUpdateCheckpoint(ctx, CreateInput{
		AccountID: "acc-1", Date: "2024-01-31", DeclaredBalance: d("1000"),
	})
	assert.NoError(t, err)
	assert.True(t, c1.IsReconciled)

	c2, _, err := eng.CreateOrUpdateCheckpoint(ctx, CreateInput{
		AccountID: "acc-1", Date: "2024-02-29", DeclaredBalance: d("3500"),
	})
	assert.NoError(t, err)
	assert.True(t, c2.AdjustmentAmount.Equal(d("500")))

	// a transaction lands between the two checkpoints
	store.addTxn("acc-1", "2024-02-15", "", "300", 3)
	summary, err := eng.RecalculateFrom(ctx, "acc-1", "2024-02-15", "")
	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Count)

	c1After, _ := store.GetCheckpointByID(ctx, c1.ID)
	c2After, _ := store.GetCheckpointByID(ctx, c2.ID)
	assert.True(t, c1After.AdjustmentAmount.IsZero())
	assert.True(t, c1After.IsReconciled)
	assert.True(t, c2After.AdjustmentAmount.Equal(d("200")))
	assert.True(t, store.adjustmentsFor(c2.ID)[0].CreditAmount.Decimal.Equal(d("200")))
}

func TestCascadeSeesEarlierAdjustment(t *testing.T) {
	store := newMemStore()
	eng := NewEngine(store)
	ctx := context.Background()

	// unreconciled opening checkpoint carries a 100 credit adjustment
	c1, _, err := eng.CreateOrUpdateCheckpoint(ctx, CreateInput{
		AccountID: "acc-1", Date: "2024-01-31", DeclaredBalance: d("100"),
	})
	assert.NoError(t, err)
	assert.False(t, c1.IsReconciled)

	store.addTxn("acc-1", "2024-02-10", "", "50", 1)
	c2, _, err := eng.CreateOrUpdateCheckpoint(ctx, CreateInput{
		AccountID: "acc-1", Date: "2024-02-29", DeclaredBalance: d("150"),
	})
	assert.NoError(t, err)

	// replay from scratch includes c1's adjustment: 100 + 50 = 150
	assert.True(t, c2.CalculatedBalance.Equal(d("150")))
	assert.True(t, c2.IsReconciled)
}

func TestDeleteCheckpointRemovesAdjustmentAndRecalcs(t *testing.T) {
	store := newMemStore()
	store.addTxn("acc-1", "2024-01-10", "", "1000", 1)
	eng := NewEngine(store)
	ctx := context.Background()

	c1, _, err := eng.CreateOrUpdateCheckpoint(ctx, CreateInput{
		AccountID: "acc-1", Date: "2024-01-31", DeclaredBalance: d("1200"),
	})
	assert.NoError(t, err)
	c2, _, err := eng.CreateOrUpdateCheckpoint(ctx, CreateInput{
		AccountID: "acc-1", Date: "2024-02-29", DeclaredBalance: d("1200"),
	})
	assert.NoError(t, err)
	assert.True(t, c2.IsReconciled)

	summary, err := eng.DeleteCheckpoint(ctx, c1.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Count)
	assert.Empty(t, store.adjustmentsFor(c1.ID))

	// without c1's 200 adjustment, c2 now comes up short
	c2After, _ := store.GetCheckpointByID(ctx, c2.ID)
	assert.True(t, c2After.CalculatedBalance.Equal(d("1000")))
	assert.True(t, c2After.AdjustmentAmount.Equal(d("200")))
	assert.False(t, c2After.IsReconciled)
}

func TestDeleteUnknownCheckpoint(t *testing.T) {
	eng := NewEngine(newMemStore())
	_, err := eng.DeleteCheckpoint(context.Background(), "nope")
	assert.ErrorIs(t, err, ledger.ErrCheckpointNotFound)
}
