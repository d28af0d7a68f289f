package statement

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"BizBooks/api/books/ledger"
	"BizBooks/internal/config"
)

// Period is the declared statement window, inclusive on both ends. An empty
// bound disables the filter on that side.
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

func (p Period) contains(day string) bool {
	if p.Start != "" && day < p.Start {
		return false
	}
	if p.End != "" && day > p.End {
		return false
	}
	return true
}

// Resolution is the resolver's output: the order-corrected, de-duplicated
// insert set plus the full trail of what was excluded and why.
type Resolution struct {
	InsertSet         []ledger.Transaction      `json:"insert_set"`
	DuplicateWarnings []ledger.DuplicateWarning `json:"duplicate_warnings"`
	Errors            []ledger.RowError         `json:"errors"`
	// Descending reports the two-endpoint order heuristic; Confidence tags
	// how much to trust it. A non-monotonic file can fool it — the caller
	// may override before committing.
	Descending      bool    `json:"descending"`
	OrderConfidence float64 `json:"order_confidence"`
}

func inBatchKey(t ledger.Transaction) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		t.Date,
		strings.ToLower(strings.TrimSpace(t.Description)),
		nullAmountKey(t.DebitAmount.Valid, t.DebitAmount.Decimal.String()),
		nullAmountKey(t.CreditAmount.Valid, t.CreditAmount.Decimal.String()),
		strings.ToLower(strings.TrimSpace(t.BankReference)),
	)
}

func amountKey(t ledger.Transaction) string {
	return fmt.Sprintf("%s|%s|%s",
		t.Date,
		nullAmountKey(t.DebitAmount.Valid, t.DebitAmount.Decimal.String()),
		nullAmountKey(t.CreditAmount.Valid, t.CreditAmount.Decimal.String()),
	)
}

func nullAmountKey(valid bool, s string) string {
	if !valid {
		return ""
	}
	return s
}

func descKey(desc string) string {
	d := strings.ToLower(strings.TrimSpace(desc))
	if len(d) > config.DescriptionKeyLen {
		d = d[:config.DescriptionKeyLen]
	}
	return d
}

// ResolveOrderAndDuplicates takes the full mapped batch plus a window of
// existing account history and produces the final insert set: chronological
// sequence numbers, stray out-of-period rows dropped, and both in-batch and
// cross-batch duplicates excluded with a traceable warning each.
func ResolveOrderAndDuplicates(txns []ledger.Transaction, existing []ledger.Transaction, period Period) Resolution {
	res := Resolution{
		InsertSet:         []ledger.Transaction{},
		DuplicateWarnings: []ledger.DuplicateWarning{},
		Errors:            []ledger.RowError{},
	}
	if len(txns) == 0 {
		return res
	}

	// order detection compares the two endpoints only
	first, last := txns[0].Date, txns[len(txns)-1].Date
	res.OrderConfidence = 0.5
	if first != last {
		res.OrderConfidence = 0.75
	}
	if first > last {
		res.Descending = true
		maxSeq := 0
		for _, t := range txns {
			if t.Sequence > maxSeq {
				maxSeq = t.Sequence
			}
		}
		for i := range txns {
			txns[i].Sequence = maxSeq - txns[i].Sequence + 1
		}
		log.Printf("[STATEMENT-RESOLVE] descending file detected (%s .. %s), sequences reversed", first, last)
	}

	// lookup over existing history keyed by (date, debit, credit)
	existingByAmount := map[string][]*ledger.Transaction{}
	for i := range existing {
		k := amountKey(existing[i])
		existingByAmount[k] = append(existingByAmount[k], &existing[i])
	}

	seenInBatch := map[string]*ledger.Transaction{}
	for _, t := range txns {
		if !period.contains(t.Date) {
			res.Errors = append(res.Errors, ledger.RowError{
				RowIndex: t.Sequence - 1,
				Message:  fmt.Sprintf("transaction dated %s outside statement period (skipped)", t.Date),
			})
			continue
		}

		if kept, dup := seenInBatch[inBatchKey(t)]; dup {
			res.DuplicateWarnings = append(res.DuplicateWarnings, ledger.DuplicateWarning{
				Incoming: t,
				Existing: kept,
				Reason:   "duplicate transaction (skipped)",
			})
			continue
		}

		if match := findExistingMatch(t, existingByAmount); match != nil {
			res.DuplicateWarnings = append(res.DuplicateWarnings, ledger.DuplicateWarning{
				Incoming: t,
				Existing: match,
				Reason:   "already imported in an earlier batch (skipped)",
			})
			continue
		}

		res.InsertSet = append(res.InsertSet, t)
		kept := res.InsertSet[len(res.InsertSet)-1]
		seenInBatch[inBatchKey(t)] = &kept
	}

	// compact to a dense 1..M in chronological order
	sort.SliceStable(res.InsertSet, func(i, j int) bool {
		return res.InsertSet[i].Sequence < res.InsertSet[j].Sequence
	})
	for i := range res.InsertSet {
		res.InsertSet[i].Sequence = i + 1
	}
	return res
}

// findExistingMatch applies the cross-batch rule: date and both amounts must
// match exactly, and then either the description (first 50 chars, case
// folded) or a shared non-empty bank reference confirms it.
func findExistingMatch(t ledger.Transaction, byAmount map[string][]*ledger.Transaction) *ledger.Transaction {
	for _, cand := range byAmount[amountKey(t)] {
		if cand.IsBalanceAdjustment {
			continue
		}
		if descKey(cand.Description) == descKey(t.Description) {
			return cand
		}
		tRef := strings.TrimSpace(t.BankReference)
		cRef := strings.TrimSpace(cand.BankReference)
		if tRef != "" && strings.EqualFold(tRef, cRef) {
			return cand
		}
	}
	return nil
}
