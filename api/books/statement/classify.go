package statement

import (
	"strings"

	"BizBooks/api/books/ledger"
	"BizBooks/internal/config"
)

// ColumnDetection is the classifier's advisory verdict for one column. The
// user (or a saved mapping) makes the final call; ambiguity only lowers
// confidence, it never blocks.
type ColumnDetection struct {
	Column        string      `json:"column"`
	SuggestedRole ledger.Role `json:"suggested_role"`
	Confidence    float64     `json:"confidence"`
	DateFormat    string      `json:"date_format,omitempty"`
	SampleValues  []string    `json:"sample_values"`
}

var (
	debitHeaderWords     = []string{"debit", "withdrawal", "nợ", "out", "dr", "paid out", "chi"}
	creditHeaderWords    = []string{"credit", "deposit", "có", "in", "cr", "paid in", "thu"}
	balanceHeaderWords   = []string{"balance", "số dư", "so du", "bal"}
	amountHeaderWords    = []string{"amount", "số tiền", "so tien", "value"}
	referenceHeaderWords = []string{"ref", "utr", "cheque", "chq", "tran id", "txn id", "số bút toán"}
	branchHeaderWords    = []string{"branch", "chi nhánh", "chi nhanh"}
	descHeaderWords      = []string{"description", "narration", "remarks", "particulars", "diễn giải", "dien giai", "detail", "nội dung", "noi dung"}
	dateHeaderWords      = []string{"date", "ngày", "ngay"}
)

func headerContains(header string, words []string) bool {
	h := strings.ToLower(header)
	for _, w := range words {
		if strings.Contains(h, w) {
			return true
		}
	}
	return false
}

// ClassifyColumns inspects the first rows of each column and proposes a
// semantic role with a confidence score.
func ClassifyColumns(headers []string, rows [][]string) []ColumnDetection {
	out := make([]ColumnDetection, len(headers))
	for col, header := range headers {
		samples := columnSamples(rows, col, config.ClassifierSampleRows)
		out[col] = classifyColumn(header, samples)
	}
	// a file can only carry one date column; keep the strongest and demote
	// the rest to ignore so the default mapping stays valid
	bestDate, bestConf := -1, -1.0
	for i, d := range out {
		if d.SuggestedRole == ledger.RoleDate && d.Confidence > bestConf {
			bestDate, bestConf = i, d.Confidence
		}
	}
	for i := range out {
		if out[i].SuggestedRole == ledger.RoleDate && i != bestDate {
			out[i].SuggestedRole = ledger.RoleIgnore
			out[i].Confidence = out[i].Confidence / 2
		}
	}
	return out
}

func columnSamples(rows [][]string, col, limit int) []string {
	samples := []string{}
	for _, row := range rows {
		if len(samples) >= limit {
			break
		}
		if col < len(row) && strings.TrimSpace(row[col]) != "" {
			samples = append(samples, row[col])
		}
	}
	return samples
}

func classifyColumn(header string, samples []string) ColumnDetection {
	d := ColumnDetection{Column: header, SuggestedRole: ledger.RoleIgnore, Confidence: 0.1, SampleValues: samples}
	if len(samples) == 0 {
		return d
	}

	dateHits, numericHits, negatives, positives := 0, 0, 0, 0
	distinct := map[string]bool{}
	shortToken := 0
	for _, s := range samples {
		if _, err := ParseDay(s, ""); err == nil && !looksNumeric(s) {
			dateHits++
		}
		if looksNumeric(s) {
			numericHits++
			if strings.HasPrefix(strings.TrimSpace(s), "-") || strings.HasPrefix(strings.TrimSpace(s), "(") {
				negatives++
			} else {
				positives++
			}
		}
		distinct[strings.ToLower(s)] = true
		if len(s) <= 24 && !strings.Contains(s, " ") {
			shortToken++
		}
	}
	n := len(samples)
	dateFrac := float64(dateHits) / float64(n)
	numFrac := float64(numericHits) / float64(n)
	distinctFrac := float64(len(distinct)) / float64(n)

	switch {
	case dateFrac > 0.8:
		format, _ := DetectDateFormat(samples)
		d.SuggestedRole = ledger.RoleDate
		d.DateFormat = format
		d.Confidence = dateFrac
		if headerContains(header, dateHeaderWords) {
			d.Confidence = clamp(d.Confidence + 0.1)
		}
	case numFrac > 0.8:
		d.Confidence = numFrac
		switch {
		case headerContains(header, debitHeaderWords) && negatives == 0:
			d.SuggestedRole = ledger.RoleDebit
		case headerContains(header, creditHeaderWords) && negatives == 0:
			d.SuggestedRole = ledger.RoleCredit
		case headerContains(header, balanceHeaderWords):
			d.SuggestedRole = ledger.RoleBalance
		case headerContains(header, referenceHeaderWords):
			// cheque and transaction numbers are numeric but are not money
			d.SuggestedRole = ledger.RoleReference
			d.Confidence = numFrac * 0.8
		case negatives > 0 && positives > 0:
			d.SuggestedRole = ledger.RoleSignedAmount
		case headerContains(header, amountHeaderWords):
			d.SuggestedRole = ledger.RoleSignedAmount
			d.Confidence = numFrac * 0.8
		default:
			// a numeric column we cannot name: advisory only, low confidence
			d.SuggestedRole = ledger.RoleSignedAmount
			d.Confidence = 0.3
		}
	case headerContains(header, referenceHeaderWords):
		d.SuggestedRole = ledger.RoleReference
		d.Confidence = clamp(0.7 + 0.2*distinctFrac)
	case headerContains(header, branchHeaderWords):
		d.SuggestedRole = ledger.RoleBranch
		d.Confidence = 0.7
	case headerContains(header, descHeaderWords):
		d.SuggestedRole = ledger.RoleDescription
		d.Confidence = 0.8
	case distinctFrac > 0.9 && shortToken == n:
		// unnamed column of unique short tokens smells like references
		d.SuggestedRole = ledger.RoleReference
		d.Confidence = 0.5
	case distinctFrac > 0.5:
		d.SuggestedRole = ledger.RoleDescription
		d.Confidence = 0.4
	}
	return d
}

func clamp(f float64) float64 {
	if f > 1 {
		return 1
	}
	return f
}
