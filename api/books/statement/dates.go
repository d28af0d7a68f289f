package statement

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"BizBooks/api/books/ledger"
)

// DateFormat pairs a user-facing format token with the Go layouts tried for
// it. The order of SupportedDateFormats matters: detection picks the first
// format under which every sample parses, and dd/mm/yyyy is deliberately
// first because it is the regionally-likely default for the statements we
// see.
type DateFormat struct {
	Token   string
	Layouts []string
}

var SupportedDateFormats = []DateFormat{
	{Token: "dd/mm/yyyy", Layouts: []string{"02/01/2006", "2/1/2006", "02/01/06", "2/1/06"}},
	{Token: "mm/dd/yyyy", Layouts: []string{"01/02/2006", "1/2/2006", "01/02/06"}},
	{Token: "yyyy-mm-dd", Layouts: []string{"2006-01-02", "2006-1-2"}},
	{Token: "dd.mm.yyyy", Layouts: []string{"02.01.2006", "2.1.2006"}},
	{Token: "yyyy/mm/dd", Layouts: []string{"2006/01/02", "2006/1/2"}},
	{Token: "dd MMM yyyy", Layouts: []string{"02 Jan 2006", "2 Jan 2006", "02-Jan-2006", "2-Jan-2006", "02-Jan-06"}},
}

func layoutsFor(token string) []string {
	if token == "" {
		all := []string{}
		for _, f := range SupportedDateFormats {
			all = append(all, f.Layouts...)
		}
		return all
	}
	for _, f := range SupportedDateFormats {
		if strings.EqualFold(f.Token, token) {
			return f.Layouts
		}
	}
	return nil
}

// ParseDay parses s as a calendar day under the given format token (every
// supported format when the token is empty) and renders it as YYYY-MM-DD.
// The canonical YYYY-MM-DD rendering is accepted under every token, since
// normalization may already have rewritten an unambiguous cell. Trailing
// time components are stripped before parsing — statement exports sometimes
// embed a timestamp next to the date. Excel serial numbers are the last
// resort.
func ParseDay(s, formatToken string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("empty date")
	}
	layouts := layoutsFor(formatToken)
	if layouts == nil {
		return "", fmt.Errorf("unknown date format %q", formatToken)
	}
	if formatToken != "" {
		layouts = append(append([]string{}, layouts...), ledger.DateLayout)
	}
	return parseDayLayouts(s, layouts)
}

func parseDayLayouts(s string, layouts []string) (string, error) {
	for _, cand := range dateCandidates(s) {
		for _, layout := range layouts {
			if t, err := time.Parse(layout, cand); err == nil {
				return t.Format(ledger.DateLayout), nil
			}
		}
	}
	if iso, err := parseExcelSerialDay(s); err == nil {
		return iso, nil
	}
	return "", fmt.Errorf("could not parse date: %s", s)
}

// dateCandidates returns progressively truncated variants of s so that
// "25/12/2024 14:30:55" and "2024-12-25T00:00:00" still parse, without
// breaking space-separated layouts like "25 Dec 2024".
func dateCandidates(s string) []string {
	out := []string{s}
	if i := strings.IndexByte(s, 'T'); i > 0 {
		out = append(out, s[:i])
	}
	fields := strings.Fields(s)
	if len(fields) >= 3 {
		out = append(out, strings.Join(fields[:3], " "))
	}
	if len(fields) >= 2 {
		out = append(out, fields[0])
	}
	return out
}

// parseExcelSerialDay converts an Excel serial date into YYYY-MM-DD. The
// 1899-12-30 base absorbs Excel's fake 1900-02-29, so plain day addition is
// exact for every serial past it. Values outside a sane calendar window are
// rejected so plain amounts never masquerade as dates.
func parseExcelSerialDay(s string) (string, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return "", err
	}
	days := int(f)
	if days < 61 || days > 80000 {
		return "", fmt.Errorf("serial %v out of date range", f)
	}
	base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, days).Format(ledger.DateLayout), nil
}

// DetectDateFormat tries the supported formats against every sample and
// returns the first token under which all of them parse, with a confidence
// reflecting how many samples backed the decision. Detection never fails
// hard: when nothing fits, the regional default is returned with zero
// confidence and the caller (or the user) decides.
func DetectDateFormat(samples []string) (string, float64) {
	clean := make([]string, 0, len(samples))
	for _, s := range samples {
		if s = strings.TrimSpace(s); s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return SupportedDateFormats[0].Token, 0
	}
	for _, f := range SupportedDateFormats {
		all := true
		for _, s := range clean {
			// strict token layouts only: detection must distinguish the
			// formats, not accept the canonical rendering under all of them
			if _, err := parseDayLayouts(s, f.Layouts); err != nil {
				all = false
				break
			}
		}
		if all {
			conf := float64(len(clean)) / float64(len(clean)+2)
			return f.Token, conf
		}
	}
	return SupportedDateFormats[0].Token, 0
}
