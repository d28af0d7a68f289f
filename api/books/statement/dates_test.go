package statement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDay(t *testing.T) {
	cases := []struct {
		in     string
		format string
		want   string
	}{
		{"25/12/2024", "dd/mm/yyyy", "2024-12-25"},
		{"5/1/2024", "dd/mm/yyyy", "2024-01-05"},
		{"12/25/2024", "mm/dd/yyyy", "2024-12-25"},
		{"2024-12-25", "yyyy-mm-dd", "2024-12-25"},
		{"25.12.2024", "dd.mm.yyyy", "2024-12-25"},
		{"25 Dec 2024", "dd MMM yyyy", "2024-12-25"},
		{"02-Jan-2006", "dd MMM yyyy", "2006-01-02"},
		// time components are stripped
		{"25/12/2024 14:30:55", "dd/mm/yyyy", "2024-12-25"},
		{"2024-12-25T00:00:00", "yyyy-mm-dd", "2024-12-25"},
		// empty token tries every format, regional default first
		{"05/04/2024", "", "2024-04-05"},
		// canonical rendering is accepted under any explicit token, since
		// normalization may already have rewritten an unambiguous cell
		{"2024-12-26", "dd/mm/yyyy", "2024-12-26"},
		{"2024-12-26", "mm/dd/yyyy", "2024-12-26"},
	}
	for _, c := range cases {
		got, err := ParseDay(c.in, c.format)
		assert.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseDayRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "not a date", "32/13/2024", "12.5"} {
		_, err := ParseDay(in, "")
		assert.Error(t, err, in)
	}
}

func TestParseDayExcelSerial(t *testing.T) {
	// serial 44927 is 2023-01-01 in the 1900 date system
	got, err := ParseDay("44927", "dd/mm/yyyy")
	assert.NoError(t, err)
	assert.Equal(t, "2023-01-01", got)

	got, err = ParseDay("61", "")
	assert.NoError(t, err)
	assert.Equal(t, "1900-03-01", got)

	// small numbers are amounts, not dates
	_, err = ParseDay("50", "")
	assert.Error(t, err)
}

func TestDetectDateFormat(t *testing.T) {
	token, conf := DetectDateFormat([]string{"25/12/2024", "26/12/2024", "01/01/2025"})
	assert.Equal(t, "dd/mm/yyyy", token)
	assert.Greater(t, conf, 0.5)

	// day > 12 rules out dd/mm, so mm/dd wins
	token, _ = DetectDateFormat([]string{"12/25/2024", "12/26/2024"})
	assert.Equal(t, "mm/dd/yyyy", token)

	token, conf = DetectDateFormat([]string{"gibberish"})
	assert.Equal(t, "dd/mm/yyyy", token)
	assert.Zero(t, conf)
}
