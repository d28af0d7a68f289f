package statement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xuri/excelize/v2"
)

func TestNormalizeCSVWithPreamble(t *testing.T) {
	csvData := "Bank Statement\n" +
		"Account:,123456\n" +
		"Date,Description,Debit,Credit,Balance\n" +
		"25/12/2024,COFFEE SHOP,50000,,950000\n" +
		"26/12/2024,,,200000,1150000\n"

	nf, err := NormalizeFile([]byte(csvData), "csv")
	assert.NoError(t, err)
	assert.Equal(t, []string{"Date", "Description", "Debit", "Credit", "Balance"}, nf.Headers)
	assert.Len(t, nf.Rows, 2)

	// dates rewritten to ISO
	assert.Equal(t, "2024-12-25", nf.Rows[0][0])
	assert.Equal(t, "2024-12-26", nf.Rows[1][0])
	// text columns forward-fill, numeric columns never do
	assert.Equal(t, "COFFEE SHOP", nf.Rows[1][1])
	assert.Equal(t, "", nf.Rows[1][2])
}

func TestNormalizeCSVBOMAndBlankHeaders(t *testing.T) {
	csvData := "\xEF\xBB\xBFDate,,Amount,Amount\n" +
		"25/12/2024,A,100,200\n" +
		"26/12/2024,B,300,400\n"

	nf, err := NormalizeFile([]byte(csvData), "")
	assert.NoError(t, err)
	assert.Equal(t, []string{"Date", "Column 2", "Amount", "Column 4"}, nf.Headers)
}

func TestNormalizeXLSXUnmergesCells(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	assert.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Date", "Description", "Amount"}))
	assert.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"25/12/2024", "PAYMENT A", "-50000"}))
	assert.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"", "PAYMENT B", "120000"}))
	assert.NoError(t, f.MergeCell(sheet, "A2", "A3"))
	buf, err := f.WriteToBuffer()
	assert.NoError(t, err)

	nf, err := NormalizeFile(buf.Bytes(), "xlsx")
	assert.NoError(t, err)
	assert.Equal(t, []string{"Date", "Description", "Amount"}, nf.Headers)
	assert.Len(t, nf.Rows, 2)
	// merged date propagated to both rows, then rewritten to ISO
	assert.Equal(t, "2024-12-25", nf.Rows[0][0])
	assert.Equal(t, "2024-12-25", nf.Rows[1][0])
}

func TestNormalizeFallbackOnWrongDeclaredKind(t *testing.T) {
	csvData := "Date,Description,Amount\n25/12/2024,SHOP,100\n"
	// declared xlsx, actually CSV: the fallback cascade should recover it
	nf, err := NormalizeFile([]byte(csvData), "xlsx")
	assert.NoError(t, err)
	assert.Equal(t, []string{"Date", "Description", "Amount"}, nf.Headers)
}

func TestNormalizeRejectsEmptyAndHeaderOnly(t *testing.T) {
	_, err := NormalizeFile(nil, "csv")
	assert.Error(t, err)

	_, err = NormalizeFile([]byte("Date,Description,Amount\n"), "csv")
	assert.Error(t, err)
}

func TestNormalizeKeepsAmbiguousDates(t *testing.T) {
	// "12/05/2024" is a different day under dd/mm and mm/dd; the cell must
	// survive untouched so the confirmed mapping format decides
	csvData := "Date,Description,Amount\n" +
		"12/05/2024,VENDOR PAYMENT,100\n" +
		"26/12/2024,SHOP,200\n"
	nf, err := NormalizeFile([]byte(csvData), "csv")
	assert.NoError(t, err)
	assert.Equal(t, "12/05/2024", nf.Rows[0][0])
	// day 26 rules out mm/dd, so this one is safe to canonicalize
	assert.Equal(t, "2024-12-26", nf.Rows[1][0])
}

func TestNormalizeKeepsDatesInsideDescriptions(t *testing.T) {
	csvData := "Date,Description,Amount\n" +
		"25/12/2024,TRANSFER 12/05/2024 REF 99,100\n" +
		"26/12/2024,SHOP,200\n"
	nf, err := NormalizeFile([]byte(csvData), "csv")
	assert.NoError(t, err)
	assert.Equal(t, "TRANSFER 12/05/2024 REF 99", nf.Rows[0][1])
}
