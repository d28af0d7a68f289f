package statement

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"BizBooks/api/books/ledger"
)

const nbsp = " "

// NormalizedFile is the uniform grid produced from an uploaded statement:
// unique headers plus cleaned data rows, ready for classification and
// mapping.
type NormalizedFile struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// NormalizeFile converts raw file bytes with a declared kind (csv|xlsx|xls)
// into a uniform grid. Spreadsheet merges are unmerged by propagating the
// top-left value, text columns are forward-filled, empty rows dropped, and
// the header row located by heuristic. A file with nothing left after
// cleaning is a fatal FileFormatError.
func NormalizeFile(data []byte, kind string) (*NormalizedFile, error) {
	if len(data) == 0 {
		return nil, ledger.FileFormatErrorf("empty file")
	}

	var grid [][]string
	var err error
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "xlsx":
		grid, err = parseXLSXGrid(data)
	case "xls":
		grid, err = parseXLSGrid(data)
	case "csv", "":
		grid, err = parseCSVGrid(data)
	default:
		return nil, ledger.FileFormatErrorf("unsupported file kind %q", kind)
	}
	if err != nil {
		// Declared kinds lie often enough that a fallback cascade is worth
		// one more attempt before giving up, same order the upstream tool
		// writes them.
		if alt, altErr := parseFallbackGrid(data, kind); altErr == nil {
			grid = alt
		} else {
			return nil, ledger.FileFormatErrorf("unreadable %s file: %v", kind, err)
		}
	}

	for i := range grid {
		for j := range grid[i] {
			grid[i][j] = normalizeCell(grid[i][j])
		}
	}
	grid = dropEmptyRows(grid)
	if len(grid) == 0 {
		return nil, ledger.FileFormatErrorf("no rows after cleaning")
	}

	headerIdx := detectHeaderRow(grid)
	headers := uniqueHeaders(grid[headerIdx])
	rows := dropEmptyRows(grid[headerIdx+1:])
	if len(rows) == 0 {
		return nil, ledger.FileFormatErrorf("no data rows below header")
	}
	rows = padRows(rows, len(headers))
	forwardFillTextColumns(rows)
	reformatDateCells(rows)

	log.Printf("[STATEMENT-NORMALIZE] header row %d, %d columns, %d data rows", headerIdx, len(headers), len(rows))
	return &NormalizedFile{Headers: headers, Rows: rows}, nil
}

func parseXLSXGrid(data []byte) ([][]string, error) {
	xl, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer xl.Close()
	sheet := xl.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	grid, err := xl.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	merges, err := xl.GetMergeCells(sheet)
	if err == nil {
		grid = unmerge(grid, merges)
	}
	return grid, nil
}

// unmerge propagates each merged range's top-left value to every covered
// cell. GetRows leaves all but the anchor cell empty, which would otherwise
// lose the dates and descriptions banks love to merge vertically.
func unmerge(grid [][]string, merges []excelize.MergeCell) [][]string {
	for _, m := range merges {
		c1, r1, err1 := excelize.CellNameToCoordinates(m.GetStartAxis())
		c2, r2, err2 := excelize.CellNameToCoordinates(m.GetEndAxis())
		if err1 != nil || err2 != nil {
			continue
		}
		val := m.GetCellValue()
		for r := r1; r <= r2; r++ {
			for len(grid) < r {
				grid = append(grid, []string{})
			}
			for c := c1; c <= c2; c++ {
				for len(grid[r-1]) < c {
					grid[r-1] = append(grid[r-1], "")
				}
				grid[r-1][c-1] = val
			}
		}
	}
	return grid
}

func parseXLSGrid(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("xls workbook has no sheets")
	}
	grid := make([][]string, 0, int(sheet.MaxRow)+1)
	for r := 0; r <= int(sheet.MaxRow); r++ {
		row := sheet.Row(r)
		if row == nil {
			grid = append(grid, []string{})
			continue
		}
		cells := make([]string, 0, row.LastCol()+1)
		for c := row.FirstCol(); c <= row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		grid = append(grid, cells)
	}
	return grid, nil
}

func parseCSVGrid(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

func parseFallbackGrid(data []byte, declared string) ([][]string, error) {
	if grid, err := parseXLSXGrid(data); err == nil {
		return grid, nil
	}
	if grid, err := parseXLSGrid(data); err == nil {
		return grid, nil
	}
	if !strings.EqualFold(declared, "csv") {
		return parseCSVGrid(data)
	}
	return nil, fmt.Errorf("no parser accepted the file")
}

// normalizeCell trims, removes non-breaking spaces and collapses whitespace.
func normalizeCell(s string) string {
	s = strings.ReplaceAll(s, nbsp, " ")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.Join(strings.Fields(s), " ")
}

func rowEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func dropEmptyRows(grid [][]string) [][]string {
	out := make([][]string, 0, len(grid))
	for _, row := range grid {
		if !rowEmpty(row) {
			out = append(out, row)
		}
	}
	return out
}

func padRows(rows [][]string, width int) [][]string {
	for i := range rows {
		for len(rows[i]) < width {
			rows[i] = append(rows[i], "")
		}
		if len(rows[i]) > width {
			rows[i] = rows[i][:width]
		}
	}
	return rows
}

// looksNumeric reports whether s reads as an amount once separators are
// stripped.
func looksNumeric(s string) bool {
	s = cleanAmount(s)
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// detectHeaderRow picks the row with the highest fraction of non-empty,
// non-numeric cells that is immediately followed by rows of consistent
// column count. The first non-empty row stays the default when nothing
// scores better.
func detectHeaderRow(grid [][]string) int {
	limit := len(grid)
	if limit > 30 {
		limit = 30
	}
	best, bestScore := 0, -1.0
	for i := 0; i < limit; i++ {
		row := grid[i]
		if len(row) < 2 || i+1 >= len(grid) {
			continue
		}
		textCells := 0
		for _, c := range row {
			if strings.TrimSpace(c) != "" && !looksNumeric(c) {
				textCells++
			}
		}
		score := float64(textCells) / float64(len(row))
		if score <= bestScore {
			continue
		}
		// the few rows below must hold data at roughly the header's width
		consistent := 0
		for j := i + 1; j < len(grid) && consistent < 3; j++ {
			if nonEmptyCount(grid[j]) >= 2 && nonEmptyCount(grid[j]) <= len(row)+1 {
				consistent++
			} else {
				break
			}
		}
		if consistent == 0 {
			continue
		}
		best, bestScore = i, score
	}
	return best
}

func nonEmptyCount(row []string) int {
	n := 0
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

// uniqueHeaders collapses duplicate or blank headers to "Column N"
// placeholders so every header can key a mapping.
func uniqueHeaders(row []string) []string {
	seen := map[string]bool{}
	out := make([]string, len(row))
	for i, h := range row {
		h = strings.TrimSpace(h)
		if h == "" || seen[strings.ToLower(h)] {
			h = fmt.Sprintf("Column %d", i+1)
		}
		seen[strings.ToLower(h)] = true
		out[i] = h
	}
	return out
}

// forwardFillTextColumns carries the previous value into empty cells of
// text-typed columns, recovering values implied by merges. Numeric columns
// are never filled — a merged amount cell never means "same amount again".
func forwardFillTextColumns(rows [][]string) {
	if len(rows) == 0 {
		return
	}
	width := len(rows[0])
	for col := 0; col < width; col++ {
		nonEmpty, numeric := 0, 0
		for _, row := range rows {
			if col >= len(row) || strings.TrimSpace(row[col]) == "" {
				continue
			}
			nonEmpty++
			if looksNumeric(row[col]) {
				numeric++
			}
		}
		if nonEmpty == 0 || numeric*2 >= nonEmpty {
			continue
		}
		last := ""
		for i := range rows {
			if col >= len(rows[i]) {
				continue
			}
			if strings.TrimSpace(rows[i][col]) == "" {
				rows[i][col] = last
			} else {
				last = rows[i][col]
			}
		}
	}
}

// wholeCellDay parses cell as a date only when the entire cell is the date
// (optionally followed by one time token) and every supported format that
// accepts it reads it as the same day. "12/05/2024" means different days
// under dd/mm and mm/dd, so it reaches the mapping step untouched and the
// confirmed format decides. A description that merely contains a date is
// never rewritten.
func wholeCellDay(cell string) (string, bool) {
	if len(strings.Fields(cell)) > 3 {
		return "", false
	}
	iso := ""
	for _, f := range SupportedDateFormats {
		day, err := ParseDay(cell, f.Token)
		if err != nil {
			continue
		}
		if iso != "" && day != iso {
			return "", false
		}
		iso = day
	}
	return iso, iso != ""
}

// reformatDateCells rewrites cells that unambiguously parse as dates to
// plain YYYY-MM-DD, so no timestamp can shift by timezone during later
// serialization. Cells whose day/month order depends on the chosen format
// are left for the mapping step. Pure numbers are left alone here; Excel
// serials are only resolved once a column is known to hold dates.
func reformatDateCells(rows [][]string) {
	for i := range rows {
		for j, cell := range rows[i] {
			if cell == "" || looksNumeric(cell) {
				continue
			}
			if !strings.ContainsAny(cell, "/-. ") {
				continue
			}
			if iso, ok := wholeCellDay(cell); ok {
				rows[i][j] = iso
			}
		}
	}
}
