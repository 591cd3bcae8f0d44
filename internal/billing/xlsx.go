package billing

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects the sheet holding the bills.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSX reads bill rows from a workbook. The first row of the sheet is
// the header; blank rows are skipped.
func ReadXLSX(path string, opts XLSXOptions) ([]Row, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	rows := []Row{}
	var cols map[string]int
	for i, r := range sheet.Rows {
		cells := rowToStrings(r)
		if i == 0 {
			cols = columnIndex(normalizeHeader(cells))
			for _, name := range []string{"kind", "date", "usage", "cost"} {
				if _, ok := cols[name]; !ok {
					return nil, eris.Errorf("xlsx: missing column %q", name)
				}
			}
			continue
		}
		if blank(cells) {
			continue
		}

		row, err := parseCells(cells, cols)
		if err != nil {
			return nil, eris.Wrapf(err, "xlsx: row %d", i)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols
}

func parseCells(cells []string, cols map[string]int) (Row, error) {
	get := func(name string) string {
		if i := cols[name]; i < len(cells) {
			return cells[i]
		}
		return ""
	}

	usage, err := strconv.ParseFloat(get("usage"), 64)
	if err != nil {
		return Row{}, eris.Wrap(err, "parse usage")
	}
	cost, err := strconv.ParseFloat(get("cost"), 64)
	if err != nil {
		return Row{}, eris.Wrap(err, "parse cost")
	}
	return Row{Kind: get("kind"), Date: get("date"), Usage: usage, Cost: cost}, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
