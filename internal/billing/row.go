// Package billing imports bill spreadsheets and folds bills into trend
// series.
package billing

import (
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/usage-insight/internal/model"
)

// dateLayouts are tried in order when parsing a bill date.
var dateLayouts = []string{"2006-01-02", "2006/01/02", "2006-01", "2006/01"}

// Row is one line of an imported bill file. Columns are matched by header
// name, case-insensitively.
type Row struct {
	Kind  string  `csv:"kind"`
	Date  string  `csv:"date"`
	Usage float64 `csv:"usage"`
	Cost  float64 `csv:"cost"`
}

// Bill converts the row into a bill for userID. The ID is left empty for
// the store to assign.
func (r Row) Bill(userID string) (model.Bill, error) {
	kind, err := model.ParseEnergyKind(r.Kind)
	if err != nil {
		return model.Bill{}, err
	}
	date, err := ParseDate(r.Date)
	if err != nil {
		return model.Bill{}, err
	}
	if r.Usage < 0 || r.Cost < 0 || math.IsNaN(r.Usage) || math.IsNaN(r.Cost) {
		return model.Bill{}, eris.Errorf("billing: usage and cost must be non-negative (usage=%v cost=%v)", r.Usage, r.Cost)
	}
	return model.Bill{
		UserID:   userID,
		Kind:     kind,
		BillDate: date,
		Usage:    r.Usage,
		Cost:     r.Cost,
	}, nil
}

// ParseDate accepts full dates and year-month values, returning UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("billing: unrecognized date %q", s)
}

// Bills converts rows, reporting the first bad row by its 1-based line
// number after the header.
func Bills(userID string, rows []Row) ([]model.Bill, error) {
	bills := make([]model.Bill, 0, len(rows))
	for i, r := range rows {
		b, err := r.Bill(userID)
		if err != nil {
			return nil, eris.Wrapf(err, "billing: row %d", i+1)
		}
		bills = append(bills, b)
	}
	return bills, nil
}
