package billing

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/usage-insight/internal/model"
)

// Period is the aggregation granularity of a trend series.
type Period string

const (
	PeriodMonthly Period = "monthly"
	PeriodQuarter Period = "quarter"
	PeriodAnnual  Period = "annual"
	// PeriodCustom buckets by month over caller-supplied dates.
	PeriodCustom Period = "custom"
)

// ParsePeriod accepts monthly, quarter, annual and custom. Empty means
// monthly.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodMonthly:
		return PeriodMonthly, nil
	case PeriodQuarter, PeriodAnnual, PeriodCustom:
		return Period(s), nil
	default:
		return "", eris.Errorf("billing: unknown period %q", s)
	}
}

type bucketKey struct {
	kind  model.EnergyKind
	start time.Time
}

// BuildSeries folds bills into one ascending series per energy kind.
// Bills falling in the same period are summed.
func BuildSeries(bills []model.Bill, period Period) map[model.EnergyKind]model.TrendSeries {
	sums := make(map[bucketKey]*model.TrendPoint)
	for _, b := range bills {
		key := bucketKey{kind: b.Kind, start: periodStart(b.BillDate, period)}
		p, ok := sums[key]
		if !ok {
			p = &model.TrendPoint{Kind: b.Kind, PeriodStart: key.start}
			sums[key] = p
		}
		p.Usage += b.Usage
		p.Cost += b.Cost
	}

	out := make(map[model.EnergyKind]model.TrendSeries)
	for _, p := range sums {
		pt := *p
		pt.Usage = round2(pt.Usage)
		pt.Cost = round2(pt.Cost)
		pt.Year = strconv.Itoa(pt.PeriodStart.Year())
		if period == PeriodMonthly || period == PeriodCustom {
			pt.Month = strconv.Itoa(int(pt.PeriodStart.Month()))
		}
		out[pt.Kind] = append(out[pt.Kind], pt)
	}
	for kind := range out {
		s := out[kind]
		sort.Slice(s, func(i, j int) bool { return s[i].PeriodStart.Before(s[j].PeriodStart) })
	}
	return out
}

// Range is an inclusive window of bill dates. A zero bound is open.
type Range struct {
	From time.Time `json:"from,omitempty" yaml:"from,omitempty"`
	To   time.Time `json:"to,omitempty" yaml:"to,omitempty"`
}

// ErrInvalidRange is returned for a custom period without usable dates.
var ErrInvalidRange = eris.New("billing: invalid date range")

// DateRange returns the bill window a period covers as of now:
//   - monthly: the 14 full months ending with last month
//   - quarter: the current calendar year
//   - annual: everything up to today
//   - custom: from..to, both required
func DateRange(period Period, now, from, to time.Time) (Range, error) {
	today := day(now)
	switch period {
	case "", PeriodMonthly:
		end := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		start := time.Date(end.Year()-1, end.Month()-1, 1, 0, 0, 0, 0, time.UTC)
		return Range{From: start, To: end}, nil
	case PeriodQuarter:
		return Range{
			From: time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(today.Year(), time.December, 31, 0, 0, 0, 0, time.UTC),
		}, nil
	case PeriodAnnual:
		return Range{To: today}, nil
	case PeriodCustom:
		if from.IsZero() || to.IsZero() {
			return Range{}, eris.Wrap(ErrInvalidRange, "custom period needs from and to")
		}
		if to.Before(from) {
			return Range{}, eris.Wrapf(ErrInvalidRange, "to %s is before from %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
		}
		return Range{From: day(from), To: day(to)}, nil
	default:
		return Range{}, eris.Errorf("billing: unknown period %q", period)
	}
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func periodStart(t time.Time, period Period) time.Time {
	y, m, _ := t.Date()
	switch period {
	case PeriodQuarter:
		m = time.Month((int(m)-1)/3*3 + 1)
	case PeriodAnnual:
		m = time.January
	}
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
