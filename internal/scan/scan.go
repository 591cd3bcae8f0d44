// Package scan walks a trend series month by month and reports the
// periods the reconciled verdict deems abnormal.
package scan

import (
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/usage-insight/internal/detect"
	"github.com/sells-group/usage-insight/internal/metrics"
	"github.com/sells-group/usage-insight/internal/model"
	"github.com/sells-group/usage-insight/internal/oracle"
	"github.com/sells-group/usage-insight/internal/reconcile"
)

// Lookback defaults in months.
const (
	DefaultLookbackMonths       = 24
	DefaultEnergyLookbackMonths = 12
)

// DefaultCeilings are the per-period usage limits for the extreme check.
func DefaultCeilings() map[model.EnergyKind]float64 {
	return map[model.EnergyKind]float64{
		model.EnergyElectricity: 2000,
		model.EnergyGas:         500,
		model.EnergyWater:       100,
	}
}

// Scanner produces ranked anomaly records from a trend series.
type Scanner struct {
	oracle      oracle.Oracle
	ceilings    map[model.EnergyKind]float64
	minHistory  int
	concurrency int
}

// Option customizes a Scanner.
type Option func(*Scanner)

// WithCeilings overrides the extreme-value ceilings. Kinds not present
// keep their defaults.
func WithCeilings(c map[model.EnergyKind]float64) Option {
	return func(s *Scanner) {
		for k, v := range c {
			if v > 0 {
				s.ceilings[k] = v
			}
		}
	}
}

// WithMinHistory sets how many prior points a month needs before the full
// detector runs on it.
func WithMinHistory(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.minHistory = n
		}
	}
}

// WithConcurrency bounds parallel oracle calls. 1 means sequential.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New builds a Scanner. o may be nil, in which case every scan is
// statistics-only.
func New(o oracle.Oracle, opts ...Option) *Scanner {
	s := &Scanner{
		oracle:      o,
		ceilings:    DefaultCeilings(),
		minHistory:  3,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan returns the abnormal months of series within lookbackMonths of its
// latest point, most severe first and latest first within a severity.
// A lookbackMonths of zero or less keeps the whole series. Oracle
// failures fall back to the statistical verdict and are never returned.
func (s *Scanner) Scan(ctx context.Context, series model.TrendSeries, lookbackMonths int, useAI bool, household *model.Household) ([]model.AnomalyMonthRecord, error) {
	if err := series.Validate(); err != nil {
		return nil, eris.Wrap(err, "scan: validate series")
	}
	window := Window(series, lookbackMonths)
	if len(window) < 2 {
		return []model.AnomalyMonthRecord{}, nil
	}
	kind := window.Kind()
	metrics.ScansTotal.WithLabelValues(string(kind)).Inc()

	var records []model.AnomalyMonthRecord
	if len(window) < s.minHistory {
		records = s.ExtremeCheck(window)
	} else {
		var err error
		records, err = s.scanWindows(ctx, window, useAI && s.oracle != nil, household)
		if err != nil {
			return nil, err
		}
	}

	Rank(records)
	for _, r := range records {
		metrics.AnomaliesTotal.WithLabelValues(string(kind), string(r.Severity)).Inc()
	}
	return records, nil
}

func (s *Scanner) scanWindows(ctx context.Context, series model.TrendSeries, useAI bool, household *model.Household) ([]model.AnomalyMonthRecord, error) {
	need := min(s.minHistory, len(series))
	found := make([]*model.AnomalyMonthRecord, len(series))
	hctx := household.Context()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := need; i < len(series); i++ {
		g.Go(func() error {
			window := series[:i+1]
			history := series[:i]
			current := series[i]

			stat := detect.Detect(window)

			var ai *model.AIVerdict
			if useAI && len(history) >= 2 {
				ai = s.judge(gctx, current, history, hctx, &stat)
			}

			final := reconcile.Reconcile(stat, ai, useAI)
			if !final.IsAbnormal {
				return nil
			}
			rec := newRecord(current, history, final)
			found[i] = &rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "scan: windows")
	}

	records := []model.AnomalyMonthRecord{}
	for _, r := range found {
		if r != nil {
			records = append(records, *r)
		}
	}
	return records, nil
}

// judge asks the oracle for a verdict, returning nil on any failure.
func (s *Scanner) judge(ctx context.Context, current model.TrendPoint, history model.TrendSeries, household map[string]any, stat *model.StatisticalVerdict) *model.AIVerdict {
	v, err := s.oracle.Judge(ctx, oracle.Request{
		Kind:      current.Kind,
		Current:   current,
		History:   history,
		Household: household,
		Summary:   oracle.BuildSummary(history, current, stat),
	})
	if err != nil {
		zap.L().Warn("scan: oracle unavailable, using statistical verdict",
			zap.String("energy_kind", string(current.Kind)),
			zap.String("period", period(current)),
			zap.Error(err),
		)
		return nil
	}
	return v
}

// ExtremeCheck flags every point above its kind's ceiling. It is the
// fallback when the series is too short for the full detector.
func (s *Scanner) ExtremeCheck(series model.TrendSeries) []model.AnomalyMonthRecord {
	records := []model.AnomalyMonthRecord{}
	if len(series) == 0 {
		return records
	}
	ceiling, ok := s.ceilings[series.Kind()]
	if !ok {
		return records
	}
	avg := mean(series.Usages())
	for _, p := range series {
		if p.Usage <= ceiling {
			continue
		}
		records = append(records, model.AnomalyMonthRecord{
			Year:            p.CalendarYear(),
			Month:           p.CalendarMonth(),
			Usage:           p.Usage,
			Cost:            p.Cost,
			AvgUsage:        round2(avg),
			DeviationPct:    deviation(p.Usage, avg),
			AnomalyType:     model.AnomalyExtreme,
			Severity:        model.SeverityHigh,
			Confidence:      0.8,
			Recommendations: []string{
				fmt.Sprintf("Usage of %.1f is above the %.0f limit for %s; check the meter reading and appliances for faults", p.Usage, ceiling, p.Kind),
			},
		})
	}
	return records
}

// Window keeps the points within months of the latest point.
func Window(series model.TrendSeries, months int) model.TrendSeries {
	if months <= 0 || len(series) == 0 {
		return series
	}
	cutoff := series.Last().PeriodStart.AddDate(0, -months, 0)
	for i, p := range series {
		if p.PeriodStart.After(cutoff) {
			return series[i:]
		}
	}
	return series[:0]
}

// Rank sorts records by severity, then year and month, all descending.
func Rank(records []model.AnomalyMonthRecord) {
	sort.SliceStable(records, func(i, j int) bool { return Before(records[i], records[j]) })
}

// Before reports whether a ranks ahead of b.
func Before(a, b model.AnomalyMonthRecord) bool {
	if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
		return ra > rb
	}
	if a.Year != b.Year {
		return a.Year > b.Year
	}
	return a.Month > b.Month
}

func newRecord(current model.TrendPoint, history model.TrendSeries, v reconcile.Verdict) model.AnomalyMonthRecord {
	avg := mean(history.Usages())
	recs := v.Recommendations
	if recs == nil {
		recs = []string{}
	}
	return model.AnomalyMonthRecord{
		Year:            current.CalendarYear(),
		Month:           current.CalendarMonth(),
		Usage:           current.Usage,
		Cost:            current.Cost,
		AvgUsage:        round2(avg),
		DeviationPct:    deviation(current.Usage, avg),
		AnomalyType:     model.AnomalyType(v.AnomalyType),
		Severity:        v.Severity,
		Confidence:      v.Confidence,
		Recommendations: recs,
	}
}
