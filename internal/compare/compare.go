// Package compare computes month-over-month and year-over-year changes for
// the latest point of a trend series.
package compare

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/usage-insight/internal/detect"
	"github.com/sells-group/usage-insight/internal/model"
)

// Latest compares the last point of series with its predecessor and with
// the same month a year earlier. Rates that cannot be computed are nil.
func Latest(series model.TrendSeries) (model.Comparison, error) {
	if err := series.Validate(); err != nil {
		return model.Comparison{}, eris.Wrap(err, "compare: validate series")
	}
	if len(series) == 0 {
		return model.Comparison{}, nil
	}
	return build(series, detect.Detect(series)), nil
}

// LatestWith is Latest for callers that already hold the statistical
// verdict of series; IsAbnormal is taken from it.
func LatestWith(series model.TrendSeries, verdict model.StatisticalVerdict) (model.Comparison, error) {
	if err := series.Validate(); err != nil {
		return model.Comparison{}, eris.Wrap(err, "compare: validate series")
	}
	if len(series) == 0 {
		return model.Comparison{}, nil
	}
	return build(series, verdict), nil
}

func build(series model.TrendSeries, verdict model.StatisticalVerdict) model.Comparison {
	current := series.Last()
	c := model.Comparison{
		CurrentUsage:     current.Usage,
		CurrentCost:      current.Cost,
		CurrentUnitPrice: round2(current.UnitPrice()),
		IsAbnormal:       verdict.IsAbnormal,
	}
	if len(series) == 1 {
		return c
	}

	previous := series[len(series)-2]
	c.PreviousUsage = ptr(previous.Usage)
	c.PreviousCost = ptr(previous.Cost)
	c.PreviousUnitPrice = ptr(round2(previous.UnitPrice()))

	c.UsageMoMPct = ptr(change(current.Usage, previous.Usage))
	c.CostMoMPct = ptr(change(current.Cost, previous.Cost))
	c.UnitPriceMoMPct = ptr(change(current.UnitPrice(), previous.UnitPrice()))

	if ago, ok := yearAgo(series); ok {
		c.UsageYoYPct = ptr(change(current.Usage, ago.Usage))
		c.CostYoYPct = ptr(change(current.Cost, ago.Cost))
		c.UnitPriceYoYPct = ptr(change(current.UnitPrice(), ago.UnitPrice()))
	}
	return c
}

// yearAgo finds the first earlier point in the same calendar month of the
// previous year.
func yearAgo(series model.TrendSeries) (model.TrendPoint, bool) {
	current := series.Last()
	year, month := current.CalendarYear()-1, current.CalendarMonth()
	for _, p := range series[:len(series)-1] {
		if p.CalendarYear() == year && p.CalendarMonth() == month {
			return p, true
		}
	}
	return model.TrendPoint{}, false
}

// change is the percent change from prev to cur, 0 when prev is 0.
func change(cur, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	return round2((cur - prev) / prev * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr(v float64) *float64 { return &v }
