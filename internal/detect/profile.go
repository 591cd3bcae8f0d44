package detect

import (
	"math"

	"github.com/sells-group/usage-insight/internal/model"
)

// SeasonalPattern grades how much usage varies across calendar months.
type SeasonalPattern string

const (
	PatternStrong   SeasonalPattern = "strong"
	PatternModerate SeasonalPattern = "moderate"
	PatternWeak     SeasonalPattern = "weak"
	PatternUnknown  SeasonalPattern = "unknown"
)

// ConsumptionProfile is a household's usage baseline for one energy kind.
type ConsumptionProfile struct {
	AvgUsage        float64         `json:"avg_usage" yaml:"avg_usage"`
	StdDev          float64         `json:"std_dev" yaml:"std_dev"`
	StabilityScore  float64         `json:"stability_score" yaml:"stability_score"`
	SeasonalPattern SeasonalPattern `json:"seasonal_pattern" yaml:"seasonal_pattern"`
	MonthlyAverages map[int]float64 `json:"monthly_averages,omitempty" yaml:"monthly_averages,omitempty"`
}

// Profile summarizes usage level, stability and seasonality. Fewer than
// three points give a zero profile with an unknown pattern.
func Profile(series model.TrendSeries) ConsumptionProfile {
	if len(series) < 3 {
		return ConsumptionProfile{SeasonalPattern: PatternUnknown}
	}

	avg, std := popMeanStd(series.Usages())
	var cv float64
	if avg > 0 {
		cv = std / avg
	}

	byMonth := make(map[int][]float64)
	for _, p := range series {
		m := p.CalendarMonth()
		byMonth[m] = append(byMonth[m], p.Usage)
	}
	monthly := make(map[int]float64, len(byMonth))
	values := make([]float64, 0, len(byMonth))
	for m, usages := range byMonth {
		mean, _ := popMeanStd(usages)
		monthly[m] = round2(mean)
		values = append(values, mean)
	}

	pattern := PatternUnknown
	if len(values) >= 3 {
		mean, std := popMeanStd(values)
		var seasonalCV float64
		if mean > 0 {
			seasonalCV = std / mean
		}
		switch {
		case seasonalCV > 0.3:
			pattern = PatternStrong
		case seasonalCV > 0.15:
			pattern = PatternModerate
		default:
			pattern = PatternWeak
		}
	}

	return ConsumptionProfile{
		AvgUsage:        round2(avg),
		StdDev:          round2(std),
		StabilityScore:  round2(1 - math.Min(cv, 1)),
		SeasonalPattern: pattern,
		MonthlyAverages: monthly,
	}
}
