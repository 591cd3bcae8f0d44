// Package detect implements the deterministic usage anomaly detectors and
// the policy that merges their signals into one statistical verdict.
package detect

import (
	"math"

	"github.com/sells-group/usage-insight/internal/model"
)

// traditionalLimit is the month-over-month change, in percent, beyond which
// the traditional check fires.
const traditionalLimit = 30.0

var methodWeights = map[model.Method]float64{
	model.MethodTraditional: 0.6,
	model.MethodStatistical: 0.8,
	model.MethodSeasonal:    0.7,
	model.MethodTrend:       0.9,
}

// Comprehensive validates series and runs Detect over it.
func Comprehensive(series model.TrendSeries) (model.StatisticalVerdict, error) {
	if err := series.Validate(); err != nil {
		return model.StatisticalVerdict{}, err
	}
	return Detect(series), nil
}

// Detect runs the traditional, statistical, seasonal and trend checks over
// the window ending at the last point and merges them. The series is
// assumed to be valid and ascending.
func Detect(series model.TrendSeries) model.StatisticalVerdict {
	if len(series) < 2 {
		return model.StatisticalVerdict{
			Severity:         model.SeverityLow,
			DetectionMethods: []model.Method{},
			Recommendations:  []string{},
		}
	}

	current := series[len(series)-1].Usage
	previous := series[len(series)-2].Usage

	var rate float64
	hasRate := previous != 0
	if hasRate {
		rate = (current - previous) / previous * 100
	}

	thresholds, derived := estimateThresholds(series.Usages(), MethodIQR, DefaultSensitivity)
	trend := AnalyzeTrend(series)

	fired := map[model.Method]bool{
		model.MethodTraditional: hasRate && math.Abs(rate) > traditionalLimit,
		// The fallback range repeats the traditional rule and is not counted twice.
		model.MethodStatistical: hasRate && derived && !thresholds.Contains(rate),
		model.MethodSeasonal:    IsSeasonalAnomaly(series),
		model.MethodTrend:       trend.IsAbnormal,
	}

	var methods []model.Method
	var scores []float64
	for _, m := range []model.Method{model.MethodTraditional, model.MethodStatistical, model.MethodSeasonal, model.MethodTrend} {
		if fired[m] {
			methods = append(methods, m)
			scores = append(scores, methodWeights[m])
		}
	}

	verdict := model.StatisticalVerdict{
		IsAbnormal:       isAbnormal(methods, scores),
		Severity:         model.SeverityLow,
		DetectionMethods: append([]model.Method{}, methods...),
		Thresholds: &model.Thresholds{
			Lower: round2(thresholds.Lower),
			Upper: round2(thresholds.Upper),
		},
		TrendInfo: &trend,
	}

	if verdict.IsAbnormal {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		verdict.Confidence = round2(sum / float64(len(scores)))

		switch {
		case fired[model.MethodTrend]:
			verdict.AnomalyType = model.AnomalyTrend
			verdict.Severity = model.SeverityMedium
			if trend.Strength > 25 {
				verdict.Severity = model.SeverityHigh
			}
		case fired[model.MethodSeasonal]:
			verdict.AnomalyType = model.AnomalySeasonal
			verdict.Severity = model.SeverityMedium
		case fired[model.MethodStatistical]:
			verdict.AnomalyType = model.AnomalyStatistical
			if verdict.Confidence > 0.7 {
				verdict.Severity = model.SeverityMedium
			}
		default:
			verdict.AnomalyType = model.AnomalyTraditional
		}
	}

	verdict.Recommendations = Recommendations(verdict.AnomalyType, verdict.Severity, rate, trend)
	return verdict
}

// isAbnormal applies the single-method gates: traditional and statistical
// stand alone at weight 0.6 or more, seasonal and trend need 0.8 or more.
// Two or more firing methods are always abnormal.
func isAbnormal(methods []model.Method, scores []float64) bool {
	switch len(methods) {
	case 0:
		return false
	case 1:
		switch methods[0] {
		case model.MethodTraditional, model.MethodStatistical:
			return scores[0] >= 0.6
		case model.MethodSeasonal, model.MethodTrend:
			return scores[0] >= 0.8
		}
		return false
	default:
		return true
	}
}
