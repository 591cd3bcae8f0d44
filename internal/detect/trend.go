package detect

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/usage-insight/internal/model"
)

const (
	trendMinWindow   = 6
	trendMinR        = 0.7
	trendMinStrength = 15.0
	trendMaxP        = 0.05
)

// linearFit is an ordinary least-squares fit of usage against a 0-based index.
type linearFit struct {
	Slope     float64
	Intercept float64
	R         float64
	PValue    float64
	StdErr    float64
}

// fitLinear regresses y on 0..n-1. n must be at least 3.
func fitLinear(y []float64) linearFit {
	n := len(y)
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)
	fit := linearFit{Slope: slope, Intercept: intercept}

	_, stdY := popMeanStd(y)
	if stdY == 0 {
		fit.PValue = 1
		return fit
	}
	r := clamp(stat.Correlation(x, y, nil), -1, 1)
	fit.R = r

	df := float64(n - 2)
	if 1-r*r <= 0 {
		return fit
	}

	_, stdX := popMeanStd(x)
	fit.StdErr = math.Sqrt((1 - r*r) * (stdY * stdY) / (stdX * stdX) / df)

	t := r * math.Sqrt(df/((1-r)*(1+r)))
	studentsT := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	fit.PValue = 2 * (1 - studentsT.CDF(math.Abs(t)))
	return fit
}

// AnalyzeTrend fits a linear trend over the series and flags sustained
// drift: |r| > 0.7, strength above 15% of mean usage per period, p < 0.05.
// Windows shorter than six points report no trend.
func AnalyzeTrend(series model.TrendSeries) model.TrendInfo {
	if len(series) < trendMinWindow {
		return model.TrendInfo{Direction: model.DirectionStable}
	}

	usages := series.Usages()
	fit := fitLinear(usages)

	info := model.TrendInfo{Confidence: math.Abs(fit.R)}
	switch {
	case fit.Slope == 0 || math.Abs(fit.Slope) < 2*fit.StdErr:
		info.Direction = model.DirectionStable
		return info
	case fit.Slope > 0:
		info.Direction = model.DirectionIncreasing
	default:
		info.Direction = model.DirectionDecreasing
	}

	if mean := stat.Mean(usages, nil); mean > 0 {
		info.Strength = math.Abs(fit.Slope) / mean * 100
	}
	info.IsAbnormal = math.Abs(fit.R) > trendMinR &&
		info.Strength > trendMinStrength &&
		fit.PValue < trendMaxP
	return info
}
