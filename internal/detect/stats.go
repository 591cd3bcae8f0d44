package detect

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// popMeanStd returns the mean and population standard deviation of x.
func popMeanStd(x []float64) (mean, std float64) {
	if len(x) == 0 {
		return 0, 0
	}
	mean, variance := stat.PopMeanVariance(x, nil)
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// percentile interpolates linearly between the closest ranks around q
// (0-100), the same definition numpy uses by default. gonum's Quantile
// kinds step or interpolate on the empirical CDF and give different
// quartiles on short inputs.
func percentile(x []float64, q float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)

	pos := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func median(x []float64) float64 {
	return percentile(x, 50)
}

// changeRates returns the period-over-period percentage changes of values,
// skipping transitions whose prior value is zero.
func changeRates(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	rates := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev := values[i-1]
		if prev == 0 {
			continue
		}
		rates = append(rates, (values[i]-prev)/prev*100)
	}
	return rates
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
