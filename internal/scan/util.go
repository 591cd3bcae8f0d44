package scan

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/usage-insight/internal/model"
)

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// deviation is the percent distance of v from avg; 0 when avg is 0.
func deviation(v, avg float64) float64 {
	if avg == 0 {
		return 0
	}
	return round2((v - avg) / avg * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func period(p model.TrendPoint) string {
	return p.PeriodStart.Format("2006-01")
}
