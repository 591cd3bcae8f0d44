package detect

import (
	"math"

	"github.com/sells-group/usage-insight/internal/model"
)

const (
	seasonWindow = 3
	seasonalZ    = 2.0
)

// IsSeasonalAnomaly reports whether the last point of series deviates by
// more than two standard deviations from prior points in neighbouring months.
//
// Month adjacency is plain |m1-m2| <= 1 and does not wrap the year, so
// December and January are not neighbours.
// TODO: confirm with stored verdicts whether Dec/Jan should wrap before
// changing this.
func IsSeasonalAnomaly(series model.TrendSeries) bool {
	if len(series) < seasonWindow*2 {
		return false
	}

	current := series.Last()
	month := current.CalendarMonth()

	var samples []float64
	for _, p := range series[:len(series)-1] {
		if abs(p.CalendarMonth()-month) <= 1 {
			samples = append(samples, p.Usage)
		}
	}
	if len(samples) < 2 {
		return false
	}

	mean, std := popMeanStd(samples)
	if std == 0 {
		return false
	}
	return math.Abs(current.Usage-mean)/std > seasonalZ
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
