package detect

import (
	"math"

	"github.com/sells-group/usage-insight/internal/model"
)

// ThresholdMethod selects the robust statistic used to size the normal range.
type ThresholdMethod string

const (
	MethodIQR            ThresholdMethod = "iqr"
	MethodZScore         ThresholdMethod = "zscore"
	MethodModifiedZScore ThresholdMethod = "modified_zscore"
)

// DefaultSensitivity scales the spread statistic into a half-width.
const DefaultSensitivity = 1.5

const (
	thresholdFloor   = -50.0
	thresholdCeiling = 50.0
	// madScale converts a MAD into a standard-deviation equivalent.
	madScale = 0.6745
)

var fallbackThresholds = model.Thresholds{Lower: -30, Upper: 30}

// EstimateThresholds derives the normal range of period-over-period change
// from a usage history. Too little history and unknown methods return the
// fixed [-30, 30] range. Bounds are always within [-50, 50].
func EstimateThresholds(history []float64, method ThresholdMethod, sensitivity float64) model.Thresholds {
	th, _ := estimateThresholds(history, method, sensitivity)
	return th
}

// estimateThresholds also reports whether the range was derived from the
// data rather than the fixed fallback.
func estimateThresholds(history []float64, method ThresholdMethod, sensitivity float64) (model.Thresholds, bool) {
	rates := changeRates(history)
	if len(rates) < 2 {
		return fallbackThresholds, false
	}

	var lower, upper float64
	switch method {
	case MethodIQR:
		q1 := percentile(rates, 25)
		q3 := percentile(rates, 75)
		half := math.Max(20, sensitivity*(q3-q1))
		lower, upper = q1-half, q3+half
	case MethodZScore:
		mean, std := popMeanStd(rates)
		half := math.Max(25, sensitivity*std)
		lower, upper = mean-half, mean+half
	case MethodModifiedZScore:
		med := median(rates)
		dev := make([]float64, len(rates))
		for i, r := range rates {
			dev[i] = math.Abs(r - med)
		}
		mad := median(dev)
		if mad == 0 {
			return model.Thresholds{Lower: -20, Upper: 20}, true
		}
		half := math.Max(20, sensitivity*mad/madScale)
		lower, upper = med-half, med+half
	default:
		return fallbackThresholds, false
	}

	return model.Thresholds{
		Lower: math.Max(thresholdFloor, lower),
		Upper: math.Min(thresholdCeiling, upper),
	}, true
}
