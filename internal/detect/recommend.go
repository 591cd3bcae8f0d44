package detect

import (
	"fmt"
	"math"

	"github.com/sells-group/usage-insight/internal/model"
)

// Recommendations returns the advisory lines for a verdict. rate is the
// month-over-month change in percent.
func Recommendations(kind model.AnomalyType, severity model.Severity, rate float64, trend model.TrendInfo) []string {
	recs := []string{}

	switch kind {
	case model.AnomalyTrend:
		if trend.Direction == model.DirectionIncreasing {
			recs = append(recs, "Usage has been rising steadily; review appliance efficiency and daily habits")
			if severity == model.SeverityHigh {
				recs = append(recs,
					"The upward trend is pronounced; schedule an efficiency assessment of major equipment now",
					"Consider replacing ageing equipment or shifting usage patterns to contain cost")
			} else {
				recs = append(recs, "Set staged reduction targets and tighten usage step by step")
			}
		} else {
			recs = append(recs,
				"Usage is trending down; keep the current savings measures in place",
				"Build on the gains with a long-term energy management routine")
		}

	case model.AnomalySeasonal:
		recs = append(recs,
			"Usage is unusual for the season; account for weather-driven demand",
			"Adjust how seasonal equipment such as heating or cooling is scheduled")
		if severity == model.SeverityHigh {
			recs = append(recs, "The seasonal swing is large; prepare a seasonal usage plan")
		} else {
			recs = append(recs, "Tune run times and thermostat settings moderately")
		}

	case model.AnomalyStatistical:
		if rate > 0 {
			recs = append(recs, fmt.Sprintf("Usage rose %.1f%%, outside the normal range; look for unusually heavy consumers", math.Abs(rate)))
			if math.Abs(rate) > 50 {
				recs = append(recs, "The jump is severe; check for equipment faults or leaks immediately")
			} else {
				recs = append(recs, "Check how often high-consumption equipment runs and how efficiently")
			}
		} else {
			recs = append(recs,
				fmt.Sprintf("Usage fell %.1f%%; the savings are significant", math.Abs(rate)),
				"Note the measures taken so they can be repeated")
		}

	case model.AnomalyTraditional:
		recs = append(recs,
			"Usage changed noticeably; review recent changes in how energy is used",
			"Check whether new appliances were added or routines changed")
	}

	switch severity {
	case model.SeverityHigh:
		recs = append(recs,
			"The anomaly is significant; investigate in detail and draw up an improvement plan",
			"Consider a professional energy audit to find the underlying cause")
	case model.SeverityMedium:
		recs = append(recs,
			"Keep monitoring usage and apply suitable savings measures",
			"Make regular usage checks a habit so problems surface early")
	}

	return recs
}
