package detect

import (
	"time"

	"github.com/sells-group/usage-insight/internal/model"
)

// monthlySeries builds consecutive monthly electricity points from start.
func monthlySeries(start time.Time, usages ...float64) model.TrendSeries {
	s := make(model.TrendSeries, len(usages))
	for i, u := range usages {
		s[i] = model.NewTrendPoint(model.EnergyElectricity, start.AddDate(0, i, 0), u, u*0.5)
	}
	return s
}

type dated struct {
	year  int
	month time.Month
	usage float64
}

func datedSeries(points ...dated) model.TrendSeries {
	s := make(model.TrendSeries, len(points))
	for i, p := range points {
		s[i] = model.NewTrendPoint(model.EnergyElectricity,
			time.Date(p.year, p.month, 1, 0, 0, 0, 0, time.UTC), p.usage, p.usage*0.5)
	}
	return s
}

var jan2024 = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
