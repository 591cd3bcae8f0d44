package analysis

import (
	"sort"

	"github.com/sells-group/usage-insight/internal/model"
)

// daysPerMonth is the month length used to estimate device hours.
const daysPerMonth = 30

// DeviceUsage estimates a device's monthly draw in the kind's billing unit:
// kWh from watts, m³ from gas m³/h, and m³ from water L/h.
func DeviceUsage(d model.Device) float64 {
	if d.PowerRating <= 0 || d.HoursPerDay <= 0 {
		return 0
	}
	hours := d.HoursPerDay * daysPerMonth
	switch d.Kind {
	case model.EnergyGas:
		return d.PowerRating * hours
	default:
		return d.PowerRating * hours / 1000
	}
}

// DeviceShares splits the estimated usage of devices across them, largest
// first. Shares are all zero when no device draws anything.
func DeviceShares(devices []model.Device) []model.DeviceShare {
	out := make([]model.DeviceShare, 0, len(devices))
	total := 0.0
	for _, d := range devices {
		u := DeviceUsage(d)
		total += u
		out = append(out, model.DeviceShare{DeviceID: d.ID, Name: d.Name, MonthlyUsage: u})
	}
	for i := range out {
		if total > 0 {
			out[i].SharePct = round2(out[i].MonthlyUsage / total * 100)
		}
		out[i].MonthlyUsage = round2(out[i].MonthlyUsage)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MonthlyUsage > out[j].MonthlyUsage })
	return out
}
