package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProfile(t *testing.T) {
	t.Parallel()

	t.Run("too short", func(t *testing.T) {
		t.Parallel()
		p := Profile(monthlySeries(jan2024, 100, 200))
		assert.Equal(t, ConsumptionProfile{SeasonalPattern: PatternUnknown}, p)
	})

	t.Run("flat usage is weak and stable", func(t *testing.T) {
		t.Parallel()
		p := Profile(monthlySeries(jan2024, 100, 100, 100, 100))
		assert.Equal(t, 100.0, p.AvgUsage)
		assert.Zero(t, p.StdDev)
		assert.Equal(t, 1.0, p.StabilityScore)
		assert.Equal(t, PatternWeak, p.SeasonalPattern)
		assert.Len(t, p.MonthlyAverages, 4)
	})

	t.Run("strong seasonal swing", func(t *testing.T) {
		t.Parallel()
		p := Profile(monthlySeries(jan2024, 300, 100, 50, 300))
		assert.Equal(t, 187.5, p.AvgUsage)
		assert.Equal(t, PatternStrong, p.SeasonalPattern)
		assert.InDelta(t, 0.39, p.StabilityScore, 0.01)
	})

	t.Run("repeated months are averaged", func(t *testing.T) {
		t.Parallel()
		p := Profile(datedSeries(
			dated{2023, time.January, 100},
			dated{2024, time.January, 200},
			dated{2024, time.February, 120},
		))
		assert.Equal(t, map[int]float64{1: 150, 2: 120}, p.MonthlyAverages)
		assert.Equal(t, PatternUnknown, p.SeasonalPattern)
	})
}
