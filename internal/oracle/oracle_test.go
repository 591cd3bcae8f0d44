package oracle

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/usage-insight/internal/model"
)

func TestBuildSummary(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	history := model.TrendSeries{
		model.NewTrendPoint(model.EnergyGas, start, 100, 50),
		model.NewTrendPoint(model.EnergyGas, start.AddDate(0, 1, 0), 50, 25),
		model.NewTrendPoint(model.EnergyGas, start.AddDate(0, 2, 0), 150, 75),
	}
	current := model.NewTrendPoint(model.EnergyGas, start.AddDate(0, 3, 0), 200, 100)
	stat := &model.StatisticalVerdict{
		IsAbnormal:       true,
		AnomalyType:      model.AnomalyTraditional,
		Severity:         model.SeverityLow,
		Confidence:       0.6,
		DetectionMethods: []model.Method{model.MethodTraditional},
	}

	s := BuildSummary(history, current, stat)
	assert.Equal(t, 100.0, s.AvgUsage)
	assert.Equal(t, 150.0, s.MaxUsage)
	assert.Equal(t, 50.0, s.MinUsage)
	assert.Equal(t, 100.0, s.CurrentVsAvgPct)
	assert.Equal(t, 33.33, s.MoMPct)
	assert.Equal(t, 3, s.DataPoints)
	require.NotNil(t, s.Statistical)
	assert.Equal(t, model.AnomalyTraditional, s.Statistical.AnomalyType)

	empty := BuildSummary(nil, current, nil)
	assert.Equal(t, Summary{}, empty)
}

func TestBuildSummary_ZeroPrevious(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	history := model.TrendSeries{model.NewTrendPoint(model.EnergyWater, start, 0, 0)}
	s := BuildSummary(history, model.NewTrendPoint(model.EnergyWater, start.AddDate(0, 1, 0), 5, 2), nil)
	assert.Zero(t, s.MoMPct)
	assert.Zero(t, s.CurrentVsAvgPct)
}

func TestUnavailableError(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := error(&UnavailableError{Err: cause, Attempts: 3})
	assert.True(t, IsUnavailable(err))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "oracle unavailable after 3 attempt(s): dial tcp: i/o timeout", err.Error())
	assert.False(t, IsUnavailable(cause))
}

func TestSeasonOf(t *testing.T) {
	want := map[int]Season{
		1: Winter, 2: Winter, 3: Spring, 4: Spring, 5: Spring, 6: Summer,
		7: Summer, 8: Summer, 9: Autumn, 10: Autumn, 11: Autumn, 12: Winter,
	}
	for m, s := range want {
		assert.Equal(t, s, SeasonOf(m), m)
	}
}

func TestSeasonalThreshold(t *testing.T) {
	assert.Equal(t, 25, SeasonalThreshold(Winter, model.EnergyGas))
	assert.Equal(t, 10, SeasonalThreshold(Spring, model.EnergyWater))
	assert.Equal(t, 20, SeasonalThreshold(Season("monsoon"), model.EnergyGas))
}

func TestBuildPrompt_QuotesRecentHistoryOnly(t *testing.T) {
	start := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	var history model.TrendSeries
	for i := 0; i < 9; i++ {
		history = append(history, model.NewTrendPoint(model.EnergyElectricity, start.AddDate(0, i, 0), float64(100+i), 50))
	}
	current := model.NewTrendPoint(model.EnergyElectricity, start.AddDate(0, 9, 0), 300, 150)

	prompt, err := buildPrompt(Request{
		Kind:      model.EnergyElectricity,
		Current:   current,
		History:   history,
		Household: map[string]any{"family_size": 3},
		Summary:   BuildSummary(history, current, nil),
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Period: 2023-10 (autumn)")
	assert.Contains(t, prompt, "Usage: 300.0 kWh")
	assert.Contains(t, prompt, "last 6 periods")
	assert.NotContains(t, prompt, "2023-03:")
	assert.Contains(t, prompt, "2023-04:")
	assert.Contains(t, prompt, "2023-09:")
	assert.Contains(t, prompt, `"family_size": 3`)
	assert.Contains(t, prompt, `"data_points": 9`)
	assert.Contains(t, prompt, "deviation above 15%")
	assert.Equal(t, 1, strings.Count(prompt, "\"is_abnormal\": true or false"))
}

func TestSeasonalPattern(t *testing.T) {
	assert.Equal(t, "no history", seasonalPattern(nil))

	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	s := model.TrendSeries{
		model.NewTrendPoint(model.EnergyGas, start, 300, 1),
		model.NewTrendPoint(model.EnergyGas, start.AddDate(0, 1, 0), 100, 1),
		model.NewTrendPoint(model.EnergyGas, start.AddDate(0, 6, 0), 50, 1),
	}
	assert.Equal(t, "summer avg 50.0, winter avg 200.0", seasonalPattern(s))
}
