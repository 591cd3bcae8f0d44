package scan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/usage-insight/internal/model"
	"github.com/sells-group/usage-insight/internal/oracle"
)

// MockOracle implements oracle.Oracle for testing.
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Judge(ctx context.Context, req oracle.Request) (*model.AIVerdict, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AIVerdict), args.Error(1)
}

func series(kind model.EnergyKind, start time.Time, usages ...float64) model.TrendSeries {
	out := make(model.TrendSeries, len(usages))
	for i, u := range usages {
		out[i] = model.NewTrendPoint(kind, start.AddDate(0, i, 0), u, u*0.5)
	}
	return out
}

var jan2024 = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// spikeSeries has a June spike and a July drop back, both flagged by the
// traditional and statistical checks at confidence 0.7.
func spikeSeries() model.TrendSeries {
	return series(model.EnergyElectricity, jan2024, 100, 102, 101, 103, 102, 160, 104, 103)
}

func months(records []model.AnomalyMonthRecord) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r.Month
	}
	return out
}

func TestScan_StatisticsOnly(t *testing.T) {
	got, err := New(nil).Scan(context.Background(), spikeSeries(), DefaultLookbackMonths, false, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, []int{7, 6}, months(got))
	june := got[1]
	assert.Equal(t, 2024, june.Year)
	assert.Equal(t, 160.0, june.Usage)
	assert.Equal(t, 80.0, june.Cost)
	assert.Equal(t, model.AnomalyStatistical, june.AnomalyType)
	assert.Equal(t, model.SeverityLow, june.Severity)
	assert.Equal(t, 0.7, june.Confidence)
	assert.Equal(t, 101.6, june.AvgUsage)
	assert.Equal(t, 57.48, june.DeviationPct)
	assert.NotEmpty(t, june.Recommendations)
}

func TestScan_OracleTimeoutFallsBackToStatistics(t *testing.T) {
	o := new(MockOracle)
	o.On("Judge", mock.Anything, mock.Anything).
		Return(nil, &oracle.UnavailableError{Err: context.DeadlineExceeded, Attempts: 3})

	withAI, err := New(o).Scan(context.Background(), spikeSeries(), DefaultLookbackMonths, true, nil)
	require.NoError(t, err)
	statOnly, err := New(nil).Scan(context.Background(), spikeSeries(), DefaultLookbackMonths, false, nil)
	require.NoError(t, err)

	assert.Equal(t, statOnly, withAI)
	o.AssertNumberOfCalls(t, "Judge", 5)
}

func TestScan_OracleOverrulesWeakStatistics(t *testing.T) {
	o := new(MockOracle)
	o.On("Judge", mock.Anything, mock.Anything).Return(&model.AIVerdict{
		IsAbnormal: false,
		Severity:   model.SeverityLow,
		Confidence: 0.9,
		Reasoning:  "normal",
	}, nil)

	got, err := New(o).Scan(context.Background(), spikeSeries(), DefaultLookbackMonths, true, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScan_OracleFlagsEveryMonth(t *testing.T) {
	o := new(MockOracle)
	o.On("Judge", mock.Anything, mock.Anything).Return(&model.AIVerdict{
		IsAbnormal:     true,
		AbnormalType:   "equipment",
		Severity:       model.SeverityHigh,
		Confidence:     0.9,
		Recommendation: "inspect the water heater",
	}, nil)

	got, err := New(o, WithConcurrency(4)).Scan(context.Background(), spikeSeries(), DefaultLookbackMonths, true, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{8, 7, 6, 5, 4}, months(got))
	for _, r := range got {
		assert.Equal(t, model.SeverityHigh, r.Severity)
		assert.Equal(t, model.AnomalyType("equipment"), r.AnomalyType)
	}
	// June and July are abnormal on both sides and keep the higher confidence.
	assert.Equal(t, 0.9, got[2].Confidence)
	assert.Equal(t, 0.9*0.7, got[0].Confidence)
}

func TestScan_OracleRequest(t *testing.T) {
	o := new(MockOracle)
	o.On("Judge", mock.Anything, mock.MatchedBy(func(req oracle.Request) bool {
		return len(req.History) >= 3 && req.Current.PeriodStart.After(req.History.Last().PeriodStart)
	})).Return(&model.AIVerdict{Confidence: 0.2, Severity: model.SeverityLow}, nil)

	area := 80.0
	_, err := New(o).Scan(context.Background(), spikeSeries(), 0, true, &model.Household{FamilySize: 3, FloorArea: &area})
	require.NoError(t, err)

	first := o.Calls[0].Arguments.Get(1).(oracle.Request)
	assert.Equal(t, model.EnergyElectricity, first.Kind)
	assert.Equal(t, 3, first.Household["family_size"])
	assert.Equal(t, 80.0, first.Household["floor_area"])
	require.NotNil(t, first.Summary.Statistical)
	o.AssertExpectations(t)
}

func TestScan_TooShortIsEmpty(t *testing.T) {
	s := New(nil)
	for _, in := range []model.TrendSeries{
		nil,
		{},
		series(model.EnergyElectricity, jan2024, 5000),
		series(model.EnergyWater, jan2024, 0),
	} {
		got, err := s.Scan(context.Background(), in, DefaultLookbackMonths, true, nil)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestScan_ShortSeriesUsesExtremeCheck(t *testing.T) {
	got, err := New(nil).Scan(context.Background(), series(model.EnergyElectricity, jan2024, 2500, 100), 0, false, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.AnomalyExtreme, got[0].AnomalyType)
	assert.Equal(t, 1, got[0].Month)
	assert.Equal(t, 1300.0, got[0].AvgUsage)
}

func TestScan_RejectsUnorderedSeries(t *testing.T) {
	in := series(model.EnergyGas, jan2024, 10, 20, 30)
	in[0], in[2] = in[2], in[0]

	_, err := New(nil).Scan(context.Background(), in, 0, false, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidSeries)
}

func TestExtremeCheck(t *testing.T) {
	tests := []struct {
		name   string
		series model.TrendSeries
		want   int
	}{
		{"electricity single point", series(model.EnergyElectricity, jan2024, 3000), 1},
		{"electricity at ceiling", series(model.EnergyElectricity, jan2024, 2000), 0},
		{"gas", series(model.EnergyGas, jan2024, 501, 499), 1},
		{"water", series(model.EnergyWater, jan2024, 150, 120), 2},
		{"empty", nil, 0},
	}
	s := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.ExtremeCheck(tt.series)
			require.Len(t, got, tt.want)
			for _, r := range got {
				assert.Equal(t, model.SeverityHigh, r.Severity)
				assert.Equal(t, 0.8, r.Confidence)
				assert.Equal(t, model.AnomalyExtreme, r.AnomalyType)
				assert.Len(t, r.Recommendations, 1)
			}
		})
	}
}

func TestExtremeCheck_CustomCeiling(t *testing.T) {
	s := New(nil, WithCeilings(map[model.EnergyKind]float64{model.EnergyElectricity: 500}))
	assert.Len(t, s.ExtremeCheck(series(model.EnergyElectricity, jan2024, 600)), 1)
	assert.Len(t, s.ExtremeCheck(series(model.EnergyGas, jan2024, 600)), 1)
}

func TestWindow(t *testing.T) {
	in := series(model.EnergyElectricity, jan2024, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14)

	assert.Len(t, Window(in, 12), 12)
	assert.Equal(t, 3.0, Window(in, 12)[0].Usage)
	assert.Len(t, Window(in, 24), 14)
	assert.Len(t, Window(in, 0), 14)
	assert.Len(t, Window(in, 1), 1)
	assert.Empty(t, Window(nil, 12))
}

func TestRank(t *testing.T) {
	records := []model.AnomalyMonthRecord{
		{Year: 2023, Month: 12, Severity: model.SeverityLow},
		{Year: 2024, Month: 2, Severity: model.SeverityMedium},
		{Year: 2023, Month: 5, Severity: model.SeverityHigh},
		{Year: 2024, Month: 3, Severity: model.SeverityLow},
		{Year: 2024, Month: 1, Severity: model.SeverityHigh},
	}
	Rank(records)

	type ym struct{ y, m int }
	got := make([]ym, len(records))
	for i, r := range records {
		got[i] = ym{r.Year, r.Month}
	}
	assert.Equal(t, []ym{{2024, 1}, {2023, 5}, {2024, 2}, {2024, 3}, {2023, 12}}, got)
}
