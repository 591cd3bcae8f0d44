//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/usage-insight/internal/analysis"
	"github.com/sells-group/usage-insight/internal/model"
	"github.com/sells-group/usage-insight/internal/scan"
	"github.com/sells-group/usage-insight/internal/store"
)

var spikeUsage = []float64{100, 102, 101, 103, 102, 160, 104, 103}

func newTestAPI(t *testing.T) (*apiServer, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	sc := scan.New(nil)
	return &apiServer{
		store:    st,
		scanner:  sc,
		analysis: analysis.NewService(st, sc, analysis.DefaultConfig(), analysis.WithClock(func() time.Time {
			return time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC)
		})),
		lookback: scan.DefaultLookbackMonths,
	}, st
}

func seedBills(t *testing.T, st store.Store, userID string) {
	t.Helper()
	var bills []model.Bill
	for i, u := range spikeUsage {
		bills = append(bills, model.Bill{
			UserID:   userID,
			Kind:     model.EnergyElectricity,
			BillDate: time.Date(2024, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC),
			Usage:    u,
			Cost:     u * 0.5,
		})
	}
	_, err := st.UpsertBills(context.Background(), bills)
	require.NoError(t, err)
}

func seriesBody(kind string, usages []float64) map[string]any {
	points := make([]map[string]any, len(usages))
	for i, u := range usages {
		points[i] = map[string]any{"date": fmt.Sprintf("2024-%02d", i+1), "usage": u, "cost": u * 0.5}
	}
	return map[string]any{"energy_kind": kind, "points": points}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	api, _ := newTestAPI(t)
	h := newRouter(api, nil)

	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_HealthStoreDown(t *testing.T) {
	api, st := newTestAPI(t)
	require.NoError(t, st.Close())

	rr := do(t, newRouter(api, nil), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouter_Detect(t *testing.T) {
	api, _ := newTestAPI(t)
	h := newRouter(api, nil)

	rr := do(t, h, http.MethodPost, "/v1/detect", seriesBody("electricity", spikeUsage[:6]))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var v model.StatisticalVerdict
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	assert.True(t, v.IsAbnormal)
	assert.Contains(t, v.DetectionMethods, model.MethodStatistical)
}

func TestRouter_DetectBadRequests(t *testing.T) {
	api, _ := newTestAPI(t)
	h := newRouter(api, nil)

	unordered := seriesBody("gas", []float64{10, 20})
	unordered["points"].([]map[string]any)[1]["date"] = "2023-12"

	tests := []struct {
		name string
		body any
		want string
	}{
		{name: "invalid json", body: "{not json", want: "invalid request body"},
		{name: "unknown kind", body: seriesBody("steam", []float64{1, 2}), want: "unknown energy kind"},
		{name: "bad date", body: map[string]any{"energy_kind": "gas", "points": []map[string]any{{"date": "March", "usage": 1}}}, want: "point 0"},
		{name: "unordered", body: unordered, want: "invalid trend series"},
		{name: "negative usage", body: seriesBody("water", []float64{5, -1}), want: "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/v1/detect", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.want)
		})
	}
}

func TestRouter_Compare(t *testing.T) {
	api, _ := newTestAPI(t)
	h := newRouter(api, nil)

	rr := do(t, h, http.MethodPost, "/v1/compare", seriesBody("electricity", []float64{100, 135}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var c model.Comparison
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &c))
	assert.Equal(t, 135.0, c.CurrentUsage)
	require.NotNil(t, c.PreviousUsage)
	assert.Equal(t, 100.0, *c.PreviousUsage)
	require.NotNil(t, c.UsageMoMPct)
	assert.Equal(t, 35.0, *c.UsageMoMPct)
	assert.Nil(t, c.UsageYoYPct)
}

func TestRouter_Scan(t *testing.T) {
	api, _ := newTestAPI(t)
	h := newRouter(api, nil)

	rr := do(t, h, http.MethodPost, "/v1/scan", seriesBody("electricity", spikeUsage))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Kind      model.EnergyKind           `json:"energy_kind"`
		Anomalies []model.AnomalyMonthRecord `json:"anomaly_months"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, model.EnergyElectricity, resp.Kind)
	require.Len(t, resp.Anomalies, 2)
	assert.Equal(t, 7, resp.Anomalies[0].Month)
	assert.Equal(t, 6, resp.Anomalies[1].Month)

	// The scan is counted on the metrics endpoint.
	rr = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "usage_insight_scans_total")
}

func TestRouter_ScanLookbackExcludesOldMonths(t *testing.T) {
	api, _ := newTestAPI(t)
	h := newRouter(api, nil)

	body := seriesBody("electricity", spikeUsage)
	body["lookback_months"] = 1
	rr := do(t, h, http.MethodPost, "/v1/scan", body)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"anomaly_months":[]`)
}

func TestRouter_UserAnalysis(t *testing.T) {
	api, st := newTestAPI(t)
	seedBills(t, st, "u1")
	h := newRouter(api, nil)

	rr := do(t, h, http.MethodGet, "/v1/users/u1/analysis?kind=electricity", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var report analysis.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, "u1", report.UserID)
	require.Len(t, report.Kinds, 1)
	assert.Len(t, report.Kinds[0].Anomalies, 2)
	assert.Len(t, report.Suggestions, 2)
	assert.Equal(t, 1, report.Summary.AbnormalKinds)
	assert.Equal(t, model.AssessmentDefault, report.Kinds[0].Assessment.Source)
}

func TestRouter_UserAnalysisCustomRange(t *testing.T) {
	api, st := newTestAPI(t)
	seedBills(t, st, "u1")
	h := newRouter(api, nil)

	rr := do(t, h, http.MethodGet, "/v1/users/u1/analysis?period=custom&from=2024-02-01&to=2024-04-30", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var report analysis.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	require.Len(t, report.Kinds, 1)
	assert.Len(t, report.Kinds[0].Series, 3)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), report.Range.From)
}

func TestRouter_UserAnalysisBadQuery(t *testing.T) {
	api, _ := newTestAPI(t)
	h := newRouter(api, nil)

	for _, q := range []string{
		"kind=steam",
		"period=weekly",
		"period=custom",
		"period=custom&from=2024-05-01&to=2024-01-01",
		"period=custom&from=yesterday&to=2024-01-01",
	} {
		t.Run(q, func(t *testing.T) {
			rr := do(t, h, http.MethodGet, "/v1/users/u1/analysis?"+q, nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestRouter_LatestCosts(t *testing.T) {
	api, st := newTestAPI(t)
	seedBills(t, st, "u1")
	h := newRouter(api, nil)

	rr := do(t, h, http.MethodGet, "/v1/users/u1/costs/latest", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var b analysis.CostBreakdown
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &b))
	assert.Equal(t, 51.5, b.Total)
	require.Len(t, b.Items, 1)
	assert.Equal(t, 100.0, b.Items[0].SharePct)
}

func TestRouter_CORSPreflight(t *testing.T) {
	api, _ := newTestAPI(t)
	h := newRouter(api, []string{"https://app.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/v1/detect", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost))
}

func TestRouter_NotFound(t *testing.T) {
	api, _ := newTestAPI(t)
	rr := do(t, newRouter(api, nil), http.MethodGet, "/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
