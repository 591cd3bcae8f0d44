// Package metrics registers the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Oracle call outcomes.
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusCircuitOpen = "circuit_open"
	StatusDisabled    = "disabled"
)

var (
	OracleRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_insight_oracle_requests_total",
			Help: "AI oracle judgments by outcome",
		},
		[]string{"status"},
	)

	OracleRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "usage_insight_oracle_request_duration_seconds",
			Help:    "AI oracle judgment latency including retries",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
	)

	OracleTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_insight_oracle_tokens_total",
			Help: "Tokens consumed by the AI oracle",
		},
		[]string{"type"}, // input/output
	)

	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_insight_scans_total",
			Help: "Monthly anomaly scans run",
		},
		[]string{"energy_kind"},
	)

	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_insight_anomalies_total",
			Help: "Anomalous months emitted by scans",
		},
		[]string{"energy_kind", "severity"},
	)

	ReconcileCasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_insight_reconcile_cases_total",
			Help: "Reconciliation outcomes by arbitration case",
		},
		[]string{"case"},
	)
)
