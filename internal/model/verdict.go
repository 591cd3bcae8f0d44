package model

import "time"

// Severity grades how urgent an anomaly is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities so that high > medium > low.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity maps free-form text onto a Severity, defaulting to low.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityHigh, SeverityMedium:
		return Severity(s)
	default:
		return SeverityLow
	}
}

// AnomalyType names the signal that classified an anomaly.
type AnomalyType string

const (
	AnomalyNone        AnomalyType = ""
	AnomalyTrend       AnomalyType = "trend"
	AnomalySeasonal    AnomalyType = "seasonal"
	AnomalyStatistical AnomalyType = "statistical"
	AnomalyTraditional AnomalyType = "traditional"
	AnomalyExtreme     AnomalyType = "extreme"
)

// Method is one of the statistical detection signals.
type Method string

const (
	MethodTraditional Method = "traditional"
	MethodStatistical Method = "statistical"
	MethodSeasonal    Method = "seasonal"
	MethodTrend       Method = "trend"
)

// Direction of a fitted usage trend.
type Direction string

const (
	DirectionIncreasing Direction = "increasing"
	DirectionDecreasing Direction = "decreasing"
	DirectionStable     Direction = "stable"
)

// Thresholds is a normal range for period-over-period change, in percent.
type Thresholds struct {
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
}

// Contains reports whether rate lies inside the closed range.
func (t Thresholds) Contains(rate float64) bool {
	return rate >= t.Lower && rate <= t.Upper
}

// TrendInfo summarizes a linear fit over a usage window.
type TrendInfo struct {
	IsAbnormal bool      `json:"is_abnormal" yaml:"is_abnormal"`
	Direction  Direction `json:"direction" yaml:"direction"`
	Strength   float64   `json:"strength" yaml:"strength"`
	Confidence float64   `json:"confidence" yaml:"confidence"`
}

// StatisticalVerdict is the merged outcome of the deterministic detectors.
type StatisticalVerdict struct {
	IsAbnormal       bool        `json:"is_abnormal" yaml:"is_abnormal"`
	AnomalyType      AnomalyType `json:"anomaly_type,omitempty" yaml:"anomaly_type,omitempty"`
	Severity         Severity    `json:"severity" yaml:"severity"`
	Confidence       float64     `json:"confidence" yaml:"confidence"`
	DetectionMethods []Method    `json:"detection_methods" yaml:"detection_methods"`
	Recommendations  []string    `json:"recommendations" yaml:"recommendations"`
	Thresholds       *Thresholds `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	TrendInfo        *TrendInfo  `json:"trend_info,omitempty" yaml:"trend_info,omitempty"`
}

// AIVerdict is the judgment returned by the external oracle.
type AIVerdict struct {
	IsAbnormal           bool      `json:"is_abnormal" yaml:"is_abnormal"`
	AbnormalType         string    `json:"abnormal_type,omitempty" yaml:"abnormal_type,omitempty"`
	Severity             Severity  `json:"severity" yaml:"severity"`
	Confidence           float64   `json:"confidence" yaml:"confidence"`
	Reasoning            string    `json:"reasoning" yaml:"reasoning"`
	PossibleExplanations []string  `json:"possible_explanations" yaml:"possible_explanations"`
	Recommendation       string    `json:"recommendation" yaml:"recommendation"`
	ModelID              string    `json:"model_id" yaml:"model_id"`
	Timestamp            time.Time `json:"timestamp" yaml:"timestamp"`
}
