// Package oracle defines the contract for the external AI anomaly judge
// and an Anthropic-backed implementation of it.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/usage-insight/internal/model"
)

// Oracle returns an independent judgment on whether the current point is
// abnormal. Any error means the judgment is unavailable; callers degrade
// to the statistical verdict.
type Oracle interface {
	Judge(ctx context.Context, req Request) (*model.AIVerdict, error)
}

// Request carries the point under test with the history before it.
type Request struct {
	Kind      model.EnergyKind
	Current   model.TrendPoint
	History   model.TrendSeries
	Household map[string]any
	Summary   Summary
}

// Summary is the statistical context handed to the oracle. Values are
// rounded to two decimals.
type Summary struct {
	AvgUsage        float64         `json:"avg_usage"`
	MaxUsage        float64         `json:"max_usage"`
	MinUsage        float64         `json:"min_usage"`
	CurrentVsAvgPct float64         `json:"current_vs_avg"`
	MoMPct          float64         `json:"month_over_month"`
	DataPoints      int             `json:"data_points"`
	Statistical     *VerdictSummary `json:"statistical_verdict,omitempty"`
}

// VerdictSummary is the part of a StatisticalVerdict the oracle sees.
type VerdictSummary struct {
	IsAbnormal       bool              `json:"is_abnormal"`
	AnomalyType      model.AnomalyType `json:"anomaly_type,omitempty"`
	Severity         model.Severity    `json:"severity"`
	Confidence       float64           `json:"confidence"`
	DetectionMethods []model.Method    `json:"detection_methods"`
}

// BuildSummary computes the statistics for current against history.
// stat may be nil.
func BuildSummary(history model.TrendSeries, current model.TrendPoint, stat *model.StatisticalVerdict) Summary {
	var s Summary
	if stat != nil {
		s.Statistical = &VerdictSummary{
			IsAbnormal:       stat.IsAbnormal,
			AnomalyType:      stat.AnomalyType,
			Severity:         stat.Severity,
			Confidence:       stat.Confidence,
			DetectionMethods: stat.DetectionMethods,
		}
	}
	if len(history) == 0 {
		return s
	}

	sum := 0.0
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range history {
		sum += p.Usage
		lo = math.Min(lo, p.Usage)
		hi = math.Max(hi, p.Usage)
	}
	avg := sum / float64(len(history))

	s.AvgUsage = round2(avg)
	s.MaxUsage = round2(hi)
	s.MinUsage = round2(lo)
	s.DataPoints = len(history)
	if avg > 0 {
		s.CurrentVsAvgPct = round2((current.Usage - avg) / avg * 100)
	}
	if prev := history.Last().Usage; prev > 0 {
		s.MoMPct = round2((current.Usage - prev) / prev * 100)
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ErrUnavailable matches every failed judgment via errors.Is.
var ErrUnavailable = eris.New("oracle unavailable")

// ErrNotConfigured is returned by constructors missing required settings.
var ErrNotConfigured = eris.New("oracle not configured")

// UnavailableError records why a judgment could not be obtained.
type UnavailableError struct {
	Err      error
	Attempts int
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("oracle unavailable after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnavailable) hold.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// IsUnavailable reports whether err is an oracle failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
