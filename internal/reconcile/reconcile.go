// Package reconcile arbitrates between the statistical verdict and the AI
// oracle's verdict for one period.
package reconcile

import (
	"math"

	"github.com/sells-group/usage-insight/internal/metrics"
	"github.com/sells-group/usage-insight/internal/model"
)

// Case identifies which arbitration rule produced a verdict.
type Case string

const (
	CaseStatisticalOnly Case = "statistical_only"
	CaseBothAbnormal    Case = "both_abnormal"
	CaseStatTrusted     Case = "stat_trusted"
	CaseStatOverruled   Case = "stat_overruled"
	CaseAITrusted       Case = "ai_trusted"
	CaseAIOverruled     Case = "ai_overruled"
	CaseNeitherAbnormal Case = "neither_abnormal"
)

// Trust thresholds and discounts. The statistical detector is trusted at a
// lower bar and discounted less than the oracle.
const (
	statTrustThreshold = 0.7
	statDiscount       = 0.8
	aiTrustThreshold   = 0.8
	aiDiscount         = 0.7

	reasoningExcerpt = 100
)

// Verdict is the final judgment for one period.
type Verdict struct {
	IsAbnormal      bool
	AnomalyType     string
	Severity        model.Severity
	Confidence      float64
	Recommendations []string
	Case            Case
}

// Reconcile merges stat with ai. A nil ai or useAI=false returns the
// statistical verdict unchanged.
func Reconcile(stat model.StatisticalVerdict, ai *model.AIVerdict, useAI bool) Verdict {
	v := decide(stat, ai, useAI)
	metrics.ReconcileCasesTotal.WithLabelValues(string(v.Case)).Inc()
	return v
}

func decide(stat model.StatisticalVerdict, ai *model.AIVerdict, useAI bool) Verdict {
	if !useAI || ai == nil {
		return Verdict{
			IsAbnormal:      stat.IsAbnormal,
			AnomalyType:     string(stat.AnomalyType),
			Severity:        stat.Severity,
			Confidence:      stat.Confidence,
			Recommendations: append([]string{}, stat.Recommendations...),
			Case:            CaseStatisticalOnly,
		}
	}

	switch {
	case stat.IsAbnormal && ai.IsAbnormal:
		severity := model.SeverityMedium
		if stat.Severity == model.SeverityHigh || ai.Severity == model.SeverityHigh {
			severity = model.SeverityHigh
		}
		kind := ai.AbnormalType
		if kind == "" {
			kind = string(stat.AnomalyType)
		}
		return Verdict{
			IsAbnormal:      true,
			AnomalyType:     kind,
			Severity:        severity,
			Confidence:      math.Max(stat.Confidence, ai.Confidence),
			Recommendations: withAdvice(stat.Recommendations, ai.Recommendation),
			Case:            CaseBothAbnormal,
		}

	case stat.IsAbnormal:
		if stat.Confidence > statTrustThreshold {
			note := "AI review did not flag this period"
			if excerpt := truncate(ai.Reasoning, reasoningExcerpt); excerpt != "" {
				note += ": " + excerpt
			}
			return Verdict{
				IsAbnormal:      true,
				AnomalyType:     string(stat.AnomalyType),
				Severity:        stat.Severity,
				Confidence:      stat.Confidence * statDiscount,
				Recommendations: append(append([]string{}, stat.Recommendations...), note),
				Case:            CaseStatTrusted,
			}
		}
		return Verdict{
			Severity:        model.SeverityLow,
			Confidence:      0.3,
			Recommendations: []string{"Usage moved noticeably, but AI review found it within a normal range; keep an eye on the next bill"},
			Case:            CaseStatOverruled,
		}

	case ai.IsAbnormal:
		if ai.Confidence > aiTrustThreshold {
			return Verdict{
				IsAbnormal:      true,
				AnomalyType:     ai.AbnormalType,
				Severity:        ai.Severity,
				Confidence:      ai.Confidence * aiDiscount,
				Recommendations: withAdvice(nil, ai.Recommendation, "Flagged by AI review; statistical checks found no anomaly"),
				Case:            CaseAITrusted,
			}
		}
		return Verdict{
			Severity:        model.SeverityLow,
			Confidence:      0.4,
			Recommendations: []string{"AI review suggested a possible anomaly with low confidence; no action needed yet"},
			Case:            CaseAIOverruled,
		}

	default:
		return Verdict{
			Severity:        model.SeverityLow,
			Confidence:      0.1,
			Recommendations: []string{},
			Case:            CaseNeitherAbnormal,
		}
	}
}

// withAdvice appends the non-empty lines to a copy of base.
func withAdvice(base []string, lines ...string) []string {
	out := append([]string{}, base...)
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
