package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/usage-insight/internal/metrics"
	"github.com/sells-group/usage-insight/internal/model"
)

// assessmentMaxTokens bounds the assessment reply, which is longer than a
// verdict.
const assessmentMaxTokens = 1500

// maxPromptDevices is how many of the largest devices an assessment quotes.
const maxPromptDevices = 3

// Analyst writes a narrative review of one energy kind. Any error means the
// review is unavailable; callers fall back to a default assessment.
type Analyst interface {
	Assess(ctx context.Context, req AssessRequest) (*model.EnergyAssessment, error)
}

// AssessRequest is the analysed state of one energy kind.
type AssessRequest struct {
	Kind       model.EnergyKind
	Series     model.TrendSeries
	Comparison model.Comparison
	Devices    []model.DeviceShare
	Anomalies  []model.AnomalyMonthRecord
	Household  map[string]any
}

// Assess asks the model for an assessment of req. It shares the limiter,
// breaker and retry policy with Judge.
func (o *AnthropicOracle) Assess(ctx context.Context, req AssessRequest) (*model.EnergyAssessment, error) {
	start := time.Now()
	defer func() {
		metrics.OracleRequestDuration.Observe(time.Since(start).Seconds())
	}()

	if len(req.Series) == 0 {
		return nil, o.fail(eris.New("oracle: assess needs a series"), 0)
	}
	prompt, err := buildAssessPrompt(req)
	if err != nil {
		return nil, o.fail(eris.Wrap(err, "oracle: build assessment prompt"), 0)
	}

	out, attempts, err := invoke(ctx, o, "assess", func(ctx context.Context) (*model.EnergyAssessment, error) {
		text, err := o.complete(ctx, assessSystemPrompt, prompt, assessmentMaxTokens)
		if err != nil {
			return nil, err
		}
		return parseAssessment(text)
	}, zap.String("energy_kind", string(req.Kind)))
	if err != nil {
		return nil, o.fail(err, attempts)
	}

	out.Source = model.AssessmentAI
	out.ModelID = o.cfg.Model
	out.Timestamp = o.now()
	metrics.OracleRequestsTotal.WithLabelValues(metrics.StatusOK).Inc()
	return out, nil
}

const assessSystemPrompt = "You are a professional household energy analyst. You review a household's usage of one " +
	"energy kind and reply with a single JSON object only."

const assessResponseFormat = `Reply with exactly this JSON object and nothing else:
{
  "assessment": "overall assessment in 50-100 words",
  "insights": ["key finding backed by the data", "..."],
  "risk_level": "low|medium|high",
  "optimization_potential": "low|medium|high",
  "seasonal_analysis": "seasonal analysis in 50-80 words",
  "suggestions": [
    {"title": "short title", "content": "specific actionable measure", "priority": "high|medium|low", "potential_savings": "expected effect"}
  ],
  "confidence": 0.0 to 1.0
}
Base every statement on the data given. Suggestions must be specific and quantified where possible.`

func buildAssessPrompt(req AssessRequest) (string, error) {
	household, err := json.MarshalIndent(req.Household, "", "  ")
	if err != nil {
		return "", err
	}

	unit := unitOf(req.Kind)
	latest := req.Series.Last()
	season := SeasonOf(latest.CalendarMonth())
	cmp := req.Comparison

	recent := req.Series
	if len(recent) > historyContext {
		recent = recent[len(recent)-historyContext:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Review this household's %s usage.\n\n", req.Kind)
	fmt.Fprintf(&b, "## Household\n%s\n\n", household)

	fmt.Fprintf(&b, "## Usage trend (last %d periods)\n", len(recent))
	for _, p := range recent {
		fmt.Fprintf(&b, "- %s: %.1f %s (cost %.1f)\n", p.PeriodStart.Format("2006-01"), p.Usage, unit, p.Cost)
	}

	b.WriteString("\n## Key metrics\n")
	fmt.Fprintf(&b, "- Latest usage: %.1f %s\n", latest.Usage, unit)
	fmt.Fprintf(&b, "- Change from previous period: %+.1f%%\n", orZero(cmp.UsageMoMPct))
	fmt.Fprintf(&b, "- Change from a year earlier: %+.1f%%\n", orZero(cmp.UsageYoYPct))
	fmt.Fprintf(&b, "- Abnormal: %s\n", yesNo(cmp.IsAbnormal))
	fmt.Fprintf(&b, "- Season: %s\n", season)

	b.WriteString("\n## Devices\n")
	if len(req.Devices) == 0 {
		b.WriteString("- no device data\n")
	}
	for i, d := range req.Devices {
		if i == maxPromptDevices {
			break
		}
		fmt.Fprintf(&b, "- %s: %.1f %s/month (%.1f%% share)\n", d.Name, d.MonthlyUsage, unit, d.SharePct)
	}

	b.WriteString("\n## Anomalous months\n")
	if len(req.Anomalies) == 0 {
		b.WriteString("- none detected\n")
	}
	for _, a := range req.Anomalies {
		fmt.Fprintf(&b, "- %04d-%02d: deviation %+.1f%% (%s)\n", a.Year, a.Month, a.DeviationPct, a.Severity)
	}

	b.WriteString("\nCover the usage pattern, efficiency against household size, seasonal effects, " +
		"high-draw devices, cost risk and the realistic saving potential.\n\n")
	b.WriteString(assessResponseFormat)
	return b.String(), nil
}

func orZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

type rawAssessment struct {
	Assessment            string   `json:"assessment"`
	Insights              []string `json:"insights"`
	RiskLevel             string   `json:"risk_level"`
	OptimizationPotential string   `json:"optimization_potential"`
	SeasonalAnalysis      string   `json:"seasonal_analysis"`
	Suggestions           []struct {
		Title            string `json:"title"`
		Content          string `json:"content"`
		Priority         string `json:"priority"`
		PotentialSavings string `json:"potential_savings"`
	} `json:"suggestions"`
	Confidence *float64 `json:"confidence"`
}

// parseAssessment decodes an assessment reply. Absent fields take defaults;
// only a reply with no decodable object is an error.
func parseAssessment(text string) (*model.EnergyAssessment, error) {
	raw, ok := extractJSON(text)
	if !ok {
		return nil, eris.New("oracle: no JSON object in assessment")
	}
	raw = strings.NewReplacer("\r", "", "\n", " ", "\t", " ").Replace(raw)

	var ra rawAssessment
	if err := json.Unmarshal([]byte(raw), &ra); err != nil {
		repaired := trailingComma.ReplaceAllString(raw, "$1")
		if err2 := json.Unmarshal([]byte(repaired), &ra); err2 != nil {
			return nil, eris.Wrap(err, "oracle: parse assessment")
		}
	}

	out := &model.EnergyAssessment{
		Assessment:            strings.TrimSpace(ra.Assessment),
		Insights:              ra.Insights,
		RiskLevel:             level(ra.RiskLevel),
		OptimizationPotential: level(ra.OptimizationPotential),
		SeasonalAnalysis:      strings.TrimSpace(ra.SeasonalAnalysis),
		Suggestions:           []model.AssessmentSuggestion{},
		Confidence:            0.7,
	}
	if out.Assessment == "" {
		out.Assessment = "No assessment"
	}
	if out.Insights == nil {
		out.Insights = []string{}
	}
	if ra.Confidence != nil {
		out.Confidence = min(max(*ra.Confidence, 0), 1)
	}
	for i, s := range ra.Suggestions {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = fmt.Sprintf("Saving tip %d", i+1)
		}
		out.Suggestions = append(out.Suggestions, model.AssessmentSuggestion{
			Title:            title,
			Content:          strings.TrimSpace(s.Content),
			Priority:         level(s.Priority),
			PotentialSavings: strings.TrimSpace(s.PotentialSavings),
		})
	}
	return out, nil
}

// level reads a low/medium/high rating, medium when unrecognised.
func level(s string) model.Severity {
	switch v := model.Severity(strings.ToLower(strings.TrimSpace(s))); v {
	case model.SeverityHigh, model.SeverityMedium, model.SeverityLow:
		return v
	}
	return model.SeverityMedium
}
