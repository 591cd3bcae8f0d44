// Package analysis runs the per-user energy analysis: it loads the bills of
// a period, builds trend series, compares and scans them, reviews each kind
// and records the advisory suggestions the results produce.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/usage-insight/internal/billing"
	"github.com/sells-group/usage-insight/internal/compare"
	"github.com/sells-group/usage-insight/internal/detect"
	"github.com/sells-group/usage-insight/internal/model"
	"github.com/sells-group/usage-insight/internal/oracle"
	"github.com/sells-group/usage-insight/internal/scan"
	"github.com/sells-group/usage-insight/internal/store"
)

// Suggestion sources.
const (
	SuggestionSource   = "anomaly_detection"
	AISuggestionSource = "ai_analysis"
)

// historyLimit is how many previously saved suggestions a report carries.
const historyLimit = 5

// Config tunes the analysis.
type Config struct {
	LookbackMonths int  // scan window for each energy kind
	MaxSuggestions int  // cap on suggestions per report
	UseAI          bool // ask the oracle during scans
}

// DefaultConfig returns a 12-month scan window and at most 10 suggestions.
func DefaultConfig() Config {
	return Config{
		LookbackMonths: scan.DefaultEnergyLookbackMonths,
		MaxSuggestions: 10,
	}
}

// Service runs analyses against a store.
type Service struct {
	store   store.Store
	scanner *scan.Scanner
	analyst oracle.Analyst
	cfg     Config
	now     func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithAnalyst sets the reviewer of each energy kind. Without one every
// kind gets the default assessment.
func WithAnalyst(a oracle.Analyst) Option {
	return func(s *Service) { s.analyst = a }
}

// WithClock overrides the clock that anchors period windows and report
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a Service. A nil scanner scans statistics-only.
func NewService(st store.Store, sc *scan.Scanner, cfg Config, opts ...Option) *Service {
	if sc == nil {
		sc = scan.New(nil)
	}
	if cfg.LookbackMonths <= 0 {
		cfg.LookbackMonths = scan.DefaultEnergyLookbackMonths
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = 10
	}
	s := &Service{
		store:   st,
		scanner: sc,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request selects what to analyze. An empty Kind analyzes every kind with
// bills. From and To bound a custom period and are ignored otherwise.
type Request struct {
	UserID string
	Kind   model.EnergyKind
	Period billing.Period
	From   time.Time
	To     time.Time
}

// KindAnalysis is the result for one energy kind.
type KindAnalysis struct {
	Kind       model.EnergyKind           `json:"energy_kind" yaml:"energy_kind"`
	Series     model.TrendSeries          `json:"trend" yaml:"trend"`
	Comparison model.Comparison           `json:"comparison" yaml:"comparison"`
	Verdict    model.StatisticalVerdict   `json:"verdict" yaml:"verdict"`
	Anomalies  []model.AnomalyMonthRecord `json:"anomaly_months" yaml:"anomaly_months"`
	Profile    detect.ConsumptionProfile  `json:"profile" yaml:"profile"`
	Devices    []model.DeviceShare        `json:"device_consumption" yaml:"device_consumption"`
	Assessment model.EnergyAssessment     `json:"ai_analysis" yaml:"ai_analysis"`
}

// Summary rolls the kinds up.
type Summary struct {
	Text          string   `json:"text" yaml:"text"`
	TotalCost     float64  `json:"total_cost" yaml:"total_cost"`
	AbnormalKinds int      `json:"abnormal_kinds" yaml:"abnormal_kinds"`
	AnomalyMonths int      `json:"anomaly_months" yaml:"anomaly_months"`
	Analyzed      []string `json:"analyzed_energy_kinds" yaml:"analyzed_energy_kinds"`
}

// Report is the full analysis for one user.
type Report struct {
	UserID      string             `json:"user_id" yaml:"user_id"`
	Period      billing.Period     `json:"period" yaml:"period"`
	Range       billing.Range      `json:"range" yaml:"range"`
	Kinds       []KindAnalysis     `json:"kinds" yaml:"kinds"`
	Suggestions []model.Suggestion `json:"suggestions" yaml:"suggestions"`
	Summary     Summary            `json:"summary" yaml:"summary"`
	GeneratedAt time.Time          `json:"generated_at" yaml:"generated_at"`
}

// Analyze builds the report for req over the window its period covers.
// Kinds without bills in the window are omitted. Suggestions generated by
// this run are saved; the report also carries recently saved ones.
func (s *Service) Analyze(ctx context.Context, req Request) (*Report, error) {
	if req.UserID == "" {
		return nil, eris.New("analysis: user id is required")
	}
	period := req.Period
	if period == "" {
		period = billing.PeriodMonthly
	}
	now := s.now()
	window, err := billing.DateRange(period, now, req.From, req.To)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: date range")
	}

	bills, err := s.store.ListBills(ctx, req.UserID, store.BillFilter{Kind: req.Kind, From: window.From, To: window.To})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: list bills")
	}
	household, err := s.household(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("user_id", req.UserID), zap.String("period", string(period)))

	series := billing.BuildSeries(bills, period)
	report := &Report{
		UserID:      req.UserID,
		Period:      period,
		Range:       window,
		Kinds:       []KindAnalysis{},
		GeneratedAt: now,
		Summary:     Summary{Analyzed: []string{}},
	}

	var total float64
	for _, kind := range model.AllEnergyKinds() {
		ts, ok := series[kind]
		if !ok || len(ts) == 0 {
			continue
		}
		ka, err := s.analyzeKind(ctx, req.UserID, kind, ts, household)
		if err != nil {
			return nil, err
		}
		report.Kinds = append(report.Kinds, ka)
		report.Summary.Analyzed = append(report.Summary.Analyzed, string(kind))
		report.Summary.AnomalyMonths += len(ka.Anomalies)
		if ka.Comparison.IsAbnormal || len(ka.Anomalies) > 0 {
			report.Summary.AbnormalKinds++
		}
		total += ka.Comparison.CurrentCost
	}
	report.Summary.TotalCost = round2(total)
	report.Summary.Text = summaryText(report.Summary, len(report.Kinds))

	generated := s.suggestions(req.UserID, report.Kinds)
	history, err := s.history(ctx, req.UserID, req.Kind)
	if err != nil {
		return nil, err
	}
	if len(generated) > 0 {
		added, err := s.store.AddSuggestions(ctx, generated)
		if err != nil {
			return nil, eris.Wrap(err, "analysis: save suggestions")
		}
		log.Info("analysis: suggestions recorded",
			zap.Int("generated", len(generated)),
			zap.Int("new", added),
		)
	}
	report.Suggestions = mergeSuggestions(s.cfg.MaxSuggestions, generated, history)

	log.Info("analysis: complete",
		zap.Int("kinds", len(report.Kinds)),
		zap.Int("anomaly_months", report.Summary.AnomalyMonths),
		zap.Int("suggestions", len(report.Suggestions)),
	)
	return report, nil
}

func (s *Service) analyzeKind(ctx context.Context, userID string, kind model.EnergyKind, ts model.TrendSeries, household *model.Household) (KindAnalysis, error) {
	verdict := detect.Detect(ts)
	cmp, err := compare.LatestWith(ts, verdict)
	if err != nil {
		return KindAnalysis{}, eris.Wrapf(err, "analysis: compare %s", kind)
	}
	anomalies, err := s.scanner.Scan(ctx, ts, s.cfg.LookbackMonths, s.cfg.UseAI, household)
	if err != nil {
		return KindAnalysis{}, eris.Wrapf(err, "analysis: scan %s", kind)
	}
	devices, err := s.store.ListDevices(ctx, userID, kind)
	if err != nil {
		return KindAnalysis{}, eris.Wrapf(err, "analysis: list %s devices", kind)
	}

	ka := KindAnalysis{
		Kind:       kind,
		Series:     ts,
		Comparison: cmp,
		Verdict:    verdict,
		Anomalies:  anomalies,
		Profile:    detect.Profile(ts),
		Devices:    DeviceShares(devices),
	}
	ka.Assessment = s.assess(ctx, ka, household)
	return ka, nil
}

// assess asks the analyst for a review and falls back to the default one
// when there is no analyst or it fails.
func (s *Service) assess(ctx context.Context, ka KindAnalysis, household *model.Household) model.EnergyAssessment {
	if s.analyst == nil {
		return DefaultAssessment(ka.Kind, ka.Comparison)
	}
	a, err := s.analyst.Assess(ctx, oracle.AssessRequest{
		Kind:       ka.Kind,
		Series:     ka.Series,
		Comparison: ka.Comparison,
		Devices:    ka.Devices,
		Anomalies:  ka.Anomalies,
		Household:  household.Context(),
	})
	if err != nil {
		zap.L().Warn("analysis: assessment unavailable, using default",
			zap.String("energy_kind", string(ka.Kind)),
			zap.Error(err),
		)
		return DefaultAssessment(ka.Kind, ka.Comparison)
	}
	return *a
}

// DefaultAssessment is the review used when no analyst answers.
func DefaultAssessment(kind model.EnergyKind, cmp model.Comparison) model.EnergyAssessment {
	state := "looks normal"
	if cmp.IsAbnormal {
		state = "needs attention"
	}
	mom := "n/a"
	if cmp.UsageMoMPct != nil {
		mom = fmt.Sprintf("%+.1f%%", *cmp.UsageMoMPct)
	}
	return model.EnergyAssessment{
		Assessment:            fmt.Sprintf("Based on the data, your %s usage %s.", kind, state),
		Insights:              []string{"Month-over-month change: " + mom},
		RiskLevel:             model.SeverityMedium,
		OptimizationPotential: model.SeverityMedium,
		SeasonalAnalysis:      "No seasonal data.",
		Suggestions:           []model.AssessmentSuggestion{},
		Confidence:            0.5,
		Source:                model.AssessmentDefault,
	}
}

func summaryText(sum Summary, kinds int) string {
	if kinds == 0 {
		return "No data to analyze."
	}
	text := fmt.Sprintf("Analyzed %d energy kind(s), total cost %.1f", kinds, sum.TotalCost)
	if sum.AbnormalKinds > 0 {
		text += fmt.Sprintf(", %d with abnormal usage", sum.AbnormalKinds)
	}
	return text + "."
}

// history returns the user's most recent saved suggestions, limited to kind
// when one is given.
func (s *Service) history(ctx context.Context, userID string, kind model.EnergyKind) ([]model.Suggestion, error) {
	saved, err := s.store.ListSuggestions(ctx, userID, 0)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: list suggestions")
	}
	out := make([]model.Suggestion, 0, historyLimit)
	for _, sg := range saved {
		if len(out) == historyLimit {
			break
		}
		if kind == "" || sg.Kind == kind {
			out = append(out, sg)
		}
	}
	return out, nil
}

// mergeSuggestions concatenates lists, keeps the first suggestion of each
// title and stops at limit.
func mergeSuggestions(limit int, lists ...[]model.Suggestion) []model.Suggestion {
	seen := make(map[string]bool)
	out := []model.Suggestion{}
	for _, list := range lists {
		for _, sg := range list {
			if len(out) == limit {
				return out
			}
			if seen[sg.Title] {
				continue
			}
			seen[sg.Title] = true
			out = append(out, sg)
		}
	}
	return out
}

// household returns nil when the user has not filled in a profile.
func (s *Service) household(ctx context.Context, userID string) (*model.Household, error) {
	h, err := s.store.GetHousehold(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "analysis: get household")
	}
	return h, nil
}

// suggestions turns anomaly records into advisories, most severe first,
// followed by the assessments' own proposals. Titles are unique and the
// list is capped at MaxSuggestions.
func (s *Service) suggestions(userID string, kinds []KindAnalysis) []model.Suggestion {
	var records []kindRecord
	for _, ka := range kinds {
		for _, r := range ka.Anomalies {
			records = append(records, kindRecord{kind: ka.Kind, rec: r})
		}
	}
	sort.SliceStable(records, func(i, j int) bool { return scan.Before(records[i].rec, records[j].rec) })

	caser := cases.Title(language.English)
	var out []model.Suggestion
	for _, kr := range records {
		out = append(out, model.Suggestion{
			UserID:       userID,
			Kind:         kr.kind,
			Title:        suggestionTitle(caser, kr.kind, kr.rec),
			Content:      strings.Join(kr.rec.Recommendations, "\n"),
			Priority:     kr.rec.Severity,
			ImpactRating: ImpactRating(kr.rec.Severity),
			Source:       SuggestionSource,
		})
	}
	for _, ka := range kinds {
		for _, as := range ka.Assessment.Suggestions {
			out = append(out, model.Suggestion{
				UserID:       userID,
				Kind:         ka.Kind,
				Title:        as.Title,
				Content:      as.Content,
				Priority:     as.Priority,
				ImpactRating: PriorityRating(as.Priority),
				Source:       AISuggestionSource,
			})
		}
	}
	return mergeSuggestions(s.cfg.MaxSuggestions, out)
}

type kindRecord struct {
	kind model.EnergyKind
	rec  model.AnomalyMonthRecord
}

// ImpactRating maps severity onto a 1-5 scale.
func ImpactRating(s model.Severity) int {
	switch s {
	case model.SeverityHigh:
		return 5
	case model.SeverityMedium:
		return 3
	default:
		return 1
	}
}

// PriorityRating maps an assessment priority onto the 1-5 impact scale,
// 3 when unknown.
func PriorityRating(p model.Severity) int {
	switch p {
	case model.SeverityHigh:
		return 5
	case model.SeverityLow:
		return 1
	default:
		return 3
	}
}

func suggestionTitle(caser cases.Caser, kind model.EnergyKind, r model.AnomalyMonthRecord) string {
	return fmt.Sprintf("%s usage anomaly in %04d-%02d", caser.String(string(kind)), r.Year, r.Month)
}
