package model

import "time"

// AssessmentSource records who produced an EnergyAssessment.
type AssessmentSource string

const (
	AssessmentAI      AssessmentSource = "ai"
	AssessmentDefault AssessmentSource = "default"
)

// EnergyAssessment is the narrative review of one energy kind.
type EnergyAssessment struct {
	Assessment            string                 `json:"assessment" yaml:"assessment"`
	Insights              []string               `json:"insights" yaml:"insights"`
	RiskLevel             Severity               `json:"risk_level" yaml:"risk_level"`
	OptimizationPotential Severity               `json:"optimization_potential" yaml:"optimization_potential"`
	SeasonalAnalysis      string                 `json:"seasonal_analysis" yaml:"seasonal_analysis"`
	Suggestions           []AssessmentSuggestion `json:"suggestions" yaml:"suggestions"`
	Confidence            float64                `json:"confidence" yaml:"confidence"`
	Source                AssessmentSource       `json:"source" yaml:"source"`
	ModelID               string                 `json:"model_id,omitempty" yaml:"model_id,omitempty"`
	Timestamp             time.Time              `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// AssessmentSuggestion is one advisory proposed in an assessment.
type AssessmentSuggestion struct {
	Title            string   `json:"title" yaml:"title"`
	Content          string   `json:"content" yaml:"content"`
	Priority         Severity `json:"priority" yaml:"priority"`
	PotentialSavings string   `json:"potential_savings,omitempty" yaml:"potential_savings,omitempty"`
}
