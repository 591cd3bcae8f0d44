package model

import "time"

// AnomalyMonthRecord is one abnormal period emitted by the scanner.
type AnomalyMonthRecord struct {
	Year            int         `json:"year" yaml:"year"`
	Month           int         `json:"month" yaml:"month"`
	Usage           float64     `json:"usage" yaml:"usage"`
	Cost            float64     `json:"cost" yaml:"cost"`
	AvgUsage        float64     `json:"avg_usage" yaml:"avg_usage"`
	DeviationPct    float64     `json:"deviation_pct" yaml:"deviation_pct"`
	AnomalyType     AnomalyType `json:"anomaly_type,omitempty" yaml:"anomaly_type,omitempty"`
	Severity        Severity    `json:"severity" yaml:"severity"`
	Confidence      float64     `json:"confidence" yaml:"confidence"`
	Recommendations []string    `json:"recommendations" yaml:"recommendations"`
}

// Comparison holds the latest point against its predecessor and, when
// available, the same month one year earlier. Nil rates are undefined.
type Comparison struct {
	CurrentUsage      float64  `json:"current_usage" yaml:"current_usage"`
	CurrentCost       float64  `json:"current_cost" yaml:"current_cost"`
	CurrentUnitPrice  float64  `json:"current_unit_price" yaml:"current_unit_price"`
	PreviousUsage     *float64 `json:"previous_usage" yaml:"previous_usage"`
	PreviousCost      *float64 `json:"previous_cost" yaml:"previous_cost"`
	PreviousUnitPrice *float64 `json:"previous_unit_price" yaml:"previous_unit_price"`
	UsageMoMPct       *float64 `json:"usage_mom_pct" yaml:"usage_mom_pct"`
	UsageYoYPct       *float64 `json:"usage_yoy_pct" yaml:"usage_yoy_pct"`
	CostMoMPct        *float64 `json:"cost_mom_pct" yaml:"cost_mom_pct"`
	CostYoYPct        *float64 `json:"cost_yoy_pct" yaml:"cost_yoy_pct"`
	UnitPriceMoMPct   *float64 `json:"unit_price_mom_pct" yaml:"unit_price_mom_pct"`
	UnitPriceYoYPct   *float64 `json:"unit_price_yoy_pct" yaml:"unit_price_yoy_pct"`
	IsAbnormal        bool     `json:"is_abnormal" yaml:"is_abnormal"`
}

// Household is the optional context used to ground oracle judgments.
type Household struct {
	FamilySize  int      `json:"family_size" yaml:"family_size"`
	FloorArea   *float64 `json:"floor_area,omitempty" yaml:"floor_area,omitempty"`
	Region      string   `json:"region,omitempty" yaml:"region,omitempty"`
	BuildingAge *int     `json:"building_age,omitempty" yaml:"building_age,omitempty"`
}

// Context flattens the household into the map sent to the oracle.
// A nil household yields the defaults.
func (h *Household) Context() map[string]any {
	ctx := map[string]any{
		"family_size":  1,
		"floor_area":   100.0,
		"region":       "unknown",
		"building_age": 10,
	}
	if h == nil {
		return ctx
	}
	if h.FamilySize > 0 {
		ctx["family_size"] = h.FamilySize
	}
	if h.FloorArea != nil {
		ctx["floor_area"] = *h.FloorArea
	}
	if h.Region != "" {
		ctx["region"] = h.Region
	}
	if h.BuildingAge != nil {
		ctx["building_age"] = *h.BuildingAge
	}
	return ctx
}

// Bill is one imported billing record.
type Bill struct {
	ID        string     `json:"id" yaml:"id"`
	UserID    string     `json:"user_id" yaml:"user_id"`
	Kind      EnergyKind `json:"energy_kind" yaml:"energy_kind"`
	BillDate  time.Time  `json:"bill_date" yaml:"bill_date"`
	Usage     float64    `json:"usage" yaml:"usage"`
	Cost      float64    `json:"cost" yaml:"cost"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
}

// Suggestion is a persisted advisory, unique per (UserID, Title).
type Suggestion struct {
	ID           string     `json:"id" yaml:"id"`
	UserID       string     `json:"user_id" yaml:"user_id"`
	Kind         EnergyKind `json:"energy_kind,omitempty" yaml:"energy_kind,omitempty"`
	Title        string     `json:"title" yaml:"title"`
	Content      string     `json:"content" yaml:"content"`
	Priority     Severity   `json:"priority" yaml:"priority"`
	ImpactRating int        `json:"impact_rating" yaml:"impact_rating"`
	Source       string     `json:"source" yaml:"source"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
}
