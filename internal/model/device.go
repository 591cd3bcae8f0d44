package model

import "time"

// Device is a household appliance drawing on one energy kind. PowerRating
// is watts for electricity, m³/h for gas and L/h for water.
type Device struct {
	ID          string     `json:"id" yaml:"id"`
	UserID      string     `json:"user_id" yaml:"user_id"`
	Kind        EnergyKind `json:"energy_kind" yaml:"energy_kind"`
	Name        string     `json:"name" yaml:"name"`
	PowerRating float64    `json:"power_rating" yaml:"power_rating"`
	HoursPerDay float64    `json:"hours_per_day" yaml:"hours_per_day"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
}

// DeviceShare is a device's estimated monthly usage in the kind's billing
// unit and its percentage of all listed devices of that kind.
type DeviceShare struct {
	DeviceID     string  `json:"device_id" yaml:"device_id"`
	Name         string  `json:"name" yaml:"name"`
	MonthlyUsage float64 `json:"monthly_usage" yaml:"monthly_usage"`
	SharePct     float64 `json:"share_pct" yaml:"share_pct"`
}
