package model

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// EnergyKind identifies a metered utility.
type EnergyKind string

const (
	EnergyElectricity EnergyKind = "electricity"
	EnergyGas         EnergyKind = "gas"
	EnergyWater       EnergyKind = "water"
)

// AllEnergyKinds returns every supported energy kind in display order.
func AllEnergyKinds() []EnergyKind {
	return []EnergyKind{EnergyElectricity, EnergyGas, EnergyWater}
}

// ParseEnergyKind normalizes s into an EnergyKind.
func ParseEnergyKind(s string) (EnergyKind, error) {
	k := EnergyKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case EnergyElectricity, EnergyGas, EnergyWater:
		return k, nil
	}
	return "", eris.Errorf("model: unknown energy kind %q", s)
}

// ErrInvalidSeries is wrapped by every TrendSeries validation failure.
var ErrInvalidSeries = eris.New("invalid trend series")

// TrendPoint is one period's aggregated usage and cost for one energy kind.
// Year and Month are the textual labels carried by the series builder;
// Month is empty for quarterly and annual series.
type TrendPoint struct {
	Kind        EnergyKind `json:"energy_kind" yaml:"energy_kind"`
	PeriodStart time.Time  `json:"period_start" yaml:"period_start"`
	Usage       float64    `json:"usage" yaml:"usage"`
	Cost        float64    `json:"cost" yaml:"cost"`
	Year        string     `json:"year,omitempty" yaml:"year,omitempty"`
	Month       string     `json:"month,omitempty" yaml:"month,omitempty"`
}

// NewTrendPoint builds a monthly point whose labels are derived from start.
func NewTrendPoint(kind EnergyKind, start time.Time, usage, cost float64) TrendPoint {
	return TrendPoint{
		Kind:        kind,
		PeriodStart: start,
		Usage:       usage,
		Cost:        cost,
		Year:        strconv.Itoa(start.Year()),
		Month:       strconv.Itoa(int(start.Month())),
	}
}

// UnitPrice is cost per unit of usage, or 0 when nothing was used.
func (p TrendPoint) UnitPrice() float64 {
	if p.Usage == 0 {
		return 0
	}
	return p.Cost / p.Usage
}

// CalendarYear returns the year label as an int, falling back to PeriodStart.
func (p TrendPoint) CalendarYear() int {
	if y, err := strconv.Atoi(p.Year); err == nil {
		return y
	}
	return p.PeriodStart.Year()
}

// CalendarMonth returns the month label as an int, falling back to PeriodStart.
func (p TrendPoint) CalendarMonth() int {
	if m, err := strconv.Atoi(p.Month); err == nil {
		return m
	}
	return int(p.PeriodStart.Month())
}

// TrendSeries is a chronological sequence of points for one energy kind.
type TrendSeries []TrendPoint

// Validate rejects series that are out of order, contain duplicate periods,
// mix energy kinds, or carry negative or non-finite values.
func (s TrendSeries) Validate() error {
	for i, p := range s {
		if p.Usage < 0 || p.Cost < 0 {
			return eris.Wrapf(ErrInvalidSeries, "point %d has negative usage or cost", i)
		}
		if math.IsNaN(p.Usage) || math.IsInf(p.Usage, 0) || math.IsNaN(p.Cost) || math.IsInf(p.Cost, 0) {
			return eris.Wrapf(ErrInvalidSeries, "point %d is not finite", i)
		}
		if i == 0 {
			continue
		}
		if p.Kind != s[0].Kind {
			return eris.Wrapf(ErrInvalidSeries, "point %d is %s, series is %s", i, p.Kind, s[0].Kind)
		}
		if !p.PeriodStart.After(s[i-1].PeriodStart) {
			return eris.Wrapf(ErrInvalidSeries, "point %d (%s) does not follow %s",
				i, p.PeriodStart.Format(time.DateOnly), s[i-1].PeriodStart.Format(time.DateOnly))
		}
	}
	return nil
}

// Usages returns the usage column.
func (s TrendSeries) Usages() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Usage
	}
	return out
}

// Last returns the final point. It panics on an empty series.
func (s TrendSeries) Last() TrendPoint {
	return s[len(s)-1]
}

// Kind returns the energy kind of the series, or "" when empty.
func (s TrendSeries) Kind() EnergyKind {
	if len(s) == 0 {
		return ""
	}
	return s[0].Kind
}
