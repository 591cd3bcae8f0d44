package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityRank(t *testing.T) {
	t.Parallel()

	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Zero(t, Severity("bogus").Rank())
}

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Severity
	}{
		{"high", SeverityHigh},
		{"medium", SeverityMedium},
		{"low", SeverityLow},
		{"critical", SeverityLow},
		{"", SeverityLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseSeverity(tt.in), tt.in)
	}
}

func TestThresholdsContains(t *testing.T) {
	t.Parallel()

	th := Thresholds{Lower: -20, Upper: 30}
	assert.True(t, th.Contains(-20))
	assert.True(t, th.Contains(30))
	assert.True(t, th.Contains(0))
	assert.False(t, th.Contains(30.01))
	assert.False(t, th.Contains(-25))
}

func TestHouseholdContext(t *testing.T) {
	t.Parallel()

	var none *Household
	assert.Equal(t, map[string]any{
		"family_size":  1,
		"floor_area":   100.0,
		"region":       "unknown",
		"building_age": 10,
	}, none.Context())

	area := 85.5
	age := 30
	h := &Household{FamilySize: 4, FloorArea: &area, Region: "north", BuildingAge: &age}
	ctx := h.Context()
	assert.Equal(t, 4, ctx["family_size"])
	assert.Equal(t, 85.5, ctx["floor_area"])
	assert.Equal(t, "north", ctx["region"])
	assert.Equal(t, 30, ctx["building_age"])
}
