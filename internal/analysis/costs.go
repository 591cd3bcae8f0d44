package analysis

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/usage-insight/internal/model"
	"github.com/sells-group/usage-insight/internal/store"
)

// CostShare is one kind's part of a month's spend.
type CostShare struct {
	Kind     model.EnergyKind `json:"energy_kind" yaml:"energy_kind"`
	Cost     float64          `json:"cost" yaml:"cost"`
	SharePct float64          `json:"share_pct" yaml:"share_pct"`
}

// CostBreakdown is the spend of the most recent billed month.
type CostBreakdown struct {
	Month time.Time   `json:"month" yaml:"month"`
	Total float64     `json:"total" yaml:"total"`
	Items []CostShare `json:"items" yaml:"items"`
}

// LatestCosts splits the latest billed month's cost by energy kind. A user
// without bills gets an empty breakdown.
func (s *Service) LatestCosts(ctx context.Context, userID string) (*CostBreakdown, error) {
	bills, err := s.store.ListBills(ctx, userID, store.BillFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: list bills")
	}
	out := &CostBreakdown{Items: []CostShare{}}
	if len(bills) == 0 {
		return out, nil
	}

	var latest time.Time
	for _, b := range bills {
		if m := monthOf(b.BillDate); m.After(latest) {
			latest = m
		}
	}
	out.Month = latest

	perKind := make(map[model.EnergyKind]float64)
	for _, b := range bills {
		if monthOf(b.BillDate).Equal(latest) {
			perKind[b.Kind] += b.Cost
			out.Total += b.Cost
		}
	}
	for kind, cost := range perKind {
		share := 0.0
		if out.Total > 0 {
			share = round2(cost / out.Total * 100)
		}
		out.Items = append(out.Items, CostShare{Kind: kind, Cost: round2(cost), SharePct: share})
	}
	sort.Slice(out.Items, func(i, j int) bool { return out.Items[i].Cost > out.Items[j].Cost })
	out.Total = round2(out.Total)
	return out, nil
}

func monthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
