// Package store persists bills, household profiles, devices and advisory
// suggestions. SQLite is the default backend; Postgres is used when a
// database URL is configured.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/usage-insight/internal/model"
)

// ErrNotFound is returned when a keyed lookup has no row.
var ErrNotFound = eris.New("store: not found")

// dateLayout is the canonical text form of a bill date.
const dateLayout = "2006-01-02"

// BillFilter narrows ListBills. Zero values are unbounded; From and To are
// inclusive.
type BillFilter struct {
	Kind   model.EnergyKind `json:"energy_kind,omitempty"`
	From   time.Time        `json:"from,omitempty"`
	To     time.Time        `json:"to,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for usage analysis.
type Store interface {
	// Bills are unique per (user, kind, date); re-importing replaces usage
	// and cost.
	UpsertBills(ctx context.Context, bills []model.Bill) (int, error)
	// ListBills returns bills ordered by kind then date.
	ListBills(ctx context.Context, userID string, filter BillFilter) ([]model.Bill, error)

	// Households
	GetHousehold(ctx context.Context, userID string) (*model.Household, error)
	SetHousehold(ctx context.Context, userID string, h model.Household) error

	// SaveDevice inserts or replaces the user's device of the same name and
	// returns it with ID and CreatedAt filled.
	SaveDevice(ctx context.Context, d model.Device) (model.Device, error)
	// ListDevices returns the user's devices ordered by name. An empty kind
	// lists all of them.
	ListDevices(ctx context.Context, userID string, kind model.EnergyKind) ([]model.Device, error)

	// AddSuggestions inserts suggestions whose (user, title) is new and
	// returns how many were inserted.
	AddSuggestions(ctx context.Context, suggestions []model.Suggestion) (int, error)
	ListSuggestions(ctx context.Context, userID string, limit int) ([]model.Suggestion, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

type billKey struct {
	user string
	kind model.EnergyKind
	date time.Time
}

// prepareBills assigns IDs and timestamps and checks required fields.
// Bills sharing (user, kind, date) collapse into one: the last one's values
// win at the first one's position, so every backend sees each key once.
func prepareBills(bills []model.Bill, now time.Time) ([]model.Bill, error) {
	out := make([]model.Bill, 0, len(bills))
	index := make(map[billKey]int, len(bills))
	for i, b := range bills {
		if b.UserID == "" {
			return nil, eris.Errorf("store: bill %d has no user", i)
		}
		if _, err := model.ParseEnergyKind(string(b.Kind)); err != nil {
			return nil, eris.Wrapf(err, "store: bill %d", i)
		}
		b.BillDate = truncateDay(b.BillDate)
		key := billKey{user: b.UserID, kind: b.Kind, date: b.BillDate}
		if j, ok := index[key]; ok {
			out[j].Usage, out[j].Cost = b.Usage, b.Cost
			continue
		}
		if b.ID == "" {
			b.ID = uuid.New().String()
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		index[key] = len(out)
		out = append(out, b)
	}
	return out, nil
}

// prepareSuggestions fills defaults. A repeated (user, title) keeps the
// first, matching the insert-if-absent rule.
func prepareSuggestions(suggestions []model.Suggestion, now time.Time) ([]model.Suggestion, error) {
	out := make([]model.Suggestion, 0, len(suggestions))
	seen := make(map[[2]string]bool, len(suggestions))
	for i, s := range suggestions {
		if s.UserID == "" || s.Title == "" {
			return nil, eris.Errorf("store: suggestion %d needs a user and title", i)
		}
		key := [2]string{s.UserID, s.Title}
		if seen[key] {
			continue
		}
		seen[key] = true
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.Priority == "" {
			s.Priority = model.SeverityLow
		}
		out = append(out, s)
	}
	return out, nil
}

func prepareDevice(d model.Device, now time.Time) (model.Device, error) {
	if d.UserID == "" || d.Name == "" {
		return d, eris.New("store: device needs a user and name")
	}
	if _, err := model.ParseEnergyKind(string(d.Kind)); err != nil {
		return d, eris.Wrapf(err, "store: device %q", d.Name)
	}
	if d.PowerRating < 0 || d.HoursPerDay < 0 || d.HoursPerDay > 24 {
		return d, eris.Errorf("store: device %q: power must be >= 0 and hours per day within 0..24", d.Name)
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	return d, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// billQuery builds the ListBills statement. ph renders the n-th (1-based)
// placeholder and date renders a date argument for the backend.
func billQuery(userID string, f BillFilter, ph func(n int) string, date func(time.Time) any) (string, []any) {
	args := []any{userID}
	where := []string{"user_id = " + ph(1)}

	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, clause+ph(len(args)))
	}
	if f.Kind != "" {
		add("energy_kind = ", string(f.Kind))
	}
	if !f.From.IsZero() {
		add("bill_date >= ", date(truncateDay(f.From)))
	}
	if !f.To.IsZero() {
		add("bill_date <= ", date(truncateDay(f.To)))
	}

	q := "SELECT id, user_id, energy_kind, bill_date, usage, cost, created_at FROM bills WHERE " +
		strings.Join(where, " AND ") + " ORDER BY energy_kind, bill_date"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
		if f.Offset > 0 {
			q += fmt.Sprintf(" OFFSET %d", f.Offset)
		}
	}
	return q, args
}
