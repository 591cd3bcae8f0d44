package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/usage-insight/internal/db"
	"github.com/sells-group/usage-insight/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	billsUpsert = db.UpsertConfig{
		Table:        "bills",
		Columns:      []string{"id", "user_id", "energy_kind", "bill_date", "usage", "cost", "created_at"},
		ConflictKeys: []string{"user_id", "energy_kind", "bill_date"},
		UpdateCols:   []string{"usage", "cost"},
	}
	suggestionsInsert = db.UpsertConfig{
		Table:        "suggestions",
		Columns:      []string{"id", "user_id", "energy_kind", "title", "content", "priority", "impact_rating", "source", "created_at"},
		ConflictKeys: []string{"user_id", "title"},
		UpdateCols:   []string{},
	}
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgres(pool, pool.Close), nil
}

func newPostgres(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: closeFn, now: func() time.Time { return time.Now().UTC() }}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS bills (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id     TEXT NOT NULL,
	energy_kind TEXT NOT NULL,
	bill_date   DATE NOT NULL,
	usage       DOUBLE PRECISION NOT NULL CHECK (usage >= 0),
	cost        DOUBLE PRECISION NOT NULL CHECK (cost >= 0),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, energy_kind, bill_date)
);

CREATE TABLE IF NOT EXISTS households (
	user_id      TEXT PRIMARY KEY,
	family_size  INTEGER NOT NULL DEFAULT 1,
	floor_area   DOUBLE PRECISION,
	region       TEXT NOT NULL DEFAULT '',
	building_age INTEGER,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS suggestions (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id       TEXT NOT NULL,
	energy_kind   TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL,
	content       TEXT NOT NULL,
	priority      TEXT NOT NULL DEFAULT 'low',
	impact_rating INTEGER NOT NULL DEFAULT 1,
	source        TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, title)
);

CREATE TABLE IF NOT EXISTS devices (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id       TEXT NOT NULL,
	energy_kind   TEXT NOT NULL,
	name          TEXT NOT NULL,
	power_rating  DOUBLE PRECISION NOT NULL CHECK (power_rating >= 0),
	hours_per_day DOUBLE PRECISION NOT NULL CHECK (hours_per_day BETWEEN 0 AND 24),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, name)
);

CREATE INDEX IF NOT EXISTS idx_bills_user_kind_date ON bills(user_id, energy_kind, bill_date);
CREATE INDEX IF NOT EXISTS idx_suggestions_user ON suggestions(user_id, created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertBills(ctx context.Context, bills []model.Bill) (int, error) {
	prepared, err := prepareBills(bills, s.now())
	if err != nil {
		return 0, err
	}
	rows := make([][]any, len(prepared))
	for i, b := range prepared {
		rows[i] = []any{b.ID, b.UserID, string(b.Kind), b.BillDate, b.Usage, b.Cost, b.CreatedAt}
	}
	n, err := db.BulkUpsert(ctx, s.pool, billsUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert bills")
	}
	return int(n), nil
}

func (s *PostgresStore) ListBills(ctx context.Context, userID string, filter BillFilter) ([]model.Bill, error) {
	q, args := billQuery(userID, filter,
		func(n int) string { return "$" + strconv.Itoa(n) },
		func(t time.Time) any { return t },
	)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list bills")
	}
	defer rows.Close()

	bills := []model.Bill{}
	for rows.Next() {
		var b model.Bill
		var kind string
		if err := rows.Scan(&b.ID, &b.UserID, &kind, &b.BillDate, &b.Usage, &b.Cost, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bill")
		}
		b.Kind = model.EnergyKind(kind)
		bills = append(bills, b)
	}
	return bills, eris.Wrap(rows.Err(), "postgres: iterate bills")
}

func (s *PostgresStore) GetHousehold(ctx context.Context, userID string) (*model.Household, error) {
	var h model.Household
	err := s.pool.QueryRow(ctx,
		`SELECT family_size, floor_area, region, building_age FROM households WHERE user_id = $1`, userID,
	).Scan(&h.FamilySize, &h.FloorArea, &h.Region, &h.BuildingAge)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: household %s", userID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get household %s", userID)
	}
	return &h, nil
}

func (s *PostgresStore) SetHousehold(ctx context.Context, userID string, h model.Household) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO households (user_id, family_size, floor_area, region, building_age, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE SET family_size = EXCLUDED.family_size, floor_area = EXCLUDED.floor_area,
		 region = EXCLUDED.region, building_age = EXCLUDED.building_age, updated_at = EXCLUDED.updated_at`,
		userID, max(h.FamilySize, 1), h.FloorArea, h.Region, h.BuildingAge, s.now(),
	)
	return eris.Wrapf(err, "postgres: set household %s", userID)
}

func (s *PostgresStore) AddSuggestions(ctx context.Context, suggestions []model.Suggestion) (int, error) {
	prepared, err := prepareSuggestions(suggestions, s.now())
	if err != nil {
		return 0, err
	}
	rows := make([][]any, len(prepared))
	for i, sg := range prepared {
		rows[i] = []any{sg.ID, sg.UserID, string(sg.Kind), sg.Title, sg.Content, string(sg.Priority), sg.ImpactRating, sg.Source, sg.CreatedAt}
	}
	n, err := db.BulkUpsert(ctx, s.pool, suggestionsInsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: add suggestions")
	}
	return int(n), nil
}

func (s *PostgresStore) ListSuggestions(ctx context.Context, userID string, limit int) ([]model.Suggestion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, energy_kind, title, content, priority, impact_rating, source, created_at
		 FROM suggestions WHERE user_id = $1 ORDER BY created_at DESC, title LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list suggestions")
	}
	defer rows.Close()

	out := []model.Suggestion{}
	for rows.Next() {
		var sg model.Suggestion
		var kind, priority string
		if err := rows.Scan(&sg.ID, &sg.UserID, &kind, &sg.Title, &sg.Content, &priority, &sg.ImpactRating, &sg.Source, &sg.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan suggestion")
		}
		sg.Kind = model.EnergyKind(kind)
		sg.Priority = model.Severity(priority)
		out = append(out, sg)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate suggestions")
}

func (s *PostgresStore) SaveDevice(ctx context.Context, d model.Device) (model.Device, error) {
	d, err := prepareDevice(d, s.now())
	if err != nil {
		return d, err
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO devices (id, user_id, energy_kind, name, power_rating, hours_per_day, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, name) DO UPDATE SET energy_kind = EXCLUDED.energy_kind,
		 power_rating = EXCLUDED.power_rating, hours_per_day = EXCLUDED.hours_per_day
		 RETURNING id, created_at`,
		d.ID, d.UserID, string(d.Kind), d.Name, d.PowerRating, d.HoursPerDay, d.CreatedAt,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return d, eris.Wrapf(err, "postgres: save device %q", d.Name)
	}
	return d, nil
}

func (s *PostgresStore) ListDevices(ctx context.Context, userID string, kind model.EnergyKind) ([]model.Device, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, energy_kind, name, power_rating, hours_per_day, created_at
		 FROM devices WHERE user_id = $1 AND ($2 = '' OR energy_kind = $2) ORDER BY name`,
		userID, string(kind),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list devices")
	}
	defer rows.Close()

	out := []model.Device{}
	for rows.Next() {
		var d model.Device
		var k string
		if err := rows.Scan(&d.ID, &d.UserID, &k, &d.Name, &d.PowerRating, &d.HoursPerDay, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan device")
		}
		d.Kind = model.EnergyKind(k)
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate devices")
}
