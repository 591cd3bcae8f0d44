package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/usage-insight/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS bills (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	energy_kind TEXT NOT NULL,
	bill_date   TEXT NOT NULL,
	usage       REAL NOT NULL,
	cost        REAL NOT NULL,
	created_at  TEXT NOT NULL,
	UNIQUE (user_id, energy_kind, bill_date)
);

CREATE TABLE IF NOT EXISTS households (
	user_id      TEXT PRIMARY KEY,
	family_size  INTEGER NOT NULL DEFAULT 1,
	floor_area   REAL,
	region       TEXT NOT NULL DEFAULT '',
	building_age INTEGER,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS suggestions (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	energy_kind   TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL,
	content       TEXT NOT NULL,
	priority      TEXT NOT NULL DEFAULT 'low',
	impact_rating INTEGER NOT NULL DEFAULT 1,
	source        TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	UNIQUE (user_id, title)
);

CREATE TABLE IF NOT EXISTS devices (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	energy_kind   TEXT NOT NULL,
	name          TEXT NOT NULL,
	power_rating  REAL NOT NULL,
	hours_per_day REAL NOT NULL,
	created_at    TEXT NOT NULL,
	UNIQUE (user_id, name)
);

CREATE INDEX IF NOT EXISTS idx_bills_user_kind_date ON bills(user_id, energy_kind, bill_date);
CREATE INDEX IF NOT EXISTS idx_suggestions_user ON suggestions(user_id, created_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertBills(ctx context.Context, bills []model.Bill) (int, error) {
	if len(bills) == 0 {
		return 0, nil
	}
	prepared, err := prepareBills(bills, s.now())
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bills (id, user_id, energy_kind, bill_date, usage, cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, energy_kind, bill_date) DO UPDATE SET usage = excluded.usage, cost = excluded.cost`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert bills")
	}
	defer stmt.Close() //nolint:errcheck

	n := 0
	for _, b := range prepared {
		res, err := stmt.ExecContext(ctx,
			b.ID, b.UserID, string(b.Kind), b.BillDate.Format(dateLayout), b.Usage, b.Cost, formatTime(b.CreatedAt),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert bill %s %s", b.Kind, b.BillDate.Format(dateLayout))
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		n += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit bills")
	}
	return n, nil
}

func (s *SQLiteStore) ListBills(ctx context.Context, userID string, filter BillFilter) ([]model.Bill, error) {
	q, args := billQuery(userID, filter,
		func(int) string { return "?" },
		func(t time.Time) any { return t.Format(dateLayout) },
	)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list bills")
	}
	defer rows.Close() //nolint:errcheck

	bills := []model.Bill{}
	for rows.Next() {
		var b model.Bill
		var kind, date, created string
		if err := rows.Scan(&b.ID, &b.UserID, &kind, &date, &b.Usage, &b.Cost, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bill")
		}
		b.Kind = model.EnergyKind(kind)
		if b.BillDate, err = time.Parse(dateLayout, date); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse bill date %q", date)
		}
		if b.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, eris.Wrap(rows.Err(), "sqlite: iterate bills")
}

func (s *SQLiteStore) GetHousehold(ctx context.Context, userID string) (*model.Household, error) {
	var h model.Household
	var area sql.NullFloat64
	var age sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT family_size, floor_area, region, building_age FROM households WHERE user_id = ?`, userID,
	).Scan(&h.FamilySize, &area, &h.Region, &age)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: household %s", userID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get household %s", userID)
	}
	if area.Valid {
		h.FloorArea = &area.Float64
	}
	if age.Valid {
		v := int(age.Int64)
		h.BuildingAge = &v
	}
	return &h, nil
}

func (s *SQLiteStore) SetHousehold(ctx context.Context, userID string, h model.Household) error {
	var area, age any
	if h.FloorArea != nil {
		area = *h.FloorArea
	}
	if h.BuildingAge != nil {
		age = *h.BuildingAge
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO households (user_id, family_size, floor_area, region, building_age, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET family_size = excluded.family_size, floor_area = excluded.floor_area,
		 region = excluded.region, building_age = excluded.building_age, updated_at = excluded.updated_at`,
		userID, max(h.FamilySize, 1), area, h.Region, age, formatTime(s.now()),
	)
	return eris.Wrapf(err, "sqlite: set household %s", userID)
}

func (s *SQLiteStore) AddSuggestions(ctx context.Context, suggestions []model.Suggestion) (int, error) {
	if len(suggestions) == 0 {
		return 0, nil
	}
	prepared, err := prepareSuggestions(suggestions, s.now())
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	n := 0
	for _, sg := range prepared {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO suggestions (id, user_id, energy_kind, title, content, priority, impact_rating, source, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (user_id, title) DO NOTHING`,
			sg.ID, sg.UserID, string(sg.Kind), sg.Title, sg.Content, string(sg.Priority), sg.ImpactRating, sg.Source, formatTime(sg.CreatedAt),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert suggestion %q", sg.Title)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		n += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit suggestions")
	}
	return n, nil
}

func (s *SQLiteStore) ListSuggestions(ctx context.Context, userID string, limit int) ([]model.Suggestion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, energy_kind, title, content, priority, impact_rating, source, created_at
		 FROM suggestions WHERE user_id = ? ORDER BY created_at DESC, title LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list suggestions")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Suggestion{}
	for rows.Next() {
		var sg model.Suggestion
		var kind, priority, created string
		if err := rows.Scan(&sg.ID, &sg.UserID, &kind, &sg.Title, &sg.Content, &priority, &sg.ImpactRating, &sg.Source, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan suggestion")
		}
		sg.Kind = model.EnergyKind(kind)
		sg.Priority = model.Severity(priority)
		if sg.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate suggestions")
}

func (s *SQLiteStore) SaveDevice(ctx context.Context, d model.Device) (model.Device, error) {
	d, err := prepareDevice(d, s.now())
	if err != nil {
		return d, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO devices (id, user_id, energy_kind, name, power_rating, hours_per_day, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, name) DO UPDATE SET energy_kind = excluded.energy_kind,
		 power_rating = excluded.power_rating, hours_per_day = excluded.hours_per_day`,
		d.ID, d.UserID, string(d.Kind), d.Name, d.PowerRating, d.HoursPerDay, formatTime(d.CreatedAt),
	)
	if err != nil {
		return d, eris.Wrapf(err, "sqlite: save device %q", d.Name)
	}
	// A replaced device keeps its original id.
	return s.getDevice(ctx, d.UserID, d.Name)
}

func (s *SQLiteStore) getDevice(ctx context.Context, userID, name string) (model.Device, error) {
	var d model.Device
	var kind, created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, energy_kind, name, power_rating, hours_per_day, created_at
		 FROM devices WHERE user_id = ? AND name = ?`, userID, name,
	).Scan(&d.ID, &d.UserID, &kind, &d.Name, &d.PowerRating, &d.HoursPerDay, &created)
	if err != nil {
		return d, eris.Wrapf(err, "sqlite: get device %q", name)
	}
	d.Kind = model.EnergyKind(kind)
	d.CreatedAt, err = parseTime(created)
	return d, err
}

func (s *SQLiteStore) ListDevices(ctx context.Context, userID string, kind model.EnergyKind) ([]model.Device, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, energy_kind, name, power_rating, hours_per_day, created_at
		 FROM devices WHERE user_id = ? AND (? = '' OR energy_kind = ?) ORDER BY name`,
		userID, string(kind), string(kind),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list devices")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Device{}
	for rows.Next() {
		var d model.Device
		var k, created string
		if err := rows.Scan(&d.ID, &d.UserID, &k, &d.Name, &d.PowerRating, &d.HoursPerDay, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan device")
		}
		d.Kind = model.EnergyKind(k)
		if d.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate devices")
}

// helpers

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}
