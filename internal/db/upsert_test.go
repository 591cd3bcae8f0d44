package db

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var billsConfig = UpsertConfig{
	Table:        "bills",
	Columns:      []string{"id", "user_id", "energy_kind", "bill_date", "usage", "cost"},
	ConflictKeys: []string{"user_id", "energy_kind", "bill_date"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, billsConfig, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "bills",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "bills",
		Columns: []string{"id", "name"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TEMP TABLE "_tmp_upsert_bills" (LIKE "bills" INCLUDING DEFAULTS) ON COMMIT DROP`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_bills"}, billsConfig.Columns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "bills"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{
		{"b1", "u1", "gas", "2024-01-01", 10.0, 30.0},
		{"b2", "u1", "gas", "2024-02-01", 12.0, 36.0},
	}
	n, err := BulkUpsert(context.Background(), mock, billsConfig, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_bills"}, billsConfig.Columns).WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, billsConfig, [][]any{{"b1", "u1", "gas", "2024-01-01", 1.0, 1.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for bills")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL(t *testing.T) {
	tests := []struct {
		name string
		cfg  UpsertConfig
		want string
	}{
		{
			name: "update non-key columns",
			cfg:  UpsertConfig{Table: "bills", Columns: []string{"k", "v"}, ConflictKeys: []string{"k"}},
			want: `INSERT INTO "bills" ("k", "v") SELECT "k", "v" FROM "_tmp_upsert_bills" ON CONFLICT ("k") DO UPDATE SET "v" = EXCLUDED."v"`,
		},
		{
			name: "explicit update columns",
			cfg:  UpsertConfig{Table: "usage.bills", Columns: []string{"k", "a", "b"}, ConflictKeys: []string{"k"}, UpdateCols: []string{"b"}},
			want: `INSERT INTO "usage"."bills" ("k", "a", "b") SELECT "k", "a", "b" FROM "_tmp_upsert_usage_bills" ON CONFLICT ("k") DO UPDATE SET "b" = EXCLUDED."b"`,
		},
		{
			name: "keep existing rows",
			cfg:  UpsertConfig{Table: "suggestions", Columns: []string{"user_id", "title"}, ConflictKeys: []string{"user_id", "title"}, UpdateCols: []string{}},
			want: `INSERT INTO "suggestions" ("user_id", "title") SELECT "user_id", "title" FROM "_tmp_upsert_suggestions" ON CONFLICT ("user_id", "title") DO NOTHING`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UpsertSQL(tt.cfg))
		})
	}
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"usage.bills", `"usage"."bills"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
