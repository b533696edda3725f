package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/climate-ingest/internal/logic"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Rows ---

type mockRows struct {
	data    [][]any
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newMockRows(data [][]any) *mockRows {
	return &mockRows{data: data, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx]
	for i, d := range dest {
		switch v := d.(type) {
		case *time.Time:
			*v = row[i].(time.Time)
		case *float64:
			*v = row[i].(float64)
		}
	}
	return nil
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

// --- Postgres tests ---

func TestPostgres_EnsureSchema(t *testing.T) {
	db := new(mockDBTX)
	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "CREATE TABLE IF NOT EXISTS daily_avg") &&
			strings.Contains(sql, "date       DATE PRIMARY KEY")
	}), mock.Anything).Return(pgconn.NewCommandTag("CREATE TABLE"), nil)

	require.NoError(t, NewPostgres(db).EnsureSchema(context.Background()))
	db.AssertExpectations(t)
}

func TestPostgres_EnsureSchemaError(t *testing.T) {
	db := new(mockDBTX)
	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("permission denied"))

	err := NewPostgres(db).EnsureSchema(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestPostgres_Upsert(t *testing.T) {
	db := new(mockDBTX)
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	db.On("Exec", mock.Anything,
		mock.MatchedBy(func(sql string) bool {
			return strings.Contains(sql, "ON CONFLICT (date) DO UPDATE")
		}),
		mock.MatchedBy(func(args []any) bool {
			if len(args) != 3 {
				return false
			}
			day, ok := args[0].(time.Time)
			return ok && day.Equal(want) && args[1] == 22.0 && args[2] == 55.0
		}),
	).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := NewPostgres(db).Upsert(context.Background(), logic.DailyAverage{
		Date: "2026-03-14", AvgTemp: 22, AvgHumi: 55,
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestPostgres_UpsertInvalidDate(t *testing.T) {
	db := new(mockDBTX)

	err := NewPostgres(db).Upsert(context.Background(), logic.DailyAverage{Date: "14/03/2026"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestPostgres_UpsertError(t *testing.T) {
	db := new(mockDBTX)
	dbErr := errors.New("connection reset")
	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.CommandTag{}, dbErr)

	err := NewPostgres(db).Upsert(context.Background(), logic.DailyAverage{Date: "2026-03-14"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, dbErr)
}

func TestPostgres_ListDescending(t *testing.T) {
	db := new(mockDBTX)
	rows := newMockRows([][]any{
		{time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), 21.5, 50.0},
		{time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), 22.0, 55.0},
	})
	db.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "ORDER BY date DESC")
	}), mock.Anything).Return(rows, nil)

	got, err := NewPostgres(db).ListDescending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []logic.DailyAverage{
		{Date: "2026-03-15", AvgTemp: 21.5, AvgHumi: 50},
		{Date: "2026-03-14", AvgTemp: 22, AvgHumi: 55},
	}, got)
	assert.True(t, rows.closed)
}

func TestPostgres_ListDescendingEmpty(t *testing.T) {
	db := new(mockDBTX)
	db.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(newMockRows(nil), nil)

	got, err := NewPostgres(db).ListDescending(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPostgres_ListDescendingErrors(t *testing.T) {
	tests := []struct {
		name     string
		rows     pgx.Rows
		queryErr error
	}{
		{"query", nil, errors.New("relation does not exist")},
		{"scan", &mockRows{data: [][]any{{}}, idx: -1, scanErr: errors.New("bad type")}, nil},
		{"iterate", &mockRows{idx: -1, errVal: errors.New("conn closed")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mockDBTX)
			db.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(tt.rows, tt.queryErr)

			got, err := NewPostgres(db).ListDescending(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrStorage)
			assert.Nil(t, got)
		})
	}
}
