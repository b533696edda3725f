package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sweeney/climate-ingest/internal/logic"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS daily_avg (
	date       DATE PRIMARY KEY,
	avg_temp   DOUBLE PRECISION NOT NULL,
	avg_humi   DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertSQL = `
INSERT INTO daily_avg (date, avg_temp, avg_humi, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (date) DO UPDATE
SET avg_temp = EXCLUDED.avg_temp,
    avg_humi = EXCLUDED.avg_humi,
    updated_at = EXCLUDED.updated_at`

const listSQL = `
SELECT date, avg_temp, avg_humi
FROM daily_avg
ORDER BY date DESC`

// Postgres is a Gateway backed by the daily_avg table.
type Postgres struct {
	db   DBTX
	pool *pgxpool.Pool
}

// NewPostgres returns a gateway over db (a pool or a transaction).
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// Open connects a pool to url, verifies it with a ping and ensures the
// schema exists. Any failure here is a startup error.
func Open(ctx context.Context, url string, maxConns int32) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse database url: %w", ErrStorage, err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create pool: %w", ErrStorage, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrStorage, err)
	}

	p := &Postgres{db: pool, pool: pool}
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the pool, if this gateway owns one.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Ping checks database reachability.
func (p *Postgres) Ping(ctx context.Context) error {
	if p.pool == nil {
		return nil
	}
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStorage, err)
	}
	return nil
}

// EnsureSchema creates the daily_avg table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("%w: ensure schema: %w", ErrStorage, err)
	}
	return nil
}

// Upsert implements Gateway.
func (p *Postgres) Upsert(ctx context.Context, rec logic.DailyAverage) error {
	day, err := time.Parse(logic.DateLayout, rec.Date)
	if err != nil {
		return fmt.Errorf("%w: invalid date %q: %w", ErrStorage, rec.Date, err)
	}

	if _, err := p.db.Exec(ctx, upsertSQL, day, rec.AvgTemp, rec.AvgHumi); err != nil {
		return fmt.Errorf("%w: upsert %s: %w", ErrStorage, rec.Date, err)
	}
	return nil
}

// ListDescending implements Gateway.
func (p *Postgres) ListDescending(ctx context.Context) ([]logic.DailyAverage, error) {
	rows, err := p.db.Query(ctx, listSQL)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrStorage, err)
	}
	defer rows.Close()

	out := []logic.DailyAverage{}
	for rows.Next() {
		var (
			day time.Time
			rec logic.DailyAverage
		)
		if err := rows.Scan(&day, &rec.AvgTemp, &rec.AvgHumi); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", ErrStorage, err)
		}
		rec.Date = day.UTC().Format(logic.DateLayout)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate: %w", ErrStorage, err)
	}
	return out, nil
}
