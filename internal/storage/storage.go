// Package storage persists daily averages.
//
// A Gateway upserts one record per calendar day and lists all records newest
// first. Postgres is the durable backend; Memory serves local runs and tests.
// Breaker wraps either to stop hammering a failing database.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/sweeney/climate-ingest/internal/logic"
)

// ErrStorage is wrapped by every failure returned from this package.
var ErrStorage = errors.New("storage failure")

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = fmt.Errorf("%w: backend unavailable", ErrStorage)

// Gateway is the persistence contract used by the scheduler and the query
// surface.
type Gateway interface {
	// Upsert inserts rec, or replaces the averages of an existing record
	// with the same date.
	Upsert(ctx context.Context, rec logic.DailyAverage) error
	// ListDescending returns every record ordered by date, newest first.
	ListDescending(ctx context.Context) ([]logic.DailyAverage, error)
}
