package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sweeney/climate-ingest/internal/logic"
)

// Memory is a map-backed Gateway. Records live only as long as the process.
type Memory struct {
	mu      sync.Mutex
	records map[string]logic.DailyAverage
	upserts int
	failErr error
}

// NewMemory returns an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]logic.DailyAverage)}
}

// FailWith makes every following call return err wrapped in ErrStorage.
// Pass nil to recover.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Upsert implements Gateway.
func (m *Memory) Upsert(ctx context.Context, rec logic.DailyAverage) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: upsert %s: %w", ErrStorage, rec.Date, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return fmt.Errorf("%w: upsert %s: %w", ErrStorage, rec.Date, m.failErr)
	}
	m.records[rec.Date] = rec
	m.upserts++
	return nil
}

// ListDescending implements Gateway.
func (m *Memory) ListDescending(ctx context.Context) ([]logic.DailyAverage, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrStorage, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrStorage, m.failErr)
	}

	out := make([]logic.DailyAverage, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	// YYYY-MM-DD sorts lexically in date order.
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// Upserts returns the number of successful writes.
func (m *Memory) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}
