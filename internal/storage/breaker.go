package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/sweeney/climate-ingest/internal/logging"
	"github.com/sweeney/climate-ingest/internal/logic"
	"github.com/sweeney/climate-ingest/internal/metrics"
)

// BreakerConfig controls when the circuit opens and for how long.
type BreakerConfig struct {
	// Failures is the number of consecutive failures that opens the circuit.
	Failures uint32
	// Cooldown is how long the circuit stays open before a trial call.
	Cooldown time.Duration
}

// Breaker guards a Gateway with a circuit breaker. It never retries; an
// open circuit fails fast with ErrUnavailable.
type Breaker struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker[[]logic.DailyAverage]
}

// NewBreaker wraps next.
func NewBreaker(next Gateway, cfg BreakerConfig) *Breaker {
	failures := cfg.Failures
	if failures == 0 {
		failures = 5
	}
	log := logging.Component("storage")

	cb := gobreaker.NewCircuitBreaker[[]logic.DailyAverage](gobreaker.Settings{
		Name:        "storage",
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not a backend failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("storage circuit breaker state changed")
		},
	})

	return &Breaker{next: next, cb: cb}
}

// State returns the breaker state name (closed, half-open, open).
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Upsert implements Gateway.
func (b *Breaker) Upsert(ctx context.Context, rec logic.DailyAverage) error {
	_, err := b.cb.Execute(func() ([]logic.DailyAverage, error) {
		return nil, b.next.Upsert(ctx, rec)
	})
	return b.result("upsert", err)
}

// ListDescending implements Gateway.
func (b *Breaker) ListDescending(ctx context.Context) ([]logic.DailyAverage, error) {
	out, err := b.cb.Execute(func() ([]logic.DailyAverage, error) {
		return b.next.ListDescending(ctx)
	})
	if err = b.result("list", err); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Breaker) result(op string, err error) error {
	if err == nil {
		return nil
	}
	metrics.StorageErrors.WithLabelValues(op).Inc()
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	}
	if !errors.Is(err, ErrStorage) {
		return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
	}
	return err
}
