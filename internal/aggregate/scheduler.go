// Package aggregate periodically turns the accumulated window into a
// persisted daily average.
package aggregate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/climate-ingest/internal/logging"
	"github.com/sweeney/climate-ingest/internal/logic"
	"github.com/sweeney/climate-ingest/internal/metrics"
)

// State is the scheduler's flush state.
type State string

const (
	StateIdle     State = "IDLE"
	StateFlushing State = "FLUSHING"
)

// Drainer hands over the accumulated window and receives flush outcomes.
// *status.Store implements it.
type Drainer interface {
	Drain() logic.Window
	RecordFlush(report logic.FlushReport)
}

// Upserter writes one daily average. storage.Gateway implements it.
type Upserter interface {
	Upsert(ctx context.Context, rec logic.DailyAverage) error
}

// Config holds the flush period and the per-flush write budget.
type Config struct {
	Window       time.Duration
	FlushTimeout time.Duration
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the clock used to date flushes.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithTicker overrides how the flush ticker is created. The returned func
// stops it.
func WithTicker(fn func(time.Duration) (<-chan time.Time, func())) Option {
	return func(s *Scheduler) { s.newTicker = fn }
}

// Scheduler flushes the window every Config.Window.
type Scheduler struct {
	src       Drainer
	dst       Upserter
	cfg       Config
	now       func() time.Time
	newTicker func(time.Duration) (<-chan time.Time, func())
	log       zerolog.Logger

	mu       sync.Mutex
	flushing atomic.Bool
}

// New creates a scheduler draining src into dst.
func New(src Drainer, dst Upserter, cfg Config, opts ...Option) *Scheduler {
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 30 * time.Second
	}
	s := &Scheduler{
		src:       src,
		dst:       dst,
		cfg:       cfg,
		now:       time.Now,
		newTicker: realTicker,
		log:       logging.Component("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// String names the service for the supervisor.
func (s *Scheduler) String() string {
	return "aggregation-scheduler"
}

// State reports whether a flush is running.
func (s *Scheduler) State() State {
	if s.flushing.Load() {
		return StateFlushing
	}
	return StateIdle
}

// Serve flushes on every tick until ctx is cancelled. Unflushed samples are
// not written on shutdown.
func (s *Scheduler) Serve(ctx context.Context) error {
	tick, stop := s.newTicker(s.cfg.Window)
	defer stop()

	s.log.Info().Dur("window", s.cfg.Window).Msg("aggregation scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("aggregation scheduler stopped")
			return nil
		case <-tick:
			s.Flush(ctx)
		}
	}
}

// Flush drains the window and persists its average. An empty window is
// skipped without a write. A failed write is logged and the record dropped.
// The write runs detached from ctx cancellation, bounded by FlushTimeout.
// Concurrent calls are serialized.
func (s *Scheduler) Flush(ctx context.Context) logic.FlushReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushing.Store(true)
	defer s.flushing.Store(false)

	at := s.now()
	w := s.src.Drain()

	report := logic.FlushReport{Time: at, Samples: w.Len()}

	rec, ok := logic.Reduce(w, at)
	if !ok {
		report.Outcome = logic.FlushSkipped
		s.log.Debug().Msg("window empty, nothing to flush")
	} else {
		report.Record = &rec

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FlushTimeout)
		err := s.dst.Upsert(wctx, rec)
		cancel()

		if err != nil {
			report.Outcome = logic.FlushFailed
			report.Err = err
			s.log.Error().
				Err(err).
				Str("date", rec.Date).
				Int("samples", report.Samples).
				Msg("failed to persist daily average, window dropped")
		} else {
			report.Outcome = logic.FlushPersisted
			metrics.LastPersistedFlush.Set(float64(at.Unix()))
			s.log.Info().
				Str("date", rec.Date).
				Float64("avg_temp", rec.AvgTemp).
				Float64("avg_humi", rec.AvgHumi).
				Int("samples", report.Samples).
				Msg("daily average saved")
		}
	}

	metrics.Flushes.WithLabelValues(string(report.Outcome)).Inc()
	s.src.RecordFlush(report)
	return report
}
