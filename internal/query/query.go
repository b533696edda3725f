// Package query answers reads for the HTTP surface: the latest sample from
// the in-memory store and the daily history from storage.
package query

import (
	"context"
	"errors"

	"github.com/sweeney/climate-ingest/internal/logic"
)

// ErrNoData is returned by Current until the first sample has arrived.
var ErrNoData = errors.New("no data received yet")

// LatestSource exposes the most recent sample. *status.Store implements it.
type LatestSource interface {
	Latest() (logic.Sample, bool)
}

// HistorySource lists persisted daily averages. storage.Gateway implements it.
type HistorySource interface {
	ListDescending(ctx context.Context) ([]logic.DailyAverage, error)
}

// Service combines both read paths. It never waits on the subscriber or the
// scheduler.
type Service struct {
	latest  LatestSource
	history HistorySource
}

// NewService creates a Service.
func NewService(latest LatestSource, history HistorySource) *Service {
	return &Service{latest: latest, history: history}
}

// Current returns the latest sample or ErrNoData.
func (s *Service) Current() (logic.Sample, error) {
	sample, ok := s.latest.Latest()
	if !ok {
		return logic.Sample{}, ErrNoData
	}
	return sample, nil
}

// History returns every daily average, newest first. An empty store yields
// an empty, non-nil slice.
func (s *Service) History(ctx context.Context) ([]logic.DailyAverage, error) {
	recs, err := s.history.ListDescending(ctx)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []logic.DailyAverage{}
	}
	return recs, nil
}
