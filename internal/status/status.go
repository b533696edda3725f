// Package status owns the in-memory state of the ingest service: the latest
// sample, the accumulation window, and the bookkeeping shown on /status.
// It is written to by the MQTT handler and the aggregation scheduler and
// read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/climate-ingest/internal/logic"
	"github.com/sweeney/climate-ingest/internal/metrics"
)

// Config contains service configuration for display.
type Config struct {
	Broker      string
	Topic       string
	WindowMs    int64
	HTTPPort    string
	StorageKind string
}

// Reject is one discarded inbound message.
type Reject struct {
	Time    time.Time
	Topic   string
	Payload string
	Error   string
}

// Counts tracks message totals since startup.
type Counts struct {
	Received int
	Rejected int
	Flushes  int
}

// Snapshot is a point-in-time view of service state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	HasSample     bool
	Latest        logic.Sample
	WindowLen     int
	Counts        Counts
	LastFlush     *logic.FlushReport
	Rejects       []Reject
	Config        Config
}

// Uptime returns the duration since the service started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Store holds mutable service state behind an RWMutex.
type Store struct {
	mu sync.RWMutex

	latest    logic.Sample
	hasSample bool
	window    logic.Window

	startTime time.Time
	connected bool
	counts    Counts
	lastFlush *logic.FlushReport
	rejects   *ringBuffer
	cfg       Config
}

// rejectCapacity bounds how many recent rejects are kept for /status.
const rejectCapacity = 16

// maxRejectPayload truncates stored reject payloads.
const maxRejectPayload = 256

// NewStore creates a Store with the given start time and config.
func NewStore(startTime time.Time, cfg Config) *Store {
	return &Store{
		startTime: startTime,
		cfg:       cfg,
		rejects:   newRingBuffer(rejectCapacity),
	}
}

// Record replaces the latest sample and appends it to the window in one step.
func (s *Store) Record(sample logic.Sample) {
	s.mu.Lock()
	s.latest = sample
	s.hasSample = true
	s.window.Add(sample)
	s.counts.Received++
	metrics.WindowSamples.Set(float64(s.window.Len()))
	s.mu.Unlock()
}

// Reject notes a discarded message. Sample state is not touched.
func (s *Store) Reject(at time.Time, topic string, payload []byte, err error) {
	p := string(payload)
	if len(p) > maxRejectPayload {
		p = p[:maxRejectPayload]
	}
	r := Reject{Time: at, Topic: topic, Payload: p}
	if err != nil {
		r.Error = err.Error()
	}

	s.mu.Lock()
	s.counts.Rejected++
	s.rejects.push(r)
	s.mu.Unlock()
}

// Latest returns the most recent valid sample, or false if none has arrived.
func (s *Store) Latest() (logic.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.hasSample
}

// Drain atomically empties the window and returns what it held.
// A sample recorded concurrently lands in exactly one of the two windows.
func (s *Store) Drain() logic.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	metrics.WindowSamples.Set(0)
	return s.window.Drain()
}

// WindowLen returns the number of samples waiting for the next flush.
func (s *Store) WindowLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window.Len()
}

// RecordFlush stores the outcome of the most recent flush.
func (s *Store) RecordFlush(report logic.FlushReport) {
	s.mu.Lock()
	s.lastFlush = &report
	s.counts.Flushes++
	s.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (s *Store) SetMQTTConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

// MQTTConnected reports the last known MQTT connection status.
func (s *Store) MQTTConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Snapshot returns a point-in-time copy of the service state.
// The Now field is set to the current time at the moment of the call.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		StartTime:     s.startTime,
		MQTTConnected: s.connected,
		HasSample:     s.hasSample,
		Latest:        s.latest,
		WindowLen:     s.window.Len(),
		Counts:        s.counts,
		Rejects:       s.rejects.items(),
		Config:        s.cfg,
	}
	if s.lastFlush != nil {
		lf := *s.lastFlush
		snap.LastFlush = &lf
	}
	s.mu.RUnlock()
	snap.Now = time.Now()
	return snap
}
