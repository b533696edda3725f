// Package logic contains pure domain logic for climate sample aggregation.
// This package does no I/O (no MQTT, database, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"math"
	"time"

	json "github.com/goccy/go-json"
)

// DateLayout is the calendar-day format used as the key of a DailyAverage.
const DateLayout = "2006-01-02"

// Sample is one decoded sensor observation.
type Sample struct {
	Temperature float64
	Humidity    float64
	// Received is when the sample was decoded.
	Received time.Time
	// Raw is the original JSON object, including fields the core ignores.
	Raw []byte
}

// DailyAverage is one persisted aggregate, keyed by Date.
type DailyAverage struct {
	Date    string  `json:"date"`
	AvgTemp float64 `json:"avg_temp"`
	AvgHumi float64 `json:"avg_humi"`
}

// MarshalJSON writes non-finite averages as null.
func (d DailyAverage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date    string   `json:"date"`
		AvgTemp *float64 `json:"avg_temp"`
		AvgHumi *float64 `json:"avg_humi"`
	}{
		Date:    d.Date,
		AvgTemp: Finite(d.AvgTemp),
		AvgHumi: Finite(d.AvgHumi),
	})
}

// Finite returns &f, or nil when f is NaN or infinite. JSON has no
// representation for those, so they encode as null.
func Finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// FlushOutcome describes what a flush did with its window.
type FlushOutcome string

const (
	// FlushSkipped means the window was empty and nothing was written.
	FlushSkipped FlushOutcome = "SKIPPED"
	// FlushPersisted means the average was written to storage.
	FlushPersisted FlushOutcome = "PERSISTED"
	// FlushFailed means storage rejected the write and the window was dropped.
	FlushFailed FlushOutcome = "FAILED"
)

// FlushReport summarises a single flush.
type FlushReport struct {
	Time    time.Time
	Outcome FlushOutcome
	Samples int
	Record  *DailyAverage // nil when skipped
	Err     error
}
