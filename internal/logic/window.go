package logic

import "time"

// Window accumulates the values of every sample received since the last flush.
// Temps and Humis are parallel: index i of each comes from the same sample.
// Not safe for concurrent use; the caller must synchronize.
type Window struct {
	Temps []float64
	Humis []float64
}

// Add appends both values of s to the window.
func (w *Window) Add(s Sample) {
	w.Temps = append(w.Temps, s.Temperature)
	w.Humis = append(w.Humis, s.Humidity)
}

// Len returns the number of samples in the window.
func (w *Window) Len() int {
	return len(w.Temps)
}

// Drain returns the accumulated values and leaves the window empty.
func (w *Window) Drain() Window {
	out := Window{Temps: w.Temps, Humis: w.Humis}
	w.Temps = nil
	w.Humis = nil
	return out
}

// Mean returns sum(values) / len(values). It does not filter NaN or Inf.
// The mean of an empty slice is NaN; callers check for emptiness first.
func Mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// DateFor returns the UTC calendar day of t in DateLayout.
func DateFor(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Reduce averages a drained window into the record for the flush instant.
// Returns false for an empty window: no record should be written.
//
// The record is dated by the flush time, not by when the samples arrived.
func Reduce(w Window, flushTime time.Time) (DailyAverage, bool) {
	if len(w.Temps) == 0 || len(w.Humis) == 0 {
		return DailyAverage{}, false
	}
	return DailyAverage{
		Date:    DateFor(flushTime),
		AvgTemp: Mean(w.Temps),
		AvgHumi: Mean(w.Humis),
	}, true
}
