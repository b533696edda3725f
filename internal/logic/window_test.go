package logic

import (
	"math"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func TestWindowAddKeepsSequencesParallel(t *testing.T) {
	var w Window
	w.Add(Sample{Temperature: 20, Humidity: 50})
	w.Add(Sample{Temperature: 22, Humidity: 55})

	if w.Len() != 2 {
		t.Fatalf("expected len 2, got %d", w.Len())
	}
	if len(w.Temps) != len(w.Humis) {
		t.Fatalf("sequences diverged: temps=%d humis=%d", len(w.Temps), len(w.Humis))
	}
	if w.Temps[1] != 22 || w.Humis[1] != 55 {
		t.Errorf("unexpected second entry: temp=%v humi=%v", w.Temps[1], w.Humis[1])
	}
}

func TestWindowDrainResets(t *testing.T) {
	var w Window
	for i := 0; i < 5; i++ {
		w.Add(Sample{Temperature: float64(i), Humidity: float64(i * 10)})
	}

	got := w.Drain()
	if got.Len() != 5 {
		t.Errorf("drained len: got %d, want 5", got.Len())
	}
	if w.Len() != 0 {
		t.Errorf("window len after drain: got %d, want 0", w.Len())
	}

	// Appending after a drain must not write into the drained slices.
	w.Add(Sample{Temperature: 99, Humidity: 99})
	if got.Temps[0] != 0 {
		t.Errorf("drained window mutated: %v", got.Temps)
	}
}

func TestWindowDrainEmpty(t *testing.T) {
	var w Window
	got := w.Drain()
	if got.Len() != 0 {
		t.Errorf("expected empty drain, got %d", got.Len())
	}
}

func TestMean(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"single", []float64{21.5}, 21.5},
		{"three", []float64{20, 22, 24}, 22},
		{"negative", []float64{-4, 2}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Mean(tt.values); got != tt.want {
				t.Errorf("Mean(%v): got %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}

func TestMeanPassesThroughNaN(t *testing.T) {
	if got := Mean([]float64{1, math.NaN()}); !math.IsNaN(got) {
		t.Errorf("expected NaN, got %v", got)
	}
}

func TestReduceScenario(t *testing.T) {
	var w Window
	w.Add(Sample{Temperature: 20, Humidity: 50})
	w.Add(Sample{Temperature: 22, Humidity: 55})
	w.Add(Sample{Temperature: 24, Humidity: 60})

	flush := time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC)
	rec, ok := Reduce(w.Drain(), flush)
	if !ok {
		t.Fatal("expected a record")
	}
	if rec.AvgTemp != 22.0 {
		t.Errorf("AvgTemp: got %v, want 22", rec.AvgTemp)
	}
	if rec.AvgHumi != 55.0 {
		t.Errorf("AvgHumi: got %v, want 55", rec.AvgHumi)
	}
	if rec.Date != "2026-03-14" {
		t.Errorf("Date: got %q, want 2026-03-14", rec.Date)
	}
}

func TestReduceEmptyWindow(t *testing.T) {
	if _, ok := Reduce(Window{}, time.Now()); ok {
		t.Error("expected no record for an empty window")
	}
}

func TestDateForUsesUTC(t *testing.T) {
	// 01:30 in UTC+3 is still the previous day in UTC.
	zone := time.FixedZone("UTC+3", 3*60*60)
	ts := time.Date(2026, 1, 2, 1, 30, 0, 0, zone)
	if got := DateFor(ts); got != "2026-01-01" {
		t.Errorf("DateFor: got %q, want 2026-01-01", got)
	}
}

func TestDailyAverageJSON(t *testing.T) {
	tests := []struct {
		name string
		rec  DailyAverage
		want string
	}{
		{
			"finite",
			DailyAverage{Date: "2026-03-14", AvgTemp: 21.5, AvgHumi: 48},
			`{"date":"2026-03-14","avg_temp":21.5,"avg_humi":48}`,
		},
		{
			"zero is kept",
			DailyAverage{Date: "2026-03-14"},
			`{"date":"2026-03-14","avg_temp":0,"avg_humi":0}`,
		},
		{
			"overflow",
			DailyAverage{Date: "2026-03-14", AvgTemp: math.Inf(1), AvgHumi: 50},
			`{"date":"2026-03-14","avg_temp":null,"avg_humi":50}`,
		},
		{
			"nan and negative overflow",
			DailyAverage{Date: "2026-03-14", AvgTemp: math.NaN(), AvgHumi: math.Inf(-1)},
			`{"date":"2026-03-14","avg_temp":null,"avg_humi":null}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.rec)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDailyAverageJSONInSlice(t *testing.T) {
	recs := []DailyAverage{
		{Date: "2026-03-15", AvgTemp: math.Inf(1), AvgHumi: 50},
		{Date: "2026-03-14", AvgTemp: 20, AvgHumi: 40},
	}
	got, err := json.Marshal(recs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"date":"2026-03-15","avg_temp":null,"avg_humi":50},{"date":"2026-03-14","avg_temp":20,"avg_humi":40}]`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestFinite(t *testing.T) {
	if p := Finite(2.5); p == nil || *p != 2.5 {
		t.Errorf("Finite(2.5): got %v", p)
	}
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if p := Finite(f); p != nil {
			t.Errorf("Finite(%v): got %v, want nil", f, *p)
		}
	}
}
