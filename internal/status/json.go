package status

import (
	"time"

	json "github.com/goccy/go-json"

	"github.com/sweeney/climate-ingest/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Latest        *LatestJSON  `json:"latest,omitempty"`
	Window        WindowJSON   `json:"window"`
	Counts        CountsJSON   `json:"counts"`
	LastFlush     *FlushJSON   `json:"last_flush,omitempty"`
	Rejects       []RejectJSON `json:"recent_rejects,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Topic     string `json:"topic"`
}

// LatestJSON summarises the most recent sample.
type LatestJSON struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Received    string   `json:"received"`
	AgeSeconds  int64    `json:"age_seconds"`
}

// WindowJSON describes the current accumulation window.
type WindowJSON struct {
	Samples  int   `json:"samples"`
	PeriodMs int64 `json:"period_ms"`
}

// CountsJSON is the JSON representation of message totals.
type CountsJSON struct {
	Received int `json:"received"`
	Rejected int `json:"rejected"`
	Flushes  int `json:"flushes"`
}

// FlushJSON is the JSON representation of the last flush. Averages are
// omitted when there is no record or the value is not finite.
type FlushJSON struct {
	Time    string   `json:"time"`
	Outcome string   `json:"outcome"`
	Samples int      `json:"samples"`
	Date    string   `json:"date,omitempty"`
	AvgTemp *float64 `json:"avg_temp,omitempty"`
	AvgHumi *float64 `json:"avg_humi,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// RejectJSON is the JSON representation of a discarded message.
type RejectJSON struct {
	Time    string `json:"time"`
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	Error   string `json:"error"`
}

// ConfigJSON is the JSON representation of service config.
type ConfigJSON struct {
	Broker      string `json:"broker"`
	Topic       string `json:"topic"`
	WindowMs    int64  `json:"window_ms"`
	HTTPPort    string `json:"http_port"`
	StorageKind string `json:"storage"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Topic:     snap.Config.Topic,
		},
		Window: WindowJSON{Samples: snap.WindowLen, PeriodMs: snap.Config.WindowMs},
		Counts: CountsJSON{
			Received: snap.Counts.Received,
			Rejected: snap.Counts.Rejected,
			Flushes:  snap.Counts.Flushes,
		},
		Config: ConfigJSON{
			Broker:      snap.Config.Broker,
			Topic:       snap.Config.Topic,
			WindowMs:    snap.Config.WindowMs,
			HTTPPort:    snap.Config.HTTPPort,
			StorageKind: snap.Config.StorageKind,
		},
	}

	if snap.HasSample {
		inner.Latest = &LatestJSON{
			Temperature: logic.Finite(snap.Latest.Temperature),
			Humidity:    logic.Finite(snap.Latest.Humidity),
			Received:    snap.Latest.Received.UTC().Format(time.RFC3339),
			AgeSeconds:  int64(snap.Now.Sub(snap.Latest.Received).Truncate(time.Second).Seconds()),
		}
	}

	if lf := snap.LastFlush; lf != nil {
		fj := &FlushJSON{
			Time:    lf.Time.UTC().Format(time.RFC3339),
			Outcome: string(lf.Outcome),
			Samples: lf.Samples,
		}
		if lf.Record != nil {
			fj.Date = lf.Record.Date
			fj.AvgTemp = logic.Finite(lf.Record.AvgTemp)
			fj.AvgHumi = logic.Finite(lf.Record.AvgHumi)
		}
		if lf.Err != nil {
			fj.Error = lf.Err.Error()
		}
		inner.LastFlush = fj
	}

	for _, r := range snap.Rejects {
		inner.Rejects = append(inner.Rejects, RejectJSON{
			Time:    r.Time.UTC().Format(time.RFC3339),
			Topic:   r.Topic,
			Payload: r.Payload,
			Error:   r.Error,
		})
	}

	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) ([]byte, error) {
	return json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
}
