// Package metrics holds the Prometheus instruments exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesReceived counts decoded sensor messages.
	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "climate_messages_received_total",
			Help: "Total number of sensor messages decoded and accumulated",
		},
	)

	// DecodeFailures counts discarded messages.
	DecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "climate_decode_failures_total",
			Help: "Total number of sensor messages discarded as malformed",
		},
	)

	// MQTTConnected is 1 while the broker connection is up.
	MQTTConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "climate_mqtt_connected",
			Help: "Whether the MQTT subscriber is connected (1) or not (0)",
		},
	)

	// ReconnectAttempts counts broker connection attempts after the first.
	ReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "climate_mqtt_reconnect_attempts_total",
			Help: "Total number of MQTT reconnection attempts",
		},
	)

	// WindowSamples is the number of samples waiting for the next flush.
	WindowSamples = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "climate_window_samples",
			Help: "Samples accumulated in the current aggregation window",
		},
	)

	// Flushes counts flushes by outcome (SKIPPED, PERSISTED, FAILED).
	Flushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climate_flushes_total",
			Help: "Total number of aggregation flushes by outcome",
		},
		[]string{"outcome"},
	)

	// LastPersistedFlush is the unix time of the last successful flush.
	LastPersistedFlush = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "climate_last_persisted_flush_timestamp_seconds",
			Help: "Unix time of the last flush written to storage",
		},
	)

	// StorageErrors counts failed storage calls by operation.
	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climate_storage_errors_total",
			Help: "Total number of failed storage operations",
		},
		[]string{"operation"},
	)

	// RequestsTotal counts HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climate_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"route", "method", "status"},
	)

	// RequestDuration observes HTTP latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "climate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"route", "method"},
	)
)

// SetConnected updates the connection gauge.
func SetConnected(connected bool) {
	if connected {
		MQTTConnected.Set(1)
		return
	}
	MQTTConnected.Set(0)
}
