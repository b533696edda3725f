// Package config defines the configuration of the climate ingest service.
//
// Values come from the process environment, optionally seeded from a .env
// file. Nothing is hard-coded: broker, credentials, topic, storage and
// aggregation period are all supplied externally. A missing required value
// or an invalid format fails startup.
package config

import (
	"time"
)

// Secret is a string that never prints its value.
type Secret string

// String implements fmt.Stringer.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// Reveal returns the underlying value.
func (s Secret) Reveal() string {
	return string(s)
}

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the top-level configuration. It is populated once at startup
// and never modified.
type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json console"`

	MQTT        MQTTConfig
	Payload     PayloadConfig
	Aggregation AggregationConfig
	Storage     StorageConfig
	HTTP        HTTPConfig
}

// MQTTConfig holds the broker connection and subscription settings.
type MQTTConfig struct {
	Broker   string `envconfig:"MQTT_BROKER" validate:"required,url"`
	Topic    string `envconfig:"MQTT_TOPIC" validate:"required"`
	ClientID string `envconfig:"MQTT_CLIENT_ID"`
	Username string `envconfig:"MQTT_USERNAME"`
	Password Secret `envconfig:"MQTT_PASSWORD"`
	QoS      int    `envconfig:"MQTT_QOS" default:"0" validate:"min=0,max=2"`

	ConnectTimeout time.Duration `envconfig:"MQTT_CONNECT_TIMEOUT" default:"10s" validate:"gt=0"`
	KeepAlive      time.Duration `envconfig:"MQTT_KEEPALIVE" default:"30s" validate:"gte=1s"`

	// Reconnection is bounded: at most ReconnectAttempts tries per outage.
	ReconnectMin      time.Duration `envconfig:"MQTT_RECONNECT_MIN" default:"1s" validate:"gt=0"`
	ReconnectMax      time.Duration `envconfig:"MQTT_RECONNECT_MAX" default:"60s" validate:"gtefield=ReconnectMin"`
	ReconnectAttempts int           `envconfig:"MQTT_RECONNECT_ATTEMPTS" default:"10" validate:"min=1,max=1000"`

	// TLSInsecure skips broker certificate verification. Test brokers only.
	TLSInsecure bool `envconfig:"MQTT_TLS_INSECURE" default:"false"`
}

// PayloadConfig names the JSON fields carrying the readings.
type PayloadConfig struct {
	TempField string `envconfig:"PAYLOAD_TEMP_FIELD" default:"temp" validate:"required"`
	HumiField string `envconfig:"PAYLOAD_HUMI_FIELD" default:"humi" validate:"required,nefield=TempField"`
}

// AggregationConfig controls the flush cycle.
type AggregationConfig struct {
	Window       time.Duration `envconfig:"AGGREGATION_WINDOW" default:"24h" validate:"gte=1s"`
	FlushTimeout time.Duration `envconfig:"FLUSH_TIMEOUT" default:"30s" validate:"gt=0"`
}

// StorageConfig selects and tunes the persistence backend.
type StorageConfig struct {
	Driver      string `envconfig:"STORAGE_DRIVER" default:"postgres" validate:"oneof=postgres memory"`
	DatabaseURL Secret `envconfig:"DATABASE_URL" validate:"required_if=Driver postgres"`
	MaxConns    int32  `envconfig:"DB_MAX_CONNS" default:"4" validate:"min=1"`

	BreakerFailures uint32        `envconfig:"STORAGE_BREAKER_FAILURES" default:"5" validate:"min=1"`
	BreakerCooldown time.Duration `envconfig:"STORAGE_BREAKER_COOLDOWN" default:"30s" validate:"gt=0"`
}

// HTTPConfig holds the read-surface server settings.
type HTTPConfig struct {
	Port            string        `envconfig:"PORT" default:"3000" validate:"required,numeric"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`
	AllowedOrigins  []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int `envconfig:"HTTP_RATE_LIMIT" default:"0" validate:"min=0"`
}

// Addr returns the listen address for the HTTP server.
func (h HTTPConfig) Addr() string {
	return ":" + h.Port
}
