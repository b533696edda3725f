package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrorType classifies configuration failures.
type ErrorType string

const (
	ErrDotenv     ErrorType = "DOTENV"
	ErrParsing    ErrorType = "PARSING"
	ErrValidation ErrorType = "VALIDATION"
)

// ConfigError is returned by Load when the configuration cannot be used.
type ConfigError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load reads envFile (if it exists) into the environment, then processes and
// validates the configuration. Variables already set in the environment win
// over the file. An empty envFile skips the dotenv step.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigError{
				Type:    ErrDotenv,
				Message: fmt.Sprintf("failed to read %s", envFile),
				Err:     err,
			}
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "climate-ingest-" + uuid.NewString()[:8]
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

// Print writes the resolved configuration with secrets redacted.
func Print(w io.Writer, cfg *Config) {
	fmt.Fprintf(w, "MQTT_BROKER=%s\n", cfg.MQTT.Broker)
	fmt.Fprintf(w, "MQTT_TOPIC=%s\n", cfg.MQTT.Topic)
	fmt.Fprintf(w, "MQTT_CLIENT_ID=%s\n", cfg.MQTT.ClientID)
	fmt.Fprintf(w, "MQTT_USERNAME=%s\n", cfg.MQTT.Username)
	fmt.Fprintf(w, "MQTT_PASSWORD=%s\n", cfg.MQTT.Password)
	fmt.Fprintf(w, "MQTT_QOS=%d\n", cfg.MQTT.QoS)
	fmt.Fprintf(w, "MQTT_RECONNECT=%v..%v x%d\n", cfg.MQTT.ReconnectMin, cfg.MQTT.ReconnectMax, cfg.MQTT.ReconnectAttempts)
	fmt.Fprintf(w, "PAYLOAD_FIELDS=%s,%s\n", cfg.Payload.TempField, cfg.Payload.HumiField)
	fmt.Fprintf(w, "AGGREGATION_WINDOW=%v\n", cfg.Aggregation.Window)
	fmt.Fprintf(w, "STORAGE_DRIVER=%s\n", cfg.Storage.Driver)
	fmt.Fprintf(w, "DATABASE_URL=%s\n", cfg.Storage.DatabaseURL)
	fmt.Fprintf(w, "PORT=%s\n", cfg.HTTP.Port)
	fmt.Fprintf(w, "LOG_LEVEL=%s LOG_FORMAT=%s\n", cfg.LogLevel, cfg.LogFormat)
}
