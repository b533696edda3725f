// Package mqtt subscribes to sensor readings over MQTT, with abstraction for
// testing.
//
// Each message is decoded into a logic.Sample and recorded in the sample
// store. Malformed messages are logged, counted and discarded; they never
// stop the subscription.
package mqtt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/sweeney/climate-ingest/internal/logging"
	"github.com/sweeney/climate-ingest/internal/logic"
	"github.com/sweeney/climate-ingest/internal/metrics"
)

// ErrMalformedPayload is wrapped by every decode failure.
var ErrMalformedPayload = errors.New("malformed payload")

// ErrReconnectExhausted is returned by Serve when the reconnection budget
// for an outage has been used up.
var ErrReconnectExhausted = errors.New("mqtt reconnect attempts exhausted")

// Recorder receives decoded samples, rejected messages and connection
// state. *status.Store implements it.
type Recorder interface {
	Record(sample logic.Sample)
	Reject(at time.Time, topic string, payload []byte, err error)
	SetMQTTConnected(connected bool)
}

// Decoder extracts readings from a JSON payload.
type Decoder struct {
	TempField string
	HumiField string
}

// Decode parses payload. It must be a JSON object carrying both configured
// fields as numbers. Other fields are tolerated and preserved in Raw.
func (d Decoder) Decode(payload []byte) (logic.Sample, error) {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return logic.Sample{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if obj == nil {
		return logic.Sample{}, fmt.Errorf("%w: not a JSON object", ErrMalformedPayload)
	}

	temp, err := numberField(obj, d.TempField)
	if err != nil {
		return logic.Sample{}, err
	}
	humi, err := numberField(obj, d.HumiField)
	if err != nil {
		return logic.Sample{}, err
	}

	raw := make([]byte, len(payload))
	copy(raw, payload)

	return logic.Sample{
		Temperature: temp,
		Humidity:    humi,
		Raw:         raw,
	}, nil
}

func numberField(obj map[string]any, name string) (float64, error) {
	v, ok := obj[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrMalformedPayload, name)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: field %q is %T, want number", ErrMalformedPayload, name, v)
	}
	return f, nil
}

// Handler is the per-message task run for every delivery.
type Handler struct {
	filter  string
	decoder Decoder
	store   Recorder
	now     func() time.Time
	log     zerolog.Logger
}

// NewHandler returns a handler that accepts messages matching filter.
func NewHandler(filter string, decoder Decoder, store Recorder) *Handler {
	return &Handler{
		filter:  filter,
		decoder: decoder,
		store:   store,
		now:     time.Now,
		log:     logging.Component("mqtt"),
	}
}

// SetNow replaces the clock used to stamp samples.
func (h *Handler) SetNow(now func() time.Time) {
	h.now = now
}

// Handle decodes and records one message. Messages on topics outside the
// subscription are ignored.
func (h *Handler) Handle(topic string, payload []byte) {
	if !TopicMatches(h.filter, topic) {
		return
	}

	now := h.now()
	sample, err := h.decoder.Decode(payload)
	if err != nil {
		h.store.Reject(now, topic, payload, err)
		metrics.DecodeFailures.Inc()
		h.log.Warn().
			Err(err).
			Str("topic", topic).
			Int("bytes", len(payload)).
			Msg("discarding malformed message")
		return
	}

	sample.Received = now
	h.store.Record(sample)
	metrics.MessagesReceived.Inc()
	h.log.Debug().
		Str("topic", topic).
		Float64("temperature", sample.Temperature).
		Float64("humidity", sample.Humidity).
		Msg("sample received")
}

// TopicMatches reports whether topic matches the subscription filter,
// honouring the + and # wildcards.
func TopicMatches(filter, topic string) bool {
	if filter == topic {
		return true
	}
	// Wildcards do not match $-prefixed system topics.
	if strings.HasPrefix(topic, "$") && !strings.HasPrefix(filter, "$") {
		return false
	}

	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, level := range f {
		if level == "#" {
			return i == len(f)-1
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
