package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/climate-ingest/internal/logging"
	"github.com/sweeney/climate-ingest/internal/metrics"
)

var errConnectTimeout = errors.New("connection timeout")

// SubscriberConfig holds broker connection settings.
type SubscriberConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte

	ConnectTimeout time.Duration
	KeepAlive      time.Duration

	ReconnectMin      time.Duration
	ReconnectMax      time.Duration
	ReconnectAttempts int

	TLSInsecure bool
}

// RealSubscriber consumes readings from an actual MQTT broker.
//
// Paho's own reconnect loop is disabled. Serve reconnects with exponential
// backoff and gives up after ReconnectAttempts tries in a single outage.
type RealSubscriber struct {
	cfg       SubscriberConfig
	handler   *Handler
	store     Recorder
	newClient func(*paho.ClientOptions) paho.Client
	log       zerolog.Logger
}

// NewRealSubscriber creates a subscriber that feeds handler. The connection
// flag is reported to store.
func NewRealSubscriber(cfg SubscriberConfig, handler *Handler, store Recorder) *RealSubscriber {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReconnectAttempts < 1 {
		cfg.ReconnectAttempts = 1
	}
	return &RealSubscriber{
		cfg:       cfg,
		handler:   handler,
		store:     store,
		newClient: paho.NewClient,
		log:       logging.Component("mqtt"),
	}
}

// String names the service for the supervisor.
func (s *RealSubscriber) String() string {
	return "mqtt-subscriber"
}

// Serve connects, subscribes and consumes until ctx is cancelled. A lost
// connection triggers a fresh bounded reconnect cycle. Serve returns
// ErrReconnectExhausted when a cycle fails.
func (s *RealSubscriber) Serve(ctx context.Context) error {
	for {
		lost := make(chan error, 1)
		client, err := s.connect(ctx, lost)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			s.shutdown(client)
			return nil
		case err := <-lost:
			s.setConnected(false)
			s.log.Warn().Err(err).Str("broker", s.cfg.Broker).Msg("connection lost, reconnecting")
		}
	}
}

// connect runs one bounded reconnect cycle and returns a subscribed client.
func (s *RealSubscriber) connect(ctx context.Context, lost chan<- error) (paho.Client, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.cfg.ReconnectMin
	exp.MaxInterval = s.cfg.ReconnectMax
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(exp, uint64(s.cfg.ReconnectAttempts-1)),
		ctx,
	)

	opts, err := s.options(lost)
	if err != nil {
		return nil, err
	}

	var (
		client  paho.Client
		attempt int
	)
	op := func() error {
		attempt++
		if attempt > 1 {
			metrics.ReconnectAttempts.Inc()
		}
		c, err := s.dial(opts)
		if err != nil {
			return err
		}
		client = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", s.cfg.ReconnectAttempts).
			Dur("retry_in", wait).
			Msg("mqtt connect failed")
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, attempt, err)
	}
	return client, nil
}

// dial makes one connect-and-subscribe attempt.
func (s *RealSubscriber) dial(opts *paho.ClientOptions) (paho.Client, error) {
	client := s.newClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		client.Disconnect(0)
		return nil, errConnectTimeout
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	sub := client.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ paho.Client, m paho.Message) {
		s.handler.Handle(m.Topic(), m.Payload())
	})
	if !sub.WaitTimeout(s.cfg.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("subscribe %s: timeout", s.cfg.Topic)
	}
	if err := sub.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("subscribe %s: %w", s.cfg.Topic, err)
	}

	s.setConnected(true)
	s.log.Info().
		Str("broker", s.cfg.Broker).
		Str("topic", s.cfg.Topic).
		Uint8("qos", s.cfg.QoS).
		Msg("subscribed")
	return client, nil
}

func (s *RealSubscriber) options(lost chan<- error) (*paho.ClientOptions, error) {
	u, err := url.Parse(s.cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(s.cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			select {
			case lost <- err:
			default:
			}
		})
	if s.cfg.KeepAlive > 0 {
		opts.SetKeepAlive(s.cfg.KeepAlive)
	}
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	switch u.Scheme {
	case "ssl", "tls", "mqtts", "wss":
		opts.SetTLSConfig(&tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: s.cfg.TLSInsecure, //nolint:gosec // opt-in for test brokers
		})
	}
	return opts, nil
}

// shutdown unsubscribes and disconnects gracefully.
func (s *RealSubscriber) shutdown(client paho.Client) {
	if tok := client.Unsubscribe(s.cfg.Topic); !tok.WaitTimeout(time.Second) {
		s.log.Warn().Str("topic", s.cfg.Topic).Msg("unsubscribe timed out")
	}
	client.Disconnect(250)
	s.setConnected(false)
	s.log.Info().Str("broker", s.cfg.Broker).Msg("disconnected")
}

func (s *RealSubscriber) setConnected(connected bool) {
	s.store.SetMQTTConnected(connected)
	metrics.SetConnected(connected)
}
