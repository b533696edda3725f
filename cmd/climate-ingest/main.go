// Command climate-ingest subscribes to temperature/humidity readings over
// MQTT, persists a per-day average and serves both over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/sweeney/climate-ingest/internal/aggregate"
	"github.com/sweeney/climate-ingest/internal/config"
	"github.com/sweeney/climate-ingest/internal/logging"
	"github.com/sweeney/climate-ingest/internal/mqtt"
	"github.com/sweeney/climate-ingest/internal/query"
	"github.com/sweeney/climate-ingest/internal/status"
	"github.com/sweeney/climate-ingest/internal/storage"
	"github.com/sweeney/climate-ingest/internal/supervisor"
	"github.com/sweeney/climate-ingest/internal/web"
)

func main() {
	envFile := flag.String("env-file", ".env", "Dotenv file to load before reading the environment (missing file is ignored)")
	printConfig := flag.Bool("print-config", false, "Print the resolved configuration and exit")

	flag.Parse()

	if err := run(*envFile, *printConfig); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile string, printConfig bool) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	if printConfig {
		config.Print(os.Stdout, cfg)
		return nil
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log := logging.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	ln, err := net.Listen("tcp", cfg.HTTP.Addr())
	if err != nil {
		return fmt.Errorf("http listen on %s: %w", cfg.HTTP.Addr(), err)
	}

	a := newApp(cfg, gw, ln, realSource(cfg))

	log.Info().
		Str("broker", cfg.MQTT.Broker).
		Str("topic", cfg.MQTT.Topic).
		Dur("window", cfg.Aggregation.Window).
		Str("storage", cfg.Storage.Driver).
		Str("http", ln.Addr().String()).
		Msg("started")

	err = a.tree.Serve(ctx)
	if ctx.Err() != nil {
		log.Info().Msg("shutting down")
		return nil
	}
	return err
}

// openStorage returns the configured gateway wrapped in a circuit breaker.
func openStorage(ctx context.Context, cfg *config.Config) (storage.Gateway, func(), error) {
	breaker := storage.BreakerConfig{
		Failures: cfg.Storage.BreakerFailures,
		Cooldown: cfg.Storage.BreakerCooldown,
	}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return storage.NewBreaker(storage.NewMemory(), breaker), func() {}, nil
	case config.DriverPostgres:
		pg, err := storage.Open(ctx, cfg.Storage.DatabaseURL.Reveal(), cfg.Storage.MaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("open storage: %w", err)
		}
		return storage.NewBreaker(pg, breaker), pg.Close, nil
	default:
		return nil, nil, errors.New("unknown storage driver " + cfg.Storage.Driver)
	}
}

// sourceFunc builds the message source feeding handler.
type sourceFunc func(handler *mqtt.Handler, store *status.Store) suture.Service

func realSource(cfg *config.Config) sourceFunc {
	return func(handler *mqtt.Handler, store *status.Store) suture.Service {
		return mqtt.NewRealSubscriber(mqtt.SubscriberConfig{
			Broker:            cfg.MQTT.Broker,
			Topic:             cfg.MQTT.Topic,
			ClientID:          cfg.MQTT.ClientID,
			Username:          cfg.MQTT.Username,
			Password:          cfg.MQTT.Password.Reveal(),
			QoS:               byte(cfg.MQTT.QoS),
			ConnectTimeout:    cfg.MQTT.ConnectTimeout,
			KeepAlive:         cfg.MQTT.KeepAlive,
			ReconnectMin:      cfg.MQTT.ReconnectMin,
			ReconnectMax:      cfg.MQTT.ReconnectMax,
			ReconnectAttempts: cfg.MQTT.ReconnectAttempts,
			TLSInsecure:       cfg.MQTT.TLSInsecure,
		}, handler, store)
	}
}

// app is the wired service.
type app struct {
	store     *status.Store
	scheduler *aggregate.Scheduler
	server    *web.Server
	tree      *supervisor.Tree
}

func newApp(cfg *config.Config, gw storage.Gateway, ln net.Listener, source sourceFunc, opts ...aggregate.Option) *app {
	store := status.NewStore(time.Now(), status.Config{
		Broker:      cfg.MQTT.Broker,
		Topic:       cfg.MQTT.Topic,
		WindowMs:    cfg.Aggregation.Window.Milliseconds(),
		HTTPPort:    cfg.HTTP.Port,
		StorageKind: cfg.Storage.Driver,
	})

	handler := mqtt.NewHandler(cfg.MQTT.Topic, mqtt.Decoder{
		TempField: cfg.Payload.TempField,
		HumiField: cfg.Payload.HumiField,
	}, store)

	scheduler := aggregate.New(store, gw, aggregate.Config{
		Window:       cfg.Aggregation.Window,
		FlushTimeout: cfg.Aggregation.FlushTimeout,
	}, opts...)

	server := web.New(web.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RateLimit:      cfg.HTTP.RateLimit,
	}, query.NewService(store, gw), store)

	tree := supervisor.NewTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		FlushTimeout:    cfg.Aggregation.FlushTimeout,
	})
	tree.AddIngestService(source(handler, store))
	tree.AddIngestService(scheduler)
	tree.AddAPIService(supervisor.NewHTTPServerService(server, ln, cfg.HTTP.ShutdownTimeout))

	return &app{store: store, scheduler: scheduler, server: server, tree: tree}
}
