package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"

	"github.com/sweeney/climate-ingest/internal/aggregate"
	"github.com/sweeney/climate-ingest/internal/config"
	"github.com/sweeney/climate-ingest/internal/logic"
	"github.com/sweeney/climate-ingest/internal/mqtt"
	"github.com/sweeney/climate-ingest/internal/status"
	"github.com/sweeney/climate-ingest/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		LogLevel:  "info",
		LogFormat: "json",
		MQTT: config.MQTTConfig{
			Broker: "tcp://localhost:1883",
			Topic:  "home/lounge/climate",
		},
		Payload: config.PayloadConfig{TempField: "temp", HumiField: "humi"},
		Aggregation: config.AggregationConfig{
			Window:       30 * time.Millisecond,
			FlushTimeout: time.Second,
		},
		Storage: config.StorageConfig{
			Driver:          config.DriverMemory,
			BreakerFailures: 5,
			BreakerCooldown: time.Second,
		},
		HTTP: config.HTTPConfig{
			Port:            "0",
			ShutdownTimeout: time.Second,
			AllowedOrigins:  []string{"*"},
		},
	}
}

func TestRunConfigError(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	t.Setenv("MQTT_TOPIC", "")

	err := run("", false)
	require.Error(t, err)

	var cfgErr *config.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestRunPrintConfig(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://localhost:1883")
	t.Setenv("MQTT_TOPIC", "home/lounge/climate")
	t.Setenv("STORAGE_DRIVER", "memory")

	assert.NoError(t, run("", true))
}

func TestRunPortInUse(t *testing.T) {
	taken, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer taken.Close()
	_, port, err := net.SplitHostPort(taken.Addr().String())
	require.NoError(t, err)

	t.Setenv("MQTT_BROKER", "tcp://localhost:1883")
	t.Setenv("MQTT_TOPIC", "home/lounge/climate")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("PORT", port)

	done := make(chan error, 1)
	go func() { done <- run("", false) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http listen")
	case <-time.After(5 * time.Second):
		t.Fatal("run kept going with the port in use")
	}
}

func TestOpenStorageMemory(t *testing.T) {
	gw, closeFn, err := openStorage(context.Background(), testConfig())
	require.NoError(t, err)
	defer closeFn()

	_, ok := gw.(*storage.Breaker)
	assert.True(t, ok, "gateway should be wrapped in a breaker")
}

func TestOpenStoragePostgresUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Driver = config.DriverPostgres
	cfg.Storage.DatabaseURL = "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"
	cfg.Storage.MaxConns = 1

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := openStorage(ctx, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStorage)
}

func TestOpenStorageUnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Driver = "sqlite"

	_, _, err := openStorage(context.Background(), cfg)
	assert.Error(t, err)
}

func getJSON(t *testing.T, h http.Handler, path string, v any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	if v != nil {
		require.NoError(t, json.Unmarshal(body, v), string(body))
	}
	return rec.Code
}

func TestAppEndToEnd(t *testing.T) {
	cfg := testConfig()
	mem := storage.NewMemory()

	var src *mqtt.FakeSource
	source := func(handler *mqtt.Handler, store *status.Store) suture.Service {
		src = mqtt.NewFakeSource(handler, store,
			mqtt.FakeMessage{Topic: "home/lounge/climate", Payload: []byte(`{"temp":20,"humi":50}`)},
			mqtt.FakeMessage{Topic: "home/lounge/climate", Payload: []byte(`{"temp":22,"humi":55}`)},
			mqtt.FakeMessage{Topic: "home/lounge/climate", Payload: []byte(`broken`)},
			mqtt.FakeMessage{Topic: "home/lounge/other", Payload: []byte(`{"temp":99,"humi":99}`)},
			mqtt.FakeMessage{Topic: "home/lounge/climate", Payload: []byte(`{"temp":24,"humi":60,"id":"lounge"}`)},
		)
		return src
	}

	flushAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	ticks := make(chan time.Time)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	a := newApp(cfg, mem, ln, source,
		aggregate.WithClock(func() time.Time { return flushAt }),
		aggregate.WithTicker(func(time.Duration) (<-chan time.Time, func()) { return ticks, func() {} }),
	)
	h := a.server.Handler()

	assert.Equal(t, http.StatusNotFound, getJSON(t, h, "/data", nil))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := a.tree.ServeBackground(ctx)

	select {
	case <-src.Ready:
	case <-time.After(5 * time.Second):
		t.Fatal("source never delivered its messages")
	}

	// The pre-bound listener is served by the tree.
	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var latest map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, h, "/data", &latest))
	assert.Equal(t, 24.0, latest["temp"])
	assert.Equal(t, "lounge", latest["id"])

	ticks <- flushAt
	require.Eventually(t, func() bool { return mem.Upserts() == 1 }, 5*time.Second, 5*time.Millisecond)

	var history []logic.DailyAverage
	require.Equal(t, http.StatusOK, getJSON(t, h, "/daily-averages", &history))
	require.Len(t, history, 1)
	assert.Equal(t, logic.DailyAverage{Date: "2026-03-14", AvgTemp: 22, AvgHumi: 55}, history[0])

	snap := a.store.Snapshot()
	assert.True(t, snap.MQTTConnected)
	assert.Equal(t, 3, snap.Counts.Received)
	assert.Equal(t, 1, snap.Counts.Rejected)
	assert.Equal(t, 0, snap.WindowLen)

	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop")
	}
	assert.False(t, a.store.Snapshot().MQTTConnected)
}
