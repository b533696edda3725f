// Package web provides the HTTP read surface for the climate ingest service.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sweeney/climate-ingest/internal/logging"
	"github.com/sweeney/climate-ingest/internal/logic"
	"github.com/sweeney/climate-ingest/internal/query"
	"github.com/sweeney/climate-ingest/internal/status"
)

const (
	msgNoData        = "No data received yet"
	msgHistoryFailed = "Failed to fetch daily averages"
)

// Querier answers the two data reads.
type Querier interface {
	Current() (logic.Sample, error)
	History(ctx context.Context) ([]logic.DailyAverage, error)
}

// SnapshotSource supplies the status snapshot.
type SnapshotSource interface {
	Snapshot() status.Snapshot
}

// Options configures the server.
type Options struct {
	AllowedOrigins []string
	// RateLimit is requests per minute per client IP. 0 disables it.
	RateLimit int
}

// Server serves the read endpoints over HTTP.
type Server struct {
	httpServer *http.Server
	query      Querier
	snaps      SnapshotSource
	log        zerolog.Logger
}

// New creates a Server.
func New(opts Options, q Querier, snaps SnapshotSource) *Server {
	s := &Server{
		query: q,
		snaps: snaps,
		log:   logging.Component("http"),
	}

	s.httpServer = &http.Server{
		Handler:           s.routes(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(opts Options) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(httprate.LimitByIP(opts.RateLimit, time.Minute))
		}
		r.Get("/data", s.handleData)
		r.Get("/daily-averages", s.handleDailyAverages)
		r.Get("/status", s.handleStatus)
	})

	return r
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve accepts connections on ln. It blocks until the server is shut down.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleData(w http.ResponseWriter, _ *http.Request) {
	sample, err := s.query.Current()
	if errors.Is(err, query.ErrNoData) {
		writeError(w, http.StatusNotFound, msgNoData)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("read latest sample")
		writeError(w, http.StatusInternalServerError, "Failed to read latest sample")
		return
	}
	writeRaw(w, http.StatusOK, sampleBody(sample))
}

func (s *Server) handleDailyAverages(w http.ResponseWriter, r *http.Request) {
	recs, err := s.query.History(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("fetch daily averages")
		writeError(w, http.StatusInternalServerError, msgHistoryFailed)
		return
	}
	body, err := json.Marshal(recs)
	if err != nil {
		s.log.Error().Err(err).Int("records", len(recs)).Msg("encode daily averages")
		writeError(w, http.StatusInternalServerError, msgHistoryFailed)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	body, err := status.FormatJSON(s.snaps.Snapshot())
	if err != nil {
		s.log.Error().Err(err).Msg("encode status")
		writeError(w, http.StatusInternalServerError, "Failed to build status")
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
