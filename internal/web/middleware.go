package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sweeney/climate-ingest/internal/metrics"
)

// instrument logs each request and records request metrics by route
// pattern, so path parameters never explode label cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		elapsed := time.Since(start)

		metrics.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(code)).Inc()
		metrics.RequestDuration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())

		event := s.log.Debug()
		if code >= http.StatusInternalServerError {
			event = s.log.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", code).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", elapsed).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}
