package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPServer is the part of *web.Server the service needs.
type HTTPServer interface {
	Serve(ln net.Listener) error
	Shutdown(ctx context.Context) error
}

// HTTPServerService adapts an HTTP server to suture.Service.
//
// The listener is bound by the caller before the tree starts, so a bad
// address fails startup instead of restarting forever. The first Serve uses
// that listener; a restart after a serve failure binds the same address
// again.
type HTTPServerService struct {
	server          HTTPServer
	addr            string
	shutdownTimeout time.Duration

	mu sync.Mutex
	ln net.Listener
}

// NewHTTPServerService wraps server, serving on ln.
func NewHTTPServerService(server HTTPServer, ln net.Listener, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		addr:            ln.Addr().String(),
		shutdownTimeout: shutdownTimeout,
		ln:              ln,
	}
}

func (h *HTTPServerService) listener() (net.Listener, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ln != nil {
		ln := h.ln
		h.ln = nil
		return ln, nil
	}
	return net.Listen("tcp", h.addr)
}

// Serve serves until ctx is cancelled, then shuts the server down.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	ln, err := h.listener()
	if err != nil {
		return fmt.Errorf("http server failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// ctx is already cancelled; shut down on a fresh one.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return nil
	}
}

// String names the service for the supervisor.
func (h *HTTPServerService) String() string {
	return "http-server"
}
