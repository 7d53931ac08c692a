// Package http serves the thin administrative surface that runs alongside
// the gRPC listener: a liveness probe and the Prometheus scrape endpoint.
// It never terminates proxy traffic, so it is deliberately built on
// net/http rather than a routing framework.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pandora-labs/extproc-gateway/internal/observability"
)

// AdminServer hosts /healthz and /metrics.
type AdminServer struct {
	server *http.Server
	logger *observability.Logger
}

// NewAdminServer builds the admin HTTP server bound to addr (e.g. ":9090").
// Metrics are served from the default Prometheus registry, the same one
// observability.NewMetricsCollector registers its collectors against.
func NewAdminServer(addr string, logger *observability.Logger) *AdminServer {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthzHandler)
	mux.Handle("/metrics", promhttp.Handler())

	return &AdminServer{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the admin mux directly, for tests that want to drive it
// with httptest without binding a real port.
func (s *AdminServer) Handler() http.Handler {
	return s.server.Handler
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ListenAndServe runs the admin server until it errors or Shutdown is
// called, in which case it returns nil.
func (s *AdminServer) ListenAndServe() error {
	s.logger.WithField("addr", s.server.Addr).Info("admin HTTP surface listening")

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin server.
func (s *AdminServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
