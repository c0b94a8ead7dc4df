// Package server provides the HTTP API for the panelmap engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	panelmap "github.com/genomicsops/panelmap"
	"github.com/genomicsops/panelmap/internal/metrics"
	"github.com/genomicsops/panelmap/pkg/logging"
)

// Config holds the HTTP server settings.
type Config struct {
	Host string
	Port int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	engine  panelmap.Panelmap
	metrics *metrics.Metrics
	logger  *zerolog.Logger
	config  Config
	http    *http.Server
}

// New creates a new server instance for the given engine.
func New(engine panelmap.Panelmap, m *metrics.Metrics, cfg Config) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		engine:  engine,
		metrics: m,
		logger:  logging.Default(),
		config:  cfg,
	}
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the server's HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe runs the server until the context is canceled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.http.Shutdown(shutdownCtx)
}

// routes wires the API endpoints.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /v1/panels", s.handleListPanels)
	mux.HandleFunc("GET /v1/panels/{rcode}", s.handlePanelContent)
	mux.HandleFunc("POST /v1/panels/{rcode}/sync", s.handleSync)
	mux.HandleFunc("POST /v1/sync", s.handleRefreshAll)
	mux.HandleFunc("GET /v1/panels/{rcode}/records", s.handlePanelHistory)
	mux.HandleFunc("GET /v1/panels/{rcode}/bed", s.handlePanelBED)

	mux.HandleFunc("POST /v1/records", s.handleAddRecord)
	mux.HandleFunc("GET /v1/patients/{id}", s.handlePatientHistory)
	mux.HandleFunc("GET /v1/patients/{id}/panels/{rcode}", s.handleReconcile)
	mux.HandleFunc("GET /v1/patients/{id}/panels/{rcode}/bed", s.handlePatientBED)

	mux.HandleFunc("GET /v1/bed/local", s.handleLocalBED)

	return s.logRequests(mux)
}

// logRequests is the request logging middleware.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
