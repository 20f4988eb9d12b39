// Package web provides the HTTP ingest server: uploads are run through the
// pipeline, outcomes are kept in the run history, and operators can browse
// recent runs and scrape metrics.
package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/datastorer/internal/core"
	"github.com/JonMunkholm/datastorer/internal/history"
	"github.com/JonMunkholm/datastorer/internal/web/middleware"
)

// Ingester runs one resource ingestion. *core.Pipeline implements it.
type Ingester interface {
	Run(ctx context.Context, res core.Resource, src io.Reader, contentType string) (*core.Result, error)
}

// Options configures a Server.
type Options struct {
	Addr        string
	ReadTimeout time.Duration
	IdleTimeout time.Duration

	// MaxUploadBytes bounds the request body. Zero uses core.DefaultMaxContentLength.
	MaxUploadBytes int64

	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
}

// Server is the HTTP server for ingest requests.
type Server struct {
	ingester Ingester
	limiter  *core.IngestLimiter
	history  history.Recorder
	observer core.Observer
	logger   *slog.Logger
	opts     Options

	router *chi.Mux
	server *http.Server
}

// NewServer wires routes and middleware. observer may be nil.
func NewServer(ingester Ingester, limiter *core.IngestLimiter, recorder history.Recorder, observer core.Observer, logger *slog.Logger, opts Options) *Server {
	if observer == nil {
		observer = core.NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = core.DefaultMaxContentLength
	}

	s := &Server{
		ingester: ingester,
		limiter:  limiter,
		history:  recorder,
		observer: observer,
		logger:   logger,
		opts:     opts,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics)
	}

	// Pages
	s.router.Get("/", http.RedirectHandler("/runs", http.StatusFound).ServeHTTP)
	s.router.Get("/runs", s.handleRunsPage)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/runs", s.handleListRuns)
		r.Post("/resources/{resourceID}/ingest", s.handleIngest)
	})
}

// Start listens on Options.Addr until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.opts.Addr,
		Handler:     s.router,
		ReadTimeout: s.opts.ReadTimeout,
		IdleTimeout: s.opts.IdleTimeout,
	}

	s.logger.Info("server starting", "addr", s.opts.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, then waits for running ingests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)

	if status := s.limiter.Status(); status.Active > 0 {
		s.logger.Info("waiting for ingests to complete", "active", status.Active)
		if drainErr := s.limiter.WaitForDrain(ctx); drainErr != nil {
			s.logger.Warn("ingests did not complete in time", "error", drainErr)
		}
	}
	return err
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]any{
		"status":  "ok",
		"ingests": s.limiter.Status(),
	})
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("json encode error", "error", err)
	}
}
