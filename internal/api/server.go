// Package api exposes a running session over HTTP: the process table, the
// lifecycle history, the event feed, the terminal and metrics.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/unitd/internal/auth"
	"github.com/mattjoyce/unitd/internal/events"
	"github.com/mattjoyce/unitd/internal/journal"
	"github.com/mattjoyce/unitd/internal/process"
)

// ProcessSource is the read side of a session.
type ProcessSource interface {
	ID() string
	Snapshot() []process.Entry
	Foreground() int
	Counts() (running, zombies int)
	PendingWaits() int
	Finished() bool
}

// Input is the write side of a session's terminal.
type Input interface {
	Resize(cols, rows int)
	Keystroke(keys string)
}

// Terminal is a display that remote clients can attach to.
type Terminal interface {
	Attach() (replay string, output <-chan string, detach func())
}

// HistoryStore lists recorded unit history.
type HistoryStore interface {
	List(ctx context.Context, f journal.Filter) ([]journal.Record, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the single admin bearer token.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
}

// Deps are the session components the API serves. Nil members disable
// their routes.
type Deps struct {
	Session  ProcessSource
	Input    Input
	Terminal Terminal
	History  HistoryStore
	Events   *events.Hub
	Metrics  http.Handler
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	keyring   *auth.Keyring
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    config,
		keyring:   auth.NewKeyring(config.APIKey, config.Tokens),
		deps:      deps,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// Streams (/events, /tty) are long lived; per-write deadlines are
		// left to the handlers.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.require(auth.GrantProcs)).Get("/processes", s.handleProcesses)
		r.With(s.require(auth.GrantProcs)).Get("/processes/{pid}", s.handleProcess)
		r.With(s.require(auth.GrantProcs)).Get("/history", s.handleHistory)
		r.With(s.require(auth.GrantEvents)).Get("/events", s.handleEvents)
		r.With(s.require(auth.GrantTTYRead)).Get("/tty", s.handleTTY)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
