// Package server exposes the engine over HTTP: a JSON API for the tree,
// code saves and runs, plus a datastar SSE stream of run progress.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/testide/internal/engine"
)

// Workspace is the part of the workspace the server drives.
type Workspace interface {
	Save(ctx context.Context, versionID, code string) error
	Watch(ctx context.Context) error
}

// Server serves the engine API.
type Server struct {
	engine    *engine.Engine
	workspace Workspace
	port      int
	watch     bool
	logger    *slog.Logger
}

// Config holds configuration for the server.
type Config struct {
	// Engine runs and reports (required)
	Engine *engine.Engine
	// Workspace persists code edits (optional, saves are rejected if nil)
	Workspace Workspace
	Port      int
	// Watch follows code file edits on disk while serving
	Watch  bool
	Logger *slog.Logger
}

// New creates a server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		engine:    cfg.Engine,
		workspace: cfg.Workspace,
		port:      cfg.Port,
		watch:     cfg.Watch,
		logger:    logger,
	}
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)
	setupRoutes(r, &handlers{
		engine:    s.engine,
		workspace: s.workspace,
		logger:    s.logger,
	})
	return r
}

// Serve starts the server and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch && s.workspace != nil {
		eg.Go(func() error {
			return s.workspace.Watch(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
