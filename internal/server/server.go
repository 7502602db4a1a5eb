// Package server composes the transports, the dispatcher, and the
// background maintenance into one runnable unit.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aidis-io/aidis/internal/dispatch"
	"github.com/aidis-io/aidis/internal/observability"
	"github.com/aidis-io/aidis/internal/session"
)

// Config tunes the server composition.
type Config struct {
	BindAddr      string
	Stdio         bool
	ServerName    string
	Version       string
	ShutdownGrace time.Duration
}

// Server runs the HTTP adapter, optionally the stdio adapter, the
// readiness prober, and the session maintenance loops.
type Server struct {
	cfg         Config
	dispatcher  *dispatch.Dispatcher
	maintenance *session.Maintenance
	ready       *Readiness
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// New assembles a server.
func New(cfg Config, d *dispatch.Dispatcher, maintenance *session.Maintenance, ready *Readiness, logger *observability.Logger, metrics *observability.Metrics) *Server {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	return &Server{
		cfg:         cfg,
		dispatcher:  d,
		maintenance: maintenance,
		ready:       ready,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests for
// up to the shutdown grace period and flushes pending counters.
func (s *Server) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	s.maintenance.Start(ctx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()
		s.maintenance.Stop(shutdownCtx)
	}()

	group.Go(func() error {
		s.ready.Run(ctx)
		return nil
	})

	if s.cfg.BindAddr != "" {
		httpServer := &http.Server{
			Addr:              s.cfg.BindAddr,
			Handler:           newHTTPHandler(s.dispatcher, s.ready, s.logger, s.metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}

		listener, err := net.Listen("tcp", s.cfg.BindAddr)
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		s.logger.Info(ctx, "http transport listening", "addr", s.cfg.BindAddr)

		group.Go(func() error {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http serve: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Warn(shutdownCtx, "http shutdown", "error", err)
			}
			return nil
		})
	}

	if s.cfg.Stdio {
		stdio := NewStdioServer(s.dispatcher, s.logger, s.cfg.ServerName, s.cfg.Version)
		s.logger.Info(ctx, "stream transport serving on stdio")
		group.Go(func() error {
			if err := stdio.Serve(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("stdio serve: %w", err)
			}
			return nil
		})
	}

	return group.Wait()
}
