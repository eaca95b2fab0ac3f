// Package server is the HTTP server of the embedded subsystem.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittofs-embedded/internal/logger"
	"github.com/marmos91/dittofs-embedded/pkg/config"
	"github.com/marmos91/dittofs-embedded/pkg/metrics"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("server already started")

// Options configures a Server.
type Options struct {
	Config        config.ServerConfig
	MetricsConfig config.MetricsConfig
	Metrics       *metrics.Registry
	Store         Store
	Info          NodeInfo
}

// Server serves the health, node and metrics endpoints.
type Server struct {
	opts   Options
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
	group    *errgroup.Group

	stopOnce sync.Once
	stopErr  error
}

// New creates a stopped Server.
func New(opts Options) *Server {
	h := &handlers{info: opts.Info, store: opts.Store, startedAt: time.Now()}
	return &Server{
		opts: opts,
		server: &http.Server{
			Handler:      newRouter(h, opts),
			ReadTimeout:  opts.Config.ReadTimeout,
			WriteTimeout: opts.Config.WriteTimeout,
			IdleTimeout:  opts.Config.IdleTimeout,
		},
	}
}

// Start binds the listener and serves in the background.
// It returns once the listener is bound; a bind failure is returned as is.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.opts.Config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Config.Address, err)
	}
	s.listener = ln

	g := new(errgroup.Group)
	g.Go(func() error {
		err := s.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error("HTTP server failed", logger.KeyAddress, ln.Addr().String(), logger.Err(err))
		return err
	})
	s.group = g

	logger.Info("HTTP server listening", logger.KeyAddress, ln.Addr().String())
	return nil
}

// Stop gracefully shuts the server down, bounded by ctx.
// Safe to call more than once and before Start.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		g := s.group
		s.mu.Unlock()

		if g == nil {
			return
		}

		logger.Debug("HTTP server shutdown initiated")
		if err := s.server.Shutdown(ctx); err != nil {
			_ = s.server.Close()
			s.stopErr = fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		if err := g.Wait(); err != nil && s.stopErr == nil {
			s.stopErr = fmt.Errorf("HTTP server error: %w", err)
		}
		if s.stopErr != nil {
			logger.Error("HTTP server stopped with error", logger.Err(s.stopErr))
			return
		}
		logger.Info("HTTP server stopped gracefully")
	})
	return s.stopErr
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Config.Address
}

// Handler returns the router, for tests and for hosts mounting it elsewhere.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
