package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/simcore/internal/core/observability/log"
	"github.com/zeusync/simcore/internal/core/observability/metrics"
	"github.com/zeusync/simcore/internal/core/world"
)

// Server runs a world in real time and exposes it over HTTP: Prometheus
// metrics, the latest tick summary and a websocket feed of every summary.
type Server struct {
	cfg      Config
	world    *world.World
	feed     *Feed
	gatherer prometheus.Gatherer
	logger   log.Log

	running atomic.Bool
}

// Config holds server configuration
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	// MaxClients caps concurrent feed connections.
	MaxClients int `yaml:"max_clients"`
	// FeedBuffer is the number of summaries queued per client before new ones are dropped.
	FeedBuffer      int           `yaml:"feed_buffer"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		ListenAddr:      "127.0.0.1:8080",
		MaxClients:      64,
		FeedBuffer:      16,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("server: listen address is required"))
	}
	if c.MaxClients < 1 {
		errs = append(errs, fmt.Errorf("server: max clients must be >= 1, got %d", c.MaxClients))
	}
	if c.FeedBuffer < 1 {
		errs = append(errs, fmt.Errorf("server: feed buffer must be >= 1, got %d", c.FeedBuffer))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server: write timeout must be positive, got %s", c.WriteTimeout))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server: shutdown timeout must be positive, got %s", c.ShutdownTimeout))
	}
	return errors.Join(errs...)
}

// NewServer wires the feed to w. gatherer backs /metrics and may be nil, in
// which case the default Prometheus registry is served.
func NewServer(cfg Config, w *world.World, gatherer prometheus.Gatherer, logger log.Log, m *metrics.Metrics) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	logger = log.OrNop(logger).Named("server")
	return &Server{
		cfg:      cfg,
		world:    w,
		feed:     NewFeed(cfg, w, logger, m),
		gatherer: gatherer,
		logger:   logger,
	}, nil
}

func (s *Server) Feed() *Feed { return s.feed }

// Run listens on Config.ListenAddr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve drives the world loop and the HTTP server on ln. Both stop when ctx is
// cancelled or either fails; feed clients are closed before the HTTP shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		_ = ln.Close()
		return ErrServerAlreadyRunning
	}
	defer s.running.Store(false)

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.world.Run(ctx)
	})
	g.Go(func() error {
		s.logger.Info("server listening", log.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.feed.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	})
	return g.Wait()
}
