// Package api serves the telemetry HTTP API and the live reading stream.
//
// The server follows the same lifecycle as the other long-running parts:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"codeberg.org/mutker/telemetryd/internal/config"
	"codeberg.org/mutker/telemetryd/internal/device"
	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"codeberg.org/mutker/telemetryd/internal/settings"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Collector is the part of collector.Collector the handlers need.
type Collector interface {
	Collect(ctx context.Context) ([]telemetry.Reading, []error)
	CurrentOrBootstrap(ctx context.Context) ([]telemetry.Reading, error)
}

// Deps holds everything the server reads from or writes to.
type Deps struct {
	Config    config.ServerConfig
	Registry  *device.Registry
	Store     telemetry.Store
	Collector Collector
	Interval  settings.Interval
	// Hub is optional; New creates one when nil.
	Hub    *Hub
	Logger logger.Logger
}

// Server is the HTTP front of the service. It owns no state besides the hub.
type Server struct {
	cfg       config.ServerConfig
	registry  *device.Registry
	store     telemetry.Store
	collector Collector
	interval  settings.Interval
	hub       *Hub
	logger    logger.Logger

	handler http.Handler
	server  *http.Server
	addr    net.Addr
}

// New validates deps and builds the router. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	errFactory := errors.New()

	switch {
	case deps.Logger == nil:
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "api: logger is required")
	case deps.Registry == nil:
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "api: device registry is required")
	case deps.Store == nil:
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "api: store is required")
	case deps.Collector == nil:
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "api: collector is required")
	case deps.Interval == nil:
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "api: interval accessor is required")
	}

	s := &Server{
		cfg:       deps.Config,
		registry:  deps.Registry,
		store:     deps.Store,
		collector: deps.Collector,
		interval:  deps.Interval,
		hub:       deps.Hub,
		logger:    deps.Logger.With("api"),
	}
	if s.hub == nil {
		s.hub = NewHub(s.logger)
	}
	s.handler = s.buildRouter()

	return s, nil
}

// Handler exposes the routed handler, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the stream hub so it can be registered as a sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listen address and serves in the background. Bind errors
// are returned; errors after that are logged.
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return errors.New().WithMessage(errors.ErrAlreadyRunning, "api server already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return errors.New().Wrap(errors.ErrServeHTTP, err)
	}
	s.addr = ln.Addr()

	s.server = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		// Requests outlive ctx so Close can drain them.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.logger.Info().Str("addr", s.addr.String()).Msg("API server listening")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.ErrorWithCode(errors.New().Wrap(errors.ErrServeHTTP, err)).Msg("API server stopped")
		}
	}()

	return nil
}

// Addr reports the bound address once Start succeeded.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Close disconnects stream clients and waits up to ten seconds for
// in-flight requests.
func (s *Server) Close() error {
	_ = s.hub.Close()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info().Msg("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}
