package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	platformgrpc "github.com/louisbranch/homebook/internal/platform/grpc"
	"github.com/louisbranch/homebook/internal/platform/logging"
	"github.com/louisbranch/homebook/internal/platform/timeouts"
	"github.com/louisbranch/homebook/internal/services/instance/metrics"
)

// HealthService is the gRPC health service name of a running instance.
const HealthService = "homebook.v1.Instance"

// Config holds the listener settings of a Server.
type Config struct {
	GRPCPort int
	HTTPAddr string
	Instance Options
}

// Server hosts a HomeBook instance.
type Server struct {
	instance     *Instance
	logger       logrus.FieldLogger
	listener     net.Listener
	grpcServer   *grpc.Server
	health       *platformgrpc.Health
	httpListener net.Listener
	httpServer   *http.Server
}

// New binds the listeners and wires the instance. Health reports
// NOT_SERVING until the instance is running.
func New(cfg Config) (*Server, error) {
	logger := logging.OrDiscard(cfg.Instance.Logger)
	if cfg.Instance.Metrics == nil {
		cfg.Instance.Metrics = metrics.New()
	}
	inst, err := NewInstance(cfg.Instance)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", cfg.GRPCPort, err)
	}
	httpAddr := strings.TrimSpace(cfg.HTTPAddr)
	if httpAddr == "" {
		_ = listener.Close()
		return nil, fmt.Errorf("http address is required")
	}
	httpListener, err := net.Listen("tcp", httpAddr)
	if err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen on http addr %s: %w", httpAddr, err)
	}

	grpcServer := grpc.NewServer()
	healthServer := platformgrpc.NewHealth(HealthService)
	healthServer.Register(grpcServer)
	inst.OnReady(func() { healthServer.SetServing(true) })

	httpServer := &http.Server{
		Handler:           NewHandler(inst, cfg.Instance.Metrics.Handler(), logger),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	return &Server{
		instance:     inst,
		logger:       logger,
		listener:     listener,
		grpcServer:   grpcServer,
		health:       healthServer,
		httpListener: httpListener,
		httpServer:   httpServer,
	}, nil
}

// Addr returns the gRPC listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// HTTPAddr returns the HTTP listener address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Run creates and serves a server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	srv, err := New(cfg)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve starts the instance, then serves until it stops or the context ends.
// A failed startup pass closes the listeners and is returned.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.instance.Start(ctx); err != nil {
		_ = s.listener.Close()
		_ = s.httpListener.Close()
		return fmt.Errorf("start instance: %w", err)
	}

	s.logger.WithField("addr", s.listener.Addr().String()).Info("gRPC server listening")
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	s.logger.WithField("addr", s.httpListener.Addr().String()).Info("HTTP server listening")
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- s.httpServer.Serve(s.httpListener)
	}()

	handleErr := func(err error) error {
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
	shutdownGRPC := func() {
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	}
	shutdownHTTP := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Warn("http shutdown")
		}
	}

	select {
	case <-ctx.Done():
		shutdownGRPC()
		shutdownHTTP()
		return handleErr(<-serveErr)
	case err := <-serveErr:
		shutdownHTTP()
		return handleErr(err)
	case err := <-httpErr:
		shutdownGRPC()
		grpcErr := <-serveErr
		if errors.Is(err, http.ErrServerClosed) {
			return handleErr(grpcErr)
		}
		if handled := handleErr(grpcErr); handled != nil {
			return handled
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}
