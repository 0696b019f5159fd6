// Package grpc holds the gRPC health plumbing shared by HomeBook processes.
package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Health reports one serving status for the overall server and a fixed set
// of named services. It starts NOT_SERVING.
type Health struct {
	server   *health.Server
	services []string
}

// NewHealth returns a Health covering "" and services.
func NewHealth(services ...string) *Health {
	h := &Health{
		server:   health.NewServer(),
		services: append([]string{""}, services...),
	}
	h.SetServing(false)
	return h
}

// Register installs the health service on s.
func (h *Health) Register(s *gogrpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, h.server)
}

// SetServing flips every tracked service between SERVING and NOT_SERVING.
func (h *Health) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	for _, service := range h.services {
		h.server.SetServingStatus(service, status)
	}
}

// Shutdown reports NOT_SERVING for good and ignores later updates.
func (h *Health) Shutdown() {
	h.server.Shutdown()
}

// WaitForHealth blocks until the gRPC health check reports SERVING or the context ends.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logger logrus.FieldLogger) error {
	return WaitForStatus(ctx, conn, service, grpc_health_v1.HealthCheckResponse_SERVING, logger)
}

// WaitForStatus blocks until service reports want or the context ends.
func WaitForStatus(ctx context.Context, conn *gogrpc.ClientConn, service string, want grpc_health_v1.HealthCheckResponse_ServingStatus, logger logrus.FieldLogger) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	healthClient := grpc_health_v1.NewHealthClient(conn)
	backoff := 50 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		response, err := healthClient.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && response.GetStatus() == want {
			if logger != nil {
				logger.WithField("status", want.String()).Debug("gRPC health reached")
			}
			return nil
		}
		if logger != nil {
			entry := logger.WithField("want", want.String())
			if err != nil {
				entry.WithError(err).Debug("waiting for gRPC health")
			} else {
				entry.WithField("status", response.GetStatus().String()).Debug("waiting for gRPC health")
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for gRPC health: %w", ctx.Err())
		case <-time.After(backoff):
		}

		if backoff < time.Second {
			backoff *= 2
			if backoff > time.Second {
				backoff = time.Second
			}
		}
	}
}
