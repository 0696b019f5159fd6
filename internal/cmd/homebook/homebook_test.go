package homebook

import (
	"context"
	"flag"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"

	platformgrpc "github.com/louisbranch/homebook/internal/platform/grpc"
	server "github.com/louisbranch/homebook/internal/services/instance/app"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("homebook", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Root != "." {
		t.Fatalf("expected default root, got %q", cfg.Root)
	}
	if cfg.HTTPAddr != "localhost:8080" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.GRPCPort != 8081 {
		t.Fatalf("expected default grpc port 8081, got %d", cfg.GRPCPort)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level, got %q", cfg.LogLevel)
	}
	if cfg.HealthCheck || cfg.HealthTimeout != 5*time.Second {
		t.Fatalf("unexpected healthcheck defaults %+v", cfg)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("HOMEBOOK_LOG_LEVEL", "debug")
	t.Setenv("HOMEBOOK_HTTP_ADDR", "env-http")

	fs := flag.NewFlagSet("homebook", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-http-addr", "flag-http", "-grpc-port", "9000", "-root", "/srv/homebook"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-http" {
		t.Fatalf("expected flag http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.GRPCPort != 9000 {
		t.Fatalf("expected grpc port 9000, got %d", cfg.GRPCPort)
	}
	if cfg.Root != "/srv/homebook" {
		t.Fatalf("expected root override, got %q", cfg.Root)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected env log level, got %q", cfg.LogLevel)
	}
}

func TestCheckHealth(t *testing.T) {
	health := platformgrpc.NewHealth(server.HealthService)
	addr := startHealthServer(t, health)

	if err := CheckHealth(context.Background(), addr, 300*time.Millisecond, nil); err == nil {
		t.Fatal("expected not serving instance to fail the check")
	}

	health.SetServing(true)
	if err := CheckHealth(context.Background(), addr, 2*time.Second, nil); err != nil {
		t.Fatalf("check health: %v", err)
	}
}

func startHealthServer(t *testing.T, health *platformgrpc.Health) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)
	go func() { _ = grpcServer.Serve(listener) }()
	t.Cleanup(grpcServer.Stop)
	return listener.Addr().String()
}
