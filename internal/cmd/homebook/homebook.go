// Package homebook parses server command flags and starts the instance.
package homebook

import (
	"context"
	"flag"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/louisbranch/homebook/internal/platform/buildinfo"
	entrypoint "github.com/louisbranch/homebook/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/homebook/internal/platform/grpc"
	"github.com/louisbranch/homebook/internal/platform/logging"
	server "github.com/louisbranch/homebook/internal/services/instance/app"
	"github.com/louisbranch/homebook/internal/services/instance/envconfig"
	"github.com/louisbranch/homebook/internal/services/instance/metrics"
)

// Config holds server command configuration.
type Config struct {
	Root     string `env:"HOMEBOOK_ROOT" envDefault:"."`
	HTTPAddr string `env:"HOMEBOOK_HTTP_ADDR" envDefault:"localhost:8080"`
	GRPCPort int    `env:"HOMEBOOK_GRPC_PORT" envDefault:"8081"`
	LogLevel string `env:"HOMEBOOK_LOG_LEVEL" envDefault:"info"`

	HealthCheck   bool
	HealthTimeout time.Duration `env:"HOMEBOOK_HEALTHCHECK_TIMEOUT" envDefault:"5s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	fs.StringVar(&cfg.Root, "root", "", "The instance root directory")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", "", "The HTTP server address")
	fs.IntVar(&cfg.GRPCPort, "grpc-port", 0, "The gRPC health server port")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "The log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.HealthCheck, "healthcheck", false, "Probe the local gRPC health endpoint and exit")
	fs.DurationVar(&cfg.HealthTimeout, "healthcheck-timeout", 0, "How long -healthcheck waits for SERVING")
	if err := entrypoint.ParseConfigFromArgs(&cfg, fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run loads the instance environment and serves until ctx ends. With
// HealthCheck set it only probes a running server.
func Run(ctx context.Context, cfg Config) error {
	logger := logging.New(entrypoint.ServiceHomebook, cfg.LogLevel)
	if cfg.HealthCheck {
		addr := net.JoinHostPort("localhost", strconv.Itoa(cfg.GRPCPort))
		return CheckHealth(ctx, addr, cfg.HealthTimeout, logger)
	}
	env, err := envconfig.ForRoot(cfg.Root)
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceHomebook, entrypoint.RunOptions{Logger: logger}, func(ctx context.Context) error {
		return server.Run(ctx, server.Config{
			GRPCPort: cfg.GRPCPort,
			HTTPAddr: cfg.HTTPAddr,
			Instance: server.Options{
				Root:    cfg.Root,
				Version: buildinfo.Version,
				Env:     env,
				Logger:  logger,
				Metrics: metrics.New(),
			},
		})
	})
}

// CheckHealth waits until the server at addr reports the instance SERVING.
func CheckHealth(ctx context.Context, addr string, timeout time.Duration, logger logrus.FieldLogger) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return platformgrpc.WaitForHealth(ctx, conn, server.HealthService, logger)
}
