package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	homebookcmd "github.com/louisbranch/homebook/internal/cmd/homebook"
	"github.com/louisbranch/homebook/internal/platform/config"
)

func main() {
	cfg, err := homebookcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := homebookcmd.Run(ctx, cfg); err != nil {
		config.Exitf("failed to serve: %v", err)
	}
}
