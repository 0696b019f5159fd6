// Package main runs one maintenance pass against a provisioned HomeBook
// instance, or reports its state with -status.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	maintenancecmd "github.com/louisbranch/homebook/internal/cmd/maintenance"
	"github.com/louisbranch/homebook/internal/platform/config"
)

func main() {
	cfg, err := maintenancecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if err := maintenancecmd.Run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		config.Exitf("maintenance failed: %v", err)
	}
}
