// Package main provides the entry point for the tenantsync CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/opshub/tenantsync/cmd/tenantsync/cmd"
	"github.com/opshub/tenantsync/pkg/logging"
)

// Version information populated by goreleaser.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd.SetVersionInfo(version, commit, date)
	if err := cmd.Execute(ctx); err != nil {
		logging.Default().Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
