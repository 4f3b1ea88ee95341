// Package cmd implements the tenantsync CLI commands.
package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/opshub/tenantsync/pkg/logging"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var verbose bool

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

var rootCmd = &cobra.Command{
	Use:   "tenantsync",
	Short: "Reconcile customer identities across CRM, inventory, and access-tree systems",
	Long: `tenantsync compares the customer registry (CRM) against the tenant
inventory and the access-control tree, reports divergences, and applies
approved fixes: creating missing tenants, updating stale references, and
materializing tree paths.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI with the given context.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tenantsync %s (commit %s, built %s)\n", version, commit, date)
	},
}

// logger returns the process logger used by command bodies.
func logger() *zerolog.Logger {
	return logging.Default()
}
