package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/opshub/tenantsync/internal/server"
	"github.com/opshub/tenantsync/internal/snapshot"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides SERVER_ADDR)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync API server",
	Long: `Serves the reconciliation API: report generation, action approval, the
access-tree audit, and the source-change webhook. A background loop
refreshes the preview report on a fixed interval.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		addr := eng.cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		srv := server.New(eng.planner, eng.executor, eng.auditor, eng.store,
			snapshot.New(), eng.tree, server.Config{
				Addr:                 addr,
				WebhookStoresPending: eng.cfg.Server.WebhookStoresPending,
			})

		go scanLoop(ctx, eng)

		return srv.ListenAndServe(ctx)
	},
}

// scanLoop refreshes the preview report periodically so the status endpoint
// stays current between operator-triggered runs. Preview runs never touch
// the pending set, so a scheduled scan cannot invalidate approvals in
// flight.
func scanLoop(ctx context.Context, eng *engine) {
	interval := eng.cfg.ScanInterval
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eng.planner.Plan(ctx, false)
		}
	}
}
