package cmd

import (
	"github.com/spf13/cobra"

	"github.com/opshub/tenantsync/pkg/recon"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Plan and apply all pending reconciliation actions",
	Long: `Runs a full reconciliation scan and immediately executes every pending
action it produces: creating missing tenants, updating stale references, and
materializing access-tree paths. Conflicting reference fields are never
overwritten; those actions finish as warnings instead.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		report := eng.planner.Plan(ctx, true)
		pending := report.Pending()
		if len(pending) == 0 {
			logger().Info().Msg("nothing to apply; systems are in sync")
			return printJSON(cmd, report.Summarize())
		}

		ids := make([]string, 0, len(pending))
		for _, a := range pending {
			ids = append(ids, a.ID)
		}

		outcomes := eng.executor.Execute(ctx, ids)

		var failed int
		for _, o := range outcomes {
			if o.Status == recon.StatusError {
				failed++
			}
		}
		logger().Info().
			Int("applied", len(outcomes)-failed).
			Int("failed", failed).
			Msg("apply complete")

		return printJSON(cmd, map[string]any{"results": outcomes})
	},
}
