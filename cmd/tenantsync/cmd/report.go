package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compare systems and print the reconciliation report",
	Long: `Fetches the active customers from the CRM and the tenants from the
inventory, matches them through the identity cascade, and prints what a sync
would do. The run is a preview: nothing is stored and nothing is changed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}

		report := eng.planner.Plan(cmd.Context(), false)
		return printJSON(cmd, report)
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return nil
}
