package cmd

import (
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Cross-check inventory devices against access-tree assets",
	Long: `Lists active devices from the inventory and connectable assets from the
access tree, then reports devices whose primary IP has no asset or whose
asset sits under the wrong tenant node.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}

		report, err := eng.auditor.Audit(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}
