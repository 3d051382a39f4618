package cli

import (
	"github.com/spf13/cobra"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run every pass a single time and print a report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Once(cmd.Context(), cmd.OutOrStdout())
	},
}
