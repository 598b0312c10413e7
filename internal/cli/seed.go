package cli

import (
	"github.com/spf13/cobra"

	"ves-rate-watch/internal/app"
)

var seedDryRun bool

var seedCmd = &cobra.Command{
	Use:   "seed-history",
	Short: "Load the bundled historical dataset into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SeedOptions{
			DryRun: seedDryRun,
		}
		return getApp().SeedHistory(cmd.Context(), opts)
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedDryRun, "dry-run", false, "Print records without writing to storage")
}
