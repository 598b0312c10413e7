package cli

import (
	"github.com/spf13/cobra"

	"ves-rate-watch/internal/app"
)

var refreshForce bool

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the latest rates once and print the snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.RefreshOptions{
			Force: refreshForce,
		}
		return getApp().Refresh(cmd.Context(), opts)
	},
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshForce, "force", false, "Bypass the background refresh cadence")
}
