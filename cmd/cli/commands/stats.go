package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/helpboard/pkg/core/services"
)

// StatsCmd creates the stats command
func StatsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts by status and urgency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := services.TaskStats(app.Ctx, app.Database, services.SystemActor)
			if err != nil {
				return fmt.Errorf("failed to compute stats: %w", err)
			}

			writeStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}
