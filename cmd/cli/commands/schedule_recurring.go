package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/core/services"
)

// ScheduleRecurringCmd creates the scheduleRecurring command
func ScheduleRecurringCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduleRecurring",
		Short: "Create tasks for upcoming occurrences of the configured recurring tasks",
		Long:  "Create open tasks for each recurringTasks rule occurring in the next --days days. Occurrences already on the board are skipped, so this is safe to run from cron.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")

			app.Logger.Debug("scheduleRecurring command", zap.Int("days", days), zap.Int("rules", len(app.Cfg.RecurringTasks)))

			if len(app.Cfg.RecurringTasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "\nNo recurringTasks configured.")
				return nil
			}

			scheduled, err := services.ScheduleRecurring(app.Ctx, app.Database, app.Logger, app.Cfg.RecurringTasks, time.Now(), days)
			if err != nil {
				return fmt.Errorf("failed to schedule recurring tasks: %w", err)
			}

			out := cmd.OutOrStdout()
			created := 0
			fmt.Fprintf(out, "\n📅 Occurrences in the next %d days:\n\n", days)
			for _, s := range scheduled {
				mark := "·"
				if s.Created {
					mark = "✓"
					created++
				}
				fmt.Fprintf(out, "  %s %s\n", mark, s.Key)
			}
			fmt.Fprintf(out, "\n✅ Created %d new tasks (%d already existed)\n\n", created, len(scheduled)-created)

			return nil
		},
	}

	cmd.Flags().Int("days", services.DefaultScheduleDays, "How many days ahead to schedule")

	return cmd
}
