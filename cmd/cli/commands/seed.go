package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/core/services"
)

// SeedCmd creates the seed command
func SeedCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load sample tasks and the badge catalogue",
		Long:  "Load sample tasks and the badge catalogue into an empty database. Use --force to add them even when data exists.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			app.Logger.Debug("seed command", zap.Bool("force", force))

			result, err := services.Seed(app.Ctx, app.Database, app.Logger, force)
			if err != nil {
				return fmt.Errorf("failed to seed database: %w", err)
			}

			out := cmd.OutOrStdout()
			if result.Skipped {
				fmt.Fprintln(out, "\nDatabase already has data, nothing seeded. Use --force to seed anyway.")
				return nil
			}

			fmt.Fprintf(out, "\n✅ Seeded %d tasks and %d badges\n\n", result.Tasks, result.Badges)
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Seed even if tasks or badges already exist")

	return cmd
}
