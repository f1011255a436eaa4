package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jakechorley/helpboard/pkg/core/services"
)

// NotifyCoordinatorsCmd creates the notifyCoordinators command
func NotifyCoordinatorsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "notifyCoordinators",
		Short: "Email coordinators a digest of tasks awaiting review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mailer, err := app.GmailClient()
			if err != nil {
				return err
			}

			result, err := services.NotifyCoordinators(app.Ctx, app.Database, mailer, app.Logger, time.Now())
			if err != nil {
				return fmt.Errorf("failed to notify coordinators: %w", err)
			}

			out := cmd.OutOrStdout()
			if result.Pending == 0 {
				fmt.Fprintln(out, "\nReview queue is empty, no emails sent.")
				return nil
			}

			fmt.Fprintf(out, "\n%d tasks awaiting review\n\n", result.Pending)
			if len(result.Sent) > 0 {
				fmt.Fprintf(out, "Digest sent to %d coordinators:\n", len(result.Sent))
				for _, email := range result.Sent {
					fmt.Fprintf(out, "  ✓ %s\n", email)
				}
			}
			if len(result.Failed) > 0 {
				fmt.Fprintf(out, "⚠️  Failed to send %d emails:\n", len(result.Failed))
				for _, email := range result.Failed {
					fmt.Fprintf(out, "  ✗ %s\n", email)
				}
			}
			fmt.Fprintln(out)

			return nil
		},
	}
}
