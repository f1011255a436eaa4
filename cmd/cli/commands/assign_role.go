package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/core/services"
)

// AssignRoleCmd creates the assignRole command. It runs with coordinator
// rights, which makes it the way to appoint the first coordinator.
func AssignRoleCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "assignRole <user_id> <role>",
		Short: "Set a user's role (coordinator, scout, medic, communicator, volunteer)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, role := args[0], args[1]

			app.Logger.Debug("assignRole command", zap.String("user_id", userID), zap.String("role", role))

			profile, err := services.AssignRole(app.Ctx, app.Database, app.Logger, services.SystemActor, userID, role)
			if err != nil {
				return fmt.Errorf("failed to assign role: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n✅ %s (%s) is now a %s\n\n", displayName(profile.Name, profile.Email), profile.ID, profile.Role)
			return nil
		},
	}
}
