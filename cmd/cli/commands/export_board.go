package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/core/services"
)

// ExportBoardCmd creates the exportBoard command
func ExportBoardCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "exportBoard",
		Short: "Export open tasks to a new tab of the board spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Cfg.BoardSheetID == "" {
				return fmt.Errorf("boardSheetID is not configured")
			}

			sheets, err := app.SheetsClient()
			if err != nil {
				return err
			}

			app.Logger.Debug("exportBoard command", zap.String("spreadsheet_id", app.Cfg.BoardSheetID))

			result, err := services.ExportBoard(app.Ctx, app.Database, sheets, app.Logger, app.Cfg.BoardSheetID, time.Now())
			if err != nil {
				return fmt.Errorf("failed to export board: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n✅ Exported %d open tasks to tab %q\n", result.Rows, result.SheetTitle)
			fmt.Fprintf(cmd.OutOrStdout(), "Sheet ID: %s\n\n", app.Cfg.BoardSheetID)
			return nil
		},
	}
}
