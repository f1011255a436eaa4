package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/core/geo"
	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/core/services"
)

// ListTasksCmd creates the listTasks command
func ListTasksCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listTasks",
		Short: "List tasks on the board",
		Long:  "List tasks, newest first. Without --status, shows open, pending and verified tasks.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := filterFromFlags(cmd)
			if err != nil {
				return err
			}

			app.Logger.Debug("listTasks command",
				zap.Int("statuses", len(filter.Statuses)),
				zap.Float64("radius_km", filter.RadiusKm))

			tasks, err := services.MapTasks(app.Ctx, app.Database, services.SystemActor, filter, app.Cfg.Center())
			if err != nil {
				return fmt.Errorf("failed to list tasks: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\nFound %d tasks:\n\n", len(tasks))
			writeTaskTable(out, tasks)
			fmt.Fprintln(out)

			return nil
		},
	}

	cmd.Flags().StringSlice("status", nil, "Statuses to include (open, claimed, completed, pending, verified, flagged)")
	cmd.Flags().StringSlice("urgency", nil, "Urgencies to include (low, medium, high, critical)")
	cmd.Flags().StringSlice("skill", nil, "Only tasks with one of these skill tags")
	cmd.Flags().Float64("lat", 0, "Latitude of the search center (requires --lng)")
	cmd.Flags().Float64("lng", 0, "Longitude of the search center (requires --lat)")
	cmd.Flags().Float64("radius", 0, "Radius in km around the center; 0 disables the distance filter")

	return cmd
}

func filterFromFlags(cmd *cobra.Command) (geo.Filter, error) {
	var filter geo.Filter

	statuses, _ := cmd.Flags().GetStringSlice("status")
	for _, s := range statuses {
		status := model.TaskStatus(strings.ToLower(strings.TrimSpace(s)))
		if !status.IsValid() {
			return filter, fmt.Errorf("unknown status %q", s)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	urgencies, _ := cmd.Flags().GetStringSlice("urgency")
	for _, u := range urgencies {
		urgency := model.Urgency(strings.ToLower(strings.TrimSpace(u)))
		if !urgency.IsValid() {
			return filter, fmt.Errorf("unknown urgency %q", u)
		}
		filter.Urgencies = append(filter.Urgencies, urgency)
	}

	if skills, _ := cmd.Flags().GetStringSlice("skill"); len(skills) > 0 {
		filter.SkillTags = skills
	}

	latSet, lngSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lng")
	if latSet != lngSet {
		return filter, fmt.Errorf("--lat and --lng must be given together")
	}
	if latSet {
		lat, _ := cmd.Flags().GetFloat64("lat")
		lng, _ := cmd.Flags().GetFloat64("lng")
		filter.Center = &geo.Point{Lat: lat, Lng: lng}
	}

	filter.RadiusKm, _ = cmd.Flags().GetFloat64("radius")
	if filter.RadiusKm < 0 {
		return filter, fmt.Errorf("--radius must not be negative")
	}

	return filter, nil
}
