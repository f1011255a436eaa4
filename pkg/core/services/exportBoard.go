package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/db"
)

// BoardWriter writes rows to a spreadsheet
type BoardWriter interface {
	CreateSheet(ctx context.Context, spreadsheetID, title string) (int64, error)
	AppendRows(ctx context.Context, spreadsheetID, writeRange string, values [][]interface{}) error
}

var boardHeader = []interface{}{
	"ID", "Title", "Urgency", "Skills", "Location", "Latitude", "Longitude", "Wellness check", "Posted",
}

// ExportResult reports the tab written by ExportBoard
type ExportResult struct {
	SheetTitle string
	Rows       int
}

// BoardSheetTitle is the tab name for an export on the given day
func BoardSheetTitle(now time.Time) string {
	return "Open tasks " + now.UTC().Format("2006-01-02")
}

// ExportBoard writes every open task to a new tab of the spreadsheet
func ExportBoard(
	ctx context.Context,
	store db.TaskStore,
	writer BoardWriter,
	logger *zap.Logger,
	spreadsheetID string,
	now time.Time,
) (*ExportResult, error) {
	if spreadsheetID == "" {
		return nil, fieldError("boardSheetID", "is required")
	}

	tasks, err := store.ListTasks(ctx, db.TaskQuery{Statuses: []model.TaskStatus{model.StatusOpen}})
	if err != nil {
		return nil, fmt.Errorf("failed to list open tasks: %w", err)
	}

	title := BoardSheetTitle(now)
	if _, err := writer.CreateSheet(ctx, spreadsheetID, title); err != nil {
		return nil, fmt.Errorf("failed to create sheet %q: %w", title, err)
	}

	rows := make([][]interface{}, 0, len(tasks)+1)
	rows = append(rows, boardHeader)
	for _, t := range tasks {
		rows = append(rows, boardRow(t))
	}

	if err := writer.AppendRows(ctx, spreadsheetID, fmt.Sprintf("'%s'!A1", title), rows); err != nil {
		return nil, fmt.Errorf("failed to write board: %w", err)
	}

	logger.Info("Board exported",
		zap.String("sheet", title),
		zap.Int("tasks", len(tasks)))

	return &ExportResult{SheetTitle: title, Rows: len(tasks)}, nil
}

func boardRow(t model.Task) []interface{} {
	lat, lng := "", ""
	if t.HasCoordinates() {
		lat = strconv.FormatFloat(*t.Latitude, 'f', 6, 64)
		lng = strconv.FormatFloat(*t.Longitude, 'f', 6, 64)
	}
	wellness := ""
	if t.WellnessCheck {
		wellness = "yes"
	}
	return []interface{}{
		t.ID,
		t.Title,
		string(t.Urgency),
		strings.Join(t.SkillTags, ", "),
		t.Location,
		lat,
		lng,
		wellness,
		t.CreatedAt.UTC().Format("2006-01-02 15:04"),
	}
}
