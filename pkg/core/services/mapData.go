package services

import (
	"context"
	"fmt"

	"github.com/jakechorley/helpboard/pkg/core/geo"
	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/db"
)

const heatmapIntensity = 0.8

// HeatPoint is a weighted map point
type HeatPoint struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Intensity float64 `json:"intensity"`
}

// MapTasks loads the statuses named by the filter and applies it. A radius
// without a center is measured from defaultCenter.
func MapTasks(ctx context.Context, store db.TaskStore, actor Actor, filter geo.Filter, defaultCenter geo.Point) ([]model.Task, error) {
	if err := requireCapability(actor, model.CanViewTasks); err != nil {
		return nil, err
	}

	if len(filter.Statuses) == 0 {
		filter.Statuses = geo.DefaultStatuses
	}
	if filter.Center == nil && filter.RadiusKm > 0 {
		center := defaultCenter
		filter.Center = &center
	}

	tasks, err := store.ListTasks(ctx, db.TaskQuery{Statuses: filter.Statuses})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return geo.FilterTasks(tasks, filter), nil
}

// ListOpenTasks is the board of claimable tasks
func ListOpenTasks(ctx context.Context, store db.TaskStore, actor Actor, filter geo.Filter, defaultCenter geo.Point) ([]model.Task, error) {
	filter.Statuses = []model.TaskStatus{model.StatusOpen}
	return MapTasks(ctx, store, actor, filter, defaultCenter)
}

// Heatmap returns one point per verified task with coordinates
func Heatmap(ctx context.Context, store db.TaskStore, actor Actor) ([]HeatPoint, error) {
	if err := requireCapability(actor, model.CanViewTasks); err != nil {
		return nil, err
	}

	tasks, err := store.ListTasks(ctx, db.TaskQuery{Statuses: []model.TaskStatus{model.StatusVerified}})
	if err != nil {
		return nil, fmt.Errorf("failed to list verified tasks: %w", err)
	}

	points := make([]HeatPoint, 0, len(tasks))
	for _, t := range tasks {
		p, ok := geo.TaskPoint(t)
		if !ok {
			continue
		}
		points = append(points, HeatPoint{Lat: p.Lat, Lng: p.Lng, Intensity: heatmapIntensity})
	}
	return points, nil
}
