// Package geo holds great-circle distance and the task board filter.
package geo

import (
	"math"
	"slices"
	"sort"

	"github.com/jakechorley/helpboard/pkg/core/model"
)

// EarthRadiusKm is the mean Earth radius used for haversine distances
const EarthRadiusKm = 6371.0

// Point is a latitude/longitude pair in degrees
type Point struct {
	Lat float64 `json:"lat" yaml:"lat" validate:"latitude"`
	Lng float64 `json:"lng" yaml:"lng" validate:"longitude"`
}

// DefaultCenter is used when the caller supplies no reference location
var DefaultCenter = Point{Lat: 30.6280, Lng: -96.3344}

// DefaultStatuses are the statuses shown when a filter names none
var DefaultStatuses = []model.TaskStatus{model.StatusPending, model.StatusVerified, model.StatusOpen}

// Distance returns the haversine distance between a and b in kilometres
func Distance(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// TaskPoint returns the task's coordinates, or false if it has none
func TaskPoint(t model.Task) (Point, bool) {
	if !t.HasCoordinates() {
		return Point{}, false
	}
	return Point{Lat: *t.Latitude, Lng: *t.Longitude}, true
}

// Filter selects tasks for the board and map.
// The radius check only runs when Center is set and RadiusKm is positive.
// When it runs, tasks without coordinates are always dropped.
type Filter struct {
	Statuses  []model.TaskStatus
	Urgencies []model.Urgency
	SkillTags []string
	Center    *Point
	RadiusKm  float64
}

// FilterTasks applies f to tasks and returns matches newest first.
// The input slice is not modified.
func FilterTasks(tasks []model.Task, f Filter) []model.Task {
	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = DefaultStatuses
	}

	result := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if !slices.Contains(statuses, t.Status) {
			continue
		}
		if len(f.Urgencies) > 0 && !slices.Contains(f.Urgencies, t.Urgency) {
			continue
		}
		if len(f.SkillTags) > 0 && !sharesTag(t, f.SkillTags) {
			continue
		}
		if f.Center != nil && f.RadiusKm > 0 && !withinRadius(t, *f.Center, f.RadiusKm) {
			continue
		}
		result = append(result, t)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result
}

func sharesTag(t model.Task, tags []string) bool {
	for _, tag := range tags {
		if t.HasSkillTag(tag) {
			return true
		}
	}
	return false
}

func withinRadius(t model.Task, center Point, radiusKm float64) bool {
	p, ok := TaskPoint(t)
	if !ok {
		return false
	}
	return Distance(center, p) <= radiusKm
}
