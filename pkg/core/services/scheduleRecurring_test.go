package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/internal/config"
	"github.com/jakechorley/helpboard/pkg/core/model"
)

func TestScheduleRecurring(t *testing.T) {
	// Wednesday
	now := time.Date(2025, 1, 1, 15, 30, 0, 0, time.UTC)
	rules := []config.RecurringTask{
		{
			Name:      "pantry",
			RRule:     "FREQ=WEEKLY;BYDAY=MO",
			Title:     "Stock the community pantry",
			Latitude:  floatPtr(30.6280),
			Longitude: floatPtr(-96.3344),
			SkillTags: []string{"food"},
		},
		{
			Name:    "wellness-round",
			RRule:   "FREQ=DAILY;INTERVAL=5",
			Title:   "Wellness round",
			Urgency: model.UrgencyHigh,
		},
	}

	store := newMockStore()
	scheduled, err := ScheduleRecurring(context.Background(), store, zap.NewNop(), rules, now, 14)
	require.NoError(t, err)

	keys := make([]string, 0, len(scheduled))
	for _, s := range scheduled {
		assert.True(t, s.Created, s.Key)
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{
		"pantry:2025-01-06",
		"pantry:2025-01-13",
		"wellness-round:2025-01-01",
		"wellness-round:2025-01-06",
		"wellness-round:2025-01-11",
	}, keys)

	var pantry *model.Task
	for _, task := range store.tasks {
		if task.RecurrenceKey == "pantry:2025-01-06" {
			pantry = task
		}
	}
	require.NotNil(t, pantry)
	assert.Equal(t, model.StatusOpen, pantry.Status)
	assert.Equal(t, model.UrgencyMedium, pantry.Urgency)
	assert.Equal(t, []string{"food"}, pantry.SkillTags)
	assert.True(t, pantry.HasCoordinates())
	assert.Equal(t, SystemActorID, pantry.CreatedBy)

	again, err := ScheduleRecurring(context.Background(), store, zap.NewNop(), rules, now, 14)
	require.NoError(t, err)
	require.Len(t, again, 5)
	for _, s := range again {
		assert.False(t, s.Created, s.Key)
	}
	assert.Len(t, store.tasks, 5)
}

func TestScheduleRecurring_Errors(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("days must be positive", func(t *testing.T) {
		_, err := ScheduleRecurring(context.Background(), newMockStore(), zap.NewNop(), nil, now, 0)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("invalid rrule", func(t *testing.T) {
		rules := []config.RecurringTask{{Name: "bad", RRule: "FREQ=SOMETIMES", Title: "x"}}
		_, err := ScheduleRecurring(context.Background(), newMockStore(), zap.NewNop(), rules, now, 7)
		assert.ErrorContains(t, err, "bad")
	})

	t.Run("store failure", func(t *testing.T) {
		store := newMockStore()
		store.insertTaskErr = errBackend
		rules := []config.RecurringTask{{Name: "daily", RRule: "FREQ=DAILY", Title: "x"}}
		_, err := ScheduleRecurring(context.Background(), store, zap.NewNop(), rules, now, 7)
		assert.ErrorIs(t, err, errBackend)
	})
}

func TestRecurrenceKey(t *testing.T) {
	assert.Equal(t, "pantry:2025-03-09", RecurrenceKey("pantry", time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC)))
}
