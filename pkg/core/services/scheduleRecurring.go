package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/internal/config"
	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/db"
)

// DefaultScheduleDays is how far ahead scheduleRecurring looks by default
const DefaultScheduleDays = 14

// ScheduledTask is one occurrence considered by ScheduleRecurring
type ScheduledTask struct {
	Key     string
	Date    time.Time
	Created bool
}

// RecurrenceKey identifies one occurrence of a recurring rule
func RecurrenceKey(name string, date time.Time) string {
	return name + ":" + date.Format("2006-01-02")
}

// ScheduleRecurring creates an open task for every occurrence of each rule
// between now and now+days. Occurrences that already have a task are skipped,
// so running it repeatedly is safe.
func ScheduleRecurring(
	ctx context.Context,
	store db.TaskStore,
	logger *zap.Logger,
	rules []config.RecurringTask,
	now time.Time,
	days int,
) ([]ScheduledTask, error) {
	if days <= 0 {
		return nil, fieldError("days", "must be positive")
	}

	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, days)

	var scheduled []ScheduledTask
	for i, rule := range rules {
		dates, err := occurrences(rule.RRule, start, end)
		if err != nil {
			return scheduled, fmt.Errorf("failed to expand recurring task %d (%s): %w", i, rule.Name, err)
		}

		logger.Debug("Expanded recurring task",
			zap.String("name", rule.Name),
			zap.String("rrule", rule.RRule),
			zap.Int("occurrences", len(dates)))

		for _, date := range dates {
			key := RecurrenceKey(rule.Name, date)
			task := recurringTask(rule, key, now.UTC())

			err := store.InsertTask(ctx, task)
			if errors.Is(err, db.ErrDuplicate) {
				scheduled = append(scheduled, ScheduledTask{Key: key, Date: date})
				continue
			}
			if err != nil {
				return scheduled, fmt.Errorf("failed to create recurring task %s: %w", key, err)
			}

			logger.Info("Recurring task created", zap.String("key", key), zap.String("task_id", task.ID))
			scheduled = append(scheduled, ScheduledTask{Key: key, Date: date, Created: true})
		}
	}

	return scheduled, nil
}

// occurrences expands an rrule over [start, end). A rule without DTSTART is
// anchored at start.
func occurrences(ruleStr string, start, end time.Time) ([]time.Time, error) {
	opt, err := rrule.StrToROption(ruleStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rrule: %w", err)
	}
	if opt.Dtstart.IsZero() {
		opt.Dtstart = start
	}

	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("failed to build rrule: %w", err)
	}

	var dates []time.Time
	for _, t := range rule.Between(start, end, true) {
		if t.Equal(end) {
			continue
		}
		dates = append(dates, t)
	}
	return dates, nil
}

func recurringTask(rule config.RecurringTask, key string, now time.Time) *model.Task {
	urgency := rule.Urgency
	if urgency == "" {
		urgency = model.UrgencyMedium
	}
	tags := rule.SkillTags
	if tags == nil {
		tags = []string{}
	}

	return &model.Task{
		ID:            uuid.NewString(),
		Title:         rule.Title,
		Description:   rule.Description,
		Location:      rule.Location,
		Latitude:      rule.Latitude,
		Longitude:     rule.Longitude,
		Urgency:       urgency,
		SkillTags:     tags,
		Status:        model.StatusOpen,
		RecurrenceKey: key,
		CreatedBy:     SystemActorID,
		CreatedAt:     now,
	}
}
