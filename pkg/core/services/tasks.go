package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/db"
)

// TaskInput is the caller-supplied part of a new task
type TaskInput struct {
	Title           string        `json:"title" validate:"required,max=200"`
	Description     string        `json:"description" validate:"max=2000"`
	Location        string        `json:"location" validate:"max=200"`
	Latitude        *float64      `json:"latitude" validate:"omitempty,latitude"`
	Longitude       *float64      `json:"longitude" validate:"omitempty,longitude"`
	Urgency         model.Urgency `json:"urgency" validate:"required,oneof=low medium high critical"`
	SkillTags       []string      `json:"skill_tags" validate:"max=10,dive,skilltag"`
	WellnessCheck   bool          `json:"wellness_check"`
	MedicalPriority string        `json:"medical_priority" validate:"max=200"`
	Image           *model.Image  `json:"-" validate:"-"`
}

// normalize trims text, lower-cases and de-duplicates skill tags and
// defaults the urgency to medium
func (in *TaskInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.MedicalPriority = strings.TrimSpace(in.MedicalPriority)
	in.Urgency = model.Urgency(strings.ToLower(strings.TrimSpace(string(in.Urgency))))
	if in.Urgency == "" {
		in.Urgency = model.UrgencyMedium
	}

	seen := make(map[string]bool, len(in.SkillTags))
	tags := make([]string, 0, len(in.SkillTags))
	for _, tag := range in.SkillTags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	in.SkillTags = tags
}

// Validate normalizes the input and checks it
func (in *TaskInput) Validate() error {
	in.normalize()
	if err := validate.Struct(in); err != nil {
		return fromValidator(err)
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return fieldError("latitude", "and longitude must be provided together")
	}
	return nil
}

func (in *TaskInput) task(status model.TaskStatus, creator string, now time.Time) *model.Task {
	return &model.Task{
		ID:              uuid.NewString(),
		Title:           in.Title,
		Description:     in.Description,
		Location:        in.Location,
		Latitude:        in.Latitude,
		Longitude:       in.Longitude,
		Urgency:         in.Urgency,
		SkillTags:       in.SkillTags,
		Status:          status,
		WellnessCheck:   in.WellnessCheck,
		MedicalPriority: in.MedicalPriority,
		CreatedBy:       creator,
		CreatedAt:       now,
	}
}

func requireTaskFlags(actor Actor, in *TaskInput) error {
	if err := requireCapability(actor, model.CanCreateTasks); err != nil {
		return err
	}
	if in.WellnessCheck {
		if err := requireCapability(actor, model.CanMarkWellnessCheck); err != nil {
			return err
		}
	}
	if strings.TrimSpace(in.MedicalPriority) != "" {
		if err := requireCapability(actor, model.CanLogMedicalTasks); err != nil {
			return err
		}
	}
	return nil
}

// CreateTask posts a new open task. A reference image that fails to upload is
// dropped with a warning and the task is created without it.
func CreateTask(
	ctx context.Context,
	store db.TaskStore,
	images *Images,
	logger *zap.Logger,
	actor Actor,
	input TaskInput,
) (*model.Task, error) {
	if err := requireTaskFlags(actor, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if input.Image != nil {
		if err := images.Validate("image", input.Image); err != nil {
			return nil, err
		}
	}

	task := input.task(model.StatusOpen, actor.ID, time.Now().UTC())

	if input.Image != nil {
		_, url, err := images.upload(ctx, actor.ID, *input.Image)
		if err != nil {
			logger.Warn("Reference image upload failed, creating task without it",
				zap.String("task_id", task.ID),
				zap.Error(err))
		} else {
			task.ImageURL = url
		}
	}

	if err := store.InsertTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	logger.Info("Task created",
		zap.String("task_id", task.ID),
		zap.String("created_by", actor.ID),
		zap.String("urgency", string(task.Urgency)))

	return task, nil
}

// SubmitTask records self-reported finished work as a task awaiting review
func SubmitTask(
	ctx context.Context,
	store db.TaskStore,
	images *Images,
	logger *zap.Logger,
	actor Actor,
	input TaskInput,
) (*model.Task, error) {
	if err := requireTaskFlags(actor, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if input.Image != nil {
		if err := images.Validate("image", input.Image); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	task := input.task(model.StatusPending, actor.ID, now)
	task.VolunteerID = actor.ID
	task.SubmittedAt = &now

	if input.Image != nil {
		_, url, err := images.upload(ctx, actor.ID, *input.Image)
		if err != nil {
			return nil, err
		}
		task.ImageURL = url
	}

	if err := store.InsertTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to submit task: %w", err)
	}

	logger.Info("Task submitted for review",
		zap.String("task_id", task.ID),
		zap.String("volunteer_id", actor.ID))

	return task, nil
}

// ClaimTask assigns an open task to the actor. Of two concurrent claims at
// most one succeeds; the other gets ErrClaimConflict.
func ClaimTask(ctx context.Context, store db.TaskStore, logger *zap.Logger, actor Actor, taskID string) (*model.Task, error) {
	if err := requireCapability(actor, model.CanClaimTasks); err != nil {
		return nil, err
	}

	claimed, err := store.ClaimTask(ctx, taskID, actor.ID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	if !claimed {
		if _, err := store.GetTask(ctx, taskID); err != nil {
			return nil, err
		}
		logger.Info("Claim lost", zap.String("task_id", taskID), zap.String("user_id", actor.ID))
		return nil, ErrClaimConflict
	}

	logger.Info("Task claimed", zap.String("task_id", taskID), zap.String("user_id", actor.ID))

	return store.GetTask(ctx, taskID)
}

// CompleteTask uploads proof for a task the actor claimed and moves it to
// completed. An upload orphaned by a failed update is logged, not removed.
func CompleteTask(
	ctx context.Context,
	store db.TaskStore,
	images *Images,
	logger *zap.Logger,
	actor Actor,
	taskID string,
	proof *model.Image,
) (*model.Task, error) {
	if err := requireCapability(actor, model.CanClaimTasks); err != nil {
		return nil, err
	}
	if proof == nil {
		return nil, ErrProofRequired
	}
	if err := images.Validate("proof", proof); err != nil {
		return nil, err
	}

	task, err := store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.StatusClaimed || task.ClaimedBy != actor.ID {
		return nil, ErrNotClaimant
	}

	key, url, err := images.upload(ctx, actor.ID, *proof)
	if err != nil {
		return nil, err
	}

	completed, err := store.CompleteTask(ctx, taskID, actor.ID, url, time.Now().UTC())
	if err != nil {
		logger.Warn("Proof upload orphaned", zap.String("task_id", taskID), zap.String("key", key))
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}
	if !completed {
		logger.Warn("Proof upload orphaned", zap.String("task_id", taskID), zap.String("key", key))
		return nil, ErrNotClaimant
	}

	logger.Info("Task completed", zap.String("task_id", taskID), zap.String("volunteer_id", actor.ID))

	return store.GetTask(ctx, taskID)
}

// VerifyStore is the storage VerifyTask needs
type VerifyStore interface {
	db.TaskStore
	db.BadgeStore
}

// VerifyTask records a reviewer decision on a task awaiting review. Verified
// tasks re-evaluate the volunteer's badges; award failures are only logged.
func VerifyTask(
	ctx context.Context,
	store VerifyStore,
	logger *zap.Logger,
	actor Actor,
	taskID string,
	decision model.TaskStatus,
) (*model.Task, error) {
	if err := requireCapability(actor, model.CanVerifyTasks); err != nil {
		return nil, err
	}
	if decision != model.StatusVerified && decision != model.StatusFlagged {
		return nil, fieldError("status", "must be verified or flagged")
	}

	changed, err := store.VerifyTask(ctx, taskID, actor.ID, decision, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to verify task: %w", err)
	}
	if !changed {
		if _, err := store.GetTask(ctx, taskID); err != nil {
			return nil, err
		}
		return nil, ErrNotAwaitingReview
	}

	task, err := store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	logger.Info("Task reviewed",
		zap.String("task_id", taskID),
		zap.String("reviewer_id", actor.ID),
		zap.String("decision", string(decision)))

	if decision == model.StatusVerified && task.VolunteerID != "" {
		if _, err := AwardBadges(ctx, store, logger, task.VolunteerID); err != nil {
			logger.Error("Failed to award badges",
				zap.String("volunteer_id", task.VolunteerID),
				zap.Error(err))
		}
	}

	return task, nil
}

// GetTask returns a single task
func GetTask(ctx context.Context, store db.TaskStore, actor Actor, taskID string) (*model.Task, error) {
	if err := requireCapability(actor, model.CanViewTasks); err != nil {
		return nil, err
	}
	return store.GetTask(ctx, taskID)
}

// ListUserTasks returns tasks the actor claimed or volunteered on, newest first
func ListUserTasks(ctx context.Context, store db.TaskStore, actor Actor) ([]model.Task, error) {
	if err := requireCapability(actor, model.CanViewTasks); err != nil {
		return nil, err
	}
	tasks, err := store.ListTasks(ctx, db.TaskQuery{InvolvingUser: actor.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to list user tasks: %w", err)
	}
	return tasks, nil
}

// ListReviewQueue returns tasks awaiting review, oldest submission first
func ListReviewQueue(ctx context.Context, store db.TaskStore, actor Actor) ([]model.Task, error) {
	if err := requireCapability(actor, model.CanAccessAdmin); err != nil {
		return nil, err
	}
	tasks, err := store.ListTasks(ctx, db.TaskQuery{
		Statuses: []model.TaskStatus{model.StatusCompleted, model.StatusPending},
		Order:    db.OldestSubmissionFirst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list review queue: %w", err)
	}
	return tasks, nil
}

// Stats summarises the board
type Stats struct {
	Total            int                      `json:"total"`
	ByStatus         map[model.TaskStatus]int `json:"by_status"`
	ByUrgency        map[model.Urgency]int    `json:"by_urgency"`
	ActiveVolunteers int                      `json:"active_volunteers"`
	WellnessChecks   int                      `json:"wellness_checks"`
}

// TaskStats counts tasks by status and urgency
func TaskStats(ctx context.Context, store db.TaskStore, actor Actor) (*Stats, error) {
	if err := requireCapability(actor, model.CanViewStats); err != nil {
		return nil, err
	}

	tasks, err := store.ListTasks(ctx, db.TaskQuery{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	stats := &Stats{
		Total:     len(tasks),
		ByStatus:  make(map[model.TaskStatus]int, len(model.TaskStatuses)),
		ByUrgency: make(map[model.Urgency]int, len(model.Urgencies)),
	}
	for _, s := range model.TaskStatuses {
		stats.ByStatus[s] = 0
	}
	for _, u := range model.Urgencies {
		stats.ByUrgency[u] = 0
	}

	volunteers := make(map[string]bool)
	for _, t := range tasks {
		stats.ByStatus[t.Status]++
		stats.ByUrgency[t.Urgency]++
		if t.WellnessCheck {
			stats.WellnessChecks++
		}
		if t.Status == model.StatusVerified && t.VolunteerID != "" {
			volunteers[t.VolunteerID] = true
		}
	}
	stats.ActiveVolunteers = len(volunteers)

	return stats, nil
}

// IsConflict reports whether err is one of the lifecycle conflicts
func IsConflict(err error) bool {
	return errors.Is(err, ErrClaimConflict) || errors.Is(err, ErrNotClaimant) || errors.Is(err, ErrNotAwaitingReview)
}
