package db

import (
	"context"
	"errors"
	"time"

	"github.com/jakechorley/helpboard/pkg/core/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique constraint
	ErrDuplicate = errors.New("duplicate record")
)

// TaskOrder selects the sort order for ListTasks
type TaskOrder int

const (
	// NewestFirst orders by created_at descending
	NewestFirst TaskOrder = iota
	// OldestSubmissionFirst orders by submitted_at ascending (review queue)
	OldestSubmissionFirst
)

// TaskQuery narrows ListTasks. Zero values mean no constraint.
type TaskQuery struct {
	Statuses []model.TaskStatus
	// InvolvingUser matches tasks the user claimed or completed
	InvolvingUser string
	VolunteerID   string
	Order         TaskOrder
	Limit         int
}

// TaskStore defines the task operations. The claim, complete and verify
// updates are conditional and report whether a row changed.
type TaskStore interface {
	InsertTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, q TaskQuery) ([]model.Task, error)
	ClaimTask(ctx context.Context, id, userID string, at time.Time) (bool, error)
	CompleteTask(ctx context.Context, id, userID, imageURL string, at time.Time) (bool, error)
	VerifyTask(ctx context.Context, id, reviewerID string, status model.TaskStatus, at time.Time) (bool, error)
}

// ProfileStore defines the profile operations
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	InsertProfile(ctx context.Context, profile *model.Profile) error
	UpdateProfileName(ctx context.Context, id, name string) error
	UpdateProfileRole(ctx context.Context, id string, role model.Role) error
	ListProfilesByRole(ctx context.Context, role model.Role) ([]model.Profile, error)
}

// BadgeStore defines badge definitions and awards
type BadgeStore interface {
	ListBadges(ctx context.Context) ([]model.Badge, error)
	InsertBadge(ctx context.Context, badge *model.Badge) error
	ListUserBadges(ctx context.Context, userID string) ([]model.UserBadge, error)
	// AwardBadge records an award and reports whether it was new. Awarding an
	// already earned badge is a no-op returning false.
	AwardBadge(ctx context.Context, award *model.UserBadge) (bool, error)
}

// IdentityStore holds sign-in credentials
type IdentityStore interface {
	InsertIdentity(ctx context.Context, identity *Identity) error
	GetIdentityByEmail(ctx context.Context, email string) (*Identity, error)
}

// Database defines the interface for all database operations.
// Both postgres.DB and sqlite.DB implement this interface.
type Database interface {
	TaskStore
	ProfileStore
	BadgeStore
	IdentityStore
	RunMigrations(ctx context.Context) error
	Close()
}
