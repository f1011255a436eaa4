package model

import (
	"io"
	"slices"
	"strings"
	"time"
)

type Role string

const (
	RoleCoordinator  Role = "coordinator"
	RoleScout        Role = "scout"
	RoleMedic        Role = "medic"
	RoleCommunicator Role = "communicator"
	RoleVolunteer    Role = "volunteer"
)

// Roles lists every role in display order
var Roles = []Role{RoleCoordinator, RoleScout, RoleMedic, RoleCommunicator, RoleVolunteer}

func (r Role) IsValid() bool {
	return slices.Contains(Roles, r)
}

// ParseRole maps a stored or user-supplied role name to a Role.
// Unrecognised values fall back to volunteer.
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r.IsValid() {
		return r
	}
	return RoleVolunteer
}

type Capability string

const (
	CanViewTasks         Capability = "canViewTasks"
	CanCreateTasks       Capability = "canCreateTasks"
	CanClaimTasks        Capability = "canClaimTasks"
	CanMarkWellnessCheck Capability = "canMarkWellnessCheck"
	CanLogMedicalTasks   Capability = "canLogMedicalTasks"
	CanAccessAdmin       Capability = "canAccessAdmin"
	CanVerifyTasks       Capability = "canVerifyTasks"
	CanViewStats         Capability = "canViewStats"
	CanManageUsers       Capability = "canManageUsers"
)

// Capabilities lists every capability in permission table order
var Capabilities = []Capability{
	CanViewTasks,
	CanCreateTasks,
	CanClaimTasks,
	CanMarkWellnessCheck,
	CanLogMedicalTasks,
	CanAccessAdmin,
	CanVerifyTasks,
	CanViewStats,
	CanManageUsers,
}

type TaskStatus string

const (
	StatusOpen      TaskStatus = "open"
	StatusClaimed   TaskStatus = "claimed"
	StatusCompleted TaskStatus = "completed"
	StatusPending   TaskStatus = "pending"
	StatusVerified  TaskStatus = "verified"
	StatusFlagged   TaskStatus = "flagged"
)

// TaskStatuses lists every task status
var TaskStatuses = []TaskStatus{StatusOpen, StatusClaimed, StatusCompleted, StatusPending, StatusVerified, StatusFlagged}

func (s TaskStatus) IsValid() bool {
	return slices.Contains(TaskStatuses, s)
}

// AwaitingReview reports whether a coordinator still has to verify or flag the task
func (s TaskStatus) AwaitingReview() bool {
	return s == StatusCompleted || s == StatusPending
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Urgencies lists urgencies from least to most urgent
var Urgencies = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical}

func (u Urgency) IsValid() bool {
	return slices.Contains(Urgencies, u)
}

// Task is a unit of community work tracked through its lifecycle
type Task struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Location        string     `json:"location"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	Urgency         Urgency    `json:"urgency"`
	SkillTags       []string   `json:"skill_tags"`
	Status          TaskStatus `json:"status"`
	WellnessCheck   bool       `json:"wellness_check"`
	MedicalPriority string     `json:"medical_priority,omitempty"`
	CreatedBy       string     `json:"created_by,omitempty"`
	ClaimedBy       string     `json:"claimed_by,omitempty"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	VolunteerID     string     `json:"volunteer_id,omitempty"`
	ImageURL        string     `json:"image_url,omitempty"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	Verified        *bool      `json:"verified,omitempty"`
	VerifiedBy      string     `json:"verified_by,omitempty"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	RecurrenceKey   string     `json:"recurrence_key,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// HasCoordinates reports whether both latitude and longitude are set
func (t Task) HasCoordinates() bool {
	return t.Latitude != nil && t.Longitude != nil
}

// HasSkillTag reports whether the task carries the given tag (case-insensitive)
func (t Task) HasSkillTag(tag string) bool {
	for _, s := range t.SkillTags {
		if strings.EqualFold(s, tag) {
			return true
		}
	}
	return false
}

// Profile is the application-level record for an identity
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BadgeCriteria string

const (
	CriteriaTaskCount BadgeCriteria = "task_count"
	CriteriaSkillTag  BadgeCriteria = "skill_tag"
	CriteriaUrgency   BadgeCriteria = "urgency"
)

func (c BadgeCriteria) IsValid() bool {
	return c == CriteriaTaskCount || c == CriteriaSkillTag || c == CriteriaUrgency
}

// Badge is an achievement definition. CriteriaTarget names the skill tag or
// urgency counted by skill_tag and urgency badges and is empty for task_count.
type Badge struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Icon           string        `json:"icon"`
	Criteria       string        `json:"criteria"`
	CriteriaType   BadgeCriteria `json:"criteria_type"`
	CriteriaTarget string        `json:"criteria_target,omitempty"`
	CriteriaValue  int           `json:"criteria_value"`
}

// UserBadge records that a user earned a badge
type UserBadge struct {
	UserID   string    `json:"user_id"`
	BadgeID  string    `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}

// Image is an uploaded file on its way to object storage
type Image struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}
