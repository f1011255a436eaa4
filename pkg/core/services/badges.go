package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/db"
)

type BadgeFilter string

const (
	BadgeFilterAll       BadgeFilter = "all"
	BadgeFilterEarned    BadgeFilter = "earned"
	BadgeFilterAvailable BadgeFilter = "available"
)

// ParseBadgeFilter maps a query value to a filter, defaulting to all
func ParseBadgeFilter(s string) (BadgeFilter, error) {
	switch f := BadgeFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return BadgeFilterAll, nil
	case BadgeFilterAll, BadgeFilterEarned, BadgeFilterAvailable:
		return f, nil
	default:
		return "", fieldError("filter", "must be one of: all earned available")
	}
}

// Progress is a user's standing against one badge
type Progress struct {
	Badge    model.Badge `json:"badge"`
	Progress int         `json:"progress"`
	IsEarned bool        `json:"is_earned"`
	EarnedAt *time.Time  `json:"earned_at,omitempty"`
}

// BadgeStore is the storage badge evaluation needs
type BadgeStore interface {
	db.BadgeStore
	ListTasks(ctx context.Context, q db.TaskQuery) ([]model.Task, error)
}

// BadgeProgress evaluates every badge for userID against their verified tasks
func BadgeProgress(ctx context.Context, store BadgeStore, userID string, filter BadgeFilter) ([]Progress, error) {
	all, err := evaluateBadges(ctx, store, userID)
	if err != nil {
		return nil, err
	}

	if filter == BadgeFilterAll || filter == "" {
		return all, nil
	}

	filtered := make([]Progress, 0, len(all))
	for _, p := range all {
		if p.IsEarned == (filter == BadgeFilterEarned) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// AwardBadges records awards for thresholds the user has newly reached and
// returns the badges awarded
func AwardBadges(ctx context.Context, store BadgeStore, logger *zap.Logger, userID string) ([]model.Badge, error) {
	progress, err := evaluateBadges(ctx, store, userID)
	if err != nil {
		return nil, err
	}

	var awarded []model.Badge
	now := time.Now().UTC()
	for _, p := range progress {
		if p.EarnedAt != nil || p.Progress < p.Badge.CriteriaValue {
			continue
		}

		inserted, err := store.AwardBadge(ctx, &model.UserBadge{UserID: userID, BadgeID: p.Badge.ID, EarnedAt: now})
		if errors.Is(err, db.ErrDuplicate) {
			continue
		}
		if err != nil {
			return awarded, fmt.Errorf("failed to award badge %s: %w", p.Badge.Name, err)
		}
		if !inserted {
			// awarded concurrently since progress was read
			continue
		}

		logger.Info("Badge awarded",
			zap.String("user_id", userID),
			zap.String("badge", p.Badge.Name))
		awarded = append(awarded, p.Badge)
	}

	return awarded, nil
}

func evaluateBadges(ctx context.Context, store BadgeStore, userID string) ([]Progress, error) {
	badges, err := store.ListBadges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}

	earned, err := store.ListUserBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user badges: %w", err)
	}
	earnedAt := make(map[string]time.Time, len(earned))
	for _, ub := range earned {
		earnedAt[ub.BadgeID] = ub.EarnedAt
	}

	verified, err := store.ListTasks(ctx, db.TaskQuery{
		Statuses:    []model.TaskStatus{model.StatusVerified},
		VolunteerID: userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list verified tasks: %w", err)
	}

	progress := make([]Progress, 0, len(badges))
	for _, b := range badges {
		p := Progress{Badge: b, Progress: countMatching(b, verified)}
		if at, ok := earnedAt[b.ID]; ok {
			at := at
			p.EarnedAt = &at
		}
		p.IsEarned = p.EarnedAt != nil || p.Progress >= b.CriteriaValue
		progress = append(progress, p)
	}
	return progress, nil
}

func countMatching(b model.Badge, tasks []model.Task) int {
	n := 0
	for _, t := range tasks {
		switch b.CriteriaType {
		case model.CriteriaTaskCount:
			n++
		case model.CriteriaSkillTag:
			if t.HasSkillTag(b.CriteriaTarget) {
				n++
			}
		case model.CriteriaUrgency:
			if strings.EqualFold(string(t.Urgency), b.CriteriaTarget) {
				n++
			}
		}
	}
	return n
}
