package postgres

import (
	"context"
	"fmt"

	"github.com/jakechorley/helpboard/pkg/core/model"
)

// ListBadges retrieves all badge definitions
func (d *DB) ListBadges(ctx context.Context) ([]model.Badge, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, name, description, icon, criteria, criteria_type, criteria_target, criteria_value
		FROM badges ORDER BY criteria_value, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query badges: %w", err)
	}
	defer rows.Close()

	var badges []model.Badge
	for rows.Next() {
		var b model.Badge
		var criteriaType string
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &b.Criteria, &criteriaType, &b.CriteriaTarget, &b.CriteriaValue); err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		b.CriteriaType = model.BadgeCriteria(criteriaType)
		badges = append(badges, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating badges: %w", err)
	}

	return badges, nil
}

// InsertBadge inserts a badge definition
func (d *DB) InsertBadge(ctx context.Context, b *model.Badge) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO badges (id, name, description, icon, criteria, criteria_type, criteria_target, criteria_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, b.ID, b.Name, b.Description, b.Icon, b.Criteria, string(b.CriteriaType), b.CriteriaTarget, b.CriteriaValue)
	if err != nil {
		return mapInsertError(err, "badge")
	}
	return nil
}

// ListUserBadges retrieves the badges a user has earned
func (d *DB) ListUserBadges(ctx context.Context, userID string) ([]model.UserBadge, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT user_id, badge_id, earned_at FROM user_badges WHERE user_id = $1 ORDER BY earned_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user badges: %w", err)
	}
	defer rows.Close()

	var awards []model.UserBadge
	for rows.Next() {
		var a model.UserBadge
		if err := rows.Scan(&a.UserID, &a.BadgeID, &a.EarnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user badge: %w", err)
		}
		awards = append(awards, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user badges: %w", err)
	}

	return awards, nil
}

// AwardBadge records a badge award, ignoring repeats
func (d *DB) AwardBadge(ctx context.Context, a *model.UserBadge) (bool, error) {
	tag, err := d.pool.Exec(ctx, `
		INSERT INTO user_badges (user_id, badge_id, earned_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`, a.UserID, a.BadgeID, a.EarnedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to award badge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
