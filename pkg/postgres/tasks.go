package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/db"
)

const taskColumns = `
	id, title, description, location, latitude, longitude, urgency, skill_tags,
	status, wellness_check, medical_priority, created_by, claimed_by, claimed_at,
	volunteer_id, image_url, submitted_at, verified, verified_by, verified_at,
	recurrence_key, created_at`

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var urgency, status string
	var medicalPriority, createdBy, claimedBy, volunteerID, imageURL, verifiedBy, recurrenceKey *string

	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Location, &t.Latitude, &t.Longitude, &urgency, &t.SkillTags,
		&status, &t.WellnessCheck, &medicalPriority, &createdBy, &claimedBy, &t.ClaimedAt,
		&volunteerID, &imageURL, &t.SubmittedAt, &t.Verified, &verifiedBy, &t.VerifiedAt,
		&recurrenceKey, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Urgency = model.Urgency(urgency)
	t.Status = model.TaskStatus(status)
	t.MedicalPriority = deref(medicalPriority)
	t.CreatedBy = deref(createdBy)
	t.ClaimedBy = deref(claimedBy)
	t.VolunteerID = deref(volunteerID)
	t.ImageURL = deref(imageURL)
	t.VerifiedBy = deref(verifiedBy)
	t.RecurrenceKey = deref(recurrenceKey)
	if t.SkillTags == nil {
		t.SkillTags = []string{}
	}

	return &t, nil
}

// InsertTask inserts a new task record
func (d *DB) InsertTask(ctx context.Context, t *model.Task) error {
	tags := t.SkillTags
	if tags == nil {
		tags = []string{}
	}

	_, err := d.pool.Exec(ctx, `
		INSERT INTO tasks (
			id, title, description, location, latitude, longitude, urgency, skill_tags,
			status, wellness_check, medical_priority, created_by, claimed_by, claimed_at,
			volunteer_id, image_url, submitted_at, verified, verified_by, verified_at,
			recurrence_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`,
		t.ID, t.Title, t.Description, t.Location, t.Latitude, t.Longitude, string(t.Urgency), tags,
		string(t.Status), t.WellnessCheck, nullable(t.MedicalPriority), nullable(t.CreatedBy), nullable(t.ClaimedBy), t.ClaimedAt,
		nullable(t.VolunteerID), nullable(t.ImageURL), t.SubmittedAt, t.Verified, nullable(t.VerifiedBy), t.VerifiedAt,
		nullable(t.RecurrenceKey), t.CreatedAt.UTC(),
	)
	if err != nil {
		return mapInsertError(err, "task")
	}
	return nil
}

// GetTask retrieves a single task by ID
func (d *DB) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListTasks retrieves tasks matching the query
func (d *DB) ListTasks(ctx context.Context, q db.TaskQuery) ([]model.Task, error) {
	var where []string
	var args []any

	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if q.InvolvingUser != "" {
		args = append(args, q.InvolvingUser)
		where = append(where, fmt.Sprintf("(claimed_by = $%d OR volunteer_id = $%d)", len(args), len(args)))
	}
	if q.VolunteerID != "" {
		args = append(args, q.VolunteerID)
		where = append(where, fmt.Sprintf("volunteer_id = $%d", len(args)))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	switch q.Order {
	case db.OldestSubmissionFirst:
		query += " ORDER BY submitted_at ASC NULLS LAST, created_at ASC"
	default:
		query += " ORDER BY created_at DESC"
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// ClaimTask moves an open task to claimed. It reports false when the task
// was not open.
func (d *DB) ClaimTask(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	tag, err := d.pool.Exec(ctx, `
		UPDATE tasks SET status = 'claimed', claimed_by = $2, claimed_at = $3
		WHERE id = $1 AND status = 'open'
	`, id, userID, at.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to claim task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteTask records proof for a task claimed by userID
func (d *DB) CompleteTask(ctx context.Context, id, userID, imageURL string, at time.Time) (bool, error) {
	tag, err := d.pool.Exec(ctx, `
		UPDATE tasks SET status = 'completed', volunteer_id = $2, image_url = $3, submitted_at = $4
		WHERE id = $1 AND status = 'claimed' AND claimed_by = $2
	`, id, userID, imageURL, at.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to complete task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// VerifyTask records a coordinator decision on a task awaiting review
func (d *DB) VerifyTask(ctx context.Context, id, reviewerID string, status model.TaskStatus, at time.Time) (bool, error) {
	tag, err := d.pool.Exec(ctx, `
		UPDATE tasks SET status = $2, verified = $3, verified_by = $4, verified_at = $5
		WHERE id = $1 AND status IN ('completed', 'pending')
	`, id, string(status), status == model.StatusVerified, reviewerID, at.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to verify task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
