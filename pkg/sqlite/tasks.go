package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/db"
)

const taskColumns = `
	id, title, description, location, latitude, longitude, urgency, skill_tags,
	status, wellness_check, medical_priority, created_by, claimed_by, claimed_at,
	volunteer_id, image_url, submitted_at, verified, verified_by, verified_at,
	recurrence_key, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	var urgency, status, tags, createdAt string
	var lat, lng sql.NullFloat64
	var verified sql.NullBool
	var medicalPriority, createdBy, claimedBy, claimedAt, volunteerID, imageURL sql.NullString
	var submittedAt, verifiedBy, verifiedAt, recurrenceKey sql.NullString

	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Location, &lat, &lng, &urgency, &tags,
		&status, &t.WellnessCheck, &medicalPriority, &createdBy, &claimedBy, &claimedAt,
		&volunteerID, &imageURL, &submittedAt, &verified, &verifiedBy, &verifiedAt,
		&recurrenceKey, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if lat.Valid && lng.Valid {
		t.Latitude = &lat.Float64
		t.Longitude = &lng.Float64
	}
	if verified.Valid {
		t.Verified = &verified.Bool
	}
	t.Urgency = model.Urgency(urgency)
	t.Status = model.TaskStatus(status)
	t.MedicalPriority = medicalPriority.String
	t.CreatedBy = createdBy.String
	t.ClaimedBy = claimedBy.String
	t.VolunteerID = volunteerID.String
	t.ImageURL = imageURL.String
	t.VerifiedBy = verifiedBy.String
	t.RecurrenceKey = recurrenceKey.String

	if err := json.Unmarshal([]byte(tags), &t.SkillTags); err != nil {
		return nil, fmt.Errorf("invalid skill_tags for task %s: %w", t.ID, err)
	}
	if t.SkillTags == nil {
		t.SkillTags = []string{}
	}

	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.ClaimedAt, err = parseTimePtr(claimedAt); err != nil {
		return nil, err
	}
	if t.SubmittedAt, err = parseTimePtr(submittedAt); err != nil {
		return nil, err
	}
	if t.VerifiedAt, err = parseTimePtr(verifiedAt); err != nil {
		return nil, err
	}

	return &t, nil
}

// InsertTask inserts a new task record
func (d *DB) InsertTask(ctx context.Context, t *model.Task) error {
	tags := t.SkillTags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode skill tags: %w", err)
	}

	var lat, lng sql.NullFloat64
	if t.HasCoordinates() {
		lat = sql.NullFloat64{Float64: *t.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: *t.Longitude, Valid: true}
	}
	var verified sql.NullBool
	if t.Verified != nil {
		verified = sql.NullBool{Bool: *t.Verified, Valid: true}
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.Title, t.Description, t.Location, lat, lng, string(t.Urgency), string(tagsJSON),
		string(t.Status), t.WellnessCheck, nullable(t.MedicalPriority), nullable(t.CreatedBy), nullable(t.ClaimedBy), formatTimePtr(t.ClaimedAt),
		nullable(t.VolunteerID), nullable(t.ImageURL), formatTimePtr(t.SubmittedAt), verified, nullable(t.VerifiedBy), formatTimePtr(t.VerifiedAt),
		nullable(t.RecurrenceKey), formatTime(t.CreatedAt),
	)
	if err != nil {
		return mapInsertError(err, "task")
	}
	return nil
}

// GetTask retrieves a single task by ID
func (d *DB) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
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
		placeholders := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if q.InvolvingUser != "" {
		where = append(where, "(claimed_by = ? OR volunteer_id = ?)")
		args = append(args, q.InvolvingUser, q.InvolvingUser)
	}
	if q.VolunteerID != "" {
		where = append(where, "volunteer_id = ?")
		args = append(args, q.VolunteerID)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	switch q.Order {
	case db.OldestSubmissionFirst:
		query += " ORDER BY submitted_at IS NULL, submitted_at ASC, created_at ASC"
	default:
		query += " ORDER BY created_at DESC"
	}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
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

// conditionalUpdate runs an UPDATE and reports whether exactly one row changed
func (d *DB) conditionalUpdate(ctx context.Context, what, query string, args ...any) (bool, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", what, err)
	}
	return n == 1, nil
}

// ClaimTask moves an open task to claimed
func (d *DB) ClaimTask(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	return d.conditionalUpdate(ctx, "claim task", `
		UPDATE tasks SET status = 'claimed', claimed_by = ?, claimed_at = ?
		WHERE id = ? AND status = 'open'
	`, userID, formatTime(at), id)
}

// CompleteTask records proof for a task claimed by userID
func (d *DB) CompleteTask(ctx context.Context, id, userID, imageURL string, at time.Time) (bool, error) {
	return d.conditionalUpdate(ctx, "complete task", `
		UPDATE tasks SET status = 'completed', volunteer_id = ?, image_url = ?, submitted_at = ?
		WHERE id = ? AND status = 'claimed' AND claimed_by = ?
	`, userID, imageURL, formatTime(at), id, userID)
}

// VerifyTask records a coordinator decision on a task awaiting review
func (d *DB) VerifyTask(ctx context.Context, id, reviewerID string, status model.TaskStatus, at time.Time) (bool, error) {
	return d.conditionalUpdate(ctx, "verify task", `
		UPDATE tasks SET status = ?, verified = ?, verified_by = ?, verified_at = ?
		WHERE id = ? AND status IN ('completed', 'pending')
	`, string(status), status == model.StatusVerified, reviewerID, formatTime(at), id)
}
