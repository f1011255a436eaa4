package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/db"
)

func TestMigrationFiles(t *testing.T) {
	files, err := migrationFiles()

	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_init.sql", files[0])
}

func TestMapInsertError(t *testing.T) {
	unique := &pgconn.PgError{Code: uniqueViolation}
	other := &pgconn.PgError{Code: "23502"}

	assert.ErrorIs(t, mapInsertError(unique, "task"), db.ErrDuplicate)
	assert.NotErrorIs(t, mapInsertError(other, "task"), db.ErrDuplicate)
	assert.NotErrorIs(t, mapInsertError(errors.New("boom"), "task"), db.ErrDuplicate)
}

func TestNullable(t *testing.T) {
	assert.Nil(t, nullable(""))
	assert.Equal(t, "x", deref(nullable("x")))
	assert.Equal(t, "", deref(nil))
}

// newIntegrationDB connects to HELPBOARD_TEST_DATABASE_URL, skipping when unset
func newIntegrationDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("HELPBOARD_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("HELPBOARD_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := NewDB(ctx, url)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.RunMigrations(ctx))
	return store
}

func TestIntegration_TaskLifecycle(t *testing.T) {
	store := newIntegrationDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	lat, lng := 30.6280, -96.3344

	task := &model.Task{
		ID:        uuid.NewString(),
		Title:     "Grocery run",
		Latitude:  &lat,
		Longitude: &lng,
		Urgency:   model.UrgencyHigh,
		SkillTags: []string{"driving", "elderly-care"},
		Status:    model.StatusOpen,
		CreatedBy: "creator",
		CreatedAt: now,
	}
	require.NoError(t, store.InsertTask(ctx, task))

	claimed, err := store.ClaimTask(ctx, task.ID, "alice", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, claimed)

	again, err := store.ClaimTask(ctx, task.ID, "bob", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, again)

	completed, err := store.CompleteTask(ctx, task.ID, "alice", "https://img/proof.jpg", now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, completed)

	verified, err := store.VerifyTask(ctx, task.ID, "coord", model.StatusVerified, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, verified)

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, got.Status)
	assert.Equal(t, []string{"driving", "elderly-care"}, got.SkillTags)
	assert.Equal(t, "alice", got.VolunteerID)
	require.NotNil(t, got.Latitude)
	assert.Equal(t, lat, *got.Latitude)
	assert.True(t, now.Equal(got.CreatedAt))

	mine, err := store.ListTasks(ctx, db.TaskQuery{VolunteerID: "alice", Statuses: []model.TaskStatus{model.StatusVerified}})
	require.NoError(t, err)
	ids := make([]string, 0, len(mine))
	for _, m := range mine {
		ids = append(ids, m.ID)
	}
	assert.Contains(t, ids, task.ID)
}

func TestIntegration_Duplicates(t *testing.T) {
	store := newIntegrationDB(t)
	ctx := context.Background()
	key := "pantry:" + uuid.NewString()

	first := &model.Task{ID: uuid.NewString(), Title: "Pantry shift", Urgency: model.UrgencyMedium, Status: model.StatusOpen, RecurrenceKey: key, CreatedAt: time.Now()}
	second := &model.Task{ID: uuid.NewString(), Title: "Pantry shift", Urgency: model.UrgencyMedium, Status: model.StatusOpen, RecurrenceKey: key, CreatedAt: time.Now()}

	require.NoError(t, store.InsertTask(ctx, first))
	assert.ErrorIs(t, store.InsertTask(ctx, second), db.ErrDuplicate)

	badge := &model.Badge{ID: uuid.NewString(), Name: "Badge " + uuid.NewString(), CriteriaType: model.CriteriaTaskCount, CriteriaValue: 1}
	require.NoError(t, store.InsertBadge(ctx, badge))

	award := &model.UserBadge{UserID: "alice", BadgeID: badge.ID, EarnedAt: time.Now()}
	inserted, err := store.AwardBadge(ctx, award)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.AwardBadge(ctx, award)
	require.NoError(t, err)
	assert.False(t, inserted)

	earned, err := store.ListUserBadges(ctx, "alice")
	require.NoError(t, err)
	count := 0
	for _, e := range earned {
		if e.BadgeID == badge.ID {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestIntegration_Profiles(t *testing.T) {
	store := newIntegrationDB(t)
	ctx := context.Background()
	id := uuid.NewString()
	now := time.Now().UTC()

	require.NoError(t, store.InsertProfile(ctx, &model.Profile{ID: id, Email: "p@example.com", Role: model.RoleVolunteer, CreatedAt: now, UpdatedAt: now}))
	assert.ErrorIs(t, store.InsertProfile(ctx, &model.Profile{ID: id, Role: model.RoleVolunteer, CreatedAt: now, UpdatedAt: now}), db.ErrDuplicate)

	require.NoError(t, store.UpdateProfileRole(ctx, id, model.RoleMedic))
	got, err := store.GetProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RoleMedic, got.Role)

	_, err = store.GetProfile(ctx, uuid.NewString())
	assert.ErrorIs(t, err, db.ErrNotFound)
}
