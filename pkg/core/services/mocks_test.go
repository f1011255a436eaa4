package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/db"
)

// mockStore is an in-memory db.TaskStore, db.ProfileStore and db.BadgeStore
// with the same conditional update rules as the SQL stores
type mockStore struct {
	mu         sync.Mutex
	tasks      map[string]*model.Task
	profiles   map[string]*model.Profile
	badges     []model.Badge
	userBadges map[string][]model.UserBadge

	insertTaskErr    error
	listTasksErr     error
	verifyErr        error
	getProfileErr    error
	insertProfileErr error
	listBadgesErr    error
	awardErr         error

	// onInsertProfile runs before a profile insert, e.g. to simulate a
	// concurrent sign-in creating the row first
	onInsertProfile func(m *mockStore, p *model.Profile)

	insertProfileCalls int
	insertTaskCalls    int
}

func newMockStore() *mockStore {
	return &mockStore{
		tasks:      make(map[string]*model.Task),
		profiles:   make(map[string]*model.Profile),
		userBadges: make(map[string][]model.UserBadge),
	}
}

func (m *mockStore) addTask(t model.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.tasks[t.ID] = &t
}

func (m *mockStore) task(id string) model.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.tasks[id]
}

func (m *mockStore) InsertTask(ctx context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertTaskCalls++
	if m.insertTaskErr != nil {
		return m.insertTaskErr
	}
	if task.RecurrenceKey != "" {
		for _, t := range m.tasks {
			if t.RecurrenceKey == task.RecurrenceKey {
				return fmt.Errorf("failed to insert task: %w", db.ErrDuplicate)
			}
		}
	}
	t := *task
	m.tasks[t.ID] = &t
	return nil
}

func (m *mockStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) ListTasks(ctx context.Context, q db.TaskQuery) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listTasksErr != nil {
		return nil, m.listTasksErr
	}

	var result []model.Task
	for _, t := range m.tasks {
		if len(q.Statuses) > 0 && !containsStatus(q.Statuses, t.Status) {
			continue
		}
		if q.InvolvingUser != "" && t.ClaimedBy != q.InvolvingUser && t.VolunteerID != q.InvolvingUser {
			continue
		}
		if q.VolunteerID != "" && t.VolunteerID != q.VolunteerID {
			continue
		}
		result = append(result, *t)
	}

	switch q.Order {
	case db.OldestSubmissionFirst:
		sort.Slice(result, func(i, j int) bool {
			a, b := result[i].SubmittedAt, result[j].SubmittedAt
			if a == nil || b == nil {
				return b == nil && a != nil
			}
			return a.Before(*b)
		})
	default:
		sort.Slice(result, func(i, j int) bool {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		})
	}
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

func containsStatus(statuses []model.TaskStatus, s model.TaskStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func (m *mockStore) ClaimTask(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != model.StatusOpen {
		return false, nil
	}
	t.Status = model.StatusClaimed
	t.ClaimedBy = userID
	t.ClaimedAt = &at
	return true, nil
}

func (m *mockStore) CompleteTask(ctx context.Context, id, userID, imageURL string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != model.StatusClaimed || t.ClaimedBy != userID {
		return false, nil
	}
	t.Status = model.StatusCompleted
	t.VolunteerID = userID
	t.ImageURL = imageURL
	t.SubmittedAt = &at
	return true, nil
}

func (m *mockStore) VerifyTask(ctx context.Context, id, reviewerID string, status model.TaskStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.verifyErr != nil {
		return false, m.verifyErr
	}
	t, ok := m.tasks[id]
	if !ok || !t.Status.AwaitingReview() {
		return false, nil
	}
	verified := status == model.StatusVerified
	t.Status = status
	t.Verified = &verified
	t.VerifiedBy = reviewerID
	t.VerifiedAt = &at
	return true, nil
}

func (m *mockStore) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getProfileErr != nil {
		return nil, m.getProfileErr
	}
	p, ok := m.profiles[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockStore) InsertProfile(ctx context.Context, profile *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertProfileCalls++
	if m.onInsertProfile != nil {
		m.onInsertProfile(m, profile)
	}
	if m.insertProfileErr != nil {
		return m.insertProfileErr
	}
	if _, ok := m.profiles[profile.ID]; ok {
		return fmt.Errorf("failed to insert profile: %w", db.ErrDuplicate)
	}
	p := *profile
	m.profiles[p.ID] = &p
	return nil
}

func (m *mockStore) UpdateProfileName(ctx context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return db.ErrNotFound
	}
	p.Name = name
	return nil
}

func (m *mockStore) UpdateProfileRole(ctx context.Context, id string, role model.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return db.ErrNotFound
	}
	p.Role = role
	return nil
}

func (m *mockStore) ListProfilesByRole(ctx context.Context, role model.Role) ([]model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Profile
	for _, p := range m.profiles {
		if p.Role == role {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockStore) ListBadges(ctx context.Context) ([]model.Badge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listBadgesErr != nil {
		return nil, m.listBadgesErr
	}
	return append([]model.Badge(nil), m.badges...), nil
}

func (m *mockStore) InsertBadge(ctx context.Context, badge *model.Badge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.badges {
		if b.ID == badge.ID || b.Name == badge.Name {
			return fmt.Errorf("failed to insert badge: %w", db.ErrDuplicate)
		}
	}
	m.badges = append(m.badges, *badge)
	return nil
}

func (m *mockStore) ListUserBadges(ctx context.Context, userID string) ([]model.UserBadge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.UserBadge(nil), m.userBadges[userID]...), nil
}

func (m *mockStore) AwardBadge(ctx context.Context, award *model.UserBadge) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.awardErr != nil {
		return false, m.awardErr
	}
	for _, ub := range m.userBadges[award.UserID] {
		if ub.BadgeID == award.BadgeID {
			return false, nil
		}
	}
	m.userBadges[award.UserID] = append(m.userBadges[award.UserID], *award)
	return true, nil
}

// mockUploader implements ImageUploader for testing
type mockUploader struct {
	mu      sync.Mutex
	uploads []model.Image
	err     error
}

func (m *mockUploader) UploadImage(ctx context.Context, userID string, img model.Image) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", "", m.err
	}
	m.uploads = append(m.uploads, img)
	key := fmt.Sprintf("%s/%d-%s", userID, len(m.uploads), img.Filename)
	return key, "https://cdn.example.com/" + key, nil
}

func (m *mockUploader) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

var errBackend = errors.New("backend unavailable")

func floatPtr(f float64) *float64 {
	return &f
}

func pngImage(name string) *model.Image {
	return &model.Image{Filename: name, ContentType: "image/png", Size: 1024}
}
