package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/db"
)

// Mailer sends a plain text email
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// NotifyStore is the storage NotifyCoordinators needs
type NotifyStore interface {
	db.TaskStore
	ListProfilesByRole(ctx context.Context, role model.Role) ([]model.Profile, error)
}

// NotifyResult reports the digest run
type NotifyResult struct {
	Pending int
	Sent    []string
	Failed  []string
}

// NotifyCoordinators emails every coordinator a digest of tasks awaiting
// review. A failed send is recorded and the remaining coordinators are still
// emailed. Nothing is sent when the queue is empty.
func NotifyCoordinators(ctx context.Context, store NotifyStore, mailer Mailer, logger *zap.Logger, now time.Time) (*NotifyResult, error) {
	queue, err := ListReviewQueue(ctx, store, SystemActor)
	if err != nil {
		return nil, err
	}

	result := &NotifyResult{Pending: len(queue)}
	if len(queue) == 0 {
		logger.Info("Review queue is empty, no digest sent")
		return result, nil
	}

	coordinators, err := store.ListProfilesByRole(ctx, model.RoleCoordinator)
	if err != nil {
		return nil, fmt.Errorf("failed to list coordinators: %w", err)
	}

	subject := fmt.Sprintf("%d task(s) awaiting review", len(queue))
	body := digestBody(queue, now)

	for _, c := range coordinators {
		if c.Email == "" {
			logger.Warn("Coordinator has no email, skipping", zap.String("user_id", c.ID))
			continue
		}

		if err := mailer.SendEmail(ctx, c.Email, subject, body); err != nil {
			logger.Error("Failed to send digest", zap.String("to", c.Email), zap.Error(err))
			result.Failed = append(result.Failed, c.Email)
			continue
		}
		result.Sent = append(result.Sent, c.Email)
	}

	logger.Info("Coordinator digest sent",
		zap.Int("pending", result.Pending),
		zap.Int("sent", len(result.Sent)),
		zap.Int("failed", len(result.Failed)))

	return result, nil
}

func digestBody(queue []model.Task, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tasks awaiting review as of %s:\n\n", now.UTC().Format("2006-01-02 15:04 MST"))
	for _, t := range queue {
		submitted := "unknown"
		if t.SubmittedAt != nil {
			submitted = t.SubmittedAt.UTC().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&b, "- [%s] %s (%s, %s urgency), submitted %s\n", t.Status, t.Title, t.ID, t.Urgency, submitted)
		if t.ImageURL != "" {
			fmt.Fprintf(&b, "  proof: %s\n", t.ImageURL)
		}
	}
	return b.String()
}
