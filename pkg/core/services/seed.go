package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/db"
)

// SeedStore is the storage Seed needs
type SeedStore interface {
	InsertTask(ctx context.Context, task *model.Task) error
	ListTasks(ctx context.Context, q db.TaskQuery) ([]model.Task, error)
	ListBadges(ctx context.Context) ([]model.Badge, error)
	InsertBadge(ctx context.Context, badge *model.Badge) error
}

// SeedResult reports what Seed inserted
type SeedResult struct {
	Skipped bool
	Tasks   int
	Badges  int
}

type sampleTask struct {
	title, description, location string
	lat, lng                     float64
	urgency                      model.Urgency
	tags                         []string
	status                       model.TaskStatus
	wellness                     bool
}

var sampleTasks = []sampleTask{
	{
		title:       "Help elderly neighbor with groceries",
		description: "Need someone to help carry groceries from the car to the apartment on the 3rd floor. Mrs. Johnson is 85 and has trouble with heavy bags.",
		location:    "Upper East Side, Manhattan, NYC",
		lat:         40.7739,
		lng:         -73.9554,
		urgency:     model.UrgencyHigh,
		tags:        []string{"physical", "elderly-care"},
		status:      model.StatusOpen,
	},
	{
		title:       "Dog walking service needed",
		description: "Looking for someone to walk my golden retriever Max while I am at work. He is friendly and well-behaved, needs about 30 minutes of walking.",
		location:    "Central Park area, Manhattan, NYC",
		lat:         40.7829,
		lng:         -73.9654,
		urgency:     model.UrgencyMedium,
		tags:        []string{"pets", "outdoor"},
		status:      model.StatusOpen,
	},
	{
		title:       "Computer help for senior",
		description: "My grandmother needs help setting up video calls to talk to family. Looking for someone patient to teach her how to use Zoom.",
		location:    "Brooklyn Heights, NYC",
		lat:         40.6962,
		lng:         -73.9932,
		urgency:     model.UrgencyMedium,
		tags:        []string{"technology", "teaching", "elderly-care"},
		status:      model.StatusOpen,
	},
	{
		title:       "Moving furniture urgently",
		description: "Need help moving a couch and dining table to a new apartment. Have a truck, just need someone strong to help lift and carry.",
		location:    "Queens, NYC",
		lat:         40.7282,
		lng:         -73.7949,
		urgency:     model.UrgencyCritical,
		tags:        []string{"physical", "moving"},
		status:      model.StatusOpen,
	},
	{
		title:       "Tutoring for math homework",
		description: "My 10-year-old needs help with 4th grade math homework. Looking for someone patient and good with kids.",
		location:    "Beverly Hills, CA",
		lat:         34.0736,
		lng:         -118.4004,
		urgency:     model.UrgencyMedium,
		tags:        []string{"teaching", "academic", "children"},
		status:      model.StatusOpen,
	},
	{
		title:       "Yard cleanup assistance",
		description: "Need help raking leaves and cleaning up the backyard. Have all tools ready, just need an extra pair of hands.",
		location:    "Santa Monica, CA",
		lat:         34.0195,
		lng:         -118.4912,
		urgency:     model.UrgencyLow,
		tags:        []string{"physical", "outdoor", "gardening"},
		status:      model.StatusOpen,
	},
	{
		title:       "Emergency childcare needed",
		description: "Single parent needs urgent childcare for 6-year-old due to family emergency. Child is well-behaved and easy-going.",
		location:    "Richmond District, San Francisco, CA",
		lat:         37.7806,
		lng:         -122.4644,
		urgency:     model.UrgencyCritical,
		tags:        []string{"childcare", "emergency"},
		status:      model.StatusOpen,
	},
	{
		title:       "Tech setup for nonprofit",
		description: "Small nonprofit needs help setting up new computers and network equipment. Looking for someone with IT experience.",
		location:    "Mission District, San Francisco, CA",
		lat:         37.7599,
		lng:         -122.4148,
		urgency:     model.UrgencyMedium,
		tags:        []string{"technology", "nonprofit", "networking"},
		status:      model.StatusOpen,
	},
	{
		title:       "Wellness check for elderly resident",
		description: "Regular wellness check needed for Mrs. Thompson who lives alone. Just need someone to visit and ensure she is okay.",
		location:    "Back Bay, Boston, MA",
		lat:         42.3505,
		lng:         -71.0753,
		urgency:     model.UrgencyLow,
		tags:        []string{"wellness-check", "elderly-care"},
		status:      model.StatusVerified,
		wellness:    true,
	},
	{
		title:       "Food prep volunteer for shelter",
		description: "Local homeless shelter needs help preparing and serving meals. Great way to give back to the community.",
		location:    "South End, Boston, MA",
		lat:         42.3398,
		lng:         -71.0691,
		urgency:     model.UrgencyMedium,
		tags:        []string{"cooking", "community-service", "volunteer"},
		status:      model.StatusVerified,
	},
}

// SampleBadges are the badge definitions installed by Seed
var SampleBadges = []model.Badge{
	{
		Name:          "Community Helper",
		Description:   "Complete 5 community service tasks",
		Icon:          "🤝",
		Criteria:      "Complete community service tasks",
		CriteriaType:  model.CriteriaTaskCount,
		CriteriaValue: 5,
	},
	{
		Name:           "Senior Support",
		Description:    "Help 3 elderly community members",
		Icon:           "👵",
		Criteria:       "Complete elderly care tasks",
		CriteriaType:   model.CriteriaSkillTag,
		CriteriaTarget: "elderly-care",
		CriteriaValue:  3,
	},
	{
		Name:           "Tech Wizard",
		Description:    "Complete 10 technology-related tasks",
		Icon:           "💻",
		Criteria:       "Complete technology tasks",
		CriteriaType:   model.CriteriaSkillTag,
		CriteriaTarget: "technology",
		CriteriaValue:  10,
	},
	{
		Name:           "Emergency Responder",
		Description:    "Complete 3 critical urgency tasks",
		Icon:           "🚨",
		Criteria:       "Complete critical tasks",
		CriteriaType:   model.CriteriaUrgency,
		CriteriaTarget: string(model.UrgencyCritical),
		CriteriaValue:  3,
	},
}

// sampleUserID gives each sample task a stable, distinct poster
func sampleUserID(i int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", i)
}

// badgeID derives a stable id from the badge name so reseeding cannot
// create a second copy of a badge
func badgeID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("helpboard/badge/"+name)).String()
}

// Seed installs the sample tasks and badges. Unless force is set it does
// nothing when any task or badge already exists.
func Seed(ctx context.Context, store SeedStore, logger *zap.Logger, force bool) (*SeedResult, error) {
	if !force {
		hasData, err := hasSeedData(ctx, store)
		if err != nil {
			return nil, err
		}
		if hasData {
			logger.Info("Data already exists, skipping seed")
			return &SeedResult{Skipped: true}, nil
		}
	}

	result := &SeedResult{}
	base := time.Now().UTC()

	for i, s := range sampleTasks {
		lat, lng := s.lat, s.lng
		task := &model.Task{
			ID:            uuid.NewString(),
			Title:         s.title,
			Description:   s.description,
			Location:      s.location,
			Latitude:      &lat,
			Longitude:     &lng,
			Urgency:       s.urgency,
			SkillTags:     s.tags,
			Status:        s.status,
			WellnessCheck: s.wellness,
			CreatedBy:     sampleUserID(i + 1),
			// keep list order stable: first sample is newest
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
		}
		if s.status == model.StatusVerified {
			verified := true
			task.Verified = &verified
		}

		if err := store.InsertTask(ctx, task); err != nil {
			return result, fmt.Errorf("failed to seed task %q: %w", s.title, err)
		}
		result.Tasks++
	}

	for _, b := range SampleBadges {
		badge := b
		badge.ID = badgeID(b.Name)
		err := store.InsertBadge(ctx, &badge)
		if errors.Is(err, db.ErrDuplicate) {
			logger.Debug("Badge already present", zap.String("badge", b.Name))
			continue
		}
		if err != nil {
			return result, fmt.Errorf("failed to seed badge %q: %w", b.Name, err)
		}
		result.Badges++
	}

	logger.Info("Sample data seeded",
		zap.Int("tasks", result.Tasks),
		zap.Int("badges", result.Badges))

	return result, nil
}

func hasSeedData(ctx context.Context, store SeedStore) (bool, error) {
	tasks, err := store.ListTasks(ctx, db.TaskQuery{Limit: 1})
	if err != nil {
		return false, fmt.Errorf("failed to check existing tasks: %w", err)
	}
	if len(tasks) > 0 {
		return true, nil
	}

	badges, err := store.ListBadges(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check existing badges: %w", err)
	}
	return len(badges) > 0, nil
}
