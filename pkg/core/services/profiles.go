package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/core/session"
	"github.com/jakechorley/helpboard/pkg/db"
)

const maxNameLength = 100

// EnsureProfile returns the identity's profile, creating a volunteer profile
// when none exists. If the insert fails the profile is fetched once more,
// since a concurrent sign-in may have created it.
func EnsureProfile(ctx context.Context, store db.ProfileStore, logger *zap.Logger, identity session.Identity) (*model.Profile, error) {
	profile, err := store.GetProfile(ctx, identity.ID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrProfileSetup, err)
	}

	now := time.Now().UTC()
	profile = &model.Profile{
		ID:        identity.ID,
		Email:     identity.Email,
		Name:      defaultName(identity.Email),
		Role:      model.RoleVolunteer,
		CreatedAt: now,
		UpdatedAt: now,
	}

	insertErr := store.InsertProfile(ctx, profile)
	if insertErr == nil {
		logger.Info("Profile created", zap.String("user_id", identity.ID))
		return profile, nil
	}

	logger.Warn("Profile insert failed, re-fetching",
		zap.String("user_id", identity.ID),
		zap.Error(insertErr))

	profile, err = store.GetProfile(ctx, identity.ID)
	if err == nil {
		return profile, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrProfileSetup, insertErr)
}

// ProfileBootstrapper adapts EnsureProfile for a session.Manager
func ProfileBootstrapper(store db.ProfileStore, logger *zap.Logger) session.Bootstrapper {
	return func(ctx context.Context, identity session.Identity) (*model.Profile, error) {
		return EnsureProfile(ctx, store, logger, identity)
	}
}

func defaultName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// UpdateProfile changes the actor's display name
func UpdateProfile(ctx context.Context, store db.ProfileStore, actor Actor, name string) (*model.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fieldError("name", "is required")
	}
	if len([]rune(name)) > maxNameLength {
		return nil, fieldError("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}

	if err := store.UpdateProfileName(ctx, actor.ID, name); err != nil {
		return nil, err
	}
	return store.GetProfile(ctx, actor.ID)
}

// SelectRole lets a user choose their own role. Coordinator cannot be
// self-selected.
func SelectRole(ctx context.Context, store db.ProfileStore, logger *zap.Logger, actor Actor, role string) (*model.Profile, error) {
	r, err := parseRoleStrict(role)
	if err != nil {
		return nil, err
	}
	if r == model.RoleCoordinator {
		return nil, fmt.Errorf("%w: coordinator role must be assigned by a coordinator", ErrForbidden)
	}

	if err := store.UpdateProfileRole(ctx, actor.ID, r); err != nil {
		return nil, err
	}

	logger.Info("Role selected", zap.String("user_id", actor.ID), zap.String("role", string(r)))
	return store.GetProfile(ctx, actor.ID)
}

// AssignRole sets another user's role. Requires canManageUsers.
func AssignRole(ctx context.Context, store db.ProfileStore, logger *zap.Logger, actor Actor, targetID, role string) (*model.Profile, error) {
	if err := requireCapability(actor, model.CanManageUsers); err != nil {
		return nil, err
	}
	r, err := parseRoleStrict(role)
	if err != nil {
		return nil, err
	}

	if err := store.UpdateProfileRole(ctx, targetID, r); err != nil {
		return nil, err
	}

	logger.Info("Role assigned",
		zap.String("user_id", targetID),
		zap.String("role", string(r)),
		zap.String("assigned_by", actor.ID))
	return store.GetProfile(ctx, targetID)
}

// parseRoleStrict rejects unknown roles instead of falling back to volunteer
func parseRoleStrict(role string) (model.Role, error) {
	r := model.Role(strings.ToLower(strings.TrimSpace(role)))
	if !r.IsValid() {
		return "", fieldError("role", "must be one of: coordinator scout medic communicator volunteer")
	}
	return r, nil
}
