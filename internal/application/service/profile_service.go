package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/workflow"
	"github.com/ieeeucsd/dashboard-finance/pkg/utils"
)

// ProfileService resolves signed-in users to actors and manages profiles
type ProfileService interface {
	// Me returns the user's profile; users without one are members
	Me(ctx context.Context, userID string) (*entity.Profile, error)
	Actor(ctx context.Context, userID string) (entity.Actor, error)
	Upsert(ctx context.Context, actor entity.Actor, profile *entity.Profile) (*entity.Profile, error)
	List(ctx context.Context, actor entity.Actor) ([]*entity.Profile, error)
}

type profileServiceImpl struct {
	repo   port.ProfileRepository
	policy *workflow.RolePolicy
	logger Logger
}

// NewProfileService creates a new ProfileService
func NewProfileService(repo port.ProfileRepository, policy *workflow.RolePolicy, logger Logger) ProfileService {
	if policy == nil {
		policy = workflow.DefaultRolePolicy()
	}
	return &profileServiceImpl{
		repo:   repo,
		policy: policy,
		logger: logger,
	}
}

// Me returns the stored profile or a default member profile
func (s *profileServiceImpl) Me(ctx context.Context, userID string) (*entity.Profile, error) {
	p, err := s.repo.GetByUserID(ctx, userID)
	if errors.Is(err, port.ErrNotFound) {
		return &entity.Profile{UserID: userID, Role: entity.RoleMember}, nil
	}
	if err != nil {
		s.logger.Error("Failed to load profile", "user_id", userID, "error", err)
		return nil, err
	}
	return p, nil
}

// Actor resolves the role of a signed-in user
func (s *profileServiceImpl) Actor(ctx context.Context, userID string) (entity.Actor, error) {
	p, err := s.Me(ctx, userID)
	if err != nil {
		return entity.Actor{}, err
	}
	return entity.ActorFromProfile(p), nil
}

// Upsert lets administrators write any profile. Everybody else may only
// update their own display name and email.
func (s *profileServiceImpl) Upsert(ctx context.Context, actor entity.Actor, profile *entity.Profile) (*entity.Profile, error) {
	profile.UserID = strings.TrimSpace(profile.UserID)
	if profile.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", entity.ErrValidation)
	}
	profile.DisplayName = utils.SanitizeString(profile.DisplayName)
	profile.Email = strings.TrimSpace(profile.Email)
	if profile.Email != "" {
		if err := utils.ValidateEmail(profile.Email); err != nil {
			return nil, fmt.Errorf("%w: %v", entity.ErrValidation, err)
		}
	}

	existing, err := s.Me(ctx, profile.UserID)
	if err != nil {
		return nil, err
	}

	if s.policy.IsAdministrator(actor.Role) {
		if profile.Role == "" {
			profile.Role = existing.Role
		}
	} else {
		if actor.UserID != profile.UserID {
			return nil, fmt.Errorf("%w: only administrators may edit other profiles", workflow.ErrPermissionDenied)
		}
		if profile.Role != "" && profile.Role != existing.Role {
			return nil, fmt.Errorf("%w: only administrators may change roles", workflow.ErrPermissionDenied)
		}
		profile.Role = existing.Role
	}
	if !profile.Role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", entity.ErrValidation, profile.Role)
	}

	if err := s.repo.Upsert(ctx, profile); err != nil {
		s.logger.Error("Failed to save profile", "user_id", profile.UserID, "error", err)
		return nil, err
	}

	s.logger.Info("Profile saved", "user_id", profile.UserID, "role", profile.Role, "actor", actor.UserID)
	return profile, nil
}

// List returns every profile. Administrators only.
func (s *profileServiceImpl) List(ctx context.Context, actor entity.Actor) ([]*entity.Profile, error) {
	if !s.policy.IsAdministrator(actor.Role) {
		return nil, fmt.Errorf("%w: only administrators may list profiles", workflow.ErrPermissionDenied)
	}
	return s.repo.List(ctx)
}
