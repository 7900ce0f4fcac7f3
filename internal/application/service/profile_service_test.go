package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/workflow"
)

func TestProfileService_MeDefaultsToMember(t *testing.T) {
	f := newFixture(t)

	p, err := f.profiles.Me(context.Background(), "new-user")

	require.NoError(t, err)
	assert.Equal(t, "new-user", p.UserID)
	assert.Equal(t, entity.RoleMember, p.Role)
}

func TestProfileService_Upsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	saved, err := f.profiles.Upsert(ctx, admin, &entity.Profile{UserID: "exec-1", DisplayName: "Treasurer", Role: entity.RoleExecutiveOfficer})
	require.NoError(t, err)
	assert.Equal(t, entity.RoleExecutiveOfficer, saved.Role)

	actor, err := f.profiles.Actor(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, treasurer.UserID, actor.UserID)
	assert.Equal(t, entity.RoleExecutiveOfficer, actor.Role)

	t.Run("self edit keeps role", func(t *testing.T) {
		p, err := f.profiles.Upsert(ctx, treasurer, &entity.Profile{UserID: "exec-1", DisplayName: "Club Treasurer", Email: "t@example.org"})
		require.NoError(t, err)
		assert.Equal(t, entity.RoleExecutiveOfficer, p.Role)
		assert.Equal(t, "Club Treasurer", p.DisplayName)
	})

	t.Run("self promotion denied", func(t *testing.T) {
		_, err := f.profiles.Upsert(ctx, member, &entity.Profile{UserID: member.UserID, Role: entity.RoleAdministrator})
		assert.ErrorIs(t, err, workflow.ErrPermissionDenied)
	})

	t.Run("editing others denied", func(t *testing.T) {
		_, err := f.profiles.Upsert(ctx, member, &entity.Profile{UserID: "exec-1", DisplayName: "hacked"})
		assert.ErrorIs(t, err, workflow.ErrPermissionDenied)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := f.profiles.Upsert(ctx, admin, &entity.Profile{UserID: "x", Role: "overlord"})
		assert.ErrorIs(t, err, entity.ErrValidation)
	})

	t.Run("missing user id", func(t *testing.T) {
		_, err := f.profiles.Upsert(ctx, admin, &entity.Profile{UserID: "  "})
		assert.ErrorIs(t, err, entity.ErrValidation)
	})

	t.Run("malformed email", func(t *testing.T) {
		_, err := f.profiles.Upsert(ctx, admin, &entity.Profile{UserID: "exec-1", Email: "not-an-email"})
		assert.ErrorIs(t, err, entity.ErrValidation)
	})

	t.Run("display name is sanitized", func(t *testing.T) {
		p, err := f.profiles.Upsert(ctx, admin, &entity.Profile{UserID: "exec-1", DisplayName: " Treasurer\x07 "})
		require.NoError(t, err)
		assert.Equal(t, "Treasurer", p.DisplayName)
	})
}

func TestProfileService_ListIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.profiles.Upsert(ctx, admin, &entity.Profile{UserID: "exec-1", Role: entity.RoleExecutiveOfficer})
	require.NoError(t, err)

	_, err = f.profiles.List(ctx, treasurer)
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)

	all, err := f.profiles.List(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
