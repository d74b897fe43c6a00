package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/domain"
)

func TestUserServiceUpdate(t *testing.T) {
	gate, err := auth.NewDefaultGate()
	require.NoError(t, err)
	users := newMemUsers()
	svc := NewUserService(users, gate)
	ctx := context.Background()

	target := &domain.User{Name: "Ravi", Email: "ravi@example.com", Role: domain.RoleCitizen}
	require.NoError(t, users.Create(ctx, target))
	root := &domain.User{Name: "Root", Email: "root@example.com", Role: domain.RoleSuperadmin}
	require.NoError(t, users.Create(ctx, root))
	rootActor := domain.ActorFor(root)

	_, err = svc.Update(ctx, rootActor, target.ID, UpdateUserInput{Role: domain.RoleAdmin})
	assertCode(t, err, "VALIDATION_FAILED")

	promoted, err := svc.Update(ctx, rootActor, target.ID, UpdateUserInput{Role: domain.RoleAdmin, Department: &roads})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, promoted.Role)
	require.NotNil(t, promoted.Department)
	assert.Equal(t, domain.CategoryRoads, *promoted.Department)

	demoted, err := svc.Update(ctx, rootActor, target.ID, UpdateUserInput{Role: domain.RoleCitizen, Department: &roads})
	require.NoError(t, err)
	assert.Nil(t, demoted.Department)

	_, err = svc.Update(ctx, rootActor, root.ID, UpdateUserInput{Role: domain.RoleCitizen})
	assertCode(t, err, "FORBIDDEN")

	_, err = svc.Update(ctx, domain.ActorFor(target), target.ID, UpdateUserInput{Role: domain.RoleSuperadmin})
	assertCode(t, err, "FORBIDDEN")

	_, err = svc.Update(ctx, rootActor, "6f1f2c36-8d0a-4bb4-9a8e-1c1c7f1d2a10", UpdateUserInput{Role: domain.RoleCitizen})
	assertCode(t, err, "NOT_FOUND")

	_, err = svc.Update(ctx, rootActor, target.ID, UpdateUserInput{Role: "mayor"})
	assertCode(t, err, "VALIDATION_FAILED")

	listed, err := svc.List(ctx, rootActor)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestStatsSummary(t *testing.T) {
	f := newLifecycleFixture(t)
	users := newMemUsers()
	gate, err := auth.NewDefaultGate()
	require.NoError(t, err)
	svc := NewStatsService(f.repo, users, gate)
	ctx := context.Background()

	_, err = f.svc.Create(ctx, citizen, potholeInput())
	require.NoError(t, err)
	require.NoError(t, users.Create(ctx, &domain.User{Email: "c@example.com", Role: domain.RoleCitizen}))

	summary, err := svc.Summary(ctx, superadmin)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.ByStatus[domain.StatusPending])
	assert.Equal(t, 0, summary.ByStatus[domain.StatusClosed])
	assert.Len(t, summary.ByStatus, len(domain.AllStatuses))
	assert.Equal(t, 1, summary.ByCategory[domain.CategoryRoads])
	assert.Len(t, summary.ByCategory, len(domain.Categories))
	assert.Equal(t, 1, summary.UsersByRole[domain.RoleCitizen])
	assert.Equal(t, 0, summary.UsersByRole[domain.RoleAdmin])

	_, err = svc.Summary(ctx, roadsAdmin)
	assertCode(t, err, "FORBIDDEN")
}
