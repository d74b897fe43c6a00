package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/repository"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// UserService manages accounts on behalf of the superadmin.
type UserService struct {
	users repository.UserRepository
	gate  *auth.Gate
}

// UpdateUserInput changes an account's role and department.
type UpdateUserInput struct {
	Role       domain.Role
	Department *domain.Category
}

// NewUserService constructs the service.
func NewUserService(users repository.UserRepository, gate *auth.Gate) *UserService {
	return &UserService{users: users, gate: gate}
}

// List returns every account, newest first.
func (s *UserService) List(ctx context.Context, actor domain.Actor) ([]domain.User, error) {
	if err := s.gate.Authorize(actor, auth.PermUserList); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperrors.NewDependencyError("user store", err)
	}
	return users, nil
}

// Update changes role and department. Admins must carry a department; other roles never do.
func (s *UserService) Update(ctx context.Context, actor domain.Actor, id string, input UpdateUserInput) (*domain.User, error) {
	if err := s.gate.Authorize(actor, auth.PermUserUpdate); err != nil {
		return nil, err
	}
	if _, err := domain.ParseRole(string(input.Role)); err != nil {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": input.Role})
	}
	if input.Role == domain.RoleAdmin {
		if input.Department == nil {
			return nil, apperrors.NewValidationError("admins require a department", map[string]any{"field": "department"})
		}
		if _, err := domain.ParseCategory(string(*input.Department)); err != nil {
			return nil, apperrors.NewValidationError("invalid department", map[string]any{"department": *input.Department})
		}
	}
	if id == actor.UserID && input.Role != actor.Role {
		return nil, apperrors.NewForbidden("cannot change your own role")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NewNotFound("user", map[string]any{"id": id})
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		return nil, apperrors.NewDependencyError("user store", err)
	}

	user.Role = input.Role
	user.Department = nil
	if input.Role == domain.RoleAdmin {
		department := *input.Department
		user.Department = &department
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperrors.NewDependencyError("user store", err)
	}
	return user, nil
}
