package service

import (
	"context"

	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/repository"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// Summary aggregates dashboard counters.
type Summary struct {
	Total       int
	ByStatus    map[domain.ComplaintStatus]int
	ByCategory  map[domain.Category]int
	UsersByRole map[domain.Role]int
}

// StatsService serves the superadmin dashboard counters.
type StatsService struct {
	complaints repository.ComplaintRepository
	users      repository.UserRepository
	gate       *auth.Gate
}

// NewStatsService constructs the service.
func NewStatsService(complaints repository.ComplaintRepository, users repository.UserRepository, gate *auth.Gate) *StatsService {
	return &StatsService{complaints: complaints, users: users, gate: gate}
}

// Summary counts complaints by status and category, and accounts by role. Every status and
// category is present, zero when unused.
func (s *StatsService) Summary(ctx context.Context, actor domain.Actor) (*Summary, error) {
	if err := s.gate.Authorize(actor, auth.PermStatsRead); err != nil {
		return nil, err
	}
	byStatus, err := s.complaints.CountByStatus(ctx)
	if err != nil {
		return nil, apperrors.NewDependencyError("complaint store", err)
	}
	byCategory, err := s.complaints.CountByCategory(ctx)
	if err != nil {
		return nil, apperrors.NewDependencyError("complaint store", err)
	}
	byRole, err := s.users.CountByRole(ctx)
	if err != nil {
		return nil, apperrors.NewDependencyError("user store", err)
	}

	summary := &Summary{
		ByStatus:    make(map[domain.ComplaintStatus]int, len(domain.AllStatuses)),
		ByCategory:  make(map[domain.Category]int, len(domain.Categories)),
		UsersByRole: map[domain.Role]int{domain.RoleCitizen: 0, domain.RoleAdmin: 0, domain.RoleSuperadmin: 0},
	}
	for _, status := range domain.AllStatuses {
		summary.ByStatus[status] = byStatus[status]
		summary.Total += byStatus[status]
	}
	for _, category := range domain.Categories {
		summary.ByCategory[category] = byCategory[category]
	}
	for role, count := range byRole {
		summary.UsersByRole[role] = count
	}
	return summary, nil
}
