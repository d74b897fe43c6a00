package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/repository"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// HistoryService keeps the audit trail of complaint changes. Entries are written from domain events.
type HistoryService struct {
	history    repository.HistoryRepository
	complaints repository.ComplaintRepository
	gate       *auth.Gate
	logger     *zap.Logger
}

// NewHistoryService creates the service.
func NewHistoryService(history repository.HistoryRepository, complaints repository.ComplaintRepository, gate *auth.Gate, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{history: history, complaints: complaints, gate: gate, logger: logger}
}

// RegisterHandlers subscribes the recorder to every complaint event.
func (s *HistoryService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		dispatcher.Subscribe(eventType, s.record)
	}
}

// List returns the audit trail of a complaint the actor may see, oldest first.
func (s *HistoryService) List(ctx context.Context, actor domain.Actor, complaintID string) ([]domain.HistoryEntry, error) {
	if err := s.gate.Authorize(actor, auth.PermComplaintRead); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(complaintID); err != nil {
		return nil, apperrors.NewNotFound("complaint", map[string]any{"id": complaintID})
	}
	complaint, err := s.complaints.GetByID(ctx, complaintID)
	if err != nil {
		return nil, translateError(err, complaintID)
	}
	if !actor.Covers(complaint) {
		return nil, scopeError(actor, complaint)
	}
	entries, err := s.history.ListByComplaint(ctx, complaintID)
	if err != nil {
		return nil, apperrors.NewDependencyError("history store", err)
	}
	return entries, nil
}

func (s *HistoryService) record(ctx context.Context, event events.Event) error {
	entry := domain.HistoryEntry{
		ComplaintID: event.ComplaintID,
		ActorID:     event.Actor.UserID,
		ActorRole:   event.Actor.Role,
		CreatedAt:   event.Timestamp,
	}
	switch payload := event.Payload.(type) {
	case events.ComplaintCreatedPayload:
		entry.ChangeType = domain.ChangeCreated
		entry.NewValue = string(domain.StatusPending)
	case events.ComplaintStatusChangedPayload:
		entry.ChangeType = domain.ChangeStatus
		entry.OldValue = string(payload.OldStatus)
		entry.NewValue = string(payload.NewStatus)
		entry.Reason = payload.Reason
	case events.ComplaintPriorityChangedPayload:
		entry.ChangeType = domain.ChangePriority
		entry.OldValue = string(payload.OldPriority)
		entry.NewValue = string(payload.NewPriority)
	case events.ComplaintFeedbackAddedPayload:
		if payload.Rating != nil {
			entry.ChangeType = domain.ChangeRating
			entry.NewValue = strconv.Itoa(*payload.Rating)
		} else {
			entry.ChangeType = domain.ChangeProof
			entry.NewValue = payload.ProofURL
		}
		entry.Reason = "attempt " + strconv.Itoa(payload.Attempt)
	default:
		s.logger.Debug("no history mapping for event", zap.String("event_type", string(event.Type)))
		return nil
	}

	if err := s.history.Create(ctx, &entry); err != nil {
		return fmt.Errorf("record %s for complaint %s: %w", event.Type, event.ComplaintID, err)
	}
	return nil
}
