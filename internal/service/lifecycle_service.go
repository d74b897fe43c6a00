package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/classifier"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/repository"
	"github.com/spec-kit/complaint-service/internal/storage"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// LifecycleService coordinates complaint workflows.
type LifecycleService struct {
	complaints repository.ComplaintRepository
	blobs      storage.Store
	classifier classifier.Classifier
	gate       *auth.Gate
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	ComplaintRepo repository.ComplaintRepository
	Blobs         storage.Store
	Classifier    classifier.Classifier
	Gate          *auth.Gate
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	Clock         func() time.Time
}

// CreateComplaintInput describes complaint creation payload.
type CreateComplaintInput struct {
	Title        string
	Description  string
	Category     domain.Category
	LocationName string
	Location     domain.Location
	Image        []byte
	VoiceNote    []byte
}

// ComplaintListFilter describes listing filters.
type ComplaintListFilter struct {
	Statuses []domain.ComplaintStatus
	Limit    int
	Offset   int
}

// FeedbackInput is the reporter's review of a resolution.
type FeedbackInput struct {
	Rating      int
	Comment     string
	WantsReopen bool
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clf := deps.Classifier
	if clf == nil {
		clf = classifier.NewKeywordClassifier()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &LifecycleService{
		complaints: deps.ComplaintRepo,
		blobs:      deps.Blobs,
		classifier: clf,
		gate:       deps.Gate,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        clock,
	}
}

// Create files a new pending complaint for the calling citizen.
func (s *LifecycleService) Create(ctx context.Context, actor domain.Actor, input CreateComplaintInput) (*domain.Complaint, error) {
	if err := s.gate.Authorize(actor, auth.PermComplaintCreate); err != nil {
		return nil, err
	}
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	complaint := domain.NewComplaint(actor.UserID, input.Title, input.Description, input.Category, input.Location)
	complaint.LocationName = strings.TrimSpace(input.LocationName)
	complaint.Priority = s.classify(ctx, complaint.Description)

	image, err := s.upload(ctx, storage.FolderComplaints, input.Image, "image", storage.MediaImage)
	if err != nil {
		return nil, err
	}
	uploaded := []*storage.Object{image}
	complaint.ImageURL = image.URL

	if len(input.VoiceNote) > 0 {
		voice, err := s.upload(ctx, storage.FolderComplaints, input.VoiceNote, "voiceNote", storage.MediaAudio, storage.MediaVideo)
		if err != nil {
			s.discard(uploaded...)
			return nil, err
		}
		uploaded = append(uploaded, voice)
		complaint.VoiceNoteURL = voice.URL
	}

	if err := s.complaints.Create(ctx, complaint); err != nil {
		s.discard(uploaded...)
		return nil, apperrors.NewDependencyError("complaint store", err)
	}

	s.publishEvent(ctx, events.Event{
		Type:        events.EventComplaintCreated,
		ComplaintID: complaint.ID,
		Actor:       eventActor(actor),
		Payload: events.ComplaintCreatedPayload{
			Category: complaint.Category,
			Priority: complaint.Priority,
			Title:    complaint.Title,
		},
	})
	return complaint, nil
}

// Get fetches one complaint the actor is allowed to see.
func (s *LifecycleService) Get(ctx context.Context, actor domain.Actor, id string) (*domain.Complaint, error) {
	if err := s.gate.Authorize(actor, auth.PermComplaintRead); err != nil {
		return nil, err
	}
	complaint, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Covers(complaint) {
		return nil, scopeError(actor, complaint)
	}
	return complaint, nil
}

// ListAll returns the staff worklist, newest first. Admins only see their department.
func (s *LifecycleService) ListAll(ctx context.Context, actor domain.Actor, filter ComplaintListFilter) ([]domain.Complaint, error) {
	if err := s.gate.Authorize(actor, auth.PermComplaintList); err != nil {
		return nil, err
	}
	repoFilter := repository.ComplaintFilter{
		Statuses: filter.Statuses,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}
	if actor.Role == domain.RoleAdmin {
		if actor.Department == nil {
			return nil, apperrors.NewForbidden("admin has no department")
		}
		department := *actor.Department
		repoFilter.RoutedTo = &department
	}
	complaints, err := s.complaints.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.NewDependencyError("complaint store", err)
	}
	return complaints, nil
}

// ListMine returns the caller's own complaints, newest first.
func (s *LifecycleService) ListMine(ctx context.Context, actor domain.Actor, filter ComplaintListFilter) ([]domain.Complaint, error) {
	if err := s.gate.Authorize(actor, auth.PermComplaintListOwn); err != nil {
		return nil, err
	}
	reporter := actor.UserID
	complaints, err := s.complaints.List(ctx, repository.ComplaintFilter{
		ReporterID: &reporter,
		Statuses:   filter.Statuses,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
	if err != nil {
		return nil, apperrors.NewDependencyError("complaint store", err)
	}
	return complaints, nil
}

// SetStatus applies an admin override on a non-terminal complaint.
func (s *LifecycleService) SetStatus(ctx context.Context, actor domain.Actor, id string, status domain.ComplaintStatus) (*domain.Complaint, error) {
	if err := s.gate.Authorize(actor, auth.PermComplaintSetStatus); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": status})
	}
	complaint, previous, err := s.mutate(ctx, actor, id, func(c *domain.Complaint) error {
		return c.SetStatus(status, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.publishStatusChange(ctx, actor, complaint, previous, "")
	return complaint, nil
}

// SetPriority overrides the classifier's priority.
func (s *LifecycleService) SetPriority(ctx context.Context, actor domain.Actor, id string, priority domain.Priority) (*domain.Complaint, error) {
	if err := s.gate.Authorize(actor, auth.PermComplaintSetPriority); err != nil {
		return nil, err
	}
	parsed, err := domain.ParsePriority(string(priority))
	if err != nil {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	var oldPriority domain.Priority
	complaint, _, err := s.mutate(ctx, actor, id, func(c *domain.Complaint) error {
		oldPriority = c.Priority
		return c.SetPriority(parsed, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:        events.EventComplaintPriorityChanged,
		ComplaintID: complaint.ID,
		Actor:       eventActor(actor),
		Payload: events.ComplaintPriorityChangedPayload{
			OldPriority: oldPriority,
			NewPriority: complaint.Priority,
		},
	})
	return complaint, nil
}

// SendProof uploads a resolution proof, appends a feedback entry, and marks the complaint resolved.
// The upload happens only after the precondition holds, and is removed again if the write fails.
func (s *LifecycleService) SendProof(ctx context.Context, actor domain.Actor, id string, proof []byte) (*domain.Complaint, error) {
	if err := s.gate.Authorize(actor, auth.PermComplaintSendProof); err != nil {
		return nil, err
	}
	if len(proof) == 0 {
		return nil, apperrors.NewValidationError("proof file is required", map[string]any{"field": "proof"})
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Covers(current) {
		return nil, scopeError(actor, current)
	}
	if err := current.CheckProof(); err != nil {
		return nil, translateError(err, id)
	}

	object, err := s.upload(ctx, storage.FolderProofs, proof, "proof", storage.MediaImage)
	if err != nil {
		return nil, err
	}

	complaint, previous, err := s.mutate(ctx, actor, id, func(c *domain.Complaint) error {
		return c.ApplyProof(object.URL, s.now())
	})
	if err != nil {
		s.discard(object)
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:        events.EventComplaintFeedbackAdded,
		ComplaintID: complaint.ID,
		Actor:       eventActor(actor),
		Payload: events.ComplaintFeedbackAddedPayload{
			Attempt:  len(complaint.FeedbackHistory),
			ProofURL: object.URL,
		},
	})
	s.publishStatusChange(ctx, actor, complaint, previous, "proof_submitted")
	return complaint, nil
}

// SubmitFeedback records the reporter's rating and either reopens or closes the complaint.
func (s *LifecycleService) SubmitFeedback(ctx context.Context, actor domain.Actor, id string, input FeedbackInput) (*domain.Complaint, error) {
	if err := s.gate.Authorize(actor, auth.PermComplaintFeedback); err != nil {
		return nil, err
	}
	if input.Rating < 1 || input.Rating > 5 {
		return nil, apperrors.NewValidationError("rating must be between 1 and 5", map[string]any{"rating": input.Rating})
	}
	complaint, previous, err := s.mutate(ctx, actor, id, func(c *domain.Complaint) error {
		return c.ApplyFeedback(input.Rating, input.Comment, input.WantsReopen, s.now())
	})
	if err != nil {
		return nil, err
	}

	rating := input.Rating
	s.publishEvent(ctx, events.Event{
		Type:        events.EventComplaintFeedbackAdded,
		ComplaintID: complaint.ID,
		Actor:       eventActor(actor),
		Payload: events.ComplaintFeedbackAddedPayload{
			Attempt: len(complaint.FeedbackHistory),
			Rating:  &rating,
		},
	})
	reason := "feedback_accepted"
	if input.WantsReopen {
		reason = "feedback_reopened"
	}
	s.publishStatusChange(ctx, actor, complaint, previous, reason)
	return complaint, nil
}

// Close lets the reporter accept a resolution without reviewing it.
func (s *LifecycleService) Close(ctx context.Context, actor domain.Actor, id string) (*domain.Complaint, error) {
	if err := s.gate.Authorize(actor, auth.PermComplaintClose); err != nil {
		return nil, err
	}
	complaint, previous, err := s.mutate(ctx, actor, id, func(c *domain.Complaint) error {
		return c.Close(s.now())
	})
	if err != nil {
		return nil, err
	}
	s.publishStatusChange(ctx, actor, complaint, previous, "reporter_closed")
	return complaint, nil
}

// Forward routes a reopened complaint to a department's queue.
func (s *LifecycleService) Forward(ctx context.Context, actor domain.Actor, id string, department domain.Category) (*domain.Complaint, error) {
	if err := s.gate.Authorize(actor, auth.PermComplaintForward); err != nil {
		return nil, err
	}
	if _, err := domain.ParseCategory(string(department)); err != nil {
		return nil, apperrors.NewValidationError("invalid department", map[string]any{"department": department})
	}
	complaint, previous, err := s.mutate(ctx, actor, id, func(c *domain.Complaint) error {
		return c.Forward(department, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.publishStatusChange(ctx, actor, complaint, previous, "forwarded")
	return complaint, nil
}

// Reject ends a dispute; the complaint becomes final.
func (s *LifecycleService) Reject(ctx context.Context, actor domain.Actor, id string) (*domain.Complaint, error) {
	if err := s.gate.Authorize(actor, auth.PermComplaintReject); err != nil {
		return nil, err
	}
	complaint, previous, err := s.mutate(ctx, actor, id, func(c *domain.Complaint) error {
		return c.Reject(s.now())
	})
	if err != nil {
		return nil, err
	}
	s.publishStatusChange(ctx, actor, complaint, previous, "rejected")
	return complaint, nil
}

// mutate runs apply against the locked row after the scope check. Callers authorize first.
func (s *LifecycleService) mutate(ctx context.Context, actor domain.Actor, id string, apply func(c *domain.Complaint) error) (*domain.Complaint, domain.ComplaintStatus, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, "", apperrors.NewNotFound("complaint", map[string]any{"id": id})
	}

	var previous domain.ComplaintStatus
	complaint, err := s.complaints.Mutate(ctx, id, func(c *domain.Complaint) error {
		if !actor.Covers(c) {
			return scopeError(actor, c)
		}
		previous = c.Status
		return apply(c)
	})
	if err != nil {
		return nil, "", translateError(err, id)
	}
	return complaint, previous, nil
}

func (s *LifecycleService) load(ctx context.Context, id string) (*domain.Complaint, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NewNotFound("complaint", map[string]any{"id": id})
	}
	complaint, err := s.complaints.GetByID(ctx, id)
	if err != nil {
		return nil, translateError(err, id)
	}
	return complaint, nil
}

func (s *LifecycleService) classify(ctx context.Context, description string) domain.Priority {
	priority, err := s.classifier.Classify(ctx, description)
	if err != nil {
		s.logger.Warn("classifier failed; defaulting priority", zap.Error(err))
		return domain.PriorityMedium
	}
	return priority
}

func (s *LifecycleService) upload(ctx context.Context, folder string, data []byte, field string, allowed ...storage.MediaKind) (*storage.Object, error) {
	object, err := s.blobs.Upload(ctx, folder, data, allowed...)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedMedia) {
			return nil, apperrors.NewValidationError(err.Error(), map[string]any{"field": field})
		}
		return nil, apperrors.NewDependencyError("blob store", err)
	}
	return object, nil
}

// discard removes blobs whose record write failed. It runs detached from the request context.
func (s *LifecycleService) discard(objects ...*storage.Object) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, object := range objects {
		if err := s.blobs.Delete(ctx, object.Key); err != nil {
			s.logger.Error("discard orphaned upload", zap.String("key", object.Key), zap.Error(err))
		}
	}
}

func (s *LifecycleService) publishStatusChange(ctx context.Context, actor domain.Actor, complaint *domain.Complaint, previous domain.ComplaintStatus, reason string) {
	s.publishEvent(ctx, events.Event{
		Type:        events.EventComplaintStatusChanged,
		ComplaintID: complaint.ID,
		Actor:       eventActor(actor),
		Payload: events.ComplaintStatusChangedPayload{
			OldStatus:  previous,
			NewStatus:  complaint.Status,
			IsFinal:    complaint.IsFinal,
			Department: complaint.Department,
			Reason:     reason,
		},
	})
}

func (s *LifecycleService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("complaint_id", event.ComplaintID),
			zap.Error(err))
	}
}

func validateCreate(input CreateComplaintInput) error {
	missing := []string{}
	if strings.TrimSpace(input.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(input.Description) == "" {
		missing = append(missing, "description")
	}
	if input.Category == "" {
		missing = append(missing, "category")
	}
	if len(input.Image) == 0 {
		missing = append(missing, "image")
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError("missing required fields", map[string]any{"fields": missing})
	}
	if _, err := domain.ParseCategory(string(input.Category)); err != nil {
		return apperrors.NewValidationError("invalid category", map[string]any{"category": input.Category})
	}
	if err := input.Location.Validate(); err != nil {
		return apperrors.NewValidationError(err.Error(), map[string]any{"field": "location"})
	}
	return nil
}

func translateError(err error, id string) error {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var transition *domain.TransitionError
	if errors.As(err, &transition) {
		return apperrors.NewInvalidState(transition.Error(), map[string]any{
			"operation": transition.Op,
			"status":    transition.From,
			"is_final":  transition.Final,
		})
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("complaint", map[string]any{"id": id})
	}
	return apperrors.NewDependencyError("complaint store", err)
}

func scopeError(actor domain.Actor, complaint *domain.Complaint) error {
	if actor.Role == domain.RoleCitizen {
		return apperrors.NewForbidden("complaint belongs to another reporter")
	}
	return apperrors.NewDomainError("FORBIDDEN", "complaint is outside your department", http.StatusForbidden, map[string]any{
		"department": complaint.RoutedTo(),
	})
}

func eventActor(actor domain.Actor) events.Actor {
	return events.Actor{UserID: actor.UserID, Role: actor.Role}
}
