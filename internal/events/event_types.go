package events

import (
	"time"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventComplaintCreated         EventType = "complaint_created"
	EventComplaintStatusChanged   EventType = "complaint_status_changed"
	EventComplaintPriorityChanged EventType = "complaint_priority_changed"
	EventComplaintFeedbackAdded   EventType = "complaint_feedback_added"
)

// AllEventTypes lists every event the services emit.
var AllEventTypes = []EventType{
	EventComplaintCreated,
	EventComplaintStatusChanged,
	EventComplaintPriorityChanged,
	EventComplaintFeedbackAdded,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID          string      `json:"id"`
	Type        EventType   `json:"type"`
	ComplaintID string      `json:"complaint_id"`
	Actor       Actor       `json:"actor"`
	Timestamp   time.Time   `json:"timestamp"`
	Payload     interface{} `json:"payload"`
}

// ComplaintCreatedPayload payload.
type ComplaintCreatedPayload struct {
	Category domain.Category `json:"category"`
	Priority domain.Priority `json:"priority"`
	Title    string          `json:"title"`
}

// ComplaintStatusChangedPayload payload.
type ComplaintStatusChangedPayload struct {
	OldStatus  domain.ComplaintStatus `json:"old_status"`
	NewStatus  domain.ComplaintStatus `json:"new_status"`
	IsFinal    bool                   `json:"is_final"`
	Department *domain.Category       `json:"department,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
}

// ComplaintPriorityChangedPayload payload.
type ComplaintPriorityChangedPayload struct {
	OldPriority domain.Priority `json:"old_priority"`
	NewPriority domain.Priority `json:"new_priority"`
}

// ComplaintFeedbackAddedPayload payload.
type ComplaintFeedbackAddedPayload struct {
	Attempt  int    `json:"attempt"`
	Rating   *int   `json:"rating,omitempty"`
	ProofURL string `json:"proof_url,omitempty"`
}
