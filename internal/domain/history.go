package domain

import "time"

// ChangeType classifies an audit entry.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeStatus   ChangeType = "status"
	ChangePriority ChangeType = "priority"
	ChangeProof    ChangeType = "proof"
	ChangeRating   ChangeType = "rating"
)

// HistoryEntry is one audited change of a complaint.
type HistoryEntry struct {
	ID          string
	ComplaintID string
	ActorID     string
	ActorRole   Role
	ChangeType  ChangeType
	OldValue    string
	NewValue    string
	Reason      string
	CreatedAt   time.Time
}
