package domain

import "time"

// FeedbackEntry is one resolution attempt: the admin's proof and the citizen's review of it.
// Entries are append-only; only an unset rating may be filled in later.
type FeedbackEntry struct {
	ID          string
	ComplaintID string
	Rating      *int
	Comment     string
	ProofURL    string
	CreatedAt   time.Time
}

// Rated reports whether the citizen has reviewed this entry.
func (f *FeedbackEntry) Rated() bool {
	return f.Rating != nil
}
