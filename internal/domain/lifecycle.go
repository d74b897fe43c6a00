package domain

import (
	"fmt"
	"strings"
	"time"
)

// TransitionError reports an operation whose precondition on the current state does not hold.
type TransitionError struct {
	Op     string
	From   ComplaintStatus
	Final  bool
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed from status %s (final=%t): %s", e.Op, e.From, e.Final, e.Reason)
}

func (c *Complaint) reject(op, reason string) error {
	return &TransitionError{Op: op, From: c.Status, Final: c.IsFinal, Reason: reason}
}

// NewComplaint builds a pending complaint with an empty feedback history.
func NewComplaint(reporterID, title, description string, category Category, location Location) *Complaint {
	return &Complaint{
		ReporterID:      reporterID,
		Title:           strings.TrimSpace(title),
		Description:     strings.TrimSpace(description),
		Category:        category,
		Location:        location,
		Priority:        PriorityMedium,
		Status:          StatusPending,
		FeedbackHistory: []FeedbackEntry{},
	}
}

// CheckSetStatus validates an admin status override without applying it.
func (c *Complaint) CheckSetStatus(next ComplaintStatus) error {
	if c.Terminal() {
		return c.reject("set_status", "complaint is final")
	}
	if c.Status == StatusReopened {
		return c.reject("set_status", "reopened complaints await superadmin review")
	}
	switch next {
	case StatusPending, StatusUnderConsideration:
		return nil
	case StatusResolved:
		return c.reject("set_status", "resolving requires a proof upload")
	default:
		return c.reject("set_status", fmt.Sprintf("admins cannot set status %s", next))
	}
}

// SetStatus applies an admin status override.
func (c *Complaint) SetStatus(next ComplaintStatus, now time.Time) error {
	if err := c.CheckSetStatus(next); err != nil {
		return err
	}
	c.Status = next
	c.UpdatedAt = now
	return nil
}

// CheckProof validates that a resolution proof may be attached.
func (c *Complaint) CheckProof() error {
	if c.Terminal() {
		return c.reject("send_proof", "complaint is final")
	}
	if c.Status == StatusReopened {
		return c.reject("send_proof", "reopened complaints await superadmin review")
	}
	return nil
}

// ApplyProof appends a new resolution attempt and marks the complaint resolved.
func (c *Complaint) ApplyProof(proofURL string, now time.Time) error {
	if err := c.CheckProof(); err != nil {
		return err
	}
	if strings.TrimSpace(proofURL) == "" {
		return c.reject("send_proof", "proof reference required")
	}
	c.FeedbackHistory = append(c.FeedbackHistory, FeedbackEntry{
		ComplaintID: c.ID,
		ProofURL:    proofURL,
		CreatedAt:   now,
	})
	c.Status = StatusResolved
	c.IsFinal = false
	c.UpdatedAt = now
	return nil
}

func (c *Complaint) awaitingReview(op string) error {
	if c.Status != StatusResolved {
		return c.reject(op, "complaint is not resolved")
	}
	if c.IsFinal {
		return c.reject(op, "complaint is final")
	}
	return nil
}

// ApplyFeedback records the reporter's review of the latest resolution and either reopens or closes.
func (c *Complaint) ApplyFeedback(rating int, comment string, wantsReopen bool, now time.Time) error {
	if err := c.awaitingReview("feedback"); err != nil {
		return err
	}
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating %d out of range 1-5", rating)
	}
	comment = strings.TrimSpace(comment)
	if latest := c.LatestFeedback(); latest != nil && !latest.Rated() {
		latest.Rating = &rating
		latest.Comment = comment
	} else {
		c.FeedbackHistory = append(c.FeedbackHistory, FeedbackEntry{
			ComplaintID: c.ID,
			Rating:      &rating,
			Comment:     comment,
			CreatedAt:   now,
		})
	}
	if wantsReopen {
		c.Status = StatusReopened
	} else {
		c.Status = StatusClosed
		c.IsFinal = true
	}
	c.UpdatedAt = now
	return nil
}

// Close accepts the resolution without a review.
func (c *Complaint) Close(now time.Time) error {
	if err := c.awaitingReview("close"); err != nil {
		return err
	}
	c.Status = StatusClosed
	c.IsFinal = true
	c.UpdatedAt = now
	return nil
}

// Forward sends a disputed complaint back into a department's work queue.
func (c *Complaint) Forward(department Category, now time.Time) error {
	if c.Status != StatusReopened || c.IsFinal {
		return c.reject("forward", "only reopened complaints can be forwarded")
	}
	c.Department = &department
	c.Status = StatusUnderConsideration
	c.UpdatedAt = now
	return nil
}

// Reject ends a dispute permanently.
func (c *Complaint) Reject(now time.Time) error {
	if c.Status != StatusReopened || c.IsFinal {
		return c.reject("reject", "only reopened complaints can be rejected")
	}
	c.Status = StatusClosed
	c.IsFinal = true
	c.UpdatedAt = now
	return nil
}

// SetPriority overrides the classifier's verdict.
func (c *Complaint) SetPriority(p Priority, now time.Time) error {
	if c.Terminal() {
		return c.reject("set_priority", "complaint is final")
	}
	c.Priority = p
	c.UpdatedAt = now
	return nil
}
