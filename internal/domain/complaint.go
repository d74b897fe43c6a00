package domain

import (
	"fmt"
	"strings"
	"time"
)

// ComplaintStatus enumerates lifecycle states for complaints.
type ComplaintStatus string

const (
	StatusPending            ComplaintStatus = "pending"
	StatusUnderConsideration ComplaintStatus = "under_consideration"
	StatusResolved           ComplaintStatus = "resolved"
	StatusReopened           ComplaintStatus = "reopened"
	StatusReassigned         ComplaintStatus = "reassigned"
	StatusClosed             ComplaintStatus = "closed"
)

// AllStatuses lists every legal status in lifecycle order.
var AllStatuses = []ComplaintStatus{
	StatusPending,
	StatusUnderConsideration,
	StatusResolved,
	StatusReopened,
	StatusReassigned,
	StatusClosed,
}

// ParseStatus accepts the canonical names plus the spaced variant used by older clients.
func ParseStatus(raw string) (ComplaintStatus, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "_")
	for _, status := range AllStatuses {
		if string(status) == normalized {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

// Valid reports whether s belongs to the closed status set.
func (s ComplaintStatus) Valid() bool {
	for _, status := range AllStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// Priority enumerates complaint urgency.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// ParsePriority is case-insensitive.
func ParsePriority(raw string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	}
	return "", fmt.Errorf("unknown priority %q", raw)
}

// Location is a WGS84 point.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks coordinate ranges.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", l.Longitude)
	}
	return nil
}

// Complaint is the aggregate for citizen-reported civic issues.
type Complaint struct {
	ID              string
	ReporterID      string
	Title           string
	Description     string
	Category        Category
	ImageURL        string
	VoiceNoteURL    string
	LocationName    string
	Location        Location
	Priority        Priority
	Department      *Category
	Status          ComplaintStatus
	IsFinal         bool
	FeedbackHistory []FeedbackEntry
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Terminal reports whether no further transition is enabled.
func (c *Complaint) Terminal() bool {
	return c.IsFinal || c.Status == StatusClosed
}

// RoutedTo returns the department currently responsible for the complaint.
func (c *Complaint) RoutedTo() Category {
	if c.Department != nil {
		return *c.Department
	}
	return c.Category
}

// LatestFeedback returns the most recent entry, or nil.
func (c *Complaint) LatestFeedback() *FeedbackEntry {
	if len(c.FeedbackHistory) == 0 {
		return nil
	}
	return &c.FeedbackHistory[len(c.FeedbackHistory)-1]
}
