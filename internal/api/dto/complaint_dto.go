package dto

import (
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/service"
)

// CreateComplaintForm holds the text fields of the multipart create request.
type CreateComplaintForm struct {
	Title        string `form:"title" validate:"required,max=200"`
	Description  string `form:"description" validate:"required,max=5000"`
	Category     string `form:"category" validate:"required"`
	Latitude     string `form:"latitude" validate:"required,latitude"`
	Longitude    string `form:"longitude" validate:"required,longitude"`
	LocationName string `form:"locationName" validate:"max=300"`
}

// Location parses the coordinates. Call after Validate.
func (f CreateComplaintForm) Location() (domain.Location, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(f.Latitude), 64)
	if err != nil {
		return domain.Location{}, err
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(f.Longitude), 64)
	if err != nil {
		return domain.Location{}, err
	}
	return domain.Location{Latitude: lat, Longitude: lng}, nil
}

// SendProofForm holds the text fields of the multipart proof request.
type SendProofForm struct {
	ComplaintID string `form:"complaintId" validate:"required"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdatePriorityRequest payload.
type UpdatePriorityRequest struct {
	Priority string `json:"priority" validate:"required"`
}

// FeedbackRequest payload.
type FeedbackRequest struct {
	Rating        int    `json:"rating" validate:"required,min=1,max=5"`
	Comment       string `json:"comment" validate:"max=2000"`
	WantsToReopen bool   `json:"wantsToReopen"`
}

// ForwardRequest payload.
type ForwardRequest struct {
	Department string `json:"department" validate:"required"`
}

// ComplaintListQuery captures query filters for list endpoints.
type ComplaintListQuery struct {
	Statuses []domain.ComplaintStatus
	Page     int
	PageSize int
}

// Filter converts the query to service pagination.
func (q ComplaintListQuery) Filter() service.ComplaintListFilter {
	filter := service.ComplaintListFilter{Statuses: q.Statuses}
	if q.PageSize > 0 {
		page := q.Page
		if page < 1 {
			page = 1
		}
		filter.Limit = q.PageSize
		filter.Offset = (page - 1) * q.PageSize
	}
	return filter
}

// FeedbackEntryResponse is one resolution attempt.
type FeedbackEntryResponse struct {
	ID        string    `json:"id"`
	Rating    *int      `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	ProofURL  string    `json:"proofUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ComplaintResponse provides full complaint info.
type ComplaintResponse struct {
	ID              string                  `json:"id"`
	ReporterID      string                  `json:"reporterId"`
	Title           string                  `json:"title"`
	Description     string                  `json:"description"`
	Category        domain.Category         `json:"category"`
	ImageURL        string                  `json:"imageUrl"`
	VoiceNoteURL    string                  `json:"voiceNoteUrl,omitempty"`
	LocationName    string                  `json:"locationName,omitempty"`
	Location        domain.Location         `json:"location"`
	Priority        domain.Priority         `json:"priority"`
	Department      *domain.Category        `json:"department,omitempty"`
	Status          domain.ComplaintStatus  `json:"status"`
	IsFinal         bool                    `json:"isFinal"`
	FeedbackHistory []FeedbackEntryResponse `json:"feedbackHistory"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

// NewComplaintResponse maps a domain complaint.
func NewComplaintResponse(c *domain.Complaint) ComplaintResponse {
	history := make([]FeedbackEntryResponse, len(c.FeedbackHistory))
	for i, entry := range c.FeedbackHistory {
		history[i] = FeedbackEntryResponse{
			ID:        entry.ID,
			Rating:    entry.Rating,
			Comment:   entry.Comment,
			ProofURL:  entry.ProofURL,
			CreatedAt: entry.CreatedAt,
		}
	}
	return ComplaintResponse{
		ID:              c.ID,
		ReporterID:      c.ReporterID,
		Title:           c.Title,
		Description:     c.Description,
		Category:        c.Category,
		ImageURL:        c.ImageURL,
		VoiceNoteURL:    c.VoiceNoteURL,
		LocationName:    c.LocationName,
		Location:        c.Location,
		Priority:        c.Priority,
		Department:      c.Department,
		Status:          c.Status,
		IsFinal:         c.IsFinal,
		FeedbackHistory: history,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// NewComplaintListResponse maps a slice of complaints.
func NewComplaintListResponse(complaints []domain.Complaint) []ComplaintResponse {
	out := make([]ComplaintResponse, len(complaints))
	for i := range complaints {
		out[i] = NewComplaintResponse(&complaints[i])
	}
	return out
}

// SummaryResponse is the superadmin dashboard payload.
type SummaryResponse struct {
	Total       int                            `json:"total"`
	ByStatus    map[domain.ComplaintStatus]int `json:"byStatus"`
	ByCategory  map[domain.Category]int        `json:"byCategory"`
	UsersByRole map[domain.Role]int            `json:"usersByRole"`
}

// NewSummaryResponse maps service counters.
func NewSummaryResponse(s *service.Summary) SummaryResponse {
	return SummaryResponse{
		Total:       s.Total,
		ByStatus:    s.ByStatus,
		ByCategory:  s.ByCategory,
		UsersByRole: s.UsersByRole,
	}
}

// HistoryEntryResponse is one audited change.
type HistoryEntryResponse struct {
	ID         string            `json:"id"`
	ActorID    string            `json:"actorId,omitempty"`
	ActorRole  domain.Role       `json:"actorRole,omitempty"`
	ChangeType domain.ChangeType `json:"changeType"`
	OldValue   string            `json:"oldValue,omitempty"`
	NewValue   string            `json:"newValue,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// NewHistoryResponse converts audit entries.
func NewHistoryResponse(entries []domain.HistoryEntry) []HistoryEntryResponse {
	resp := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, HistoryEntryResponse{
			ID:         e.ID,
			ActorID:    e.ActorID,
			ActorRole:  e.ActorRole,
			ChangeType: e.ChangeType,
			OldValue:   e.OldValue,
			NewValue:   e.NewValue,
			Reason:     e.Reason,
			CreatedAt:  e.CreatedAt,
		})
	}
	return resp
}
