package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/spec-kit/complaint-service/internal/api/dto"
	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/service"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// ComplaintsHandler exposes the complaint lifecycle over HTTP.
type ComplaintsHandler struct {
	service *service.LifecycleService
}

// NewComplaintsHandler constructs handler.
func NewComplaintsHandler(lifecycle *service.LifecycleService) *ComplaintsHandler {
	return &ComplaintsHandler{service: lifecycle}
}

// Create POST /api/complaints (multipart).
func (h *ComplaintsHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var form dto.CreateComplaintForm
	if err := c.BodyParser(&form); err != nil {
		return apperrors.NewValidationError("invalid form", nil)
	}
	if err := dto.Validate(form); err != nil {
		return err
	}
	location, err := form.Location()
	if err != nil {
		return apperrors.NewValidationError("invalid coordinates", map[string]any{"field": "location"})
	}
	category, err := domain.ParseCategory(form.Category)
	if err != nil {
		return apperrors.NewValidationError("invalid category", map[string]any{"category": form.Category})
	}

	image, err := formFile(c, "image")
	if err != nil {
		return err
	}
	if image == nil {
		return apperrors.NewValidationError("image is required", map[string]any{"field": "image"})
	}
	voiceNote, err := formFile(c, "voiceNote")
	if err != nil {
		return err
	}

	complaint, err := h.service.Create(c.UserContext(), actor, service.CreateComplaintInput{
		Title:        form.Title,
		Description:  form.Description,
		Category:     category,
		LocationName: form.LocationName,
		Location:     location,
		Image:        image,
		VoiceNote:    voiceNote,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewComplaintResponse(complaint)})
}

// List GET /api/complaints.
func (h *ComplaintsHandler) List(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	query, err := parseComplaintListQuery(c)
	if err != nil {
		return err
	}
	complaints, err := h.service.ListAll(c.UserContext(), actor, query.Filter())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewComplaintListResponse(complaints)})
}

// ListMine GET /api/complaints/mycomplaints.
func (h *ComplaintsHandler) ListMine(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	query, err := parseComplaintListQuery(c)
	if err != nil {
		return err
	}
	complaints, err := h.service.ListMine(c.UserContext(), actor, query.Filter())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewComplaintListResponse(complaints)})
}

// Get GET /api/complaints/:id.
func (h *ComplaintsHandler) Get(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	complaint, err := h.service.Get(c.UserContext(), actor, routeID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewComplaintResponse(complaint)})
}

// UpdateStatus PUT /api/complaints/:id/status.
func (h *ComplaintsHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := parseJSON(c, &req); err != nil {
		return err
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": req.Status})
	}
	complaint, err := h.service.SetStatus(c.UserContext(), actor, routeID(c), status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewComplaintResponse(complaint)})
}

// UpdatePriority PUT /api/complaints/:id/priority.
func (h *ComplaintsHandler) UpdatePriority(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdatePriorityRequest
	if err := parseJSON(c, &req); err != nil {
		return err
	}
	complaint, err := h.service.SetPriority(c.UserContext(), actor, routeID(c), domain.Priority(req.Priority))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewComplaintResponse(complaint)})
}

// SendProof POST /api/complaints/sendProof (multipart).
func (h *ComplaintsHandler) SendProof(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var form dto.SendProofForm
	if err := c.BodyParser(&form); err != nil {
		return apperrors.NewValidationError("invalid form", nil)
	}
	if err := dto.Validate(form); err != nil {
		return err
	}
	proof, err := formFile(c, "proof")
	if err != nil {
		return err
	}
	if proof == nil {
		return apperrors.NewValidationError("proof file is required", map[string]any{"field": "proof"})
	}
	complaint, err := h.service.SendProof(c.UserContext(), actor, form.ComplaintID, proof)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewComplaintResponse(complaint)})
}

// Feedback POST /api/complaints/:id/feedback.
func (h *ComplaintsHandler) Feedback(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.FeedbackRequest
	if err := parseJSON(c, &req); err != nil {
		return err
	}
	complaint, err := h.service.SubmitFeedback(c.UserContext(), actor, routeID(c), service.FeedbackInput{
		Rating:      req.Rating,
		Comment:     req.Comment,
		WantsReopen: req.WantsToReopen,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewComplaintResponse(complaint)})
}

// Close PUT /api/complaints/:id/close.
func (h *ComplaintsHandler) Close(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	complaint, err := h.service.Close(c.UserContext(), actor, routeID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewComplaintResponse(complaint)})
}

// Forward PUT /api/complaints/:id/forward.
func (h *ComplaintsHandler) Forward(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.ForwardRequest
	if err := parseJSON(c, &req); err != nil {
		return err
	}
	department, err := domain.ParseCategory(req.Department)
	if err != nil {
		return apperrors.NewValidationError("invalid department", map[string]any{"department": req.Department})
	}
	complaint, err := h.service.Forward(c.UserContext(), actor, routeID(c), department)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewComplaintResponse(complaint)})
}

// Reject PUT /api/complaints/:id/reject.
func (h *ComplaintsHandler) Reject(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	complaint, err := h.service.Reject(c.UserContext(), actor, routeID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewComplaintResponse(complaint)})
}

// routeID copies the :id parameter out of the request buffer, which fasthttp reuses once the
// request completes.
func routeID(c *fiber.Ctx) string {
	return utils.CopyString(c.Params("id"))
}

func actorFrom(c *fiber.Ctx) (domain.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return principal.Actor(), nil
}

func parseJSON(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return dto.Validate(out)
}

// formFile reads an uploaded file into memory. A missing field yields nil, nil.
func formFile(c *fiber.Ctx, field string) ([]byte, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, apperrors.NewValidationError("multipart form required", nil)
	}
	files := form.File[field]
	if len(files) == 0 {
		return nil, nil
	}
	f, err := files[0].Open()
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable upload", map[string]any{"field": field})
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable upload", map[string]any{"field": field})
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func parseComplaintListQuery(c *fiber.Ctx) (dto.ComplaintListQuery, error) {
	query := dto.ComplaintListQuery{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "page_size", 0),
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			status, err := domain.ParseStatus(part)
			if err != nil {
				return query, apperrors.NewValidationError("invalid status filter", map[string]any{"status": part})
			}
			query.Statuses = append(query.Statuses, status)
		}
	}
	return query, nil
}

func parseIntQuery(c *fiber.Ctx, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultVal
}
