package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/spec-kit/complaint-service/internal/storage"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// MediaReader reads stored blobs. storage.BlobStore satisfies it.
type MediaReader interface {
	Read(ctx context.Context, key string) ([]byte, string, error)
}

// MediaHandler serves uploaded complaint media for buckets without their own public endpoint.
type MediaHandler struct {
	blobs MediaReader
}

// NewMediaHandler constructs handler.
func NewMediaHandler(blobs MediaReader) *MediaHandler {
	return &MediaHandler{blobs: blobs}
}

// Serve handles GET /media/*.
func (h *MediaHandler) Serve(c *fiber.Ctx) error {
	key := utils.CopyString(c.Params("*"))
	if key == "" {
		return apperrors.NewNotFound("media", nil)
	}
	data, contentType, err := h.blobs.Read(c.UserContext(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return apperrors.NewNotFound("media", map[string]any{"key": key})
		}
		return apperrors.NewDependencyError("blob store", err)
	}
	if contentType != "" {
		c.Set(fiber.HeaderContentType, contentType)
	}
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	return c.Send(data)
}
