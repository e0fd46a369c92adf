package handlers

import (
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/service"
)

type MediaHandler struct {
	s service.MediaService
}

func NewMediaHandler(service service.MediaService) *MediaHandler {
	return &MediaHandler{s: service}
}

func (h *MediaHandler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file selected")
	}
	if file.Size > service.MaxUploadBytes {
		return badRequest(c, "File is too large")
	}

	f, err := file.Open()
	if err != nil {
		slog.Error(err.Error())
		return badRequest(c, "Unable to read file")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error(err.Error())
		return badRequest(c, "Unable to read file")
	}

	m, err := h.s.Upload(c.Context(), GetUserID(c), file.Filename, data, nil)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

func (h *MediaHandler) List(c *fiber.Ctx) error {
	media, err := h.s.List(c.Context(), GetUserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(media)
}

// Remove deletes a media item. Media used by posts needs force=true; the
// response lists the posts that still reference it.
func (h *MediaHandler) Remove(c *fiber.Ctx) error {
	refs, err := h.s.Remove(c.Context(), GetUserID(c), c.Params("id"), c.QueryBool("force"))
	if err != nil {
		status := statusOf(err)
		return c.Status(status).JSON(fiber.Map{
			"error":       err.Error(),
			"usedInPosts": refs,
		})
	}
	return c.JSON(fiber.Map{
		"usedInPosts": refs,
	})
}
