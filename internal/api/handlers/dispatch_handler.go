package handlers

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/scheduler"
)

// Scanner runs one dispatch scan.
type Scanner interface {
	RunOnce(ctx context.Context) (*scheduler.Report, error)
}

// DispatchHandler is the scheduler trigger for external timers. Calls are
// idempotent: claimed posts are skipped by concurrent scans.
type DispatchHandler struct {
	d     Scanner
	token string
}

func NewDispatchHandler(d Scanner, token string) *DispatchHandler {
	return &DispatchHandler{d: d, token: token}
}

func (h *DispatchHandler) Trigger(c *fiber.Ctx) error {
	if h.token == "" {
		return c.SendStatus(fiber.StatusNotFound)
	}
	given := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(given), []byte(h.token)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid dispatch token",
		})
	}

	report, err := h.d.RunOnce(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"due":     report.Due,
		"stale":   report.Stale,
		"claimed": report.Claimed,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	})
}
