package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/engine"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/service"
)

func GetUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}

// statusOf maps service and repository errors to HTTP status codes.
func statusOf(err error) int {
	var te *engine.TransitionError
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, engine.ErrNoTargets):
		return fiber.StatusBadRequest
	case errors.Is(err, repository.ErrPostNotFound),
		errors.Is(err, repository.ErrMediaNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrAccountNotFound):
		return fiber.StatusNotFound
	case errors.As(err, &te),
		errors.Is(err, service.ErrPostBusy),
		errors.Is(err, repository.ErrConflict),
		errors.Is(err, repository.ErrMediaInUse):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes err as a JSON error. Internal failures are logged and hidden
// behind a generic message.
func fail(c *fiber.Ctx, err error) error {
	status := statusOf(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		msg = "something went wrong"
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}
