package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

// UserHandler serves the signed-in user's profile and publishing settings.
type UserHandler struct {
	users service.UserService
}

func NewUserHandler(users service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) Profile(c *fiber.Ctx) error {
	u, err := h.users.GetUserInfo(c.Context(), GetUserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(u)
}

// UpdateSettings changes the timezone used to read wall-clock schedule times.
func (h *UserHandler) UpdateSettings(c *fiber.Ctx) error {
	var in transfer.SettingsUpdate
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid settings body")
	}

	u, err := h.users.UpdateSettings(c.Context(), GetUserID(c), &in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(u)
}
