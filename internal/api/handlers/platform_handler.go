package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

type PlatformHandler struct {
	s service.AccountService
}

func NewPlatformHandler(s service.AccountService) *PlatformHandler {
	return &PlatformHandler{s: s}
}

// AddSocialAccount stores the tokens of a completed platform OAuth flow.
func (h *PlatformHandler) AddSocialAccount(c *fiber.Ctx) error {
	var in transfer.AccountConnection
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Unable to parse json")
	}

	sa, err := h.s.Connect(c.Context(), GetUserID(c), &in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sa)
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	accountList, err := h.s.List(c.Context(), GetUserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(accountList)
}

func (h *PlatformHandler) DeleteSocialAccount(c *fiber.Ctx) error {
	if err := h.s.Disconnect(c.Context(), GetUserID(c), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
