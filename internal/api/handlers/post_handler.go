package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/valyala/fasthttp"
)

// Subscriber streams the post set of a user after every change.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) <-chan []*models.Post
}

type PostHandler struct {
	s         service.PostService
	sub       Subscriber
	heartbeat time.Duration
}

func NewPostHandler(service service.PostService, sub Subscriber) *PostHandler {
	return &PostHandler{s: service, sub: sub, heartbeat: 25 * time.Second}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		return badRequest(c, "Unable to parse json")
	}

	post, err := h.s.CreatePost(c.Context(), GetUserID(c), &pc)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *PostHandler) UpdatePost(c *fiber.Ctx) error {
	var pu transfer.PostUpdate
	if err := c.BodyParser(&pu); err != nil {
		return badRequest(c, "Unable to parse json")
	}

	post, err := h.s.UpdatePost(c.Context(), GetUserID(c), c.Params("id"), &pu)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(post)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	post, err := h.s.PostInfo(c.Context(), GetUserID(c), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(post)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	posts, err := h.s.List(c.Context(), GetUserID(c), models.PostStatus(c.Query("status")))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(posts)
}

// Calendar lists the posts scheduled between from and to. Both accept RFC
// 3339 or a plain date.
func (h *PostHandler) Calendar(c *fiber.Ctx) error {
	var q transfer.PostRange
	if err := c.QueryParser(&q); err != nil {
		return badRequest(c, "Unable to parse query")
	}
	from, err := parseBound(q.From, false)
	if err != nil {
		return badRequest(c, "invalid from")
	}
	to, err := parseBound(q.To, true)
	if err != nil {
		return badRequest(c, "invalid to")
	}

	posts, err := h.s.Range(c.Context(), GetUserID(c), from, to)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(posts)
}

func parseBound(v string, end bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, err
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	if err := h.s.Remove(c.Context(), GetUserID(c), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PostHandler) SchedulePost(c *fiber.Ctx) error {
	var req transfer.ScheduleRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Unable to parse json")
		}
	}

	post, err := h.s.Schedule(c.Context(), GetUserID(c), c.Params("id"), req.ScheduledTime)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(post)
}

func (h *PostHandler) CancelPost(c *fiber.Ctx) error {
	post, err := h.s.Cancel(c.Context(), GetUserID(c), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(post)
}

func (h *PostHandler) ReschedulePost(c *fiber.Ctx) error {
	var req transfer.ScheduleRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Unable to parse json")
		}
	}

	post, err := h.s.Reschedule(c.Context(), GetUserID(c), c.Params("id"), req.ScheduledTime)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(post)
}

// Stream sends the user's post set as server-sent events, once on connect
// and again after every change.
func (h *PostHandler) Stream(c *fiber.Ctx) error {
	userID := GetUserID(c)
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	ctx, cancel := context.WithCancel(context.Background())
	updates := h.sub.Subscribe(ctx, userID)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()

		for {
			select {
			case posts, ok := <-updates:
				if !ok {
					return
				}
				data, err := json.Marshal(posts)
				if err != nil {
					slog.Error("encoding post snapshot failed", "user_id", userID, "error", err)
					return
				}
				fmt.Fprintf(w, "event: posts\ndata: %s\n\n", data)
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}
