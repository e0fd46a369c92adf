// Package events delivers the current post set of a user to subscribers
// after every change.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
)

// Notifier is told that the posts of a user changed.
type Notifier interface {
	Notify(ctx context.Context, userID string)
}

type subscription struct {
	userID string
	wake   chan struct{}
}

// Hub re-reads the post set of a user on every notification and pushes it to
// the subscribers of that user. Notifications that arrive while a snapshot is
// being read or delivered coalesce into one more read.
type Hub struct {
	posts repository.PostRepository

	mu   sync.Mutex
	subs map[string]map[*subscription]struct{}
}

func NewHub(posts repository.PostRepository) *Hub {
	return &Hub{posts: posts, subs: make(map[string]map[*subscription]struct{})}
}

// Subscribe returns a channel that receives the full post set, newest first,
// once right away and again after each change. The channel is closed when ctx
// ends.
func (h *Hub) Subscribe(ctx context.Context, userID string) <-chan []*models.Post {
	s := &subscription{userID: userID, wake: make(chan struct{}, 1)}
	s.wake <- struct{}{}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscription]struct{})
	}
	h.subs[userID][s] = struct{}{}
	h.mu.Unlock()

	out := make(chan []*models.Post)
	go h.run(ctx, s, out)
	return out
}

func (h *Hub) run(ctx context.Context, s *subscription, out chan<- []*models.Post) {
	defer func() {
		h.remove(s)
		close(out)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}

		posts, err := h.posts.List(ctx, repository.PostFilter{UserID: s.userID, OrderBy: repository.OrderCreatedDesc})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("reading post snapshot failed", "user_id", s.userID, "error", err)
			continue
		}

		select {
		case out <- posts:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) remove(s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[s.userID], s)
	if len(h.subs[s.userID]) == 0 {
		delete(h.subs, s.userID)
	}
}

func (h *Hub) Notify(ctx context.Context, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[userID] {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the number of open subscriptions of a user.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, userID string) {
	for _, n := range m {
		n.Notify(ctx, userID)
	}
}
