// Package engine drives a post through its lifecycle: scheduling, the
// per-platform fan-out of a dispatch round, aggregation and retries.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/metrics"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/publisher"
	"github.com/maheshrc27/crosspost/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Resolver maps a platform to its publisher.
type Resolver interface {
	Resolve(platform models.Platform) (publisher.Publisher, error)
}

// Credentials hands out decrypted accounts and persists refreshed tokens.
type Credentials interface {
	// Credential returns the active account of the user on the platform, or
	// an error wrapping repository.ErrAccountNotFound.
	Credential(ctx context.Context, userID string, platform models.Platform) (*models.SocialAccount, error)
	SaveToken(ctx context.Context, account *models.SocialAccount, token *publisher.TokenResult) error
	MarkUsed(ctx context.Context, account *models.SocialAccount) error
}

// DispatchQueue holds the external handle that fires a dispatch at the
// scheduled time.
type DispatchQueue interface {
	Enqueue(ctx context.Context, postID, taskID string, at time.Time) error
	Cancel(ctx context.Context, taskID string) error
}

// Deps holds the collaborators of the Engine. Queue and Metrics are
// optional.
type Deps struct {
	Posts       repository.PostRepository
	Publishers  Resolver
	Credentials Credentials
	Queue       DispatchQueue
	Metrics     *metrics.Metrics
	Policy      Policy
	Now         func() time.Time
}

type Engine struct {
	posts  repository.PostRepository
	pubs   Resolver
	creds  Credentials
	queue  DispatchQueue
	m      *metrics.Metrics
	policy Policy
	now    func() time.Time
	tracer trace.Tracer
}

func New(deps Deps) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		posts:  deps.Posts,
		pubs:   deps.Publishers,
		creds:  deps.Credentials,
		queue:  deps.Queue,
		m:      deps.Metrics,
		policy: deps.Policy,
		now:    func() time.Time { return now().UTC() },
		tracer: otel.Tracer("crosspost/engine"),
	}
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// TaskID names the dispatch handle of a post at a given version. Versions
// only grow, so a handle is never reused.
func TaskID(postID string, version int64) string {
	return fmt.Sprintf("dispatch:%s:%d", postID, version)
}

// Schedule moves a draft to scheduled, or moves the time of a post that is
// already scheduled. A zero or past time means now.
func (e *Engine) Schedule(ctx context.Context, postID string, at time.Time) (*models.Post, error) {
	post, err := e.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	from := post.Status
	if from != models.PostStatusDraft && from != models.PostStatusScheduled {
		return nil, &TransitionError{From: from, To: models.PostStatusScheduled}
	}
	if len(post.TargetPlatforms) == 0 {
		return nil, ErrNoTargets
	}

	return e.enterScheduled(ctx, post, from, at)
}

// Cancel returns a scheduled post to draft before it is claimed.
func (e *Engine) Cancel(ctx context.Context, postID string) (*models.Post, error) {
	post, err := e.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusScheduled {
		return nil, &TransitionError{From: post.Status, To: models.PostStatusDraft}
	}

	handle := post.DispatchTaskID
	post.Status = models.PostStatusDraft
	post.DispatchTaskID = ""
	if err := e.posts.CompareAndSwap(ctx, post, models.PostStatusScheduled); err != nil {
		return nil, fmt.Errorf("canceling post %s: %w", postID, err)
	}

	e.cancelHandle(ctx, postID, handle)
	return post, nil
}

// Reschedule re-enters scheduled from partial or failed. Successful platform
// results are kept, failed ones are cleared and the retry budget is reset.
func (e *Engine) Reschedule(ctx context.Context, postID string, at time.Time) (*models.Post, error) {
	post, err := e.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	from := post.Status
	if from != models.PostStatusPartial && from != models.PostStatusFailed {
		return nil, &TransitionError{From: from, To: models.PostStatusScheduled}
	}
	if len(post.TargetPlatforms) == 0 {
		return nil, ErrNoTargets
	}

	for platform, result := range post.PublishResults {
		if !result.Succeeded() {
			delete(post.PublishResults, platform)
		}
	}
	post.RetryCount = 0

	return e.enterScheduled(ctx, post, from, at)
}

func (e *Engine) enterScheduled(ctx context.Context, post *models.Post, from models.PostStatus, at time.Time) (*models.Post, error) {
	now := e.now()
	if at.IsZero() || at.Before(now) {
		at = now
	}

	previous := post.DispatchTaskID
	post.Status = models.PostStatusScheduled
	post.ScheduledAt = at.UTC()
	post.DispatchTaskID = ""
	if e.queue != nil {
		post.DispatchTaskID = TaskID(post.ID, post.Version+1)
	}

	if err := e.posts.CompareAndSwap(ctx, post, from); err != nil {
		return nil, fmt.Errorf("scheduling post %s: %w", post.ID, err)
	}

	slog.Info("post scheduled", "post_id", post.ID, "from", from, "scheduled_at", post.ScheduledAt)
	e.cancelHandle(ctx, post.ID, previous)
	e.enqueue(ctx, post)
	return post, nil
}

// enqueue failures are logged only: the periodic sweep still finds the post
// once it is due.
func (e *Engine) enqueue(ctx context.Context, post *models.Post) {
	if e.queue == nil || post.DispatchTaskID == "" {
		return
	}
	if err := e.queue.Enqueue(ctx, post.ID, post.DispatchTaskID, post.ScheduledAt); err != nil {
		slog.Warn("enqueueing dispatch failed", "post_id", post.ID, "task_id", post.DispatchTaskID, "error", err)
	}
}

func (e *Engine) cancelHandle(ctx context.Context, postID, taskID string) {
	if e.queue == nil || taskID == "" {
		return
	}
	if err := e.queue.Cancel(ctx, taskID); err != nil {
		slog.Warn("canceling dispatch failed", "post_id", postID, "task_id", taskID, "error", err)
	}
}
