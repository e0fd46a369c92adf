package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/publisher"
	"github.com/maheshrc27/crosspost/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outcome describes one finished dispatch round.
type Outcome struct {
	PostID string
	// Aggregate is the status derived from the results of all targets. The
	// persisted status is scheduled instead when Retry is set.
	Aggregate models.PostStatus
	Status    models.PostStatus
	Attempted []models.Platform
	Results   map[models.Platform]models.PublishResult
	Retry     bool
	NextAt    time.Time
}

// Pending returns the targets a dispatch round must attempt: those without a
// result and those whose failure is retryable.
func Pending(post *models.Post) []models.Platform {
	seen := make(map[models.Platform]bool, len(post.TargetPlatforms))
	var out []models.Platform
	for _, p := range post.TargetPlatforms {
		if seen[p] {
			continue
		}
		seen[p] = true

		r, ok := post.PublishResults[p]
		if !ok || (!r.Succeeded() && r.Retryable) {
			out = append(out, p)
		}
	}
	return out
}

// Aggregate derives the post status from its per-platform results.
func Aggregate(post *models.Post) models.PostStatus {
	succeeded, total := 0, 0
	seen := make(map[models.Platform]bool, len(post.TargetPlatforms))
	for _, p := range post.TargetPlatforms {
		if seen[p] {
			continue
		}
		seen[p] = true
		total++
		if post.Succeeded(p) {
			succeeded++
		}
	}

	switch {
	case total > 0 && succeeded == total:
		return models.PostStatusPublished
	case succeeded > 0:
		return models.PostStatusPartial
	default:
		return models.PostStatusFailed
	}
}

func retryable(post *models.Post) bool {
	for _, p := range post.TargetPlatforms {
		r, ok := post.PublishResults[p]
		if !ok || (!r.Succeeded() && r.Retryable) {
			return true
		}
	}
	return false
}

// Execute runs one dispatch round for a post the caller has claimed. Per
// platform failures end up in the results; the returned error carries only
// persistence failures. A lost claim is reported as ErrClaimLost.
func (e *Engine) Execute(ctx context.Context, claimed *models.Post) (*Outcome, error) {
	if claimed.Status != models.PostStatusPublishing {
		return nil, &TransitionError{From: claimed.Status, To: models.PostStatusPublishing}
	}

	ctx, span := e.tracer.Start(ctx, "engine.Execute", trace.WithAttributes(
		attribute.String("post.id", claimed.ID),
		attribute.Int("post.retry_count", claimed.RetryCount),
	))
	defer span.End()

	post := claimed.Clone()
	if post.PublishResults == nil {
		post.PublishResults = make(map[models.Platform]models.PublishResult)
	}

	pending := Pending(post)
	stop := e.heartbeat(ctx, post.ID, post.Version)
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		writeErrs []error
	)
	for _, platform := range pending {
		wg.Add(1)
		go func(platform models.Platform) {
			defer wg.Done()

			result := e.attempt(ctx, post, platform)
			err := e.posts.SetPublishResult(ctx, post.ID, platform, result)

			mu.Lock()
			defer mu.Unlock()
			post.PublishResults[platform] = result
			if err != nil {
				writeErrs = append(writeErrs, fmt.Errorf("recording %s result: %w", platform, err))
			}
		}(platform)
	}
	wg.Wait()
	stop()

	out := &Outcome{
		PostID:    post.ID,
		Aggregate: Aggregate(post),
		Attempted: pending,
		Results:   post.PublishResults,
	}
	out.Status = out.Aggregate

	if out.Aggregate != models.PostStatusPublished && retryable(post) && post.RetryCount < e.policy.MaxRetries {
		out.Retry = true
		out.Status = models.PostStatusScheduled
		out.NextAt = e.now().Add(e.policy.Backoff(post.RetryCount))

		post.RetryCount++
		post.ScheduledAt = out.NextAt
		post.DispatchTaskID = ""
		if e.queue != nil {
			post.DispatchTaskID = TaskID(post.ID, post.Version+1)
		}
	} else {
		post.DispatchTaskID = ""
	}
	post.Status = out.Status

	if err := e.posts.CompareAndSwap(ctx, post, models.PostStatusPublishing); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			e.countClaimConflict()
			err = ErrClaimLost
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, errors.Join(append(writeErrs, err)...)
	}

	span.SetAttributes(attribute.String("post.status", string(out.Status)))
	if e.m != nil {
		e.m.DispatchTotal.WithLabelValues(string(out.Aggregate)).Inc()
		if out.Retry {
			e.m.RetriesTotal.Inc()
		}
	}
	slog.Info("dispatch round finished",
		"post_id", post.ID,
		"aggregate", out.Aggregate,
		"status", out.Status,
		"retry_count", post.RetryCount,
		"attempted", len(pending),
	)

	if out.Retry {
		e.enqueue(ctx, post)
	}
	return out, errors.Join(writeErrs...)
}

// heartbeat keeps the claim on a publishing post fresh while its platforms
// are attempted. The returned func stops it and waits for the last write.
func (e *Engine) heartbeat(ctx context.Context, postID string, version int64) (stop func()) {
	every := e.policy.HeartbeatEvery()
	if every <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := e.posts.Heartbeat(ctx, postID, version); err != nil {
					slog.Warn("dispatch heartbeat failed", "post_id", postID, "error", err)
					if errors.Is(err, repository.ErrConflict) {
						return
					}
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

func (e *Engine) countClaimConflict() {
	if e.m != nil {
		e.m.ClaimConflicts.Inc()
	}
}

// attempt publishes the post to one platform and never fails: every error
// is folded into the returned result.
func (e *Engine) attempt(ctx context.Context, post *models.Post, platform models.Platform) (result models.PublishResult) {
	ctx, span := e.tracer.Start(ctx, "engine.publish", trace.WithAttributes(
		attribute.String("platform", string(platform)),
	))
	defer span.End()

	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("publisher panicked", "post_id", post.ID, "platform", platform, "panic", r)
			result = e.failure(platform, publisher.NewError(publisher.KindTransient, platform, "publisher panic: %v", r))
		}
		if !result.Succeeded() {
			span.SetStatus(codes.Error, result.Error)
		}
		e.observe(platform, result, start)
	}()

	pub, err := e.pubs.Resolve(platform)
	if err != nil {
		return e.failure(platform, err)
	}

	if v := pub.ValidateContent(post); !v.Valid {
		return e.failure(platform, publisher.ValidationFailure(platform, v))
	}

	account, err := e.creds.Credential(ctx, post.UserID, platform)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return e.failure(platform, publisher.NewError(publisher.KindConfiguration, platform, "no connected %s account", platform))
		}
		return e.failure(platform, publisher.Wrap(publisher.KindTransient, platform, err))
	}

	res, err := pub.Publish(ctx, post, account)
	if publisher.KindOf(err) == publisher.KindAuth {
		account, err = e.refresh(ctx, pub, account, err)
		if err == nil {
			res, err = pub.Publish(ctx, post, account)
			if publisher.KindOf(err) == publisher.KindAuth {
				err = publisher.Wrap(publisher.KindTransient, platform, err)
			}
		}
	}
	if err != nil {
		return e.failure(platform, err)
	}

	if err := e.creds.MarkUsed(ctx, account); err != nil {
		slog.Warn("touching account failed", "account_id", account.ID, "error", err)
	}

	publishedAt := res.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = e.now()
	}
	publishedAt = publishedAt.UTC()
	return models.PublishResult{
		Status:      models.PublishStatusSuccess,
		PostID:      res.RemoteID,
		VideoID:     res.VideoID,
		PublishedAt: &publishedAt,
		AttemptedAt: e.now(),
	}
}

// refresh trades the refresh token for a new access token once. A failed
// refresh escalates to a transient error so the retry policy takes over.
func (e *Engine) refresh(ctx context.Context, pub publisher.Publisher, account *models.SocialAccount, cause error) (*models.SocialAccount, error) {
	platform := pub.Platform()
	slog.Info("refreshing token after auth failure", "platform", platform, "account_id", account.ID, "cause", cause)

	token, err := pub.RefreshToken(ctx, account)
	if err != nil {
		e.countRefresh(platform, "failed")
		return nil, publisher.Wrap(publisher.KindTransient, platform, fmt.Errorf("token refresh: %w", err))
	}
	e.countRefresh(platform, "success")

	if err := e.creds.SaveToken(ctx, account, token); err != nil {
		slog.Warn("saving refreshed token failed", "account_id", account.ID, "error", err)
	}

	refreshed := *account
	refreshed.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	refreshed.TokenExpiresAt = token.ExpiresAt
	return &refreshed, nil
}

func (e *Engine) failure(platform models.Platform, err error) models.PublishResult {
	kind := publisher.KindOf(err)
	slog.Info("platform publish failed", "platform", platform, "kind", kind, "error", err)
	return models.PublishResult{
		Status:      models.PublishStatusFailed,
		Error:       publisher.Message(err),
		ErrorKind:   string(kind),
		Retryable:   kind.Retryable(),
		AttemptedAt: e.now(),
	}
}

func (e *Engine) observe(platform models.Platform, result models.PublishResult, start time.Time) {
	if e.m == nil {
		return
	}
	label := "success"
	if !result.Succeeded() {
		label = result.ErrorKind
	}
	e.m.PublishTotal.WithLabelValues(string(platform), label).Inc()
	e.m.PublishDuration.WithLabelValues(string(platform)).Observe(e.now().Sub(start).Seconds())
}

func (e *Engine) countRefresh(platform models.Platform, result string) {
	if e.m != nil {
		e.m.TokenRefresh.WithLabelValues(string(platform), result).Inc()
	}
}
