// Package scheduler finds due and orphaned posts, claims each of them with a
// guarded transition and hands the claimed post to the engine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/engine"
	"github.com/maheshrc27/crosspost/internal/metrics"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
)

// Executor runs one dispatch round for a claimed post.
type Executor interface {
	Execute(ctx context.Context, claimed *models.Post) (*engine.Outcome, error)
	Policy() engine.Policy
}

type Options struct {
	// Batch bounds how many due and how many stale posts one scan picks up.
	Batch int
	// Concurrency bounds the posts executed at the same time.
	Concurrency int
	Now         func() time.Time
	// OnError receives the failures of a scan that were only logged.
	OnError func(err error)
	Metrics *metrics.Metrics
}

// Report counts what a single scan did.
type Report struct {
	Due      int
	Stale    int
	Claimed  int
	Skipped  int
	Failed   int
	Outcomes []*engine.Outcome
}

// Dispatcher keeps no state between scans beyond its collaborators. All
// schedule state lives in the post repository.
type Dispatcher struct {
	posts repository.PostRepository
	exec  Executor
	opts  Options
}

func NewDispatcher(posts repository.PostRepository, exec Executor, opts Options) *Dispatcher {
	if opts.Batch <= 0 {
		opts.Batch = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OnError == nil {
		opts.OnError = func(error) {}
	}
	return &Dispatcher{posts: posts, exec: exec, opts: opts}
}

type candidate struct {
	post        *models.Post
	staleBefore time.Time
}

// RunOnce scans for due scheduled posts and for publishing posts that have
// gone stale, and executes every post it manages to claim. It is safe to call
// concurrently from several processes: a post is executed by the caller whose
// claim succeeds and skipped by all others.
func (d *Dispatcher) RunOnce(ctx context.Context) (*Report, error) {
	now := d.opts.Now().UTC()
	staleBefore := now.Add(-d.exec.Policy().StaleAfter)

	due, err := d.posts.ListDue(ctx, now, d.opts.Batch)
	if err != nil {
		return nil, fmt.Errorf("listing due posts: %w", err)
	}
	stale, err := d.posts.ListStale(ctx, staleBefore, d.opts.Batch)
	if err != nil {
		return nil, fmt.Errorf("listing stale posts: %w", err)
	}

	report := &Report{Due: len(due), Stale: len(stale)}
	candidates := make([]candidate, 0, len(due)+len(stale))
	for _, p := range due {
		candidates = append(candidates, candidate{post: p})
	}
	for _, p := range stale {
		candidates = append(candidates, candidate{post: p, staleBefore: staleBefore})
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, d.opts.Concurrency)
	)
	for _, c := range candidates {
		claimed, err := d.claim(ctx, c)
		if err != nil {
			mu.Lock()
			if errors.Is(err, repository.ErrConflict) {
				report.Skipped++
			} else {
				report.Failed++
				d.report(fmt.Errorf("claiming post %s: %w", c.post.ID, err))
			}
			mu.Unlock()
			continue
		}
		mu.Lock()
		report.Claimed++
		mu.Unlock()

		wg.Add(1)
		semaphore <- struct{}{}
		go func(post *models.Post) {
			defer wg.Done()
			defer func() { <-semaphore }()

			out, err := d.exec.Execute(ctx, post)

			mu.Lock()
			defer mu.Unlock()
			if out != nil {
				report.Outcomes = append(report.Outcomes, out)
			}
			if err != nil {
				report.Failed++
				d.report(fmt.Errorf("dispatching post %s: %w", post.ID, err))
			}
		}(claimed)
	}
	wg.Wait()

	if report.Due+report.Stale > 0 {
		slog.Info("dispatch scan finished",
			"due", report.Due,
			"stale", report.Stale,
			"claimed", report.Claimed,
			"skipped", report.Skipped,
			"failed", report.Failed,
		)
	}
	return report, nil
}

// DispatchPost executes a single post if it can be claimed right now. It
// serves dispatch handles that fire at the scheduled time; a handle that
// fires early, late or twice is harmless.
func (d *Dispatcher) DispatchPost(ctx context.Context, postID string) (*engine.Outcome, error) {
	post, err := d.posts.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return nil, nil
		}
		return nil, err
	}

	now := d.opts.Now().UTC()
	c := candidate{post: post}
	switch post.Status {
	case models.PostStatusScheduled:
		if post.ScheduledAt.After(now) {
			return nil, nil
		}
	case models.PostStatusPublishing:
		c.staleBefore = now.Add(-d.exec.Policy().StaleAfter)
		if !post.UpdatedAt.Before(c.staleBefore) {
			return nil, nil
		}
	default:
		return nil, nil
	}

	claimed, err := d.claim(ctx, c)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, nil
		}
		return nil, err
	}
	return d.exec.Execute(ctx, claimed)
}

func (d *Dispatcher) claim(ctx context.Context, c candidate) (*models.Post, error) {
	from := c.post.Status
	claimed, err := d.posts.Claim(ctx, c.post.ID, from, c.post.Version, c.staleBefore)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) && d.opts.Metrics != nil {
			d.opts.Metrics.ClaimConflicts.Inc()
		}
		return nil, err
	}

	if from == models.PostStatusPublishing {
		slog.Warn("reclaiming stale dispatch", "post_id", claimed.ID, "last_update", c.post.UpdatedAt)
		if d.opts.Metrics != nil {
			d.opts.Metrics.StaleReclaims.Inc()
		}
	}
	return claimed, nil
}

func (d *Dispatcher) report(err error) {
	slog.Error("dispatch failed", "error", err)
	d.opts.OnError(err)
}
