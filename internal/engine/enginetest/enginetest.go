// Package enginetest holds in-memory collaborators for tests that drive the
// engine.
package enginetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/publisher"
	"github.com/maheshrc27/crosspost/internal/repository"
)

// Credentials serves accounts keyed by user and platform.
type Credentials struct {
	mu       sync.Mutex
	accounts map[string]*models.SocialAccount
	saved    []publisher.TokenResult
	used     []string
}

func NewCredentials(accounts ...*models.SocialAccount) *Credentials {
	c := &Credentials{accounts: make(map[string]*models.SocialAccount)}
	for _, a := range accounts {
		c.accounts[key(a.UserID, a.Platform)] = a
	}
	return c
}

func key(userID string, platform models.Platform) string {
	return userID + "/" + string(platform)
}

func (c *Credentials) Credential(ctx context.Context, userID string, platform models.Platform) (*models.SocialAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.accounts[key(userID, platform)]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (c *Credentials) SaveToken(ctx context.Context, account *models.SocialAccount, token *publisher.TokenResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.saved = append(c.saved, *token)
	if a, ok := c.accounts[key(account.UserID, account.Platform)]; ok {
		a.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			a.RefreshToken = token.RefreshToken
		}
		a.TokenExpiresAt = token.ExpiresAt
	}
	return nil
}

func (c *Credentials) MarkUsed(ctx context.Context, account *models.SocialAccount) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used = append(c.used, account.ID)
	return nil
}

func (c *Credentials) Saved() []publisher.TokenResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]publisher.TokenResult(nil), c.saved...)
}

func (c *Credentials) Used() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.used...)
}

// Task is a dispatch handle recorded by Queue.
type Task struct {
	PostID string
	TaskID string
	At     time.Time
}

// Queue records enqueued and canceled handles. Setting Fail makes every call
// return it.
type Queue struct {
	mu       sync.Mutex
	Fail     error
	tasks    []Task
	canceled []string
}

var ErrQueueDown = errors.New("queue unavailable")

func (q *Queue) Enqueue(ctx context.Context, postID, taskID string, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Fail != nil {
		return q.Fail
	}
	q.tasks = append(q.tasks, Task{PostID: postID, TaskID: taskID, At: at})
	return nil
}

func (q *Queue) Cancel(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Fail != nil {
		return q.Fail
	}
	q.canceled = append(q.canceled, taskID)
	return nil
}

func (q *Queue) Tasks() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Task(nil), q.tasks...)
}

func (q *Queue) Canceled() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.canceled...)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Account returns an active account with fixed tokens.
func Account(userID string, platform models.Platform) *models.SocialAccount {
	return &models.SocialAccount{
		ID:                string(platform) + "-acct",
		UserID:            userID,
		Platform:          platform,
		PlatformAccountID: string(platform) + "-remote",
		AccessToken:       "access-" + string(platform),
		RefreshToken:      "refresh-" + string(platform),
		IsActive:          true,
	}
}
