package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/engine"
	"github.com/maheshrc27/crosspost/internal/metrics"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/publisher"
)

// Accounts is the part of the account service the refresh job needs.
type Accounts interface {
	Expiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error)
	SaveToken(ctx context.Context, account *models.SocialAccount, token *publisher.TokenResult) error
	Deactivate(ctx context.Context, account *models.SocialAccount) error
}

// RefreshSummary counts what one run did.
type RefreshSummary struct {
	Refreshed   int
	Failed      int
	Deactivated int
}

type TokenRefreshJob struct {
	accounts Accounts
	pubs     engine.Resolver
	m        *metrics.Metrics
	window   time.Duration
	now      func() time.Time
}

func NewTokenRefreshJob(accounts Accounts, pubs engine.Resolver, m *metrics.Metrics) *TokenRefreshJob {
	return &TokenRefreshJob{
		accounts: accounts,
		pubs:     pubs,
		m:        m,
		window:   30 * time.Minute,
		now:      time.Now,
	}
}

// RefreshTokens renews every token that expires within the next 30 minutes.
// A refresh the platform rejects as unauthorized deactivates the account so
// the user is asked to reconnect it.
func (c *TokenRefreshJob) RefreshTokens(ctx context.Context) RefreshSummary {
	var summary RefreshSummary

	accounts, err := c.accounts.Expiring(ctx, c.now().Add(c.window))
	if err != nil {
		slog.Error("listing expiring accounts failed", "error", err)
		return summary
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			outcome := c.refresh(ctx, acc)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case "success":
				summary.Refreshed++
			case "deactivated":
				summary.Deactivated++
			default:
				summary.Failed++
			}
		}(acc)
	}
	wg.Wait()

	if len(accounts) > 0 {
		slog.Info("token refresh finished",
			"refreshed", summary.Refreshed,
			"failed", summary.Failed,
			"deactivated", summary.Deactivated,
		)
	}
	return summary
}

func (c *TokenRefreshJob) refresh(ctx context.Context, acc *models.SocialAccount) (outcome string) {
	defer func() {
		if c.m != nil {
			c.m.TokenRefresh.WithLabelValues(string(acc.Platform), outcome).Inc()
		}
	}()

	pub, err := c.pubs.Resolve(acc.Platform)
	if err != nil {
		slog.Warn("no publisher for account", "account_id", acc.ID, "platform", acc.Platform)
		return "failed"
	}

	token, err := pub.RefreshToken(ctx, acc)
	if err != nil {
		if publisher.KindOf(err) == publisher.KindAuth {
			if derr := c.accounts.Deactivate(ctx, acc); derr != nil {
				slog.Error("deactivating account failed", "account_id", acc.ID, "error", derr)
				return "failed"
			}
			slog.Warn("account deactivated after rejected refresh", "account_id", acc.ID, "platform", acc.Platform, "error", err)
			return "deactivated"
		}
		slog.Warn("token refresh failed", "account_id", acc.ID, "platform", acc.Platform, "error", err)
		return "failed"
	}

	if err := c.accounts.SaveToken(ctx, acc, token); err != nil {
		slog.Error("saving refreshed token failed", "account_id", acc.ID, "error", err)
		return "failed"
	}
	return "success"
}
