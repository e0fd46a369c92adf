package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/publisher"
	"github.com/maheshrc27/crosspost/internal/publisher/publishertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeAccounts struct {
	mu          sync.Mutex
	expiring    []*models.SocialAccount
	before      time.Time
	saved       map[string]string
	deactivated []string
}

func (f *fakeAccounts) Expiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error) {
	f.before = before
	return f.expiring, nil
}

func (f *fakeAccounts) SaveToken(ctx context.Context, account *models.SocialAccount, token *publisher.TokenResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[account.ID] = token.AccessToken
	return nil
}

func (f *fakeAccounts) Deactivate(ctx context.Context, account *models.SocialAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, account.ID)
	return nil
}

func TestRefreshTokens(t *testing.T) {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	yt := &models.SocialAccount{ID: "yt", Platform: models.PlatformYouTube, RefreshToken: "r1"}
	li := &models.SocialAccount{ID: "li", Platform: models.PlatformLinkedIn, RefreshToken: "r2"}
	th := &models.SocialAccount{ID: "th", Platform: models.PlatformThreads}
	tk := &models.SocialAccount{ID: "tk", Platform: models.Platform("tiktok")}
	accounts := &fakeAccounts{
		expiring: []*models.SocialAccount{yt, li, th, tk},
		saved:    make(map[string]string),
	}

	ytPub := publishertest.New(models.PlatformYouTube, 5000)
	ytPub.On("RefreshToken", mock.Anything, yt).Return(&publisher.TokenResult{AccessToken: "fresh"}, nil)
	liPub := publishertest.New(models.PlatformLinkedIn, 3000)
	liPub.On("RefreshToken", mock.Anything, li).
		Return(nil, publisher.NewError(publisher.KindAuth, models.PlatformLinkedIn, "refresh token revoked"))
	thPub := publishertest.New(models.PlatformThreads, 500)
	thPub.On("RefreshToken", mock.Anything, th).
		Return(nil, publisher.Wrap(publisher.KindTransient, models.PlatformThreads, errors.New("timeout")))

	job := NewTokenRefreshJob(accounts, publisher.NewRegistry(ytPub, liPub, thPub), nil)
	job.now = func() time.Time { return now }

	summary := job.RefreshTokens(context.Background())
	assert.Equal(t, RefreshSummary{Refreshed: 1, Failed: 2, Deactivated: 1}, summary)
	assert.Equal(t, now.Add(30*time.Minute), accounts.before)
	assert.Equal(t, map[string]string{"yt": "fresh"}, accounts.saved)
	require.Equal(t, []string{"li"}, accounts.deactivated)

	ytPub.AssertExpectations(t)
	liPub.AssertExpectations(t)
	thPub.AssertExpectations(t)
}
