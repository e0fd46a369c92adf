// Package publishertest provides a mock Publisher for engine and dispatcher
// tests.
package publishertest

import (
	"context"
	"sync"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/publisher"
	"github.com/stretchr/testify/mock"
)

// Publisher validates against a character limit like the real clients and
// records Publish and RefreshToken calls through testify's mock.
type Publisher struct {
	mock.Mock

	Name  models.Platform
	Limit int

	mu        sync.Mutex
	published []string
}

func New(platform models.Platform, limit int) *Publisher {
	return &Publisher{Name: platform, Limit: limit}
}

func (p *Publisher) Platform() models.Platform { return p.Name }

func (p *Publisher) CharacterLimit() int { return p.Limit }

func (p *Publisher) ValidateContent(post *models.Post) publisher.ValidationResult {
	return publisher.ValidateText(post, p.Name, p.Limit)
}

func (p *Publisher) Publish(ctx context.Context, post *models.Post, account *models.SocialAccount) (*publisher.Result, error) {
	p.mu.Lock()
	p.published = append(p.published, post.ID)
	p.mu.Unlock()

	args := p.Called(ctx, post, account)
	if res, ok := args.Get(0).(*publisher.Result); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (p *Publisher) RefreshToken(ctx context.Context, account *models.SocialAccount) (*publisher.TokenResult, error) {
	args := p.Called(ctx, account)
	if res, ok := args.Get(0).(*publisher.TokenResult); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

// Published returns the post ids Publish was called with, in call order.
func (p *Publisher) Published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}
