// Package publisher holds one client per social platform behind a common
// contract, and the registry that maps platform identifiers to them.
package publisher

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"go.uber.org/ratelimit"
)

type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

type Result struct {
	RemoteID    string
	VideoID     string
	PublishedAt time.Time
}

type TokenResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Publisher is implemented once per platform. The account handed to Publish
// and RefreshToken carries decrypted tokens.
type Publisher interface {
	Platform() models.Platform
	CharacterLimit() int
	// ValidateContent must not perform I/O.
	ValidateContent(post *models.Post) ValidationResult
	Publish(ctx context.Context, post *models.Post, account *models.SocialAccount) (*Result, error)
	RefreshToken(ctx context.Context, account *models.SocialAccount) (*TokenResult, error)
}

// Options are shared by the HTTP based publishers. Zero values fall back to
// the production endpoints and an unlimited rate.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Limiter    ratelimit.Limiter
	// PollInterval and MaxPolls bound the wait for media containers that are
	// processed asynchronously by the platform.
	PollInterval time.Duration
	MaxPolls     int
	// TokenURL overrides the OAuth token endpoint of the provider.
	TokenURL string
	Now      func() time.Time
}

func (o Options) withDefaults(baseURL string) Options {
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if o.Limiter == nil {
		o.Limiter = ratelimit.NewUnlimited()
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.MaxPolls <= 0 {
		o.MaxPolls = 60
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Registry struct {
	publishers map[models.Platform]Publisher
}

func NewRegistry(publishers ...Publisher) *Registry {
	r := &Registry{publishers: make(map[models.Platform]Publisher, len(publishers))}
	for _, p := range publishers {
		r.publishers[p.Platform()] = p
	}
	return r
}

// Resolve fails closed with a configuration error for platforms nobody
// registered.
func (r *Registry) Resolve(platform models.Platform) (Publisher, error) {
	p, ok := r.publishers[platform]
	if !ok {
		return nil, NewError(KindConfiguration, platform, "no publisher registered for platform %q", platform)
	}
	return p, nil
}

func (r *Registry) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(r.publishers))
	for p := range r.publishers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
