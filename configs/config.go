package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/crosspost/internal/engine"
	"github.com/sethvargo/go-envconfig"
)

type R2 struct {
	AccountID  string `env:"R2_ACCOUNT_ID"`
	AccessKey  string `env:"R2_ACCESS_KEY"`
	SecretKey  string `env:"R2_SECRET_KEY"`
	BucketName string `env:"R2_BUCKET_NAME"`
	// PublicURL is the public bucket domain media URLs are built from.
	PublicURL string `env:"R2_PUBLIC_URL"`
}

type OAuth struct {
	GoogleClientID       string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string `env:"GOOGLE_CLIENT_SECRET"`
	LinkedInClientID     string `env:"LINKEDIN_CLIENT_ID"`
	LinkedInClientSecret string `env:"LINKEDIN_CLIENT_SECRET"`
	FacebookAppID        string `env:"FACEBOOK_APP_ID"`
	FacebookAppSecret    string `env:"FACEBOOK_APP_SECRET"`
}

type Dispatch struct {
	MaxRetries   int           `env:"MAX_RETRIES,default=3"`
	BackoffBase  time.Duration `env:"RETRY_BACKOFF_BASE,default=1m"`
	BackoffMax   time.Duration `env:"RETRY_BACKOFF_MAX,default=1h"`
	StaleAfter   time.Duration `env:"STALE_AFTER,default=10m"`
	Interval     string        `env:"DISPATCH_INTERVAL,default=@every 1m"`
	Batch        int           `env:"DISPATCH_BATCH,default=100"`
	Concurrency  int           `env:"DISPATCH_CONCURRENCY,default=10"`
	RatePerSec   int           `env:"PUBLISH_RATE_PER_SECOND,default=5"`
	RefreshEvery string        `env:"TOKEN_REFRESH_INTERVAL,default=@every 10m"`
}

type Config struct {
	Port        string `env:"PORT,default=3000"`
	FrontendURL string `env:"FRONTEND_URL,default=http://localhost:5173"`
	CookieName  string `env:"COOKIE_NAME,default=token"`
	// SecretKey signs API tokens and encrypts stored platform tokens. It
	// must be 16, 24 or 32 bytes long.
	SecretKey string `env:"SECRET_KEY,required"`
	// DispatchToken guards the external scheduler trigger. Empty disables it.
	DispatchToken string `env:"DISPATCH_TOKEN"`

	PostgresURI string `env:"POSTGRES_URI,required"`
	RedisURI    string `env:"REDIS_URI"`
	NatsURL     string `env:"NATS_URL"`

	SentryDSN      string `env:"SENTRY_DSN"`
	TracingEnabled bool   `env:"TRACING_ENABLED,default=false"`
	Environment    string `env:"ENV,default=dev"`

	R2       R2
	OAuth    OAuth
	Dispatch Dispatch
}

func LoadConfig() (*Config, error) {
	return load(context.Background(), envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, cfg, l); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}

	switch len(cfg.SecretKey) {
	case 16, 24, 32:
	default:
		return nil, errors.New("SECRET_KEY must be 16, 24 or 32 bytes")
	}
	if err := cfg.Policy().Validate(); err != nil {
		return nil, fmt.Errorf("dispatch policy: %w", err)
	}
	if cfg.Dispatch.Batch <= 0 || cfg.Dispatch.Concurrency <= 0 {
		return nil, errors.New("DISPATCH_BATCH and DISPATCH_CONCURRENCY must be positive")
	}
	return cfg, nil
}

func (c *Config) Policy() engine.Policy {
	return engine.Policy{
		MaxRetries:  c.Dispatch.MaxRetries,
		BackoffBase: c.Dispatch.BackoffBase,
		BackoffMax:  c.Dispatch.BackoffMax,
		StaleAfter:  c.Dispatch.StaleAfter,
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "prod"
}
