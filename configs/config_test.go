package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(extra map[string]string) envconfig.Lookuper {
	m := map[string]string{
		"SECRET_KEY":   "0123456789abcdef0123456789abcdef",
		"POSTGRES_URI": "postgres://localhost/crosspost",
	}
	for k, v := range extra {
		m[k] = v
	}
	return envconfig.MapLookuper(m)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(context.Background(), env(nil))
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "@every 1m", cfg.Dispatch.Interval)
	assert.Equal(t, 100, cfg.Dispatch.Batch)

	p := cfg.Policy()
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, time.Minute, p.BackoffBase)
	assert.Equal(t, time.Hour, p.BackoffMax)
	assert.Equal(t, 10*time.Minute, p.StaleAfter)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := load(context.Background(), env(map[string]string{
		"MAX_RETRIES":        "5",
		"RETRY_BACKOFF_BASE": "30s",
		"STALE_AFTER":        "15m",
		"R2_BUCKET_NAME":     "media",
		"FACEBOOK_APP_ID":    "app",
	}))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Policy().MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Policy().BackoffBase)
	assert.Equal(t, 15*time.Minute, cfg.Policy().StaleAfter)
	assert.Equal(t, "media", cfg.R2.BucketName)
	assert.Equal(t, "app", cfg.OAuth.FacebookAppID)
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]map[string]string{
		"short secret":     {"SECRET_KEY": "short"},
		"negative retries": {"MAX_RETRIES": "-1"},
		"zero backoff":     {"RETRY_BACKOFF_BASE": "0s"},
		"zero batch":       {"DISPATCH_BATCH": "0"},
		"bad duration":     {"STALE_AFTER": "soon"},
	}
	for name, extra := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := load(context.Background(), env(extra))
			assert.Error(t, err)
		})
	}

	_, err := load(context.Background(), envconfig.MapLookuper(map[string]string{}))
	assert.Error(t, err, "required vars missing")
}
