package engine

import (
	"errors"
	"time"
)

// Policy holds the retry and recovery constants of the lifecycle.
type Policy struct {
	// MaxRetries is the number of automatic retries after the first attempt.
	MaxRetries int
	// BackoffBase is the delay before the first retry. Each further retry
	// doubles it, up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// StaleAfter is how long a post may sit in publishing without a write
	// before another dispatcher may reclaim it.
	StaleAfter time.Duration
	// Heartbeat is how often a running round refreshes its claim. Zero
	// means a third of StaleAfter.
	Heartbeat time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  3,
		BackoffBase: time.Minute,
		BackoffMax:  time.Hour,
		StaleAfter:  10 * time.Minute,
	}
}

func (p Policy) Validate() error {
	switch {
	case p.MaxRetries < 0:
		return errors.New("max retries must not be negative")
	case p.BackoffBase <= 0:
		return errors.New("backoff base must be positive")
	case p.BackoffMax < p.BackoffBase:
		return errors.New("backoff max must not be below backoff base")
	case p.StaleAfter <= 0:
		return errors.New("stale threshold must be positive")
	case p.Heartbeat < 0 || p.Heartbeat >= p.StaleAfter:
		return errors.New("heartbeat must be shorter than the stale threshold")
	}
	return nil
}

func (p Policy) HeartbeatEvery() time.Duration {
	if p.Heartbeat > 0 {
		return p.Heartbeat
	}
	return p.StaleAfter / 3
}

// Backoff returns base × 2^retryCount, capped at BackoffMax.
func (p Policy) Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	d := p.BackoffBase
	for i := 0; i < retryCount; i++ {
		if d >= p.BackoffMax {
			break
		}
		d *= 2
	}
	if p.BackoffMax > 0 && d > p.BackoffMax {
		d = p.BackoffMax
	}
	return d
}
