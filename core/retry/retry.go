package retry

import (
	"context"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/logger"

	"github.com/cenkalti/backoff/v4"
)

type Config struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	MaxTotalTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialDelay:    250 * time.Millisecond,
		MaxDelay:        4 * time.Second,
		BackoffFactor:   2.0,
		MaxTotalTimeout: 60 * time.Second,
	}
}

// Permanent marks an error as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs fn with exponential backoff until it succeeds, returns a
// permanent error, or the attempt/time budget is spent.
func Do(ctx context.Context, cfg Config, name string, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.InitialDelay
	eb.MaxInterval = cfg.MaxDelay
	if cfg.BackoffFactor > 0 {
		eb.Multiplier = cfg.BackoffFactor
	}
	eb.MaxElapsedTime = cfg.MaxTotalTimeout

	var policy backoff.BackOff = backoff.WithMaxRetries(eb, uint64(cfg.MaxAttempts-1))
	policy = backoff.WithContext(policy, ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return fn()
	}, policy, func(err error, next time.Duration) {
		logger.Warn("Retry:Do:AttemptFailed", "operation", name, "attempt", attempt, "next_delay", next, "error", err)
	})
}
