package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the attempts made by Retry.
type RetryConfig struct {
	// MaxAttempts includes the first call.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Retry calls fn up to MaxAttempts times with exponential backoff. Each
// attempt passes through b when it is non-nil, so every attempt counts
// toward the failure rate. An open circuit stops retrying at once.
func Retry(ctx context.Context, cfg RetryConfig, b *Breaker, fn func(context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.InitialInterval
	eb.MaxInterval = cfg.MaxInterval
	eb.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(cfg.MaxAttempts-1)), ctx)

	op := func() error {
		var err error
		if b != nil {
			err = b.Execute(ctx, fn)
		} else {
			err = fn(ctx)
		}
		if errors.Is(err, ErrOpen) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, policy)
}
