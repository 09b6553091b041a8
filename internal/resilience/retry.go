package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig bounds a retried call. Zero values get defaults.
type RetryConfig struct {
	// Attempts is the total number of tries, including the first. Default: 3.
	Attempts int

	// BaseDelay is the wait before the second attempt; it doubles on each
	// subsequent attempt. Default: 250ms.
	BaseDelay time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 250 * time.Millisecond
	}
	return c
}

// Retry runs fn up to cfg.Attempts times with exponential backoff between
// tries. It stops early when fn succeeds, when ctx is done, or when the
// failure is not worth repeating (context errors, open breaker). The returned
// error is the last failure.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()

	var err error
	delay := cfg.BaseDelay
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt >= cfg.Attempts || !retryable(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("resilience: retry abandoned after attempt %d: %w", attempt, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// retryable reports whether another attempt could plausibly succeed soon.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	return true
}
