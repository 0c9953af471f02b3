// Package backoff provides bounded retry with exponential backoff.
package backoff

import (
	"context"
	"fmt"
	"time"
)

// Policy defines a bounded exponential backoff schedule.
// Delays double from Base up to Cap; MaxAttempts bounds total attempts.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// Delay returns the wait before the given retry (attempt is zero-based,
// counting retries after the first failure).
func (p Policy) Delay(attempt int) time.Duration {
	d := p.Base << attempt
	if p.Cap > 0 && (d > p.Cap || d <= 0) {
		d = p.Cap
	}
	return d
}

// Retry invokes fn until it succeeds, returns a non-retryable error (as
// reported by retryable), or the attempt budget is exhausted. It honors
// context cancellation between attempts.
func Retry(ctx context.Context, p Policy, fn func(ctx context.Context) error, retryable func(error) bool) error {
	var err error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.Delay(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err = fn(ctx); err == nil {
			return nil
		}

		if retryable != nil && !retryable(err) {
			return err
		}
	}

	return fmt.Errorf("exhausted %d attempts: %w", p.MaxAttempts, err)
}
