// Package retry runs operations with bounded retries and backoff.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy controls how many attempts are made and how long to wait between them.
type Policy struct {
	MaxAttempts int
	// Backoff returns the wait before the given retry attempt (1-based).
	Backoff func(attempt int) time.Duration
}

// Linear returns a backoff that grows linearly: base, 2*base, 3*base.
func Linear(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// Do runs op up to MaxAttempts times. It retries only when retryable(err)
// returns true, waiting per the policy's backoff between attempts. The wait
// is cut short if ctx is cancelled.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func() error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == p.MaxAttempts {
			return err
		}

		wait := p.Backoff(attempt)
		slog.Warn("retrying after error",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"wait", wait,
			"error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
