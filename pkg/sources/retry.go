package sources

import (
	"context"
	"fmt"
	"time"
)

// RetryWithBackoff calls fn until it succeeds or the attempts are exhausted.
// The delay doubles after every failure. The last error comes back wrapped in ErrFetch.
func (b *BaseSource) RetryWithBackoff(ctx context.Context, op string, fn func() error) error {
	return Retry(ctx, b.retryAttempts, b.retryDelay, func(attempt int, err error) {
		b.logger.Debug("Retrying after failure", "operation", op, "attempt", attempt, "error", err)
	}, fn)
}

// Retry is the policy behind RetryWithBackoff. onRetry may be nil.
func Retry(ctx context.Context, attempts int, delay time.Duration, onRetry func(attempt int, err error), fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrFetch, attempts, err)
}
