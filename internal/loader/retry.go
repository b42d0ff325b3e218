package loader

import (
	"context"
	"time"

	"github.com/TomerMadmon/md5-cracker/internal/errkind"
)

// Default retry policy for transient store contention.
const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 100 * time.Millisecond
)

// BackoffFunc returns the delay to wait before the given attempt number.
// Attempt numbers start at 1; no delay precedes the first attempt.
type BackoffFunc func(attempt int) time.Duration

// Exponential doubles the base delay for each further attempt: the wait
// before attempt k (k >= 2) is base * 2^(k-2).
func Exponential(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 2 {
			return 0
		}
		return base << (attempt - 2)
	}
}

// Retry runs fn up to maxAttempts times, sleeping per backoff before each
// re-attempt. Only errors tagged with a retryable kind are retried; a
// permanent failure or a cancelled context returns immediately. The returned
// count is the number of attempts actually made.
func Retry(ctx context.Context, maxAttempts int, backoff BackoffFunc, fn func(context.Context) error) (int, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, backoff(attempt)); err != nil {
				return attempt - 1, lastErr
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if !errkind.IsRetryable(lastErr) {
			return attempt, lastErr
		}
	}
	return maxAttempts, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
