package loader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TomerMadmon/md5-cracker/internal/errkind"
)

func TestExponential(t *testing.T) {
	backoff := Exponential(100 * time.Millisecond)

	require.Equal(t, time.Duration(0), backoff(1))
	require.Equal(t, 100*time.Millisecond, backoff(2))
	require.Equal(t, 200*time.Millisecond, backoff(3))
	require.Equal(t, 400*time.Millisecond, backoff(4))
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	attempts, err := Retry(context.Background(), 3, Exponential(time.Millisecond), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, 1, calls)
}

func TestRetryTransientThenSuccess(t *testing.T) {
	calls := 0
	attempts, err := Retry(context.Background(), 5, Exponential(time.Millisecond), func(context.Context) error {
		calls++
		if calls < 3 {
			return errkind.Wrapf(errkind.KindLockTimeout, "row lock busy")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, 3, calls)
}

func TestRetryExhaustion(t *testing.T) {
	calls := 0
	attempts, err := Retry(context.Background(), 3, Exponential(time.Millisecond), func(context.Context) error {
		calls++
		return errkind.Wrapf(errkind.KindDeadlock, "deadlock detected")
	})
	require.Error(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, 3, calls)
	require.Equal(t, errkind.KindDeadlock, errkind.KindOf(err))
}

func TestRetryPermanentStopsImmediately(t *testing.T) {
	calls := 0
	attempts, err := Retry(context.Background(), 5, Exponential(time.Millisecond), func(context.Context) error {
		calls++
		return errkind.Wrapf(errkind.KindSchemaViolation, "value too long")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, 1, calls)
}

func TestRetryUntaggedErrorNotRetried(t *testing.T) {
	calls := 0
	attempts, err := Retry(context.Background(), 5, Exponential(time.Millisecond), func(context.Context) error {
		calls++
		return errors.New("something unclassified")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, 1, calls)
}

func TestRetryBackoffDelays(t *testing.T) {
	base := 20 * time.Millisecond
	start := time.Now()
	attempts, err := Retry(context.Background(), 3, Exponential(base), func(context.Context) error {
		return errkind.Wrapf(errkind.KindLockTimeout, "busy")
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	require.Equal(t, 3, attempts)
	// Waits of base and 2*base precede attempts two and three.
	require.GreaterOrEqual(t, elapsed, 3*base)
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	attempts, err := Retry(ctx, 5, Exponential(time.Hour), func(context.Context) error {
		calls++
		cancel()
		return errkind.Wrapf(errkind.KindLockTimeout, "busy")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, 1, calls)
}
