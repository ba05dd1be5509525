package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestRetrier_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := New(fastPolicy(5)).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return Retryable(errors.New("connection reset"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetrier_UnmarkedErrorReturnsImmediately(t *testing.T) {
	boom := errors.New("schema violation")
	attempts := 0
	err := New(fastPolicy(5)).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}

func TestRetrier_PermanentStopsEvenWithRetryIf(t *testing.T) {
	policy := fastPolicy(5)
	policy.RetryIf = func(error) bool { return true }

	attempts := 0
	err := New(policy).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return Permanent(errors.New("bad request"))
	})

	assert.EqualError(t, err, "bad request")
	assert.Equal(t, 1, attempts)
}

func TestRetrier_RetryIfCoversUnmarkedErrors(t *testing.T) {
	policy := fastPolicy(4)
	policy.RetryIf = func(err error) bool { return err.Error() == "timeout" }

	attempts := 0
	err := New(policy).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("timeout")
	})

	assert.EqualError(t, err, "timeout")
	assert.Equal(t, 4, attempts)
}

func TestRetrier_ExhaustsAttempts(t *testing.T) {
	policy := fastPolicy(3)

	var calls []int
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		calls = append(calls, attempt)
	}

	attempts := 0
	err := New(policy).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return Retryable(errors.New("still failing"))
	})

	assert.EqualError(t, err, "still failing")
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, calls)
}

func TestRetrier_MarkStrippedFromReturnedError(t *testing.T) {
	base := errors.New("deadlock detected")
	err := New(fastPolicy(2)).Do(context.Background(), func(ctx context.Context) error {
		return Retryable(base)
	})

	assert.Equal(t, base, err)
	assert.False(t, IsRetryable(err))
}

func TestRetrier_ContextCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := New(Policy{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond}).Do(ctx, func(ctx context.Context) error {
		attempts++
		cancel()
		return Retryable(errors.New("interrupted"))
	})

	assert.EqualError(t, err, "interrupted")
	assert.Equal(t, 1, attempts)
}

func TestRetrier_ContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := New(fastPolicy(3)).Do(ctx, func(ctx context.Context) error {
		attempts++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, attempts)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Retryable(errors.New("x"))))
	assert.False(t, IsRetryable(Permanent(errors.New("x"))))
	assert.False(t, IsRetryable(errors.New("x")))
	assert.False(t, IsRetryable(nil))
}

func TestMarkers_NilPassthrough(t *testing.T) {
	assert.Nil(t, Retryable(nil))
	assert.Nil(t, Permanent(nil))
}

func TestDo_PackageLevel(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return Retryable(errors.New("once"))
		}
		return nil
	}, fastPolicy(3))

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
