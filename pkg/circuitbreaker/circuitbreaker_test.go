package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRedisDown = errors.New("redis: connection refused")

func failing(ctx context.Context) error { return errRedisDown }
func succeeding(ctx context.Context) error { return nil }

func tripBreaker(t *testing.T, cb *CircuitBreaker, failures int) {
	t.Helper()
	for i := 0; i < failures; i++ {
		err := cb.Execute(context.Background(), failing)
		require.ErrorIs(t, err, errRedisDown)
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := New(Settings{FailureThreshold: 3, OpenTimeout: time.Minute})

	tripBreaker(t, cb, 3)
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), succeeding)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, Rejected(err))
}

func TestCircuitBreaker_SuccessResetsFailureStreak(t *testing.T) {
	cb := New(Settings{FailureThreshold: 3, OpenTimeout: time.Minute})

	tripBreaker(t, cb, 2)
	require.NoError(t, cb.Execute(context.Background(), succeeding))
	tripBreaker(t, cb, 2)

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbeClosesCircuit(t *testing.T) {
	cb := New(Settings{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OpenTimeout:      10 * time.Millisecond,
	})

	tripBreaker(t, cb, 2)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Execute(context.Background(), succeeding))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(Settings{
		FailureThreshold: 2,
		OpenTimeout:      10 * time.Millisecond,
	})

	tripBreaker(t, cb, 2)
	time.Sleep(20 * time.Millisecond)

	err := cb.Execute(context.Background(), failing)
	require.ErrorIs(t, err, errRedisDown)
	assert.Equal(t, StateOpen, cb.State())

	err = cb.Execute(context.Background(), succeeding)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenLimitsConcurrentProbes(t *testing.T) {
	cb := New(Settings{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		OpenTimeout:      10 * time.Millisecond,
		HalfOpenLimit:    1,
	})

	tripBreaker(t, cb, 1)
	time.Sleep(20 * time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	err := cb.Execute(context.Background(), succeeding)
	assert.ErrorIs(t, err, ErrTooManyRequests)
	assert.True(t, Rejected(err))

	close(release)
	require.NoError(t, <-done)
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	cb := New(Settings{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
	})

	for i := 0; i < 5; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error {
			return context.Canceled
		})
		require.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 5, cb.Counts().TotalSuccesses)
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	type change struct{ from, to State }
	var changes []change

	cb := New(Settings{
		Name:             "profile-cache",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		OpenTimeout:      10 * time.Millisecond,
		OnStateChange: func(name string, from, to State) {
			assert.Equal(t, "profile-cache", name)
			changes = append(changes, change{from, to})
		},
	})

	tripBreaker(t, cb, 1)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Execute(context.Background(), succeeding))

	assert.Equal(t, []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, changes)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := New(Settings{FailureThreshold: 1, OpenTimeout: time.Minute})

	tripBreaker(t, cb, 1)
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, Counts{}, cb.Counts())
	assert.NoError(t, cb.Execute(context.Background(), succeeding))
}

func TestCircuitBreaker_Counts(t *testing.T) {
	cb := New(Settings{FailureThreshold: 10, OpenTimeout: time.Minute})

	require.NoError(t, cb.Execute(context.Background(), succeeding))
	require.NoError(t, cb.Execute(context.Background(), succeeding))
	require.Error(t, cb.Execute(context.Background(), failing))

	counts := cb.Counts()
	assert.Equal(t, 3, counts.Requests)
	assert.Equal(t, 2, counts.TotalSuccesses)
	assert.Equal(t, 1, counts.TotalFailures)
	assert.Equal(t, 1, counts.ConsecutiveFailures)
	assert.Zero(t, counts.ConsecutiveSuccesses)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}

func TestCacheBreaker_Defaults(t *testing.T) {
	cb := CacheBreaker("snapshot-cache", nil, nil)
	assert.Equal(t, "snapshot-cache", cb.Name())
	assert.Equal(t, StateClosed, cb.State())
}
