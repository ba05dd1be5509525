// Package retry provides bounded retries with exponential backoff and
// jitter. It covers transient failures on the Postgres and Redis paths,
// where a blip must not surface to the learner, and event handler dispatch.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// markerError tags an error as retryable or permanent without changing
// its message or unwrap chain.
type markerError struct {
	err       error
	retryable bool
}

func (e *markerError) Error() string { return e.err.Error() }
func (e *markerError) Unwrap() error { return e.err }

// Retryable marks an error as worth retrying. Unmarked errors are
// returned to the caller immediately.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &markerError{err: err, retryable: true}
}

// Permanent marks an error as final even if a RetryIf predicate would
// otherwise retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &markerError{err: err}
}

func classify(err error) (marked bool, retryable bool) {
	var m *markerError
	if errors.As(err, &m) {
		return true, m.retryable
	}
	return false, false
}

// IsRetryable reports whether err carries the Retryable mark.
func IsRetryable(err error) bool {
	marked, retryable := classify(err)
	return marked && retryable
}

// Policy controls attempt count and backoff shape. Zero fields take the
// documented defaults.
type Policy struct {
	// MaxAttempts counts the first try as well. Default 3.
	MaxAttempts int

	// InitialDelay is the pause before the first retry. Default 100ms.
	InitialDelay time.Duration

	// MaxDelay caps the backoff growth. Default 30s.
	MaxDelay time.Duration

	// Multiplier grows the delay after each attempt. Default 2.
	Multiplier float64

	// Jitter in [0,1] randomizes each delay by ±Jitter of its value,
	// spreading out retries from concurrent sessions. Default 0.1.
	Jitter float64

	// RetryIf overrides the Retryable-mark check. Permanent still wins.
	RetryIf func(error) bool

	// OnRetry is invoked before each sleep, for logging.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = 0.1
	}
	return p
}

// Retrier executes operations under one Policy. Safe for concurrent use.
type Retrier struct {
	policy Policy
}

// New returns a Retrier with the policy's zero fields defaulted.
func New(policy Policy) *Retrier {
	return &Retrier{policy: policy.withDefaults()}
}

// Do runs op until it succeeds, exhausts the attempts, returns an
// unretryable error, or the context ends. The Retryable/Permanent marks
// are stripped from the returned error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	delay := r.policy.InitialDelay

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = unwrapMark(err)

		marked, retryable := classify(err)
		if marked && !retryable {
			return lastErr
		}
		again := retryable
		if !marked && r.policy.RetryIf != nil {
			again = r.policy.RetryIf(err)
		}
		if !again || attempt == r.policy.MaxAttempts {
			return lastErr
		}

		sleep := jittered(delay, r.policy.Jitter)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, lastErr, sleep)
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * r.policy.Multiplier)
		if delay > r.policy.MaxDelay {
			delay = r.policy.MaxDelay
		}
	}
}

func unwrapMark(err error) error {
	var m *markerError
	if errors.As(err, &m) {
		return m.err
	}
	return err
}

func jittered(d time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return d
	}
	spread := float64(d) * factor * (rand.Float64()*2 - 1)
	out := time.Duration(float64(d) + spread)
	if out < 0 {
		return 0
	}
	return out
}

// Do runs op with a one-off Retrier.
func Do(ctx context.Context, op func(ctx context.Context) error, policy Policy) error {
	return New(policy).Do(ctx, op)
}

// Preset policies for the hub's three retry sites.

// DatabaseRetrier covers Postgres writes. Tight delays: these run on the
// session's fire-and-forget write path.
func DatabaseRetrier() *Retrier {
	return New(Policy{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Jitter:       0.05,
	})
}

// CacheRetrier covers Redis. A single quick retry: cache misses fall back
// to Postgres anyway.
func CacheRetrier() *Retrier {
	return New(Policy{
		MaxAttempts:  2,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
	})
}

// HandlerRetrier covers event handler dispatch.
func HandlerRetrier() *Retrier {
	return New(Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	})
}
