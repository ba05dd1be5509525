// Package circuitbreaker shields the session hot path from a degraded
// Redis: when the cache keeps failing, reads skip straight to the fallback
// instead of waiting out connection timeouts on every event.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker's position: Closed lets everything through, Open
// rejects everything until the open window passes, HalfOpen admits a few
// probe requests to test recovery.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

var (
	// ErrCircuitOpen rejects a call while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests rejects a call when the half-open probe quota
	// is already in flight.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Settings configures a breaker. Zero fields take the documented defaults.
type Settings struct {
	// Name appears in the OnStateChange callback and logs.
	Name string

	// FailureThreshold is the consecutive-failure count that opens the
	// circuit. Default 5.
	FailureThreshold int

	// SuccessThreshold is the consecutive-success count in half-open
	// that closes it again. Default 2.
	SuccessThreshold int

	// OpenTimeout is how long the circuit stays open before probing.
	// Default 30s.
	OpenTimeout time.Duration

	// HalfOpenLimit caps concurrent probe requests. Default 1.
	HalfOpenLimit int

	// IsFailure decides whether an error counts against the threshold.
	// Nil counts every non-nil error.
	IsFailure func(error) bool

	// OnStateChange is invoked on every transition.
	OnStateChange func(name string, from, to State)
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = 2
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.HalfOpenLimit <= 0 {
		s.HalfOpenLimit = 1
	}
	return s
}

// Counts accumulates request outcomes since the last Reset.
type Counts struct {
	Requests             int
	TotalSuccesses       int
	TotalFailures        int
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
}

// CircuitBreaker tracks failures across calls and short-circuits once the
// threshold is crossed. Safe for concurrent use.
type CircuitBreaker struct {
	settings Settings

	mu         sync.Mutex
	state      State
	counts     Counts
	openedAt   time.Time
	probesUsed int
}

// New returns a closed breaker with the settings' zero fields defaulted.
func New(settings Settings) *CircuitBreaker {
	return &CircuitBreaker{settings: settings.withDefaults()}
}

// Execute runs fn if the breaker admits the call and records the outcome.
// A rejected call returns ErrCircuitOpen or ErrTooManyRequests without
// touching fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

// Rejected reports whether err came from the breaker itself rather than
// the protected call.
func Rejected(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.openedAt) < cb.settings.OpenTimeout {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probesUsed = 1
		return nil
	default: // StateHalfOpen
		if cb.probesUsed >= cb.settings.HalfOpenLimit {
			return ErrTooManyRequests
		}
		cb.probesUsed++
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.counts.Requests++

	failed := err != nil
	if failed && cb.settings.IsFailure != nil {
		failed = cb.settings.IsFailure(err)
	}

	if !failed {
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveSuccesses++
		cb.counts.ConsecutiveFailures = 0
		if cb.state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.settings.SuccessThreshold {
			cb.transition(StateClosed)
		}
		return
	}

	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0

	switch cb.state {
	case StateClosed:
		if cb.counts.ConsecutiveFailures >= cb.settings.FailureThreshold {
			cb.open()
		}
	case StateHalfOpen:
		// One failed probe reopens the window.
		cb.open()
	}
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = time.Now()
	cb.transition(StateOpen)
}

// transition must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.counts.ConsecutiveSuccesses = 0
	cb.counts.ConsecutiveFailures = 0
	cb.probesUsed = 0

	if cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.settings.Name, from, to)
	}
}

// State returns the breaker's current position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns a copy of the accumulated counters.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset force-closes the breaker and clears the counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.counts = Counts{}
	cb.probesUsed = 0
}

// Name returns the breaker's configured name.
func (cb *CircuitBreaker) Name() string { return cb.settings.Name }

// CacheBreaker is tuned for Redis reads that always have a Postgres
// fallback: trip early, recover fast, let the fallback cover the gap.
func CacheBreaker(name string, onStateChange func(name string, from, to State), isFailure func(error) bool) *CircuitBreaker {
	return New(Settings{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		OpenTimeout:      15 * time.Second,
		HalfOpenLimit:    2,
		IsFailure:        isFailure,
		OnStateChange:    onStateChange,
	})
}
