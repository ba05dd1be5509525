package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// Routes learning signals from the bus to the projection handlers (cooldown
// tracking, celebration TTLs, profile cache invalidation). Handlers are
// retried with backoff; events that exhaust their retries land in the dead
// letter queue for inspection.
// ══════════════════════════════════════════════════════════════════════════════

// subscription ties a named handler to an event type.
type subscription struct {
	name    string
	handler shared.EventHandler
	async   bool
	timeout time.Duration
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// EventBus is the bus to subscribe on.
	EventBus shared.EventBus

	// WorkerPoolSize bounds concurrent handler executions.
	WorkerPoolSize int

	// Retrier drives per-handler retry. Defaults to retry.HandlerRetrier.
	Retrier *retry.Retrier

	// HandlerTimeout bounds one handler attempt. Default 30s.
	HandlerTimeout time.Duration

	// DeadLetterQueueSize caps the DLQ; zero disables it.
	DeadLetterQueueSize int

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultDispatcherConfig returns sensible defaults around the given bus.
func DefaultDispatcherConfig(eventBus shared.EventBus) DispatcherConfig {
	return DispatcherConfig{
		EventBus:            eventBus,
		WorkerPoolSize:      8,
		HandlerTimeout:      30 * time.Second,
		DeadLetterQueueSize: 1000,
	}
}

// Dispatcher fans events out to the handlers registered for their type.
// Async handlers run on a bounded worker pool; sync handlers run inline and
// their errors propagate back to the publisher.
type Dispatcher struct {
	bus            shared.EventBus
	retrier        *retry.Retrier
	handlerTimeout time.Duration
	deadLetters    *DeadLetterQueue
	logger         *slog.Logger
	workers        chan struct{}
	metrics        *DispatcherMetrics

	mu            sync.RWMutex
	subscriptions map[shared.EventType][]subscription

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher creates a dispatcher. Call Start to attach it to the bus.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 8
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 30 * time.Second
	}
	if config.Retrier == nil {
		config.Retrier = retry.HandlerRetrier()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		bus:            config.EventBus,
		retrier:        config.Retrier,
		handlerTimeout: config.HandlerTimeout,
		logger:         config.Logger,
		workers:        make(chan struct{}, config.WorkerPoolSize),
		metrics:        newDispatcherMetrics(),
		subscriptions:  make(map[shared.EventType][]subscription),
		ctx:            ctx,
		cancel:         cancel,
	}
	if config.DeadLetterQueueSize > 0 {
		d.deadLetters = NewDeadLetterQueue(config.DeadLetterQueueSize)
	}
	return d
}

// Register adds an async handler for an event type.
func (d *Dispatcher) Register(eventType shared.EventType, name string, handler shared.EventHandler) error {
	return d.register(eventType, name, handler, true)
}

// RegisterSync adds a handler whose error is returned to the publisher.
func (d *Dispatcher) RegisterSync(eventType shared.EventType, name string, handler shared.EventHandler) error {
	return d.register(eventType, name, handler, false)
}

func (d *Dispatcher) register(eventType shared.EventType, name string, handler shared.EventHandler, async bool) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	if name == "" {
		return errors.New("handler name cannot be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.subscriptions[eventType] = append(d.subscriptions[eventType], subscription{
		name:    name,
		handler: handler,
		async:   async,
		timeout: d.handlerTimeout,
	})

	d.logger.Debug("registered handler",
		"event_type", eventType,
		"handler_name", name,
		"async", async,
	)
	return nil
}

// Start subscribes the dispatcher to every event on the bus.
func (d *Dispatcher) Start() error {
	return d.bus.SubscribeAll(d.Dispatch)
}

// Stop cancels in-flight handler contexts.
func (d *Dispatcher) Stop() error {
	d.cancel()
	d.logger.Info("dispatcher stopped")
	return nil
}

// Dispatch routes one event to its handlers. Sync handler errors are
// collected and returned; async handlers only surface through the DLQ.
func (d *Dispatcher) Dispatch(event shared.Event) error {
	d.mu.RLock()
	subs := d.subscriptions[event.EventType()]
	d.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}
	d.metrics.recordDispatch(event.EventType())

	var wg sync.WaitGroup
	var syncErrs []error
	for _, sub := range subs {
		if sub.async {
			wg.Add(1)
			go func(sub subscription) {
				defer wg.Done()
				d.runHandler(event, sub)
			}(sub)
			continue
		}
		if err := d.runHandler(event, sub); err != nil {
			syncErrs = append(syncErrs, err)
		}
	}
	wg.Wait()

	if len(syncErrs) > 0 {
		return fmt.Errorf("sync handler errors: %v", syncErrs)
	}
	return nil
}

// runHandler acquires a worker slot, then retries the handler until it
// succeeds or the retrier gives up and the event goes to the DLQ.
func (d *Dispatcher) runHandler(event shared.Event, sub subscription) error {
	select {
	case d.workers <- struct{}{}:
		defer func() { <-d.workers }()
	case <-d.ctx.Done():
		return d.ctx.Err()
	}

	attempts := 0
	start := time.Now()
	err := d.retrier.Do(d.ctx, func(ctx context.Context) error {
		attempts++
		if err := d.attempt(event, sub); err != nil {
			d.logger.Warn("handler attempt failed",
				"handler", sub.name,
				"attempt", attempts,
				"error", err,
			)
			return retry.Retryable(err)
		}
		return nil
	})
	d.metrics.recordExecution(time.Since(start), err == nil, attempts > 1)

	if err == nil {
		return nil
	}

	if d.deadLetters != nil {
		d.deadLetters.Add(DeadLetterEntry{
			Event:       event,
			HandlerName: sub.name,
			Error:       err,
			Attempts:    attempts,
			FailedAt:    time.Now(),
		})
	}
	return fmt.Errorf("handler %s failed after %d attempts: %w", sub.name, attempts, err)
}

// attempt runs the handler once with panic recovery and a timeout.
func (d *Dispatcher) attempt(event shared.Event, sub subscription) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("handler panic recovered",
					"handler", sub.name,
					"event_type", event.EventType(),
					"panic", r,
					"stack", string(debug.Stack()),
				)
				done <- fmt.Errorf("handler panic: %v", r)
			}
		}()
		done <- sub.handler(event)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(sub.timeout):
		return fmt.Errorf("handler timeout after %v", sub.timeout)
	case <-d.ctx.Done():
		return d.ctx.Err()
	}
}

// Metrics returns the dispatcher counters.
func (d *Dispatcher) Metrics() *DispatcherMetrics {
	return d.metrics
}

// DeadLetterQueue returns the DLQ, nil when disabled.
func (d *Dispatcher) DeadLetterQueue() *DeadLetterQueue {
	return d.deadLetters
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry is an event a handler could not process.
type DeadLetterEntry struct {
	Event       shared.Event
	HandlerName string
	Error       error
	Attempts    int
	FailedAt    time.Time
}

// DeadLetterQueue is a bounded FIFO of failed events.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
	cap     int
}

// NewDeadLetterQueue creates a queue holding at most maxSize entries.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &DeadLetterQueue{cap: maxSize}
}

// Add appends an entry, evicting the oldest at capacity.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) >= q.cap {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns a copy of the queue, oldest first.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetterEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Size returns the number of queued entries.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Pop removes and returns the oldest entry.
func (q *DeadLetterQueue) Pop() (DeadLetterEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return DeadLetterEntry{}, false
	}
	entry := q.entries[0]
	q.entries = q.entries[1:]
	return entry, true
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER METRICS
// ══════════════════════════════════════════════════════════════════════════════

// DispatcherMetrics accumulates dispatch and handler counters.
type DispatcherMetrics struct {
	mu sync.Mutex

	dispatched     map[shared.EventType]int64
	executions     int64
	failures       int64
	retrySuccesses int64
	totalDuration  time.Duration
	since          time.Time
}

func newDispatcherMetrics() *DispatcherMetrics {
	return &DispatcherMetrics{
		dispatched: make(map[shared.EventType]int64),
		since:      time.Now(),
	}
}

func (m *DispatcherMetrics) recordDispatch(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatched[eventType]++
}

func (m *DispatcherMetrics) recordExecution(duration time.Duration, success, retried bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions++
	m.totalDuration += duration
	if !success {
		m.failures++
	} else if retried {
		m.retrySuccesses++
	}
}

// DispatcherMetricsSnapshot is a point-in-time view of the counters.
type DispatcherMetricsSnapshot struct {
	TotalDispatched int64
	TotalExecutions int64
	TotalFailures   int64
	RetrySuccesses  int64
	SuccessRate     float64
	AverageDuration time.Duration
	Since           time.Time
}

// Snapshot copies the counters out under the lock.
func (m *DispatcherMetrics) Snapshot() DispatcherMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var dispatched int64
	for _, n := range m.dispatched {
		dispatched += n
	}

	snap := DispatcherMetricsSnapshot{
		TotalDispatched: dispatched,
		TotalExecutions: m.executions,
		TotalFailures:   m.failures,
		RetrySuccesses:  m.retrySuccesses,
		SuccessRate:     1,
		Since:           m.since,
	}
	if m.executions > 0 {
		snap.SuccessRate = float64(m.executions-m.failures) / float64(m.executions)
		snap.AverageDuration = m.totalDuration / time.Duration(m.executions)
	}
	return snap
}
