package messaging

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
)

// syncBus returns a bus that runs handlers inline, so tests need no waiting.
func syncBus(t *testing.T) *InMemoryEventBus {
	t.Helper()
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:     false,
		EnableMetrics: true,
		Logger:        slog.Default(),
	})
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestInMemoryEventBus_PublishDeliversToTypedSubscriber(t *testing.T) {
	bus := syncBus(t)

	var got shared.Event
	err := bus.Subscribe(shared.EventBehaviorRecorded, func(event shared.Event) error {
		got = event
		return nil
	})
	require.NoError(t, err)

	event := shared.NewBehaviorRecordedEvent("learner-1", "section-1", "answer_correct")
	require.NoError(t, bus.Publish(event))

	require.NotNil(t, got)
	assert.Equal(t, shared.EventBehaviorRecorded, got.EventType())
	assert.Equal(t, "learner-1", got.AggregateID())
}

func TestInMemoryEventBus_TypedSubscriberSkipsOtherTypes(t *testing.T) {
	bus := syncBus(t)

	calls := 0
	require.NoError(t, bus.Subscribe(shared.EventProfileUpdated, func(shared.Event) error {
		calls++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewBehaviorRecordedEvent("learner-1", "section-1", "hesitation")))
	assert.Zero(t, calls)
}

func TestInMemoryEventBus_SubscribeAllSeesEveryType(t *testing.T) {
	bus := syncBus(t)

	var seen []shared.EventType
	require.NoError(t, bus.SubscribeAll(func(event shared.Event) error {
		seen = append(seen, event.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewBehaviorRecordedEvent("learner-1", "section-1", "answer_correct")))
	require.NoError(t, bus.Publish(shared.NewSessionStartedEvent("learner-1", "session-1", "course-1")))

	assert.Equal(t, []shared.EventType{shared.EventBehaviorRecorded, shared.EventSessionStarted}, seen)
}

func TestInMemoryEventBus_HandlerErrorDoesNotPropagate(t *testing.T) {
	bus := syncBus(t)

	require.NoError(t, bus.Subscribe(shared.EventBehaviorRecorded, func(shared.Event) error {
		return errors.New("handler blew up")
	}))

	err := bus.Publish(shared.NewBehaviorRecordedEvent("learner-1", "section-1", "answer_wrong"))
	assert.NoError(t, err)
}

func TestInMemoryEventBus_NilArguments(t *testing.T) {
	bus := syncBus(t)

	assert.Error(t, bus.Subscribe(shared.EventBehaviorRecorded, nil))
	assert.Error(t, bus.SubscribeAll(nil))
	assert.Error(t, bus.Publish(nil))
}

func TestInMemoryEventBus_ClosedBusRejectsOperations(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	require.NoError(t, bus.Close())

	noop := func(shared.Event) error { return nil }
	assert.ErrorIs(t, bus.Subscribe(shared.EventBehaviorRecorded, noop), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(noop), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Publish(shared.NewBehaviorRecordedEvent("l", "s", "k")), ErrEventBusClosed)

	// Close is idempotent.
	assert.NoError(t, bus.Close())
}

func TestInMemoryEventBus_AsyncModeRunsAllHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 2,
	})

	var mu sync.Mutex
	calls := 0
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Subscribe(shared.EventSectionCompleted, func(shared.Event) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return nil
		}))
	}

	require.NoError(t, bus.Publish(shared.NewSectionCompletedEvent("learner-1", "chapter-1", "section-1", 0)))

	// Close waits for in-flight handlers.
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, calls)
}

func TestInMemoryEventBus_MetricsSnapshot(t *testing.T) {
	bus := syncBus(t)

	require.NoError(t, bus.Subscribe(shared.EventBehaviorRecorded, func(shared.Event) error { return nil }))
	require.NoError(t, bus.Subscribe(shared.EventBehaviorRecorded, func(shared.Event) error {
		return errors.New("flaky")
	}))

	require.NoError(t, bus.Publish(shared.NewBehaviorRecordedEvent("learner-1", "section-1", "answer_correct")))
	require.NoError(t, bus.Publish(shared.NewBehaviorRecordedEvent("learner-1", "section-2", "answer_correct")))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalPublished)
	assert.Equal(t, int64(4), snap.TotalHandlerExecs)
	assert.InDelta(t, 0.5, snap.HandlerSuccessRate, 0.001)
	assert.False(t, snap.Since.IsZero())
}

func TestInMemoryEventBus_MetricsDisabled(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	assert.Nil(t, bus.Metrics())
	require.NoError(t, bus.Subscribe(shared.EventBehaviorRecorded, func(shared.Event) error { return nil }))
	assert.NoError(t, bus.Publish(shared.NewBehaviorRecordedEvent("learner-1", "section-1", "answer_correct")))
}

func TestInMemoryEventBus_PublishWithoutSubscribers(t *testing.T) {
	bus := syncBus(t)

	require.NoError(t, bus.Publish(shared.NewBehaviorRecordedEvent("learner-1", "section-1", "answer_correct")))
	assert.Zero(t, bus.Metrics().Snapshot().TotalPublished)
}
