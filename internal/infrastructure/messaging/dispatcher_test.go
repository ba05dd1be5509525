package messaging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/pkg/retry"
)

// testDispatcher uses tight retry delays so failure paths finish quickly.
func testDispatcher(t *testing.T, bus shared.EventBus) *Dispatcher {
	t.Helper()
	config := DefaultDispatcherConfig(bus)
	config.Retrier = retry.New(retry.Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	})
	config.HandlerTimeout = time.Second
	d := NewDispatcher(config)
	t.Cleanup(func() { _ = d.Stop() })
	return d
}

func TestDispatcher_RoutesEventFromBus(t *testing.T) {
	bus := syncBus(t)
	d := testDispatcher(t, bus)

	var got shared.Event
	require.NoError(t, d.Register(shared.EventSessionStarted, "session-tracker", func(event shared.Event) error {
		got = event
		return nil
	}))
	require.NoError(t, d.Start())

	require.NoError(t, bus.Publish(shared.NewSessionStartedEvent("learner-1", "session-1", "course-1")))

	require.NotNil(t, got)
	assert.Equal(t, "learner-1", got.AggregateID())
}

func TestDispatcher_RegisterValidation(t *testing.T) {
	d := testDispatcher(t, syncBus(t))

	noop := func(shared.Event) error { return nil }
	assert.Error(t, d.Register(shared.EventBehaviorRecorded, "x", nil))
	assert.Error(t, d.Register(shared.EventBehaviorRecorded, "", noop))
	assert.NoError(t, d.Register(shared.EventBehaviorRecorded, "x", noop))
}

func TestDispatcher_SyncHandlerErrorPropagates(t *testing.T) {
	d := testDispatcher(t, syncBus(t))

	require.NoError(t, d.RegisterSync(shared.EventDecisionProposed, "decision-writer", func(shared.Event) error {
		return errors.New("write rejected")
	}))

	err := d.Dispatch(shared.NewDecisionProposedEvent("decision-1", "learner-1", "review", "streak broken", 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decision-writer")
}

func TestDispatcher_RetriesTransientFailure(t *testing.T) {
	d := testDispatcher(t, syncBus(t))

	attempts := 0
	require.NoError(t, d.RegisterSync(shared.EventBehaviorRecorded, "flaky", func(shared.Event) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	err := d.Dispatch(shared.NewBehaviorRecordedEvent("learner-1", "section-1", "answer_correct"))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	snap := d.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalDispatched)
	assert.Equal(t, int64(1), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.RetrySuccesses)
	assert.Zero(t, snap.TotalFailures)
}

func TestDispatcher_ExhaustedRetriesLandInDLQ(t *testing.T) {
	d := testDispatcher(t, syncBus(t))

	attempts := 0
	require.NoError(t, d.RegisterSync(shared.EventBehaviorRecorded, "broken", func(shared.Event) error {
		attempts++
		return errors.New("permanent failure")
	}))

	event := shared.NewBehaviorRecordedEvent("learner-1", "section-1", "answer_wrong")
	err := d.Dispatch(event)
	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	dlq := d.DeadLetterQueue()
	require.NotNil(t, dlq)
	require.Equal(t, 1, dlq.Size())

	entry, ok := dlq.Pop()
	require.True(t, ok)
	assert.Equal(t, "broken", entry.HandlerName)
	assert.Equal(t, 3, entry.Attempts)
	assert.Equal(t, shared.EventBehaviorRecorded, entry.Event.EventType())
	assert.EqualError(t, entry.Error, "permanent failure")

	assert.Zero(t, dlq.Size())
	_, ok = dlq.Pop()
	assert.False(t, ok)
}

func TestDispatcher_HandlerPanicIsRecovered(t *testing.T) {
	d := testDispatcher(t, syncBus(t))

	require.NoError(t, d.RegisterSync(shared.EventBehaviorRecorded, "panicky", func(shared.Event) error {
		panic("boom")
	}))

	err := d.Dispatch(shared.NewBehaviorRecordedEvent("learner-1", "section-1", "answer_correct"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.Equal(t, 1, d.DeadLetterQueue().Size())
}

func TestDispatcher_HandlerTimeout(t *testing.T) {
	bus := syncBus(t)
	config := DefaultDispatcherConfig(bus)
	config.Retrier = retry.New(retry.Policy{MaxAttempts: 1, InitialDelay: time.Millisecond})
	config.HandlerTimeout = 20 * time.Millisecond
	d := NewDispatcher(config)
	t.Cleanup(func() { _ = d.Stop() })

	require.NoError(t, d.RegisterSync(shared.EventBehaviorRecorded, "slow", func(shared.Event) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}))

	err := d.Dispatch(shared.NewBehaviorRecordedEvent("learner-1", "section-1", "answer_correct"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestDispatcher_UnhandledEventTypeIsIgnored(t *testing.T) {
	d := testDispatcher(t, syncBus(t))

	require.NoError(t, d.Dispatch(shared.NewBehaviorRecordedEvent("learner-1", "section-1", "answer_correct")))
	assert.Zero(t, d.Metrics().Snapshot().TotalDispatched)
}

func TestDispatcher_AsyncHandlerErrorNotReturned(t *testing.T) {
	d := testDispatcher(t, syncBus(t))

	require.NoError(t, d.Register(shared.EventBehaviorRecorded, "best-effort", func(shared.Event) error {
		return errors.New("swallowed")
	}))

	// Dispatch waits for async handlers but keeps their errors off the
	// publisher path; the failure shows up in the DLQ instead.
	err := d.Dispatch(shared.NewBehaviorRecordedEvent("learner-1", "section-1", "answer_correct"))
	assert.NoError(t, err)
	assert.Equal(t, 1, d.DeadLetterQueue().Size())
}

func TestDispatcher_DLQDisabledWhenSizeZero(t *testing.T) {
	config := DefaultDispatcherConfig(syncBus(t))
	config.DeadLetterQueueSize = 0
	config.Retrier = retry.New(retry.Policy{MaxAttempts: 1, InitialDelay: time.Millisecond})
	d := NewDispatcher(config)
	t.Cleanup(func() { _ = d.Stop() })

	assert.Nil(t, d.DeadLetterQueue())

	require.NoError(t, d.RegisterSync(shared.EventBehaviorRecorded, "failing", func(shared.Event) error {
		return errors.New("nope")
	}))
	assert.Error(t, d.Dispatch(shared.NewBehaviorRecordedEvent("learner-1", "section-1", "answer_correct")))
}

func TestDeadLetterQueue_EvictsOldestAtCapacity(t *testing.T) {
	q := NewDeadLetterQueue(2)

	q.Add(DeadLetterEntry{HandlerName: "first"})
	q.Add(DeadLetterEntry{HandlerName: "second"})
	q.Add(DeadLetterEntry{HandlerName: "third"})

	entries := q.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].HandlerName)
	assert.Equal(t, "third", entries[1].HandlerName)
}
