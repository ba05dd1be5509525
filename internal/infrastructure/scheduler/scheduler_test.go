package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubJob counts its runs and fails on demand.
type stubJob struct {
	name string
	runs atomic.Int64
	err  error
}

func (j *stubJob) Name() string        { return j.name }
func (j *stubJob) Description() string { return "stub job for tests" }

func (j *stubJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

// farOff keeps the timer from firing during a test.
const farOff = time.Hour

func newTestScheduler() *Scheduler {
	config := DefaultSchedulerConfig()
	config.MaxHistorySize = 10
	return NewScheduler(config)
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := newTestScheduler()
	schedule := NewIntervalSchedule(farOff)

	assert.ErrorIs(t, s.Register(nil, schedule), ErrNilJob)
	assert.ErrorIs(t, s.Register(&stubJob{name: "a"}, nil), ErrNilSchedule)

	require.NoError(t, s.Register(&stubJob{name: "a"}, schedule))
	assert.ErrorIs(t, s.Register(&stubJob{name: "a"}, schedule), ErrJobAlreadyExists)
}

func TestScheduler_RegisterWhileRunning(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(&stubJob{name: "a"}, NewIntervalSchedule(farOff)))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.ErrorIs(t, s.Register(&stubJob{name: "b"}, NewIntervalSchedule(farOff)), ErrRunning)
}

func TestScheduler_StartStopLifecycle(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(&stubJob{name: "a"}, NewIntervalSchedule(farOff)))

	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrNotRunning)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}

func TestScheduler_RunNow(t *testing.T) {
	s := newTestScheduler()
	job := &stubJob{name: "aggregation"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(farOff)))

	result, err := s.RunNow(context.Background(), "aggregation")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "aggregation", result.JobName)
	assert.True(t, result.Success)
	assert.Equal(t, int64(1), job.runs.Load())
}

func TestScheduler_RunNowUnknownJob(t *testing.T) {
	s := newTestScheduler()

	_, err := s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_RunNowFailingJob(t *testing.T) {
	s := newTestScheduler()
	jobErr := errors.New("aggregation window empty")
	require.NoError(t, s.Register(&stubJob{name: "aggregation", err: jobErr}, NewIntervalSchedule(farOff)))

	result, err := s.RunNow(context.Background(), "aggregation")
	assert.ErrorIs(t, err, jobErr)
	require.NotNil(t, result)
	assert.False(t, result.Success)
}

func TestScheduler_HistoryKeepsMostRecent(t *testing.T) {
	config := DefaultSchedulerConfig()
	config.MaxHistorySize = 3
	s := NewScheduler(config)

	require.NoError(t, s.Register(&stubJob{name: "a"}, NewIntervalSchedule(farOff)))
	for i := 0; i < 5; i++ {
		_, err := s.RunNow(context.Background(), "a")
		require.NoError(t, err)
	}

	assert.Len(t, s.History(0), 3)
	assert.Len(t, s.History(2), 2)
	assert.Len(t, s.History(100), 3)
}

func TestScheduler_ListJobs(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(&stubJob{name: "aggregation"}, NewIntervalSchedule(farOff)))
	require.NoError(t, s.Register(&stubJob{name: "staleness", err: errors.New("stale")}, NewIntervalSchedule(farOff)))

	_, _ = s.RunNow(context.Background(), "aggregation")
	_, _ = s.RunNow(context.Background(), "staleness")

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)

	byName := make(map[string]JobInfo, len(jobs))
	for _, info := range jobs {
		byName[info.Name] = info
	}

	agg := byName["aggregation"]
	assert.Equal(t, int64(1), agg.RunCount)
	assert.Zero(t, agg.FailCount)
	assert.False(t, agg.LastRun.IsZero())
	require.NotNil(t, agg.LastResult)
	assert.True(t, agg.LastResult.Success)

	stale := byName["staleness"]
	assert.Equal(t, int64(1), stale.FailCount)
}

func TestScheduler_MetricsSnapshot(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(&stubJob{name: "ok"}, NewIntervalSchedule(farOff)))
	require.NoError(t, s.Register(&stubJob{name: "bad", err: errors.New("nope")}, NewIntervalSchedule(farOff)))

	_, _ = s.RunNow(context.Background(), "ok")
	_, _ = s.RunNow(context.Background(), "ok")
	_, _ = s.RunNow(context.Background(), "bad")

	snap := s.Metrics().Snapshot()
	assert.Equal(t, int64(3), snap.TotalExecutions)
	assert.Equal(t, int64(2), snap.TotalSuccesses)
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.InDelta(t, 2.0/3.0, snap.SuccessRate, 0.001)
}

func TestScheduler_ScheduledExecution(t *testing.T) {
	s := newTestScheduler()
	job := &stubJob{name: "fast"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Second)))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return job.runs.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestIntervalSchedule(t *testing.T) {
	s := NewIntervalSchedule(5 * time.Minute)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(5*time.Minute), s.Next(now))
	assert.Equal(t, "@every 5m0s", s.String())

	// Sub-second intervals are clamped.
	assert.Equal(t, time.Second, NewIntervalSchedule(time.Millisecond).Interval)
}
