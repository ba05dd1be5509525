// Package scheduler implements background job scheduling for the Lumen
// Adaptive Hub. The worker process uses it to run the collective aggregation
// batch and snapshot staleness checks on intervals or cron expressions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job is a unit of background work. Run receives a context that is
// cancelled when the scheduler stops.
type Job interface {
	Name() string
	Run(ctx context.Context) error
	Description() string
}

// Schedule decides when a job fires.
type Schedule interface {
	// Next returns the first fire time strictly after t.
	Next(t time.Time) time.Time

	// String describes the schedule for logs and job listings.
	String() string
}

// JobResult records one execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
}

var (
	ErrNilJob           = errors.New("job cannot be nil")
	ErrNilSchedule      = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists = errors.New("job already exists")
	ErrJobNotFound      = errors.New("job not found")
	ErrRunning          = errors.New("scheduler is running")
	ErrNotRunning       = errors.New("scheduler is not running")
)

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Timezone for schedule calculations (default UTC).
	Timezone *time.Location

	// MaxHistorySize bounds the kept execution history.
	MaxHistorySize int

	// EnableMetrics turns on execution counters.
	EnableMetrics bool
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Logger:         slog.Default(),
		Timezone:       time.UTC,
		MaxHistorySize: 1000,
		EnableMetrics:  true,
	}
}

// entry pairs a job with its schedule and bookkeeping.
type entry struct {
	job      Job
	schedule Schedule
	lastRun  time.Time
	nextRun  time.Time
	runs     int64
	failures int64
	last     *JobResult
}

// Scheduler runs each registered job in its own goroutine, sleeping on a
// timer until the job's next fire time. Slow runs cannot overlap: the next
// fire is computed only after the previous run returns.
type Scheduler struct {
	logger     *slog.Logger
	tz         *time.Location
	maxHistory int
	metrics    *Metrics

	mu        sync.Mutex
	entries   map[string]*entry
	history   []JobResult
	running   bool
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = 1000
	}

	s := &Scheduler{
		logger:     config.Logger,
		tz:         config.Timezone,
		maxHistory: config.MaxHistorySize,
		entries:    make(map[string]*entry),
	}
	if config.EnableMetrics {
		s.metrics = newMetrics()
	}
	return s
}

// Register adds a job. All jobs must be registered before Start.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrRunning
	}
	name := job.Name()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	e := &entry{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(time.Now().In(s.tz)),
	}
	s.entries[name] = e

	s.logger.Info("job registered",
		"job", name,
		"description", job.Description(),
		"schedule", schedule.String(),
		"next_run", e.nextRun.Format(time.RFC3339),
	)
	return nil
}

// Start launches one goroutine per registered job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	s.running = true
	s.startedAt = time.Now()
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, e := range s.entries {
		s.wg.Add(1)
		go s.jobLoop(e)
	}
	count := len(s.entries)
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs_count", count)
	return nil
}

// Stop cancels the job contexts and waits for in-flight runs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped", "uptime", time.Since(s.startedAt).String())
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) jobLoop(e *entry) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		next := e.nextRun
		s.mu.Unlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.execute(e, s.ctx, false)

		s.mu.Lock()
		e.nextRun = e.schedule.Next(time.Now().In(s.tz))
		s.mu.Unlock()
	}
}

// execute runs the job once and records the outcome.
func (s *Scheduler) execute(e *entry, ctx context.Context, manual bool) *JobResult {
	name := e.job.Name()
	startedAt := time.Now()
	if manual {
		s.logger.Info("manual job execution started", "job", name)
	} else {
		s.logger.Info("job started", "job", name)
	}

	err := e.job.Run(ctx)
	completedAt := time.Now()

	result := &JobResult{
		JobName:     name,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Success:     err == nil,
		Error:       err,
	}

	if s.metrics != nil {
		s.metrics.record(name, result.Duration, err == nil)
	}

	s.mu.Lock()
	e.lastRun = startedAt
	e.runs++
	if err != nil {
		e.failures++
	}
	e.last = result
	s.history = append(s.history, *result)
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed",
			"job", name,
			"duration", result.Duration.String(),
			"error", err,
		)
	} else {
		s.logger.Info("job completed",
			"job", name,
			"duration", result.Duration.String(),
		)
	}
	return result
}

// RunNow executes a job immediately, independent of its schedule. The
// worker triggers this on startup so a fresh deployment has a curriculum
// snapshot before the first interval elapses.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.Lock()
	e, ok := s.entries[jobName]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	result := s.execute(e, ctx, true)
	return result, result.Error
}

// JobInfo describes a registered job and its recent activity.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// ListJobs returns every registered job with its bookkeeping.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: e.job.Description(),
			Schedule:    e.schedule.String(),
			LastRun:     e.lastRun,
			NextRun:     e.nextRun,
			RunCount:    e.runs,
			FailCount:   e.failures,
			LastResult:  e.last,
		})
	}
	return infos
}

// History returns up to limit most recent job results, oldest first.
func (s *Scheduler) History(limit int) []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]JobResult, limit)
	copy(out, s.history[len(s.history)-limit:])
	return out
}

// Metrics returns the execution counters, nil when disabled.
func (s *Scheduler) Metrics() *Metrics {
	return s.metrics
}

// Metrics accumulates execution counters across all jobs.
type Metrics struct {
	mu sync.Mutex

	executions    int64
	successes     int64
	failures      int64
	totalDuration time.Duration
	byJob         map[string]int64
	failuresByJob map[string]int64
}

func newMetrics() *Metrics {
	return &Metrics{
		byJob:         make(map[string]int64),
		failuresByJob: make(map[string]int64),
	}
}

func (m *Metrics) record(jobName string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.executions++
	m.totalDuration += duration
	m.byJob[jobName]++
	if success {
		m.successes++
	} else {
		m.failures++
		m.failuresByJob[jobName]++
	}
}

// MetricsSnapshot is a point-in-time view of the counters.
type MetricsSnapshot struct {
	TotalExecutions int64
	TotalSuccesses  int64
	TotalFailures   int64
	SuccessRate     float64
	AverageDuration time.Duration
}

// Snapshot copies the counters out under the lock.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		TotalExecutions: m.executions,
		TotalSuccesses:  m.successes,
		TotalFailures:   m.failures,
	}
	if m.executions > 0 {
		snap.SuccessRate = float64(m.successes) / float64(m.executions)
		snap.AverageDuration = m.totalDuration / time.Duration(m.executions)
	}
	return snap
}
