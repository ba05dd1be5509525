// Package jobs contains implementations of scheduled jobs for the Lumen
// Adaptive Hub worker.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/collective"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/pathway"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE COLLECTIVE JOB
// ══════════════════════════════════════════════════════════════════════════════

// AggregateCollectiveJob recomputes the emergent curriculum of every course
// from its full outcome log and publishes the result as a new snapshot.
// Sessions read snapshots, never the log, so the hot path stays O(1) no
// matter how large the population grows.
type AggregateCollectiveJob struct {
	curricula  pathway.CurriculumRepository
	outcomes   collective.OutcomeRepository
	snapshots  collective.SnapshotStore
	aggregator *collective.Aggregator
	publisher  shared.EventPublisher
	logger     *slog.Logger

	config AggregateCollectiveConfig

	lastStats atomic.Value // *AggregateStats
}

// AggregateCollectiveConfig contains configuration for the aggregation job.
type AggregateCollectiveConfig struct {
	// Concurrency is the number of courses aggregated in parallel.
	Concurrency int

	// Timeout is the maximum duration for one full aggregation pass.
	Timeout time.Duration

	// MinNewOutcomes skips a course when its log grew by fewer records
	// since the last snapshot. Zero aggregates unconditionally.
	MinNewOutcomes int
}

// DefaultAggregateCollectiveConfig returns sensible defaults.
func DefaultAggregateCollectiveConfig() AggregateCollectiveConfig {
	return AggregateCollectiveConfig{
		Concurrency: 4,
		Timeout:     10 * time.Minute,
	}
}

// AggregateStats contains statistics from one aggregation pass.
type AggregateStats struct {
	StartedAt        time.Time
	CompletedAt      time.Time
	Duration         time.Duration
	CoursesTotal     int
	CoursesPublished int
	CoursesSkipped   int
	OutcomesRead     int
	Errors           []error
}

// NewAggregateCollectiveJob creates the aggregation job.
func NewAggregateCollectiveJob(
	curricula pathway.CurriculumRepository,
	outcomes collective.OutcomeRepository,
	snapshots collective.SnapshotStore,
	aggregator *collective.Aggregator,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	config AggregateCollectiveConfig,
) *AggregateCollectiveJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}

	return &AggregateCollectiveJob{
		curricula:  curricula,
		outcomes:   outcomes,
		snapshots:  snapshots,
		aggregator: aggregator,
		publisher:  publisher,
		logger:     logger,
		config:     config,
	}
}

// Name returns the job name.
func (j *AggregateCollectiveJob) Name() string {
	return "aggregate_collective"
}

// Description returns a human-readable description.
func (j *AggregateCollectiveJob) Description() string {
	return "Mines outcome logs into emergent curriculum snapshots for all courses"
}

// Run executes one aggregation pass across all courses.
func (j *AggregateCollectiveJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &AggregateStats{StartedAt: startedAt}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	courses, err := j.curricula.Courses(ctx)
	if err != nil {
		return fmt.Errorf("list courses: %w", err)
	}
	stats.CoursesTotal = len(courses)

	j.logger.Info("starting collective aggregation", "courses", len(courses))

	var (
		published atomic.Int64
		skipped   atomic.Int64
		read      atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)

	errCh := make(chan error, len(courses))
	for _, courseID := range courses {
		g.Go(func() error {
			n, didPublish, err := j.aggregateCourse(gctx, courseID)
			read.Add(int64(n))
			if err != nil {
				// One broken course must not starve the rest.
				j.logger.Error("course aggregation failed",
					"course_id", courseID, "error", err)
				errCh <- fmt.Errorf("course %s: %w", courseID, err)
				return nil
			}
			if didPublish {
				published.Add(1)
			} else {
				skipped.Add(1)
			}
			return nil
		})
	}

	_ = g.Wait()
	close(errCh)
	for err := range errCh {
		stats.Errors = append(stats.Errors, err)
	}

	stats.CoursesPublished = int(published.Load())
	stats.CoursesSkipped = int(skipped.Load())
	stats.OutcomesRead = int(read.Load())
	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastStats.Store(stats)

	j.logger.Info("collective aggregation completed",
		"duration", stats.Duration.String(),
		"published", stats.CoursesPublished,
		"skipped", stats.CoursesSkipped,
		"outcomes_read", stats.OutcomesRead,
		"errors", len(stats.Errors),
	)

	if len(stats.Errors) > 0 {
		return fmt.Errorf("aggregation completed with %d errors", len(stats.Errors))
	}
	return nil
}

// aggregateCourse recomputes and publishes one course snapshot.
// Returns the number of outcome records read and whether a snapshot
// was published.
func (j *AggregateCollectiveJob) aggregateCourse(ctx context.Context, courseID string) (int, bool, error) {
	records, err := j.outcomes.GetAll(ctx, courseID)
	if err != nil {
		return 0, false, fmt.Errorf("read outcome log: %w", err)
	}

	var prevVersion int64
	var prevLearners int
	prev, err := j.snapshots.Latest(ctx, courseID)
	switch {
	case err == nil:
		prevVersion = prev.Version
		prevLearners = prev.HealthMetrics.TotalLearners
	case shared.IsNotFound(err):
		// First aggregation for this course.
	default:
		return len(records), false, fmt.Errorf("load previous snapshot: %w", err)
	}

	if j.config.MinNewOutcomes > 0 && prev != nil {
		grown := len(records) - prevLearners
		if grown < j.config.MinNewOutcomes {
			j.logger.Debug("skipping course, log barely grew",
				"course_id", courseID, "records", len(records))
			return len(records), false, nil
		}
	}

	cur := j.aggregator.Aggregate(records, prevVersion+1)

	if err := j.snapshots.Publish(ctx, courseID, cur); err != nil {
		return len(records), false, fmt.Errorf("publish snapshot: %w", err)
	}

	if j.publisher != nil {
		ev := shared.NewCurriculumAggregatedEvent(
			cur.Version,
			cur.HealthMetrics.TotalLearners,
			len(cur.ImplicitPrerequisites),
			len(cur.StrugglePoints),
			cur.HealthMetrics.OverallConfidence,
		)
		if err := j.publisher.Publish(ev); err != nil {
			j.logger.Warn("failed to publish aggregation event",
				"course_id", courseID, "error", err)
		}
	}

	j.logger.Info("snapshot published",
		"course_id", courseID,
		"version", cur.Version,
		"learners", cur.HealthMetrics.TotalLearners,
		"prerequisites", len(cur.ImplicitPrerequisites),
		"struggles", len(cur.StrugglePoints),
		"confidence", cur.HealthMetrics.OverallConfidence,
	)

	return len(records), true, nil
}

// LastStats returns statistics from the last pass.
func (j *AggregateCollectiveJob) LastStats() *AggregateStats {
	stats := j.lastStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*AggregateStats)
}
