package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/collective"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/pathway"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT HEALTH JOB
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotHealthJob walks all courses and reports snapshots that are missing
// or older than the configured threshold. Sessions degrade to static scoring
// against a stale snapshot, so this is the operator's early warning that the
// aggregation batch has stopped keeping up.
type SnapshotHealthJob struct {
	curricula pathway.CurriculumRepository
	snapshots collective.SnapshotStore
	publisher shared.EventPublisher
	logger    *slog.Logger

	// MaxAge marks a snapshot stale. Should exceed the aggregation interval
	// by a comfortable margin.
	MaxAge time.Duration
}

// NewSnapshotHealthJob creates the health check job. A nil publisher
// disables the stale events; the warnings are still logged.
func NewSnapshotHealthJob(
	curricula pathway.CurriculumRepository,
	snapshots collective.SnapshotStore,
	publisher shared.EventPublisher,
	maxAge time.Duration,
	logger *slog.Logger,
) *SnapshotHealthJob {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAge <= 0 {
		maxAge = 2 * time.Hour
	}
	return &SnapshotHealthJob{
		curricula: curricula,
		snapshots: snapshots,
		publisher: publisher,
		logger:    logger,
		MaxAge:    maxAge,
	}
}

// Name returns the job name.
func (j *SnapshotHealthJob) Name() string {
	return "snapshot_health"
}

// Description returns a human-readable description.
func (j *SnapshotHealthJob) Description() string {
	return "Reports missing or stale emergent curriculum snapshots"
}

// Run executes one health check pass.
func (j *SnapshotHealthJob) Run(ctx context.Context) error {
	courses, err := j.curricula.Courses(ctx)
	if err != nil {
		return fmt.Errorf("list courses: %w", err)
	}

	var missing, stale, healthy int
	now := time.Now()

	for _, courseID := range courses {
		cur, err := j.snapshots.Latest(ctx, courseID)
		switch {
		case shared.IsNotFound(err):
			missing++
			j.logger.Warn("course has no curriculum snapshot", "course_id", courseID)
			continue
		case err != nil:
			return fmt.Errorf("course %s: %w", courseID, err)
		}

		age := now.Sub(cur.GeneratedAt)
		if age > j.MaxAge {
			stale++
			j.logger.Warn("curriculum snapshot is stale",
				"course_id", courseID,
				"version", cur.Version,
				"age", timeutil.FormatDuration(age),
				"max_age", timeutil.FormatDuration(j.MaxAge),
			)
			if j.publisher != nil {
				ev := shared.NewSnapshotStaleEvent(courseID, cur.Version, age, j.MaxAge)
				if err := j.publisher.Publish(ev); err != nil {
					j.logger.Warn("failed to publish stale event",
						"course_id", courseID, "error", err)
				}
			}
		} else {
			healthy++
		}
	}

	j.logger.Info("snapshot health check completed",
		"courses", len(courses),
		"healthy", healthy,
		"stale", stale,
		"missing", missing,
	)

	return nil
}
