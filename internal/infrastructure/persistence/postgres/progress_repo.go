package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/traversal"
	"github.com/lumen-hub/lumen-adaptive-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements pathway.ProgressRepository over the
// learner_progress table.
type ProgressRepository struct {
	conn    *Connection
	retrier *retry.Retrier
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{
		conn:    conn,
		retrier: retry.DatabaseRetrier(),
	}
}

// LearnerState returns the completed chapters of a learner in a course.
// A learner with no progress yet gets an empty state, not an error.
func (r *ProgressRepository) LearnerState(ctx context.Context, learnerID, courseID string) (traversal.LearnerState, error) {
	query := `
		SELECT chapter_id, performance, completed_at
		FROM learner_progress
		WHERE learner_id = $1 AND course_id = $2
	`

	rows, err := r.conn.Query(ctx, query, learnerID, courseID)
	if err != nil {
		return traversal.LearnerState{}, fmt.Errorf("failed to query learner progress: %w", err)
	}
	defer rows.Close()

	state := traversal.LearnerState{
		CompletedChapters: make(map[string]time.Time),
		Performance:       make(map[string]float64),
	}
	for rows.Next() {
		var chapterID string
		var performance float64
		var completedAt time.Time
		if err := rows.Scan(&chapterID, &performance, &completedAt); err != nil {
			return traversal.LearnerState{}, fmt.Errorf("failed to scan learner progress: %w", err)
		}
		state.CompletedChapters[chapterID] = completedAt
		state.Performance[chapterID] = performance
	}
	return state, rows.Err()
}

// MarkCompleted records chapter completion. Re-completion keeps the best
// performance and the original completion time.
func (r *ProgressRepository) MarkCompleted(ctx context.Context, learnerID, courseID, chapterID string, performance float64) error {
	query := `
		INSERT INTO learner_progress (learner_id, course_id, chapter_id, performance, completed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (learner_id, course_id, chapter_id) DO UPDATE SET
			performance = GREATEST(learner_progress.performance, EXCLUDED.performance)
	`

	return r.retrier.Do(ctx, func(ctx context.Context) error {
		if _, err := r.conn.Exec(ctx, query, learnerID, courseID, chapterID, performance); err != nil {
			return retry.Retryable(fmt.Errorf("failed to mark chapter completed: %w", err))
		}
		return nil
	})
}
