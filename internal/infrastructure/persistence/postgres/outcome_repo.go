package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/collective"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/pkg/retry"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTCOME LOG REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// OutcomeRepository implements collective.OutcomeRepository on top of the
// append-only outcome_log table.
type OutcomeRepository struct {
	conn    *Connection
	retrier *retry.Retrier
}

// NewOutcomeRepository creates a new OutcomeRepository.
func NewOutcomeRepository(conn *Connection) *OutcomeRepository {
	return &OutcomeRepository{
		conn:    conn,
		retrier: retry.DatabaseRetrier(),
	}
}

// Append writes outcome records. The unique constraint on
// (learner_id, chapter_id, completed_at) makes replays of the same close
// reconciliation a no-op, so session shutdown can retry safely.
func (r *OutcomeRepository) Append(ctx context.Context, records []collective.OutcomeRecord) error {
	if len(records) == 0 {
		return nil
	}

	return r.retrier.Do(ctx, func(ctx context.Context) error {
		err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			for _, rec := range records {
				if err := insertOutcome(ctx, tx, rec); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
}

func insertOutcome(ctx context.Context, q Querier, rec collective.OutcomeRecord) error {
	query := `
		INSERT INTO outcome_log (
			learner_id, course_id, chapter_id, completed_before,
			started_at, completed_at, duration_minutes, success, sections
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT ON CONSTRAINT outcome_log_dedup DO NOTHING
	`

	sectionsJSON, err := json.Marshal(rec.Sections)
	if err != nil {
		return fmt.Errorf("failed to marshal section outcomes: %w", err)
	}

	completedBefore := rec.CompletedBefore
	if completedBefore == nil {
		completedBefore = []string{}
	}

	_, err = q.Exec(ctx, query,
		rec.LearnerID,
		rec.CourseID,
		rec.ChapterID,
		completedBefore,
		rec.StartedAt,
		rec.CompletedAt,
		rec.DurationMinutes,
		rec.Success,
		sectionsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to append outcome: %w", err)
	}
	return nil
}

// GetAll returns the full outcome log of a course, oldest first.
func (r *OutcomeRepository) GetAll(ctx context.Context, courseID string) ([]collective.OutcomeRecord, error) {
	query := `
		SELECT learner_id, course_id, chapter_id, completed_before,
		       started_at, completed_at, duration_minutes, success, sections
		FROM outcome_log
		WHERE course_id = $1
		ORDER BY completed_at
	`

	rows, err := r.conn.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var records []collective.OutcomeRecord
	for rows.Next() {
		var rec collective.OutcomeRecord
		var sectionsJSON []byte

		err := rows.Scan(
			&rec.LearnerID,
			&rec.CourseID,
			&rec.ChapterID,
			&rec.CompletedBefore,
			&rec.StartedAt,
			&rec.CompletedAt,
			&rec.DurationMinutes,
			&rec.Success,
			&sectionsJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}

		if len(sectionsJSON) > 0 {
			if err := json.Unmarshal(sectionsJSON, &rec.Sections); err != nil {
				return nil, fmt.Errorf("failed to unmarshal section outcomes: %w", err)
			}
		}

		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountLearners returns the number of distinct learners in the course log.
func (r *OutcomeRepository) CountLearners(ctx context.Context, courseID string) (int, error) {
	query := `SELECT COUNT(DISTINCT learner_id) FROM outcome_log WHERE course_id = $1`

	var count int
	if err := r.conn.QueryRow(ctx, query, courseID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count learners: %w", err)
	}
	return count, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT STORE
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRepository implements collective.SnapshotStore. Each published
// curriculum is a full JSONB document under a monotonically growing version,
// and Latest always reads the highest one, so a half-written batch is never
// observable.
type SnapshotRepository struct {
	conn *Connection
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(conn *Connection) *SnapshotRepository {
	return &SnapshotRepository{conn: conn}
}

// Latest returns the most recent snapshot of a course.
func (r *SnapshotRepository) Latest(ctx context.Context, courseID string) (*collective.EmergentCurriculum, error) {
	query := `
		SELECT data
		FROM curriculum_snapshots
		WHERE course_id = $1
		ORDER BY version DESC
		LIMIT 1
	`

	var data []byte
	err := r.conn.QueryRow(ctx, query, courseID).Scan(&data)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var cur collective.EmergentCurriculum
	if err := json.Unmarshal(data, &cur); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &cur, nil
}

// Publish stores a new snapshot under its version.
func (r *SnapshotRepository) Publish(ctx context.Context, courseID string, cur *collective.EmergentCurriculum) error {
	query := `
		INSERT INTO curriculum_snapshots (course_id, version, generated_at, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (course_id, version) DO UPDATE SET
			generated_at = EXCLUDED.generated_at,
			data = EXCLUDED.data
	`

	data, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, courseID, cur.Version, cur.GeneratedAt, data); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}
