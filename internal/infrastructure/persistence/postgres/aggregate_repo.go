package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/behavior"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/pkg/retry"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// SECTION AGGREGATE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// AggregateRepository implements behavior.AggregateRepository for PostgreSQL.
type AggregateRepository struct {
	conn    *Connection
	retrier *retry.Retrier
}

// NewAggregateRepository creates a new AggregateRepository.
func NewAggregateRepository(conn *Connection) *AggregateRepository {
	return &AggregateRepository{
		conn:    conn,
		retrier: retry.DatabaseRetrier(),
	}
}

const aggregateColumns = `
	learner_id, course_id, chapter_id, section_id,
	pause_count, replay_count, replay_spans, seek_count,
	quiz_correct, quiz_incorrect, quiz_latency_ms, quiz_completed,
	code_exec_success, code_exec_fail, code_edit_count,
	hints_quiz, hints_code, peer_solution_views,
	video_watched_ratio, playback_speed,
	completed, time_spent_ms, event_count, first_event_at, last_event_at
`

// Get returns the aggregate for a learner and section.
func (r *AggregateRepository) Get(ctx context.Context, learnerID, sectionID string) (*behavior.SectionAggregate, error) {
	query := `SELECT ` + aggregateColumns + `
		FROM section_aggregates
		WHERE learner_id = $1 AND section_id = $2`

	row := r.conn.QueryRow(ctx, query, learnerID, sectionID)
	agg, err := scanAggregate(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAggregateNotFound
		}
		return nil, fmt.Errorf("failed to get aggregate: %w", err)
	}
	return agg, nil
}

// GetByLearner returns all aggregates of a learner.
func (r *AggregateRepository) GetByLearner(ctx context.Context, learnerID string) ([]*behavior.SectionAggregate, error) {
	query := `SELECT ` + aggregateColumns + `
		FROM section_aggregates
		WHERE learner_id = $1
		ORDER BY section_id`

	rows, err := r.conn.Query(ctx, query, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []*behavior.SectionAggregate
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		aggs = append(aggs, agg)
	}
	return aggs, rows.Err()
}

// Put upserts one aggregate, retrying transient failures.
func (r *AggregateRepository) Put(ctx context.Context, agg *behavior.SectionAggregate) error {
	return r.retrier.Do(ctx, func(ctx context.Context) error {
		if err := r.put(ctx, agg); err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
}

// PutBatch upserts aggregates one by one inside a transaction.
// Used when a closing session flushes its working set.
func (r *AggregateRepository) PutBatch(ctx context.Context, aggs []*behavior.SectionAggregate) error {
	if len(aggs) == 0 {
		return nil
	}
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, agg := range aggs {
			if err := execPutAggregate(ctx, tx, agg); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *AggregateRepository) put(ctx context.Context, agg *behavior.SectionAggregate) error {
	return execPutAggregate(ctx, r.conn, agg)
}

// execPutAggregate performs the upsert against a pool or transaction.
func execPutAggregate(ctx context.Context, q Querier, agg *behavior.SectionAggregate) error {
	query := `
		INSERT INTO section_aggregates (` + aggregateColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, NOW())
		ON CONFLICT (learner_id, section_id) DO UPDATE SET
			course_id = EXCLUDED.course_id,
			chapter_id = EXCLUDED.chapter_id,
			pause_count = EXCLUDED.pause_count,
			replay_count = EXCLUDED.replay_count,
			replay_spans = EXCLUDED.replay_spans,
			seek_count = EXCLUDED.seek_count,
			quiz_correct = EXCLUDED.quiz_correct,
			quiz_incorrect = EXCLUDED.quiz_incorrect,
			quiz_latency_ms = EXCLUDED.quiz_latency_ms,
			quiz_completed = EXCLUDED.quiz_completed,
			code_exec_success = EXCLUDED.code_exec_success,
			code_exec_fail = EXCLUDED.code_exec_fail,
			code_edit_count = EXCLUDED.code_edit_count,
			hints_quiz = EXCLUDED.hints_quiz,
			hints_code = EXCLUDED.hints_code,
			peer_solution_views = EXCLUDED.peer_solution_views,
			video_watched_ratio = EXCLUDED.video_watched_ratio,
			playback_speed = EXCLUDED.playback_speed,
			completed = EXCLUDED.completed,
			time_spent_ms = EXCLUDED.time_spent_ms,
			event_count = EXCLUDED.event_count,
			first_event_at = EXCLUDED.first_event_at,
			last_event_at = EXCLUDED.last_event_at,
			updated_at = NOW()
	`

	spansJSON, err := json.Marshal(replaySpansToRows(agg.ReplaySpans))
	if err != nil {
		return fmt.Errorf("failed to marshal replay spans: %w", err)
	}

	var firstAt, lastAt *time.Time
	if !agg.FirstEventAt.IsZero() {
		firstAt = &agg.FirstEventAt
	}
	if !agg.LastEventAt.IsZero() {
		lastAt = &agg.LastEventAt
	}

	_, err = q.Exec(ctx, query,
		agg.Scope.LearnerID,
		agg.Scope.CourseID,
		agg.Scope.ChapterID,
		agg.Scope.SectionID,
		agg.PauseCount,
		agg.ReplayCount,
		spansJSON,
		agg.SeekCount,
		agg.QuizCorrect,
		agg.QuizIncorrect,
		agg.QuizTotalLatency.Milliseconds(),
		agg.QuizCompleted,
		agg.CodeExecSuccess,
		agg.CodeExecFail,
		agg.CodeEditCount,
		agg.HintsQuiz,
		agg.HintsCode,
		agg.PeerSolutionViews,
		agg.VideoWatchedRatio,
		agg.PlaybackSpeed,
		agg.Completed,
		agg.TimeSpent.Milliseconds(),
		agg.EventCount,
		firstAt,
		lastAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put aggregate: %w", err)
	}
	return nil
}

// replaySpanRow is the JSONB shape of one replay span.
type replaySpanRow struct {
	At      time.Time `json:"at"`
	Seconds float64   `json:"seconds"`
}

func replaySpansToRows(spans []behavior.ReplaySpan) []replaySpanRow {
	rows := make([]replaySpanRow, len(spans))
	for i, s := range spans {
		rows[i] = replaySpanRow{At: s.At, Seconds: s.Seconds}
	}
	return rows
}

// scanAggregate reads one aggregate row.
func scanAggregate(row pgx.Row) (*behavior.SectionAggregate, error) {
	var agg behavior.SectionAggregate
	var spansJSON []byte
	var latencyMS, timeSpentMS int64
	var firstAt, lastAt *time.Time

	err := row.Scan(
		&agg.Scope.LearnerID,
		&agg.Scope.CourseID,
		&agg.Scope.ChapterID,
		&agg.Scope.SectionID,
		&agg.PauseCount,
		&agg.ReplayCount,
		&spansJSON,
		&agg.SeekCount,
		&agg.QuizCorrect,
		&agg.QuizIncorrect,
		&latencyMS,
		&agg.QuizCompleted,
		&agg.CodeExecSuccess,
		&agg.CodeExecFail,
		&agg.CodeEditCount,
		&agg.HintsQuiz,
		&agg.HintsCode,
		&agg.PeerSolutionViews,
		&agg.VideoWatchedRatio,
		&agg.PlaybackSpeed,
		&agg.Completed,
		&timeSpentMS,
		&agg.EventCount,
		&firstAt,
		&lastAt,
	)
	if err != nil {
		return nil, err
	}

	agg.QuizTotalLatency = time.Duration(latencyMS) * time.Millisecond
	agg.TimeSpent = time.Duration(timeSpentMS) * time.Millisecond
	if firstAt != nil {
		agg.FirstEventAt = *firstAt
	}
	if lastAt != nil {
		agg.LastEventAt = *lastAt
	}

	var rows []replaySpanRow
	if len(spansJSON) > 0 {
		if err := json.Unmarshal(spansJSON, &rows); err != nil {
			return nil, fmt.Errorf("failed to unmarshal replay spans: %w", err)
		}
	}
	for _, sr := range rows {
		agg.ReplaySpans = append(agg.ReplaySpans, behavior.ReplaySpan{At: sr.At, Seconds: sr.Seconds})
	}

	return &agg, nil
}
