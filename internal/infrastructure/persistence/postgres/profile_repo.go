package postgres

import (
	"context"
	"fmt"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/learner"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/pkg/retry"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER PROFILE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements learner.Repository for PostgreSQL.
type ProfileRepository struct {
	conn    *Connection
	retrier *retry.Retrier
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{
		conn:    conn,
		retrier: retry.DatabaseRetrier(),
	}
}

const profileColumns = `
	learner_id, course_id, pace, confidence,
	engagement_score, retention_score,
	style_video, style_code, style_text, style_interactive,
	quiz_accuracy, hint_reliance, code_success, replay_rate, speed_score,
	sample_count, updated_at
`

// Get returns the learner's profile for a course.
func (r *ProfileRepository) Get(ctx context.Context, learnerID, courseID string) (*learner.Profile, error) {
	query := `SELECT ` + profileColumns + `
		FROM learner_profiles
		WHERE learner_id = $1 AND course_id = $2`

	row := r.conn.QueryRow(ctx, query, learnerID, courseID)
	p, err := scanProfile(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// Put upserts the profile. Transient failures are retried: this runs on
// the session's fire-and-forget write path.
func (r *ProfileRepository) Put(ctx context.Context, p *learner.Profile) error {
	query := `
		INSERT INTO learner_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (learner_id, course_id) DO UPDATE SET
			pace = EXCLUDED.pace,
			confidence = EXCLUDED.confidence,
			engagement_score = EXCLUDED.engagement_score,
			retention_score = EXCLUDED.retention_score,
			style_video = EXCLUDED.style_video,
			style_code = EXCLUDED.style_code,
			style_text = EXCLUDED.style_text,
			style_interactive = EXCLUDED.style_interactive,
			quiz_accuracy = EXCLUDED.quiz_accuracy,
			hint_reliance = EXCLUDED.hint_reliance,
			code_success = EXCLUDED.code_success,
			replay_rate = EXCLUDED.replay_rate,
			speed_score = EXCLUDED.speed_score,
			sample_count = EXCLUDED.sample_count,
			updated_at = EXCLUDED.updated_at
	`

	return r.retrier.Do(ctx, func(ctx context.Context) error {
		_, err := r.conn.Exec(ctx, query,
			p.LearnerID,
			p.CourseID,
			string(p.Pace),
			string(p.Confidence),
			p.EngagementScore,
			p.RetentionScore,
			p.LearningStyle.Video,
			p.LearningStyle.Code,
			p.LearningStyle.Text,
			p.LearningStyle.Interactive,
			p.Signals.QuizAccuracy,
			p.Signals.HintReliance,
			p.Signals.CodeSuccess,
			p.Signals.ReplayRate,
			p.Signals.SpeedScore,
			p.Signals.SampleCount,
			p.UpdatedAt,
		)
		if err != nil {
			return retry.Retryable(fmt.Errorf("failed to put profile: %w", err))
		}
		return nil
	})
}

// GetByCourse returns all profiles of a course.
func (r *ProfileRepository) GetByCourse(ctx context.Context, courseID string) ([]*learner.Profile, error) {
	query := `SELECT ` + profileColumns + `
		FROM learner_profiles
		WHERE course_id = $1
		ORDER BY learner_id`

	rows, err := r.conn.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*learner.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// scanProfile reads one profile row.
func scanProfile(row pgx.Row) (*learner.Profile, error) {
	var p learner.Profile
	var pace, confidence string

	err := row.Scan(
		&p.LearnerID,
		&p.CourseID,
		&pace,
		&confidence,
		&p.EngagementScore,
		&p.RetentionScore,
		&p.LearningStyle.Video,
		&p.LearningStyle.Code,
		&p.LearningStyle.Text,
		&p.LearningStyle.Interactive,
		&p.Signals.QuizAccuracy,
		&p.Signals.HintReliance,
		&p.Signals.CodeSuccess,
		&p.Signals.ReplayRate,
		&p.Signals.SpeedScore,
		&p.Signals.SampleCount,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Pace = learner.Pace(pace)
	p.Confidence = learner.Confidence(confidence)
	return &p, nil
}
