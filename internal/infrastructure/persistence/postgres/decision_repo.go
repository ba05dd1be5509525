package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/orchestration"
)

// ══════════════════════════════════════════════════════════════════════════════
// DECISION LOG REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// DecisionRepository implements orchestration.DecisionLog. Every resolved
// decision is kept: the history endpoint and future tuning of intervention
// thresholds both read from here.
type DecisionRepository struct {
	conn *Connection
}

// NewDecisionRepository creates a new DecisionRepository.
func NewDecisionRepository(conn *Connection) *DecisionRepository {
	return &DecisionRepository{conn: conn}
}

// Record upserts a decision by ID.
func (r *DecisionRepository) Record(ctx context.Context, d *orchestration.Decision) error {
	query := `
		INSERT INTO decision_log (
			id, learner_id, session_id, action, reason, priority,
			section_id, proposed_at, resolved_at, resolution
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			resolved_at = EXCLUDED.resolved_at,
			resolution = EXCLUDED.resolution
	`

	var resolvedAt *time.Time
	var resolution *string
	if !d.ResolvedAt.IsZero() {
		resolvedAt = &d.ResolvedAt
	}
	if d.Resolution != "" {
		res := string(d.Resolution)
		resolution = &res
	}

	_, err := r.conn.Exec(ctx, query,
		d.ID,
		d.LearnerID,
		d.SessionID,
		string(d.Action),
		d.Reason,
		d.Priority,
		d.SectionID,
		d.ProposedAt,
		resolvedAt,
		resolution,
	)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// History returns the most recent decisions of a learner, newest first.
func (r *DecisionRepository) History(ctx context.Context, learnerID string, limit int) ([]*orchestration.Decision, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, learner_id, session_id, action, reason, priority,
		       section_id, proposed_at, resolved_at, resolution
		FROM decision_log
		WHERE learner_id = $1
		ORDER BY proposed_at DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, learnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision history: %w", err)
	}
	defer rows.Close()

	var decisions []*orchestration.Decision
	for rows.Next() {
		var d orchestration.Decision
		var action string
		var resolvedAt *time.Time
		var resolution *string

		err := rows.Scan(
			&d.ID,
			&d.LearnerID,
			&d.SessionID,
			&action,
			&d.Reason,
			&d.Priority,
			&d.SectionID,
			&d.ProposedAt,
			&resolvedAt,
			&resolution,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}

		d.Action = orchestration.Action(action)
		if resolvedAt != nil {
			d.ResolvedAt = *resolvedAt
		}
		if resolution != nil {
			d.Resolution = orchestration.Resolution(*resolution)
		}
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}
