package postgres

import (
	"context"
	"fmt"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/traversal"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// CURRICULUM REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CurriculumRepository implements pathway.CurriculumRepository. Course
// structure is authored content: it only changes on publish, so queries
// here stay simple and the hot path caches on top of them.
type CurriculumRepository struct {
	conn *Connection
}

// NewCurriculumRepository creates a new CurriculumRepository.
func NewCurriculumRepository(conn *Connection) *CurriculumRepository {
	return &CurriculumRepository{conn: conn}
}

// Courses returns the IDs of all published courses.
func (r *CurriculumRepository) Courses(ctx context.Context) ([]string, error) {
	query := `SELECT id FROM courses WHERE published = TRUE ORDER BY id`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan course id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CourseNodes returns all nodes of a course in authored order.
func (r *CurriculumRepository) CourseNodes(ctx context.Context, courseID string) ([]traversal.Node, error) {
	query := `
		SELECT chapter_id, section_id, title, difficulty, content_density,
		       duration_minutes, xp_reward, static_prereqs
		FROM curriculum_nodes
		WHERE course_id = $1
		ORDER BY position
	`

	rows, err := r.conn.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query curriculum nodes: %w", err)
	}
	defer rows.Close()

	var nodes []traversal.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan curriculum node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// Node returns one node by address.
func (r *CurriculumRepository) Node(ctx context.Context, courseID, chapterID, sectionID string) (traversal.Node, error) {
	query := `
		SELECT chapter_id, section_id, title, difficulty, content_density,
		       duration_minutes, xp_reward, static_prereqs
		FROM curriculum_nodes
		WHERE course_id = $1 AND chapter_id = $2 AND section_id = $3
	`

	node, err := scanNode(r.conn.QueryRow(ctx, query, courseID, chapterID, sectionID))
	if err != nil {
		if IsNoRows(err) {
			return traversal.Node{}, shared.ErrNodeNotFound
		}
		return traversal.Node{}, fmt.Errorf("failed to get curriculum node: %w", err)
	}
	return node, nil
}

func scanNode(row pgx.Row) (traversal.Node, error) {
	var node traversal.Node
	err := row.Scan(
		&node.ChapterID,
		&node.SectionID,
		&node.Title,
		&node.Difficulty,
		&node.ContentDensity,
		&node.DurationMinutes,
		&node.XPReward,
		&node.StaticPrereqs,
	)
	if err != nil {
		return traversal.Node{}, err
	}
	node.ID = node.ChapterID + "/" + node.SectionID
	return node, nil
}
