package query

import (
	"context"
	"fmt"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/collective"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/learner"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/pathway"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/traversal"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET TRAVERSABILITY QUERY
// Оценка одного узла для ученика: для предупреждающих баннеров
// и подсказок у конкретной секции.
// ══════════════════════════════════════════════════════════════════════════════

// GetTraversabilityQuery содержит адрес узла.
type GetTraversabilityQuery struct {
	// LearnerID - ученик.
	LearnerID string

	// CourseID, ChapterID, SectionID - адрес узла.
	CourseID  string
	ChapterID string
	SectionID string
}

// Validate проверяет запрос.
func (q GetTraversabilityQuery) Validate() error {
	if q.LearnerID == "" || q.CourseID == "" || q.ChapterID == "" {
		return fmt.Errorf("get_traversability: learner, course and chapter are required")
	}
	return nil
}

// GetTraversabilityResult содержит оценку.
type GetTraversabilityResult struct {
	// Score - оценка доступности узла.
	Score traversal.Score

	// SnapshotVersion - версия коллективного снимка (0 = статическая оценка).
	SnapshotVersion int64
}

// GetTraversabilityHandler обрабатывает GetTraversabilityQuery.
type GetTraversabilityHandler struct {
	catalog   pathway.CurriculumRepository
	progress  pathway.ProgressRepository
	profiles  learner.Repository
	snapshots collective.SnapshotProvider
	scorer    *traversal.Scorer

	snapshotMaxAge time.Duration
}

// NewGetTraversabilityHandler создаёт обработчик.
func NewGetTraversabilityHandler(
	catalog pathway.CurriculumRepository,
	progress pathway.ProgressRepository,
	profiles learner.Repository,
	snapshots collective.SnapshotProvider,
	scorer *traversal.Scorer,
	snapshotMaxAge time.Duration,
) *GetTraversabilityHandler {
	return &GetTraversabilityHandler{
		catalog:        catalog,
		progress:       progress,
		profiles:       profiles,
		snapshots:      snapshots,
		scorer:         scorer,
		snapshotMaxAge: snapshotMaxAge,
	}
}

// Handle выполняет запрос.
func (h *GetTraversabilityHandler) Handle(ctx context.Context, q GetTraversabilityQuery) (*GetTraversabilityResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	node, err := h.catalog.Node(ctx, q.CourseID, q.ChapterID, q.SectionID)
	if err != nil {
		return nil, fmt.Errorf("get_traversability: %w", err)
	}

	var profile *learner.Profile
	if h.profiles != nil {
		if p, err := h.profiles.Get(ctx, q.LearnerID, q.CourseID); err == nil {
			profile = p
		}
	}

	var state traversal.LearnerState
	if h.progress != nil {
		if st, err := h.progress.LearnerState(ctx, q.LearnerID, q.CourseID); err == nil {
			state = st
		}
	}

	var cur *collective.EmergentCurriculum
	var version int64
	if h.snapshots != nil {
		if c, stale, err := h.snapshots.Current(ctx, q.CourseID, h.snapshotMaxAge); err == nil && !stale {
			cur = c
			version = c.Version
		}
	}
	return &GetTraversabilityResult{
		Score:           h.scorer.Score(node, profile, cur, state),
		SnapshotVersion: version,
	}, nil
}
