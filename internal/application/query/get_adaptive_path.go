package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/collective"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/learner"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/pathway"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/traversal"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ADAPTIVE PATH QUERY
// Строит персональный маршрут по курсу: граф из каталога, проходимость
// каждого узла, ограниченная топологическая сортировка с коллективным
// приором. Любой дефицит данных деградирует до статического порядка,
// страница курса не должна падать из-за адаптивных фич.
// ══════════════════════════════════════════════════════════════════════════════

// GetAdaptivePathQuery содержит параметры построения маршрута.
type GetAdaptivePathQuery struct {
	// LearnerID - ученик.
	LearnerID string

	// CourseID - курс.
	CourseID string
}

// Validate проверяет запрос.
func (q GetAdaptivePathQuery) Validate() error {
	if q.LearnerID == "" || q.CourseID == "" {
		return fmt.Errorf("get_adaptive_path: learner_id and course_id are required")
	}
	return nil
}

// GetAdaptivePathResult содержит маршрут.
type GetAdaptivePathResult struct {
	// Path - персональный маршрут.
	Path *pathway.AdaptivePath

	// StaticOnly - маршрут построен без коллективных данных.
	StaticOnly bool
}

// GetAdaptivePathHandler обрабатывает GetAdaptivePathQuery.
type GetAdaptivePathHandler struct {
	catalog     pathway.CurriculumRepository
	progress    pathway.ProgressRepository
	profiles    learner.Repository
	snapshots   collective.SnapshotProvider
	scorer      *traversal.Scorer
	recommender *pathway.Recommender
	publisher   shared.EventPublisher
	log         *slog.Logger

	snapshotMaxAge time.Duration
}

// NewGetAdaptivePathHandler создаёт обработчик.
func NewGetAdaptivePathHandler(
	catalog pathway.CurriculumRepository,
	progress pathway.ProgressRepository,
	profiles learner.Repository,
	snapshots collective.SnapshotProvider,
	scorer *traversal.Scorer,
	recommender *pathway.Recommender,
	publisher shared.EventPublisher,
	snapshotMaxAge time.Duration,
	log *slog.Logger,
) *GetAdaptivePathHandler {
	if log == nil {
		log = slog.Default()
	}
	return &GetAdaptivePathHandler{
		catalog:        catalog,
		progress:       progress,
		profiles:       profiles,
		snapshots:      snapshots,
		scorer:         scorer,
		recommender:    recommender,
		publisher:      publisher,
		snapshotMaxAge: snapshotMaxAge,
		log:            log,
	}
}

// Handle выполняет запрос. Ошибка возвращается только при невалидном
// графе или недоступном каталоге; отсутствие профиля или снимка -
// штатная деградация.
func (h *GetAdaptivePathHandler) Handle(ctx context.Context, q GetAdaptivePathQuery) (*GetAdaptivePathResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	nodes, err := h.catalog.CourseNodes(ctx, q.CourseID)
	if err != nil {
		return nil, fmt.Errorf("get_adaptive_path: load catalog: %w", err)
	}
	graph, err := pathway.NewGraph(nodes)
	if err != nil {
		// Цикл или противоречие в графе - ошибка данных курса,
		// подавлять её нельзя.
		return nil, err
	}

	profile := h.loadProfile(ctx, q.LearnerID, q.CourseID)
	state := h.loadState(ctx, q.LearnerID, q.CourseID)
	cur := h.loadSnapshot(ctx, q.CourseID)

	scores := make(map[string]traversal.Score, len(nodes))
	for _, n := range nodes {
		scores[n.ID] = h.scorer.Score(n, profile, cur, state)
	}

	path, err := h.recommender.Recommend(graph, scores, profile, cur)
	if err != nil {
		return nil, err
	}

	if h.publisher != nil {
		h.publisher.Publish(shared.NewPathRecomputedEvent(q.LearnerID, path.ID, string(path.Derivation), len(path.Nodes)))
	}
	return &GetAdaptivePathResult{
		Path:       path,
		StaticOnly: cur == nil,
	}, nil
}

func (h *GetAdaptivePathHandler) loadProfile(ctx context.Context, learnerID, courseID string) *learner.Profile {
	if h.profiles == nil {
		return nil
	}
	p, err := h.profiles.Get(ctx, learnerID, courseID)
	if err != nil {
		if !shared.IsNotFound(err) {
			h.log.Debug("profile load failed, path degrades", "error", err)
		}
		return nil
	}
	return p
}

func (h *GetAdaptivePathHandler) loadState(ctx context.Context, learnerID, courseID string) traversal.LearnerState {
	if h.progress == nil {
		return traversal.LearnerState{}
	}
	state, err := h.progress.LearnerState(ctx, learnerID, courseID)
	if err != nil {
		h.log.Debug("learner state load failed, path degrades", "error", err)
		return traversal.LearnerState{}
	}
	return state
}

func (h *GetAdaptivePathHandler) loadSnapshot(ctx context.Context, courseID string) *collective.EmergentCurriculum {
	if h.snapshots == nil {
		return nil
	}
	cur, stale, err := h.snapshots.Current(ctx, courseID, h.snapshotMaxAge)
	if err != nil || stale {
		return nil
	}
	return cur
}
