package query

import (
	"context"
	"fmt"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/collective"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CURRICULUM INSIGHTS QUERY
// Снимок коллективного знания для авторов курса: выведенные пререквизиты,
// точки затруднения, успешные пути и рекомендации по материалу.
// Пустой снимок - штатный ответ "данных ещё нет", не ошибка.
// ══════════════════════════════════════════════════════════════════════════════

// GetCurriculumInsightsQuery содержит параметры запроса.
type GetCurriculumInsightsQuery struct {
	// CourseID - курс.
	CourseID string

	// MaxAge - допустимый возраст снимка; 0 = любой.
	MaxAge time.Duration
}

// Validate проверяет запрос.
func (q GetCurriculumInsightsQuery) Validate() error {
	if q.CourseID == "" {
		return fmt.Errorf("get_curriculum_insights: course_id is required")
	}
	return nil
}

// GetCurriculumInsightsResult содержит снимок и его состояние.
type GetCurriculumInsightsResult struct {
	// Curriculum - текущий снимок.
	Curriculum *collective.EmergentCurriculum

	// Stale - снимок старше запрошенного MaxAge.
	Stale bool
}

// GetCurriculumInsightsHandler обрабатывает запрос.
type GetCurriculumInsightsHandler struct {
	store collective.SnapshotStore
	clock shared.Clock
}

// NewGetCurriculumInsightsHandler создаёт обработчик.
func NewGetCurriculumInsightsHandler(store collective.SnapshotStore, clock shared.Clock) *GetCurriculumInsightsHandler {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &GetCurriculumInsightsHandler{store: store, clock: clock}
}

// Handle выполняет запрос. Отсутствие снимка отображается в пустой
// снимок нулевой версии.
func (h *GetCurriculumInsightsHandler) Handle(ctx context.Context, q GetCurriculumInsightsQuery) (*GetCurriculumInsightsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	cur, err := h.store.Latest(ctx, q.CourseID)
	if err != nil {
		if shared.IsNotFound(err) || shared.IsInsufficientData(err) {
			return &GetCurriculumInsightsResult{
				Curriculum: collective.EmptyCurriculum(0, h.clock.Now()),
			}, nil
		}
		return nil, fmt.Errorf("get_curriculum_insights: %w", err)
	}

	stale := q.MaxAge > 0 && cur.Age(h.clock.Now()) > q.MaxAge
	return &GetCurriculumInsightsResult{Curriculum: cur, Stale: stale}, nil
}
