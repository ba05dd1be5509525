package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/learner"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON CONFIDENCE SHIFTED HANDLER
// Категориальный сдвиг профиля инвалидирует кеш: следующий читатель
// получит свежую проекцию из хранилища, а не прошлую категорию.
// ═══════════════════════════════════════════════════════════════════════════

// OnConfidenceShiftedHandler обрабатывает сдвиг уверенности.
type OnConfidenceShiftedHandler struct {
	cache  learner.ProfileCache
	logger *slog.Logger
}

// NewOnConfidenceShiftedHandler создаёт обработчик.
func NewOnConfidenceShiftedHandler(cache learner.ProfileCache, logger *slog.Logger) *OnConfidenceShiftedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnConfidenceShiftedHandler{cache: cache, logger: logger}
}

// Handle инвалидирует кеш профиля.
func (h *OnConfidenceShiftedHandler) Handle(event shared.Event) error {
	shifted, ok := event.(shared.ConfidenceShiftedEvent)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.cache.Invalidate(ctx, shifted.LearnerID, shifted.CourseID); err != nil {
		h.logger.Debug("profile cache invalidation failed",
			"learner_id", shifted.LearnerID, "error", err)
	}
	return nil
}
