package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/orchestration"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON CELEBRATION HANDLER
// Кладёт сигнал празднования в хранилище с автоистечением: UI читает
// активные сигналы, протухшие исчезают сами без явной очистки.
// ═══════════════════════════════════════════════════════════════════════════

// OnCelebrationHandler обрабатывает событие празднования.
type OnCelebrationHandler struct {
	store  orchestration.CelebrationStore
	clock  shared.Clock
	logger *slog.Logger
}

// NewOnCelebrationHandler создаёт обработчик.
func NewOnCelebrationHandler(store orchestration.CelebrationStore, clock shared.Clock, logger *slog.Logger) *OnCelebrationHandler {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OnCelebrationHandler{store: store, clock: clock, logger: logger}
}

// Handle сохраняет сигнал. Уже истёкший сигнал не сохраняется.
func (h *OnCelebrationHandler) Handle(event shared.Event) error {
	celebration, ok := event.(shared.CelebrationEvent)
	if !ok {
		return nil
	}

	ttl := celebration.ExpiresAt.Sub(h.clock.Now())
	if ttl <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.store.Push(ctx, celebration.LearnerID, celebration.Message, int64(ttl.Seconds())+1); err != nil {
		h.logger.Warn("celebration store failed",
			"learner_id", celebration.LearnerID, "error", err)
	}
	return nil
}
