// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/orchestration"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON DECISION PROPOSED HANDLER
// Фиксирует предложение действия в межсессионном трекере остывания:
// движок внутри сессии помнит остывание сам, но при переоткрытии сессии
// память теряется - трекер переносит окно через перезапуски.
// ═══════════════════════════════════════════════════════════════════════════

// OnDecisionProposedHandler обрабатывает событие предложения решения.
type OnDecisionProposedHandler struct {
	cooldowns orchestration.CooldownTracker
	logger    *slog.Logger
}

// NewOnDecisionProposedHandler создаёт обработчик.
func NewOnDecisionProposedHandler(cooldowns orchestration.CooldownTracker, logger *slog.Logger) *OnDecisionProposedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnDecisionProposedHandler{cooldowns: cooldowns, logger: logger}
}

// Handle фиксирует предложение. Ошибка трекера не прерывает поток
// событий: остывание в памяти сессии остаётся рабочим.
func (h *OnDecisionProposedHandler) Handle(event shared.Event) error {
	proposed, ok := event.(shared.DecisionProposedEvent)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := h.cooldowns.MarkProposed(ctx, proposed.LearnerID,
		orchestration.Action(proposed.Action), event.OccurredAt().Unix())
	if err != nil {
		h.logger.Warn("cooldown mark failed",
			"learner_id", proposed.LearnerID, "action", proposed.Action, "error", err)
	}
	return nil
}
