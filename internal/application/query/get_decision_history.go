package query

import (
	"context"
	"fmt"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/orchestration"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DECISION HISTORY QUERY
// Журнал разрешённых решений ученика: что предлагалось, что принято,
// что отклонено. Для отладки правил и прозрачности перед учеником.
// ══════════════════════════════════════════════════════════════════════════════

// GetDecisionHistoryQuery содержит параметры запроса.
type GetDecisionHistoryQuery struct {
	// LearnerID - ученик.
	LearnerID string

	// Limit - максимум записей (по умолчанию 20).
	Limit int
}

// Validate проверяет запрос.
func (q GetDecisionHistoryQuery) Validate() error {
	if q.LearnerID == "" {
		return fmt.Errorf("get_decision_history: learner_id is required")
	}
	return nil
}

// GetDecisionHistoryResult содержит журнал.
type GetDecisionHistoryResult struct {
	// Decisions - решения, новые первыми.
	Decisions []*orchestration.Decision

	// AcceptedCount и DismissedCount - сводка по исходам.
	AcceptedCount  int
	DismissedCount int
}

// GetDecisionHistoryHandler обрабатывает запрос.
type GetDecisionHistoryHandler struct {
	log orchestration.DecisionLog
}

// NewGetDecisionHistoryHandler создаёт обработчик.
func NewGetDecisionHistoryHandler(log orchestration.DecisionLog) *GetDecisionHistoryHandler {
	return &GetDecisionHistoryHandler{log: log}
}

// Handle выполняет запрос.
func (h *GetDecisionHistoryHandler) Handle(ctx context.Context, q GetDecisionHistoryQuery) (*GetDecisionHistoryResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	decisions, err := h.log.History(ctx, q.LearnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("get_decision_history: %w", err)
	}

	result := &GetDecisionHistoryResult{Decisions: decisions}
	for _, d := range decisions {
		switch d.Resolution {
		case orchestration.ResolutionAccepted:
			result.AcceptedCount++
		case orchestration.ResolutionDismissed:
			result.DismissedCount++
		}
	}
	return result, nil
}
