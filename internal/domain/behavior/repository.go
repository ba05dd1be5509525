package behavior

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// AggregateRepository определяет операции хранения агрегатов поведения.
// Записи - идемпотентные upsert'ы по ключу (learner_id, section_id).
type AggregateRepository interface {
	// Get возвращает агрегат по ключу.
	// Возвращает ErrAggregateNotFound, если агрегат не найден.
	Get(ctx context.Context, learnerID, sectionID string) (*SectionAggregate, error)

	// GetByLearner возвращает все агрегаты ученика.
	GetByLearner(ctx context.Context, learnerID string) ([]*SectionAggregate, error)

	// Put сохраняет агрегат (upsert).
	Put(ctx context.Context, agg *SectionAggregate) error

	// PutBatch сохраняет несколько агрегатов за один вызов.
	// Используется при закрытии сессии (fire-and-forget запись).
	PutBatch(ctx context.Context, aggs []*SectionAggregate) error
}
