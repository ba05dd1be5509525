package orchestration

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракты хранения. Реализации - в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// DecisionLog - журнал предложенных и разрешённых решений. Пишется
// после разрешения; живые ожидающие решения хранятся только в памяти
// сессии и при её закрытии просто отбрасываются.
type DecisionLog interface {
	// Record сохраняет разрешённое решение (upsert по ID).
	Record(ctx context.Context, d *Decision) error

	// History возвращает последние решения ученика, новые первыми.
	History(ctx context.Context, learnerID string, limit int) ([]*Decision, error)
}

// CelebrationStore - хранилище активных сигналов празднования
// с автоистечением. Сигнал живёт недолго и исчезает сам,
// UI лишь читает активные.
type CelebrationStore interface {
	// Push кладёт сигнал с TTL.
	Push(ctx context.Context, learnerID, message string, ttlSeconds int64) error

	// Active возвращает неистёкшие сигналы ученика.
	Active(ctx context.Context, learnerID string) ([]string, error)
}

// CooldownTracker - межсессионное отслеживание остывания действий.
// Движок держит остывание в памяти на время жизни сессии; трекер
// переносит его через перезапуски и между сессиями одного ученика.
type CooldownTracker interface {
	// LastProposed возвращает время последнего предложения действия.
	LastProposed(ctx context.Context, learnerID string, action Action) (int64, bool, error)

	// MarkProposed фиксирует предложение действия (unix-секунды).
	MarkProposed(ctx context.Context, learnerID string, action Action, atUnix int64) error
}
