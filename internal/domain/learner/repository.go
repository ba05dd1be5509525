package learner

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранения профилей учеников.
// Записи - идемпотентные upsert'ы по ключу (learner_id, course_id).
type Repository interface {
	// Get возвращает профиль ученика в курсе.
	// Возвращает ErrProfileNotFound, если профиль не найден.
	Get(ctx context.Context, learnerID, courseID string) (*Profile, error)

	// Put сохраняет профиль (upsert).
	Put(ctx context.Context, profile *Profile) error

	// GetByCourse возвращает все профили курса.
	// Используется воркером для служебной статистики.
	GetByCourse(ctx context.Context, courseID string) ([]*Profile, error)
}

// ProfileCache определяет горячий кеш профилей.
// Реализация - infrastructure/persistence/redis.
type ProfileCache interface {
	// Get возвращает профиль из кеша или ErrProfileNotFound.
	Get(ctx context.Context, learnerID, courseID string) (*Profile, error)

	// Set кладёт профиль в кеш.
	Set(ctx context.Context, profile *Profile) error

	// Invalidate удаляет профиль из кеша.
	Invalidate(ctx context.Context, learnerID, courseID string) error
}
