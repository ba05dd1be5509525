package collective

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// OutcomeRepository определяет хранение лога исходов популяции.
type OutcomeRepository interface {
	// Append добавляет записи исходов (идемпотентно по
	// (learner_id, chapter_id, completed_at)).
	Append(ctx context.Context, records []OutcomeRecord) error

	// GetAll возвращает полный лог исходов курса для батч-агрегации.
	GetAll(ctx context.Context, courseID string) ([]OutcomeRecord, error)

	// CountLearners возвращает число различных учеников в логе.
	CountLearners(ctx context.Context, courseID string) (int, error)
}

// SnapshotStore определяет хранение снимков Emergent Curriculum.
// Снимок публикуется атомарно: читатели видят либо предыдущий,
// либо новый целиком, никогда - частичный.
type SnapshotStore interface {
	// Latest возвращает последний опубликованный снимок курса.
	// Возвращает ErrSnapshotNotFound, если снимков ещё нет.
	Latest(ctx context.Context, courseID string) (*EmergentCurriculum, error)

	// Publish сохраняет новый снимок и делает его последним.
	Publish(ctx context.Context, courseID string, cur *EmergentCurriculum) error
}

// SnapshotProvider - читающая сторона снимков для горячего пути сессий.
// Реализация обязана отдавать снимок без блокировок на стороне записи.
type SnapshotProvider interface {
	// Current возвращает текущий снимок и признак его свежести.
	// Устаревший снимок (старше maxAge) всё равно возвращается -
	// скоринг деградирует до статического, но не блокируется.
	Current(ctx context.Context, courseID string, maxAge time.Duration) (*EmergentCurriculum, bool, error)
}
