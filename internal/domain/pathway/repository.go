package pathway

import (
	"context"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/traversal"
)

// CurriculumRepository - доступ к статической структуре курса.
// Реализация - в infrastructure/persistence.
type CurriculumRepository interface {
	// Courses возвращает идентификаторы всех опубликованных курсов.
	Courses(ctx context.Context) ([]string, error)

	// CourseNodes возвращает все узлы курса в авторском порядке.
	CourseNodes(ctx context.Context, courseID string) ([]traversal.Node, error)

	// Node возвращает один узел по адресу.
	Node(ctx context.Context, courseID, chapterID, sectionID string) (traversal.Node, error)
}

// ProgressRepository - прогресс учеников по главам курса.
type ProgressRepository interface {
	// LearnerState возвращает завершённые главы с временем и результатом.
	LearnerState(ctx context.Context, learnerID, courseID string) (traversal.LearnerState, error)

	// MarkCompleted фиксирует завершение главы (upsert).
	MarkCompleted(ctx context.Context, learnerID, courseID, chapterID string, performance float64) error
}
