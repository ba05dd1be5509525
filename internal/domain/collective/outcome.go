package collective

import (
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER OUTCOME RECORD
// Запись об исходе прохождения главы одним учеником. Поступает батчами
// от коллектора исходов (population-scale, не per-session).
// ══════════════════════════════════════════════════════════════════════════════

// SectionOutcome - поведенческие сигналы одной секции внутри исхода главы.
// Используются для выявления точек затруднения.
type SectionOutcome struct {
	// SectionID - идентификатор секции.
	SectionID string

	// FailureRate - доля неудачных попыток (квиз + код) в [0,1].
	FailureRate float64

	// ReplayRate - частота пересмотров видео (replays/мин), нормируется
	// агрегатором.
	ReplayRate float64

	// HintReliance - зависимость от подсказок в [0,1].
	HintReliance float64
}

// OutcomeRecord - исход прохождения одной главы одним учеником.
type OutcomeRecord struct {
	// LearnerID - идентификатор ученика.
	LearnerID string

	// CourseID - курс, к которому относится исход.
	CourseID string

	// ChapterID - идентификатор главы.
	ChapterID string

	// CompletedBefore - главы, завершённые до начала этой.
	CompletedBefore []string

	// Success - глава завершена успешно.
	Success bool

	// StartedAt - начало работы над главой.
	StartedAt time.Time

	// CompletedAt - завершение работы (успешное или нет).
	CompletedAt time.Time

	// DurationMinutes - суммарное активное время в главе.
	DurationMinutes float64

	// Sections - сигналы секций главы.
	Sections []SectionOutcome
}

// Validate проверяет запись. Некорректные записи отбрасываются
// агрегатором до начала вычислений.
func (r OutcomeRecord) Validate() error {
	if r.LearnerID == "" {
		return shared.WrapError("collective", "Validate", shared.ErrValidation, "learner_id is required", nil)
	}
	if r.ChapterID == "" {
		return shared.WrapError("collective", "Validate", shared.ErrValidation, "chapter_id is required", nil)
	}
	if r.DurationMinutes < 0 {
		return shared.WrapError("collective", "Validate", shared.ErrNegativeValue, "duration cannot be negative", nil)
	}
	for _, s := range r.Sections {
		if s.SectionID == "" {
			return shared.WrapError("collective", "Validate", shared.ErrValidation, "section_id is required", nil)
		}
		if s.FailureRate < 0 || s.FailureRate > 1 {
			return shared.WrapError("collective", "Validate", shared.ErrValueOutOfRange, "failure rate must be in [0,1]", nil)
		}
		if s.HintReliance < 0 || s.HintReliance > 1 {
			return shared.WrapError("collective", "Validate", shared.ErrValueOutOfRange, "hint reliance must be in [0,1]", nil)
		}
		if s.ReplayRate < 0 {
			return shared.WrapError("collective", "Validate", shared.ErrNegativeValue, "replay rate cannot be negative", nil)
		}
	}
	return nil
}

// HasPrereq сообщает, была ли глава chapterID завершена до этого исхода.
func (r OutcomeRecord) HasPrereq(chapterID string) bool {
	for _, c := range r.CompletedBefore {
		if c == chapterID {
			return true
		}
	}
	return false
}
