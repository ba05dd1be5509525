package behavior

import (
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BEHAVIOR EVENT
// Событие взаимодействия - неизменяемый факт об одном действии ученика.
// Создаётся UI-слоем, сразу сворачивается в агрегат и может быть отброшено.
// ══════════════════════════════════════════════════════════════════════════════

// Kind определяет тип события взаимодействия.
type Kind string

const (
	// Видео-события
	KindVideoPlay        Kind = "video_play"
	KindVideoPause       Kind = "video_pause"
	KindVideoSeek        Kind = "video_seek"
	KindVideoReplay      Kind = "video_replay"
	KindVideoSpeedChange Kind = "video_speed_change"
	KindVideoProgress    Kind = "video_progress"

	// Квиз-события
	KindQuizAttempt  Kind = "quiz_attempt"
	KindQuizHint     Kind = "quiz_hint"
	KindQuizComplete Kind = "quiz_complete"

	// Код-события
	KindCodeExecution Kind = "code_execution"
	KindCodeEdit      Kind = "code_edit"
	KindCodeHint      Kind = "code_hint"

	// Прочие события
	KindSectionComplete  Kind = "section_complete"
	KindPeerSolutionView Kind = "peer_solution_view"
)

// IsValid проверяет, что тип события известен системе.
func (k Kind) IsValid() bool {
	switch k {
	case KindVideoPlay, KindVideoPause, KindVideoSeek, KindVideoReplay,
		KindVideoSpeedChange, KindVideoProgress,
		KindQuizAttempt, KindQuizHint, KindQuizComplete,
		KindCodeExecution, KindCodeEdit, KindCodeHint,
		KindSectionComplete, KindPeerSolutionView:
		return true
	}
	return false
}

// String возвращает строковое представление типа.
func (k Kind) String() string {
	return string(k)
}

// IsQuiz сообщает, относится ли событие к квизу.
func (k Kind) IsQuiz() bool {
	return k == KindQuizAttempt || k == KindQuizHint || k == KindQuizComplete
}

// IsCode сообщает, относится ли событие к работе с кодом.
func (k Kind) IsCode() bool {
	return k == KindCodeExecution || k == KindCodeEdit || k == KindCodeHint
}

// IsVideo сообщает, относится ли событие к видео.
func (k Kind) IsVideo() bool {
	switch k {
	case KindVideoPlay, KindVideoPause, KindVideoSeek, KindVideoReplay,
		KindVideoSpeedChange, KindVideoProgress:
		return true
	}
	return false
}

// Scope определяет область события: ученик + позиция в учебном материале.
type Scope struct {
	// LearnerID - идентификатор ученика.
	LearnerID string

	// CourseID - идентификатор курса.
	CourseID string

	// ChapterID - идентификатор главы.
	ChapterID string

	// SectionID - идентификатор секции внутри главы.
	SectionID string
}

// Validate проверяет корректность области.
func (s Scope) Validate() error {
	if s.LearnerID == "" {
		return shared.WrapError("behavior", "Validate", shared.ErrValidation, "learner_id is required", nil)
	}
	if s.CourseID == "" {
		return shared.WrapError("behavior", "Validate", shared.ErrValidation, "course_id is required", nil)
	}
	if s.ChapterID == "" {
		return shared.WrapError("behavior", "Validate", shared.ErrValidation, "chapter_id is required", nil)
	}
	if s.SectionID == "" {
		return shared.WrapError("behavior", "Validate", shared.ErrValidation, "section_id is required", nil)
	}
	return nil
}

// Payload содержит данные, специфичные для типа события.
// Поля-указатели отличают "не передано" от нулевого значения.
type Payload struct {
	// Correct - корректность ответа (quiz_attempt).
	Correct *bool

	// Latency - время от показа вопроса до ответа (quiz_attempt).
	Latency time.Duration

	// Success - успешность запуска кода (code_execution).
	Success *bool

	// SpanSeconds - длительность пересмотренного фрагмента (video_replay).
	SpanSeconds float64

	// Speed - новая скорость воспроизведения (video_speed_change).
	Speed float64

	// Progress - доля просмотренного видео в [0,1] (video_progress).
	Progress float64

	// TimeSpent - время, проведённое в секции (section_complete).
	TimeSpent time.Duration

	// PeerSolutionID - идентификатор просмотренного чужого решения.
	PeerSolutionID string
}

// Event представляет одно событие взаимодействия ученика с материалом.
// Событие неизменяемо: после создания оно только читается агрегатором.
type Event struct {
	// Kind - тип события.
	Kind Kind

	// Scope - область события (ученик, курс, глава, секция).
	Scope Scope

	// Timestamp - момент события.
	Timestamp time.Time

	// Payload - данные, специфичные для типа.
	Payload Payload
}

// NewEvent создаёт событие с текущим временем.
func NewEvent(kind Kind, scope Scope, payload Payload) Event {
	return Event{
		Kind:      kind,
		Scope:     scope,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// Validate проверяет событие. Некорректное событие отвергается целиком,
// агрегат при этом не изменяется.
func (e Event) Validate() error {
	if !e.Kind.IsValid() {
		return shared.ErrUnknownEventKind
	}
	if err := e.Scope.Validate(); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		return shared.WrapError("behavior", "Validate", shared.ErrValidation, "timestamp is required", nil)
	}
	switch e.Kind {
	case KindQuizAttempt:
		if e.Payload.Correct == nil {
			return shared.WrapError("behavior", "Validate", shared.ErrValidation, "quiz_attempt requires correctness payload", nil)
		}
		if e.Payload.Latency < 0 {
			return shared.WrapError("behavior", "Validate", shared.ErrNegativeValue, "quiz latency cannot be negative", nil)
		}
	case KindCodeExecution:
		if e.Payload.Success == nil {
			return shared.WrapError("behavior", "Validate", shared.ErrValidation, "code_execution requires success payload", nil)
		}
	case KindVideoReplay:
		if e.Payload.SpanSeconds < 0 {
			return shared.WrapError("behavior", "Validate", shared.ErrNegativeValue, "replay span cannot be negative", nil)
		}
	case KindVideoProgress:
		if e.Payload.Progress < 0 || e.Payload.Progress > 1 {
			return shared.WrapError("behavior", "Validate", shared.ErrValueOutOfRange, "video progress must be in [0,1]", nil)
		}
	case KindSectionComplete:
		if e.Payload.TimeSpent < 0 {
			return shared.WrapError("behavior", "Validate", shared.ErrNegativeValue, "time spent cannot be negative", nil)
		}
	}
	return nil
}
