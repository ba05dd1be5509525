package learner

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER PROFILE
// Сглаженный, производный портрет ученика. Профиль нельзя выставить напрямую -
// он пересчитывается из агрегатов поведения и переживает переходы между
// секциями внутри курса.
// ══════════════════════════════════════════════════════════════════════════════

// Pace - категориальная оценка темпа ученика.
type Pace string

const (
	PaceSlow     Pace = "slow"
	PaceModerate Pace = "moderate"
	PaceFast     Pace = "fast"
)

// IsValid проверяет значение темпа.
func (p Pace) IsValid() bool {
	return p == PaceSlow || p == PaceModerate || p == PaceFast
}

// Confidence - категориальная оценка уверенности ученика.
type Confidence string

const (
	ConfidenceLow      Confidence = "low"
	ConfidenceModerate Confidence = "moderate"
	ConfidenceHigh     Confidence = "high"
	ConfidenceExpert   Confidence = "expert"
)

// IsValid проверяет значение уверенности.
func (c Confidence) IsValid() bool {
	switch c {
	case ConfidenceLow, ConfidenceModerate, ConfidenceHigh, ConfidenceExpert:
		return true
	}
	return false
}

// rank возвращает порядковый номер для сравнения уровней уверенности.
func (c Confidence) rank() int {
	switch c {
	case ConfidenceLow:
		return 0
	case ConfidenceModerate:
		return 1
	case ConfidenceHigh:
		return 2
	case ConfidenceExpert:
		return 3
	}
	return -1
}

// AtLeast сообщает, что уверенность не ниже указанной.
func (c Confidence) AtLeast(other Confidence) bool {
	return c.rank() >= other.rank()
}

// LearningStyle - веса предпочтений форматов материала.
// Инвариант: после каждого обновления сумма весов равна 1 с точностью 0.01.
type LearningStyle struct {
	// Video - предпочтение видео-материала.
	Video float64

	// Code - предпочтение практики с кодом.
	Code float64

	// Text - предпочтение текстового материала.
	Text float64

	// Interactive - предпочтение интерактивных заданий (квизы).
	Interactive float64
}

// Sum возвращает сумму весов.
func (s LearningStyle) Sum() float64 {
	return s.Video + s.Code + s.Text + s.Interactive
}

// Normalize возвращает стиль, перенормированный к сумме 1.
// Нулевой стиль превращается в равномерный.
func (s LearningStyle) Normalize() LearningStyle {
	sum := s.Sum()
	if sum <= 0 {
		return DefaultLearningStyle()
	}
	return LearningStyle{
		Video:       s.Video / sum,
		Code:        s.Code / sum,
		Text:        s.Text / sum,
		Interactive: s.Interactive / sum,
	}
}

// Dominant возвращает формат с наибольшим весом.
func (s LearningStyle) Dominant() string {
	best, name := s.Video, "video"
	if s.Code > best {
		best, name = s.Code, "code"
	}
	if s.Text > best {
		best, name = s.Text, "text"
	}
	if s.Interactive > best {
		name = "interactive"
	}
	return name
}

// DefaultLearningStyle возвращает равномерное распределение предпочтений.
func DefaultLearningStyle() LearningStyle {
	return LearningStyle{Video: 0.25, Code: 0.25, Text: 0.25, Interactive: 0.25}
}

// Signals - сглаженные непрерывные сигналы, из которых проецируются
// категориальные оценки. Хранятся в профиле, чтобы одна шумная секция
// не качала профиль.
type Signals struct {
	// QuizAccuracy - сглаженная точность ответов [0,1].
	QuizAccuracy float64

	// HintReliance - сглаженная зависимость от подсказок [0,1].
	HintReliance float64

	// CodeSuccess - сглаженная успешность запусков кода [0,1].
	CodeSuccess float64

	// ReplayRate - сглаженная частота пересмотров (replays/мин).
	ReplayRate float64

	// SpeedScore - сглаженный сигнал темпа [0,1]: скорость воспроизведения,
	// задержки ответов, время в секции.
	SpeedScore float64

	// SampleCount - количество секций, учтённых в сигналах.
	SampleCount int
}

// Profile представляет профиль одного ученика.
type Profile struct {
	// LearnerID - идентификатор ученика.
	LearnerID string

	// CourseID - курс, в рамках которого накапливается профиль.
	CourseID string

	// Pace - категориальный темп.
	Pace Pace

	// Confidence - категориальная уверенность.
	Confidence Confidence

	// EngagementScore - вовлечённость [0,100].
	EngagementScore float64

	// RetentionScore - удержание материала [0,100].
	RetentionScore float64

	// LearningStyle - веса предпочтений форматов, сумма = 1.
	LearningStyle LearningStyle

	// Signals - сглаженные непрерывные сигналы.
	Signals Signals

	// UpdatedAt - время последнего пересчёта.
	UpdatedAt time.Time
}

// NewProfile создаёт стартовый профиль с нейтральными значениями.
func NewProfile(learnerID, courseID string) *Profile {
	return &Profile{
		LearnerID:       learnerID,
		CourseID:        courseID,
		Pace:            PaceModerate,
		Confidence:      ConfidenceModerate,
		EngagementScore: 50,
		RetentionScore:  50,
		LearningStyle:   DefaultLearningStyle(),
		Signals: Signals{
			QuizAccuracy: 0.5,
			HintReliance: 0.2,
			CodeSuccess:  0.5,
			SpeedScore:   0.5,
		},
	}
}

// Clone возвращает копию профиля.
func (p *Profile) Clone() *Profile {
	cp := *p
	return &cp
}

// IsHighPerformer сообщает, показывает ли профиль высокий темп
// и уверенность одновременно. Используется движком оркестрации
// для правила ускорения.
func (p *Profile) IsHighPerformer() bool {
	return p.Pace == PaceFast && p.Confidence.AtLeast(ConfidenceHigh)
}
