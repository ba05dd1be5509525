package traversal

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRAVERSABILITY SCORE
// Персональная оценка доступности узла учебного графа: смесь статической
// структуры и популяционных сигналов. Всегда производное представление -
// не хранится как истина, пересчитывается при изменении входов.
// ══════════════════════════════════════════════════════════════════════════════

// FactorType - тип сигнала, из которого складывается оценка.
type FactorType string

const (
	FactorStaticPrerequisite   FactorType = "static_prerequisite"
	FactorEmergentPrerequisite FactorType = "emergent_prerequisite"
	FactorCollectiveStruggle   FactorType = "collective_struggle"
	FactorLearnerProfile       FactorType = "learner_profile"
	FactorPastPerformance      FactorType = "past_performance"
	FactorContentDensity       FactorType = "content_density"
	FactorTimeSincePrereq      FactorType = "time_since_prereq"
	FactorPeerSuccess          FactorType = "peer_success"
)

// Factor - один сигнал оценки. Value в [0,1], выше - благоприятнее.
type Factor struct {
	// Type - тип сигнала.
	Type FactorType

	// Value - значение в [0,1].
	Value float64

	// Description - человекочитаемое объяснение.
	Description string
}

// IsPrerequisite сообщает, является ли фактор пререквизитным.
func (f Factor) IsPrerequisite() bool {
	return f.Type == FactorStaticPrerequisite || f.Type == FactorEmergentPrerequisite
}

// Recommendation - итоговая рекомендация по узлу.
type Recommendation string

const (
	RecommendBlocked            Recommendation = "blocked"
	RecommendConsiderPrereqs    Recommendation = "consider_prerequisites"
	RecommendProceedWithCaution Recommendation = "proceed_with_caution"
	RecommendProceed            Recommendation = "proceed"
	RecommendAccelerate         Recommendation = "accelerate"
	RecommendSkip               Recommendation = "skip"
)

// Score - итоговая оценка доступности узла для ученика.
type Score struct {
	// NodeID - узел, к которому относится оценка.
	NodeID string

	// Score - взвешенная сумма факторов [0,1].
	Score float64

	// Factors - составляющие сигналы.
	Factors []Factor

	// Recommendation - итоговая рекомендация.
	Recommendation Recommendation

	// PredictedStruggle - предсказанное затруднение [0,1].
	PredictedStruggle float64

	// StruggleConfidence - уверенность предсказания [0,1].
	StruggleConfidence float64

	// StaticOnly - оценка построена без популяционных данных
	// (снимок отсутствует или устарел).
	StaticOnly bool
}

// Factor возвращает фактор указанного типа.
func (s Score) Factor(t FactorType) (Factor, bool) {
	for _, f := range s.Factors {
		if f.Type == t {
			return f, true
		}
	}
	return Factor{}, false
}

// Node - узел учебного графа со статическими атрибутами.
type Node struct {
	// ID - идентификатор узла (секция или глава целиком).
	ID string

	// ChapterID - глава узла.
	ChapterID string

	// SectionID - секция узла (пустая для узла-главы).
	SectionID string

	// Title - название.
	Title string

	// Difficulty - авторская сложность [0,1].
	Difficulty float64

	// ContentDensity - плотность материала [0,1].
	ContentDensity float64

	// DurationMinutes - ожидаемое время прохождения.
	DurationMinutes float64

	// XPReward - XP за завершение.
	XPReward int

	// StaticPrereqs - жёсткие (авторские) пререквизиты: главы,
	// которые обязаны быть завершены.
	StaticPrereqs []string
}

// LearnerState - состояние ученика относительно учебного графа:
// что завершено, когда и с каким результатом.
type LearnerState struct {
	// CompletedChapters - завершённые главы и время завершения.
	CompletedChapters map[string]time.Time

	// Performance - результат по завершённым главам [0,1].
	Performance map[string]float64
}

// IsCompleted сообщает, завершена ли глава.
func (s LearnerState) IsCompleted(chapterID string) bool {
	_, ok := s.CompletedChapters[chapterID]
	return ok
}

// CompletedAt возвращает время завершения главы.
func (s LearnerState) CompletedAt(chapterID string) (time.Time, bool) {
	t, ok := s.CompletedChapters[chapterID]
	return t, ok
}

// UnmetPrereqs возвращает незавершённые жёсткие пререквизиты узла.
func (s LearnerState) UnmetPrereqs(node Node) []string {
	var unmet []string
	for _, p := range node.StaticPrereqs {
		if !s.IsCompleted(p) {
			unmet = append(unmet, p)
		}
	}
	return unmet
}
