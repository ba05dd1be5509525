package collective

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// EMERGENT CURRICULUM
// Результат батч-агрегации исходов всей популяции: неявные пререквизиты,
// точки затруднения, оптимальные пути, рекомендации. Снимок неизменяем
// и заменяется целиком при следующей агрегации.
// ══════════════════════════════════════════════════════════════════════════════

// PrerequisiteEvidence - статистическое основание неявного пререквизита.
type PrerequisiteEvidence struct {
	// SuccessRateWithPrereq - успешность тех, кто прошёл пререквизит.
	SuccessRateWithPrereq float64

	// SuccessRateWithoutPrereq - успешность тех, кто его не проходил.
	SuccessRateWithoutPrereq float64

	// LearnersWithPrereq - размер выборки с пререквизитом.
	LearnersWithPrereq int

	// LearnersWithoutPrereq - размер выборки без пререквизита.
	LearnersWithoutPrereq int
}

// EffectSize возвращает абсолютную разницу успешности.
func (e PrerequisiteEvidence) EffectSize() float64 {
	d := e.SuccessRateWithPrereq - e.SuccessRateWithoutPrereq
	if d < 0 {
		return -d
	}
	return d
}

// MinSamples возвращает меньший из размеров выборок.
func (e PrerequisiteEvidence) MinSamples() int {
	if e.LearnersWithPrereq < e.LearnersWithoutPrereq {
		return e.LearnersWithPrereq
	}
	return e.LearnersWithoutPrereq
}

// ImplicitPrerequisite - статистически выведенная зависимость между главами.
// Производится только агрегатором; неизменен в рамках одного снимка.
type ImplicitPrerequisite struct {
	// PrerequisiteChapterID - глава-пререквизит.
	PrerequisiteChapterID string

	// DependentChapterID - зависимая глава.
	DependentChapterID string

	// Confidence - уверенность в зависимости [0,1], растёт с выборкой.
	Confidence float64

	// Strength - сила эффекта [0,1], растёт с разницей успешности.
	Strength float64

	// Evidence - основание.
	Evidence PrerequisiteEvidence
}

// StruggleType классифицирует доминирующий сигнал затруднения.
type StruggleType string

const (
	StruggleFailures StruggleType = "failures"
	StruggleReplays  StruggleType = "replays"
	StruggleHints    StruggleType = "hints"
	StruggleMixed    StruggleType = "mixed"
)

// StrugglePoint - место учебного материала, где непропорциональная доля
// учеников показывает сигналы затруднения.
type StrugglePoint struct {
	// ChapterID - глава.
	ChapterID string

	// SectionID - секция.
	SectionID string

	// Severity - тяжесть затруднения [0,1].
	Severity float64

	// StruggleType - доминирующий сигнал.
	StruggleType StruggleType

	// AffectedPercentage - доля учеников с затруднением [0,1].
	AffectedPercentage float64

	// CommonCauses - человекочитаемые причины (по доминирующим сигналам).
	CommonCauses []string
}

// PathMetrics - метрики исторического пути.
type PathMetrics struct {
	// CompletionRate - доля успешных прохождений [0,1].
	CompletionRate float64

	// AvgCompletionTimeMinutes - среднее суммарное время пути.
	AvgCompletionTimeMinutes float64
}

// OptimalPath - часто успешная историческая последовательность глав.
type OptimalPath struct {
	// ID - идентификатор пути (детерминированный хеш последовательности).
	ID string

	// ChapterSequence - упорядоченная последовательность глав.
	ChapterSequence []string

	// LearnerCount - сколько учеников прошли этот путь.
	LearnerCount int

	// Metrics - метрики пути.
	Metrics PathMetrics
}

// RecommendationType - тип рекомендации по учебному материалу.
type RecommendationType string

const (
	RecommendAddPrerequisite RecommendationType = "add_prerequisite"
	RecommendSimplifyContent RecommendationType = "simplify_content"
	RecommendReorderChapters RecommendationType = "reorder_chapters"
	RecommendSplitSection    RecommendationType = "split_section"
)

// Recommendation - эвристическая рекомендация, выведенная из агрегатов.
type Recommendation struct {
	// Type - тип рекомендации.
	Type RecommendationType

	// Description - описание для авторов материала.
	Description string

	// Priority - приоритет [0,10].
	Priority float64

	// ExpectedImpact - ожидаемый эффект [0,1].
	ExpectedImpact float64
}

// HealthMetrics - сводные метрики здоровья модели.
type HealthMetrics struct {
	// TotalLearners - число учеников в выборке.
	TotalLearners int

	// AvgCompletionRate - средняя успешность глав по популяции [0,1].
	AvgCompletionRate float64

	// PrerequisiteCount - число выведенных пререквизитов.
	PrerequisiteCount int

	// OverallConfidence - общая уверенность модели [0,1];
	// 0 означает "данных ещё нет".
	OverallConfidence float64
}

// EmergentCurriculum - полный результат одной агрегации.
// Один экземпляр читается всеми сессиями до следующего пересчёта.
type EmergentCurriculum struct {
	// Version - монотонная версия снимка.
	Version int64

	// GeneratedAt - время агрегации.
	GeneratedAt time.Time

	// ImplicitPrerequisites - выведенные зависимости, отсортированы
	// по убыванию strength.
	ImplicitPrerequisites []ImplicitPrerequisite

	// StrugglePoints - точки затруднения, отсортированы по убыванию severity.
	StrugglePoints []StrugglePoint

	// OptimalPaths - топ-K успешных путей по числу учеников.
	OptimalPaths []OptimalPath

	// Recommendations - рекомендации, отсортированы по убыванию приоритета.
	Recommendations []Recommendation

	// HealthMetrics - сводные метрики.
	HealthMetrics HealthMetrics
}

// EmptyCurriculum возвращает снимок "данных ещё нет": пустые списки,
// нулевая уверенность. Потребители обязаны переносить такой снимок
// без ошибок.
func EmptyCurriculum(version int64, at time.Time) *EmergentCurriculum {
	return &EmergentCurriculum{
		Version:               version,
		GeneratedAt:           at,
		ImplicitPrerequisites: []ImplicitPrerequisite{},
		StrugglePoints:        []StrugglePoint{},
		OptimalPaths:          []OptimalPath{},
		Recommendations:       []Recommendation{},
	}
}

// IsEmpty сообщает, что снимок не содержит данных.
func (c *EmergentCurriculum) IsEmpty() bool {
	return c.HealthMetrics.TotalLearners == 0
}

// Age возвращает возраст снимка.
func (c *EmergentCurriculum) Age(now time.Time) time.Duration {
	return now.Sub(c.GeneratedAt)
}

// PrereqFor возвращает неявные пререквизиты указанной главы.
func (c *EmergentCurriculum) PrereqFor(chapterID string) []ImplicitPrerequisite {
	var out []ImplicitPrerequisite
	for _, p := range c.ImplicitPrerequisites {
		if p.DependentChapterID == chapterID {
			out = append(out, p)
		}
	}
	return out
}

// StruggleAt возвращает точку затруднения для секции, если она есть.
func (c *EmergentCurriculum) StruggleAt(chapterID, sectionID string) (StrugglePoint, bool) {
	for _, s := range c.StrugglePoints {
		if s.ChapterID == chapterID && s.SectionID == sectionID {
			return s, true
		}
	}
	return StrugglePoint{}, false
}

// ChapterStruggle возвращает максимальную severity по секциям главы.
func (c *EmergentCurriculum) ChapterStruggle(chapterID string) float64 {
	var max float64
	for _, s := range c.StrugglePoints {
		if s.ChapterID == chapterID && s.Severity > max {
			max = s.Severity
		}
	}
	return max
}
