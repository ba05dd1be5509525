package collective

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLLECTIVE INTELLIGENCE AGGREGATOR
// Батч-вычисление: полный лог исходов популяции -> Emergent Curriculum.
// Запускается периодическим воркером, не горячим путём сессии.
// Детерминирован: одинаковый вход даёт одинаковый снимок.
// ══════════════════════════════════════════════════════════════════════════════

// AggregatorConfig содержит настраиваемые пороги агрегации.
type AggregatorConfig struct {
	// MinPopulation - глобальный минимум учеников; ниже него возвращается
	// пустой снимок с нулевой уверенностью.
	MinPopulation int

	// MinSampleSize - минимальный размер каждой из выборок (с пререквизитом
	// и без) для эмиссии кандидата.
	MinSampleSize int

	// MinEffectSize - минимальная абсолютная разница успешности.
	MinEffectSize float64

	// ConfidenceSaturation - параметр насыщения уверенности:
	// confidence = n/(n+saturation), n = min(выборки).
	ConfidenceSaturation float64

	// MinStruggleSamples - минимум учеников на секцию для точки затруднения.
	MinStruggleSamples int

	// StruggleThreshold - порог индивидуального затруднения [0,1].
	StruggleThreshold float64

	// SevereStruggle - порог severity для рекомендаций.
	SevereStruggle float64

	// FailureWeight, ReplayWeight, HintWeight - веса компонент severity.
	// Нормируются к сумме 1 при вычислении.
	FailureWeight float64
	ReplayWeight  float64
	HintWeight    float64

	// ReplayRateCeiling - частота пересмотров (replays/мин), считающаяся
	// максимальной при нормировке в [0,1].
	ReplayRateCeiling float64

	// TopKPaths - сколько оптимальных путей хранить.
	TopKPaths int

	// MinPathLearners - минимум учеников на путь.
	MinPathLearners int

	// MinPathLength - минимальная длина последовательности глав.
	MinPathLength int
}

// DefaultAggregatorConfig возвращает пороги по умолчанию.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		MinPopulation:        5,
		MinSampleSize:        10,
		MinEffectSize:        0.1,
		ConfidenceSaturation: 20,
		MinStruggleSamples:   5,
		StruggleThreshold:    0.5,
		SevereStruggle:       0.7,
		FailureWeight:        0.5,
		ReplayWeight:         0.25,
		HintWeight:           0.25,
		ReplayRateCeiling:    2.0,
		TopKPaths:            5,
		MinPathLearners:      3,
		MinPathLength:        2,
	}
}

// Aggregator выполняет батч-агрегацию исходов популяции.
type Aggregator struct {
	cfg   AggregatorConfig
	clock shared.Clock
}

// NewAggregator создаёт агрегатор.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.TopKPaths <= 0 {
		cfg.TopKPaths = 5
	}
	return &Aggregator{cfg: cfg, clock: shared.SystemClock{}}
}

// WithClock подменяет источник времени (для тестов).
func (a *Aggregator) WithClock(clock shared.Clock) *Aggregator {
	a.clock = clock
	return a
}

// Aggregate вычисляет Emergent Curriculum по полному логу исходов.
// Некорректные записи пропускаются. Пустая или недостаточная выборка -
// не ошибка: возвращается снимок с пустыми списками и нулевой
// уверенностью.
func (a *Aggregator) Aggregate(outcomes []OutcomeRecord, version int64) *EmergentCurriculum {
	valid := outcomes[:0:0]
	for _, r := range outcomes {
		if r.Validate() == nil {
			valid = append(valid, r)
		}
	}

	learners := distinctLearners(valid)
	cur := EmptyCurriculum(version, a.clock.Now())
	cur.HealthMetrics.TotalLearners = len(learners)

	if len(learners) == 0 || len(learners) < a.cfg.MinPopulation {
		return cur
	}

	cur.ImplicitPrerequisites = a.minePrerequisites(valid)
	cur.StrugglePoints = a.mineStrugglePoints(valid)
	cur.OptimalPaths = a.mineOptimalPaths(valid)
	cur.Recommendations = a.deriveRecommendations(cur.ImplicitPrerequisites, cur.StrugglePoints)
	cur.HealthMetrics = a.healthMetrics(valid, learners, cur)
	return cur
}

// ─────────────────────────────────────────────────────────────────────────────
// Неявные пререквизиты.
// ─────────────────────────────────────────────────────────────────────────────

// minePrerequisites перебирает упорядоченные пары глав (A, B): часть
// учеников прошла A до B, часть пришла в B без A. Кандидат эмитится
// только при достаточных выборках с обеих сторон и достаточной разнице
// успешности.
func (a *Aggregator) minePrerequisites(outcomes []OutcomeRecord) []ImplicitPrerequisite {
	byChapter := make(map[string][]OutcomeRecord)
	chapterSet := make(map[string]struct{})
	for _, r := range outcomes {
		byChapter[r.ChapterID] = append(byChapter[r.ChapterID], r)
		chapterSet[r.ChapterID] = struct{}{}
		for _, c := range r.CompletedBefore {
			chapterSet[c] = struct{}{}
		}
	}
	chapters := sortedKeys(chapterSet)

	var result []ImplicitPrerequisite
	for _, dependent := range chapters {
		attempts := byChapter[dependent]
		if len(attempts) == 0 {
			continue
		}
		for _, prereq := range chapters {
			if prereq == dependent {
				continue
			}
			var withN, withSuccess, withoutN, withoutSuccess int
			for _, r := range attempts {
				if r.HasPrereq(prereq) {
					withN++
					if r.Success {
						withSuccess++
					}
				} else {
					withoutN++
					if r.Success {
						withoutSuccess++
					}
				}
			}
			if withN < a.cfg.MinSampleSize || withoutN < a.cfg.MinSampleSize {
				continue
			}
			ev := PrerequisiteEvidence{
				SuccessRateWithPrereq:    float64(withSuccess) / float64(withN),
				SuccessRateWithoutPrereq: float64(withoutSuccess) / float64(withoutN),
				LearnersWithPrereq:       withN,
				LearnersWithoutPrereq:    withoutN,
			}
			if ev.EffectSize() < a.cfg.MinEffectSize {
				continue
			}
			// Отрицательный эффект (A мешает B) пререквизитом не является.
			if ev.SuccessRateWithPrereq <= ev.SuccessRateWithoutPrereq {
				continue
			}
			result = append(result, ImplicitPrerequisite{
				PrerequisiteChapterID: prereq,
				DependentChapterID:    dependent,
				Confidence:            saturate(float64(ev.MinSamples()), a.cfg.ConfidenceSaturation),
				Strength:              math.Min(1, ev.EffectSize()*2),
				Evidence:              ev,
			})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Strength != result[j].Strength {
			return result[i].Strength > result[j].Strength
		}
		if result[i].DependentChapterID != result[j].DependentChapterID {
			return result[i].DependentChapterID < result[j].DependentChapterID
		}
		return result[i].PrerequisiteChapterID < result[j].PrerequisiteChapterID
	})
	return result
}

// ─────────────────────────────────────────────────────────────────────────────
// Точки затруднения.
// ─────────────────────────────────────────────────────────────────────────────

type sectionKey struct {
	chapterID string
	sectionID string
}

// mineStrugglePoints вычисляет severity секций по популяции: взвешенная
// смесь доли неудач, избыточных пересмотров и зависимости от подсказок.
func (a *Aggregator) mineStrugglePoints(outcomes []OutcomeRecord) []StrugglePoint {
	wSum := a.cfg.FailureWeight + a.cfg.ReplayWeight + a.cfg.HintWeight
	if wSum <= 0 {
		return nil
	}
	wf := a.cfg.FailureWeight / wSum
	wr := a.cfg.ReplayWeight / wSum
	wh := a.cfg.HintWeight / wSum

	type acc struct {
		failure float64
		replay  float64
		hints   float64
		n       int
		flagged int
	}
	byScope := make(map[sectionKey]*acc)
	for _, r := range outcomes {
		for _, s := range r.Sections {
			key := sectionKey{chapterID: r.ChapterID, sectionID: s.SectionID}
			ac, ok := byScope[key]
			if !ok {
				ac = &acc{}
				byScope[key] = ac
			}
			replayNorm := math.Min(s.ReplayRate/a.cfg.ReplayRateCeiling, 1)
			ac.failure += s.FailureRate
			ac.replay += replayNorm
			ac.hints += s.HintReliance
			ac.n++
			score := wf*s.FailureRate + wr*replayNorm + wh*s.HintReliance
			if score > a.cfg.StruggleThreshold {
				ac.flagged++
			}
		}
	}

	keys := make([]sectionKey, 0, len(byScope))
	for k := range byScope {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].chapterID != keys[j].chapterID {
			return keys[i].chapterID < keys[j].chapterID
		}
		return keys[i].sectionID < keys[j].sectionID
	})

	var result []StrugglePoint
	for _, k := range keys {
		ac := byScope[k]
		if ac.n < a.cfg.MinStruggleSamples {
			continue
		}
		n := float64(ac.n)
		failure := ac.failure / n
		replay := ac.replay / n
		hints := ac.hints / n
		severity := wf*failure + wr*replay + wh*hints
		if severity <= 0 {
			continue
		}
		result = append(result, StrugglePoint{
			ChapterID:          k.chapterID,
			SectionID:          k.sectionID,
			Severity:           severity,
			StruggleType:       dominantStruggle(failure, replay, hints),
			AffectedPercentage: float64(ac.flagged) / n,
			CommonCauses:       struggleCauses(failure, replay, hints),
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Severity != result[j].Severity {
			return result[i].Severity > result[j].Severity
		}
		if result[i].ChapterID != result[j].ChapterID {
			return result[i].ChapterID < result[j].ChapterID
		}
		return result[i].SectionID < result[j].SectionID
	})
	return result
}

// dominantStruggle возвращает тип по доминирующему сигналу.
// Если два сигнала близки (в пределах 0.05), тип mixed.
func dominantStruggle(failure, replay, hints float64) StruggleType {
	max := math.Max(failure, math.Max(replay, hints))
	close := 0
	for _, v := range []float64{failure, replay, hints} {
		if max-v < 0.05 {
			close++
		}
	}
	if close > 1 {
		return StruggleMixed
	}
	switch max {
	case failure:
		return StruggleFailures
	case replay:
		return StruggleReplays
	default:
		return StruggleHints
	}
}

// struggleCauses собирает человекочитаемые причины по сигналам выше 0.3.
func struggleCauses(failure, replay, hints float64) []string {
	var causes []string
	if failure > 0.3 {
		causes = append(causes, fmt.Sprintf("high failure rate (%.0f%%)", failure*100))
	}
	if replay > 0.3 {
		causes = append(causes, "excessive video replays")
	}
	if hints > 0.3 {
		causes = append(causes, "heavy hint usage")
	}
	if len(causes) == 0 {
		causes = append(causes, "mild difficulty signals across the population")
	}
	return causes
}

// ─────────────────────────────────────────────────────────────────────────────
// Оптимальные пути.
// ─────────────────────────────────────────────────────────────────────────────

// mineOptimalPaths кластеризует успешных учеников по фактической
// последовательности пройденных глав и оставляет топ-K по числу учеников.
func (a *Aggregator) mineOptimalPaths(outcomes []OutcomeRecord) []OptimalPath {
	byLearner := make(map[string][]OutcomeRecord)
	for _, r := range outcomes {
		byLearner[r.LearnerID] = append(byLearner[r.LearnerID], r)
	}

	type cluster struct {
		sequence  []string
		learners  int
		totalTime float64
		attempted int
		succeeded int
	}
	clusters := make(map[string]*cluster)

	for _, learnerID := range sortedKeys(byLearner) {
		recs := byLearner[learnerID]
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].CompletedAt.Before(recs[j].CompletedAt)
		})

		var seq []string
		var totalTime float64
		succeeded := 0
		for _, r := range recs {
			if r.Success {
				seq = append(seq, r.ChapterID)
				totalTime += r.DurationMinutes
				succeeded++
			}
		}
		// Путь образуют только ученики, успешно прошедшие достаточно глав
		// и не провалившие ни одной.
		if len(seq) < a.cfg.MinPathLength || succeeded != len(recs) {
			continue
		}
		key := strings.Join(seq, ">")
		cl, ok := clusters[key]
		if !ok {
			cl = &cluster{sequence: seq}
			clusters[key] = cl
		}
		cl.learners++
		cl.totalTime += totalTime
		cl.attempted += len(recs)
		cl.succeeded += succeeded
	}

	var result []OptimalPath
	for _, key := range sortedKeys(clusters) {
		cl := clusters[key]
		if cl.learners < a.cfg.MinPathLearners {
			continue
		}
		result = append(result, OptimalPath{
			ID:              pathID(cl.sequence),
			ChapterSequence: cl.sequence,
			LearnerCount:    cl.learners,
			Metrics: PathMetrics{
				CompletionRate:           float64(cl.succeeded) / float64(cl.attempted),
				AvgCompletionTimeMinutes: cl.totalTime / float64(cl.learners),
			},
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].LearnerCount != result[j].LearnerCount {
			return result[i].LearnerCount > result[j].LearnerCount
		}
		return result[i].ID < result[j].ID
	})
	if len(result) > a.cfg.TopKPaths {
		result = result[:a.cfg.TopKPaths]
	}
	return result
}

// pathID строит детерминированный идентификатор последовательности.
func pathID(sequence []string) string {
	h := fnv.New64a()
	for _, c := range sequence {
		_, _ = h.Write([]byte(c))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("path-%016x", h.Sum64())
}

// ─────────────────────────────────────────────────────────────────────────────
// Рекомендации.
// ─────────────────────────────────────────────────────────────────────────────

// deriveRecommendations выводит рекомендации из пререквизитов и точек
// затруднения: тяжёлая точка без соответствующего пререквизита -
// кандидат на новый пререквизит, иначе на упрощение материала.
func (a *Aggregator) deriveRecommendations(prereqs []ImplicitPrerequisite, struggles []StrugglePoint) []Recommendation {
	hasPrereq := make(map[string]bool)
	for _, p := range prereqs {
		hasPrereq[p.DependentChapterID] = true
	}

	var result []Recommendation
	for _, s := range struggles {
		if s.Severity <= a.cfg.SevereStruggle {
			continue
		}
		impact := s.Severity * s.AffectedPercentage
		priority := math.Min(impact*10, 10)
		if !hasPrereq[s.ChapterID] {
			result = append(result, Recommendation{
				Type: RecommendAddPrerequisite,
				Description: fmt.Sprintf(
					"section %s/%s shows severe struggle (%.0f%% affected) with no mined prerequisite; consider an explicit prerequisite",
					s.ChapterID, s.SectionID, s.AffectedPercentage*100),
				Priority:       priority,
				ExpectedImpact: impact,
			})
		} else {
			result = append(result, Recommendation{
				Type: RecommendSimplifyContent,
				Description: fmt.Sprintf(
					"section %s/%s struggles persist despite prerequisites; consider simplifying or splitting the content",
					s.ChapterID, s.SectionID),
				Priority:       priority,
				ExpectedImpact: impact,
			})
		}
		if s.StruggleType == StruggleReplays {
			result = append(result, Recommendation{
				Type: RecommendSplitSection,
				Description: fmt.Sprintf(
					"section %s/%s is dominated by video replays; consider splitting the video into shorter segments",
					s.ChapterID, s.SectionID),
				Priority:       priority * 0.8,
				ExpectedImpact: impact * 0.8,
			})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority > result[j].Priority
	})
	return result
}

// healthMetrics собирает сводные метрики снимка.
func (a *Aggregator) healthMetrics(outcomes []OutcomeRecord, learners map[string]struct{}, cur *EmergentCurriculum) HealthMetrics {
	succeeded := 0
	for _, r := range outcomes {
		if r.Success {
			succeeded++
		}
	}
	avgCompletion := 0.0
	if len(outcomes) > 0 {
		avgCompletion = float64(succeeded) / float64(len(outcomes))
	}

	// Уверенность модели: насыщение по размеру популяции, умноженное
	// на среднюю уверенность выведенных пререквизитов (если они есть).
	conf := saturate(float64(len(learners)), a.cfg.ConfidenceSaturation)
	if n := len(cur.ImplicitPrerequisites); n > 0 {
		var sum float64
		for _, p := range cur.ImplicitPrerequisites {
			sum += p.Confidence
		}
		conf = (conf + sum/float64(n)) / 2
	}

	return HealthMetrics{
		TotalLearners:     len(learners),
		AvgCompletionRate: avgCompletion,
		PrerequisiteCount: len(cur.ImplicitPrerequisites),
		OverallConfidence: conf,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Вспомогательные функции.
// ─────────────────────────────────────────────────────────────────────────────

// saturate - насыщающая функция n/(n+k): растёт с выборкой, не достигая 1.
func saturate(n, k float64) float64 {
	if n <= 0 {
		return 0
	}
	return n / (n + k)
}

func distinctLearners(outcomes []OutcomeRecord) map[string]struct{} {
	set := make(map[string]struct{})
	for _, r := range outcomes {
		set[r.LearnerID] = struct{}{}
	}
	return set
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

