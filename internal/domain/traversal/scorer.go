package traversal

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/collective"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/learner"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORER
// Чистая детерминированная функция: одинаковые входы - одинаковая оценка.
// Популяционные факторы опциональны: без снимка коллективного знания оценка
// деградирует до статической (StaticOnly), но никогда не отказывает.
// ══════════════════════════════════════════════════════════════════════════════

// ScorerConfig - веса факторов и пороги рекомендаций.
type ScorerConfig struct {
	// Веса факторов. Сумма должна равняться 1.0.
	WeightStaticPrereq   float64
	WeightEmergentPrereq float64
	WeightStruggle       float64
	WeightProfile        float64
	WeightPastPerf       float64
	WeightDensity        float64
	WeightRecency        float64
	WeightPeerSuccess    float64

	// Пороги рекомендаций, строго возрастающие.
	BlockedBelow    float64
	ConsiderBelow   float64
	CautionBelow    float64
	AccelerateAbove float64

	// MinPrereqConfidence - минимальная уверенность, при которой
	// неявный пререквизит учитывается.
	MinPrereqConfidence float64

	// MasteryBar - результат по главе, при котором узел считается
	// уже освоенным.
	MasteryBar float64

	// PrereqDecayDays - горизонт, за которым завершённый пререквизит
	// считается полностью "остывшим".
	PrereqDecayDays float64
}

// DefaultScorerConfig возвращает выверенные значения по умолчанию.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		WeightStaticPrereq:   0.25,
		WeightEmergentPrereq: 0.15,
		WeightStruggle:       0.15,
		WeightProfile:        0.15,
		WeightPastPerf:       0.10,
		WeightDensity:        0.05,
		WeightRecency:        0.05,
		WeightPeerSuccess:    0.10,
		BlockedBelow:         0.3,
		ConsiderBelow:        0.5,
		CautionBelow:         0.65,
		AccelerateAbove:      0.85,
		MinPrereqConfidence:  0.3,
		MasteryBar:           0.9,
		PrereqDecayDays:      90,
	}
}

// Validate проверяет веса и пороги.
func (c ScorerConfig) Validate() error {
	sum := c.WeightStaticPrereq + c.WeightEmergentPrereq + c.WeightStruggle +
		c.WeightProfile + c.WeightPastPerf + c.WeightDensity +
		c.WeightRecency + c.WeightPeerSuccess
	if math.Abs(sum-1.0) > 0.001 {
		return shared.NewDomainError("traversal", "config.validate", shared.ErrValidation,
			fmt.Sprintf("factor weights must sum to 1.0, got %.3f", sum))
	}
	if !(c.BlockedBelow < c.ConsiderBelow && c.ConsiderBelow < c.CautionBelow && c.CautionBelow < c.AccelerateAbove) {
		return shared.NewDomainError("traversal", "config.validate", shared.ErrValidation,
			"recommendation thresholds must be strictly increasing")
	}
	if c.MasteryBar <= 0 || c.MasteryBar > 1 {
		return shared.NewDomainError("traversal", "config.validate", shared.ErrValidation,
			"mastery bar must be in (0,1]")
	}
	return nil
}

// Scorer вычисляет персональную оценку доступности узла.
type Scorer struct {
	cfg   ScorerConfig
	clock shared.Clock
}

// NewScorer создаёт Scorer с валидной конфигурацией.
func NewScorer(cfg ScorerConfig, clock shared.Clock) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Scorer{cfg: cfg, clock: clock}, nil
}

// Score вычисляет оценку узла для ученика. Чистая функция: не мутирует
// входы и не обращается к внешним источникам. cur может быть nil -
// тогда оценка строится только на статических факторах.
func (s *Scorer) Score(node Node, profile *learner.Profile, cur *collective.EmergentCurriculum, state LearnerState) Score {
	// Уже освоенный узел пропускаем до вычисления факторов.
	if perf, ok := state.Performance[node.ChapterID]; ok && state.IsCompleted(node.ChapterID) && perf >= s.cfg.MasteryBar {
		return Score{
			NodeID: node.ID,
			Score:  1.0,
			Factors: []Factor{{
				Type:        FactorPastPerformance,
				Value:       perf,
				Description: fmt.Sprintf("chapter %s already mastered (%.2f)", node.ChapterID, perf),
			}},
			Recommendation:     RecommendSkip,
			PredictedStruggle:  0,
			StruggleConfidence: 1.0,
			StaticOnly:         cur == nil || cur.IsEmpty(),
		}
	}

	staticOnly := cur == nil || cur.IsEmpty()
	unmet := state.UnmetPrereqs(node)

	factors := make([]Factor, 0, 8)
	factors = append(factors, s.staticPrereqFactor(node, state, unmet))
	if f, ok := s.profileFactor(node, profile); ok {
		factors = append(factors, f)
	}
	if f, ok := s.pastPerformanceFactor(state); ok {
		factors = append(factors, f)
	}
	if f, ok := s.densityFactor(node, profile); ok {
		factors = append(factors, f)
	}
	if f, ok := s.recencyFactor(node, state); ok {
		factors = append(factors, f)
	}
	if !staticOnly {
		if f, ok := s.emergentPrereqFactor(node, cur, state); ok {
			factors = append(factors, f)
		}
		if f, ok := s.struggleFactor(node, cur); ok {
			factors = append(factors, f)
		}
		if f, ok := s.peerSuccessFactor(node, cur); ok {
			factors = append(factors, f)
		}
	}

	score := s.weightedSum(factors)
	blocked := len(unmet) > 0

	confidence := s.struggleConfidence(cur, staticOnly)
	struggle := clamp01((1 - score) * (0.5 + 0.5*confidence))

	return Score{
		NodeID:             node.ID,
		Score:              score,
		Factors:            factors,
		Recommendation:     s.recommend(score, blocked, profile),
		PredictedStruggle:  struggle,
		StruggleConfidence: confidence,
		StaticOnly:         staticOnly,
	}
}

// weightedSum - взвешенная сумма присутствующих факторов. Веса
// отсутствующих факторов перераспределяются пропорционально, чтобы
// недостаток данных не занижал оценку сам по себе.
func (s *Scorer) weightedSum(factors []Factor) float64 {
	var sum, weightTotal float64
	for _, f := range factors {
		w := s.weightOf(f.Type)
		sum += f.Value * w
		weightTotal += w
	}
	if weightTotal == 0 {
		return 0
	}
	return clamp01(sum / weightTotal)
}

func (s *Scorer) weightOf(t FactorType) float64 {
	switch t {
	case FactorStaticPrerequisite:
		return s.cfg.WeightStaticPrereq
	case FactorEmergentPrerequisite:
		return s.cfg.WeightEmergentPrereq
	case FactorCollectiveStruggle:
		return s.cfg.WeightStruggle
	case FactorLearnerProfile:
		return s.cfg.WeightProfile
	case FactorPastPerformance:
		return s.cfg.WeightPastPerf
	case FactorContentDensity:
		return s.cfg.WeightDensity
	case FactorTimeSincePrereq:
		return s.cfg.WeightRecency
	case FactorPeerSuccess:
		return s.cfg.WeightPeerSuccess
	default:
		return 0
	}
}

// staticPrereqFactor - жёсткие пререквизиты. При любом незакрытом
// пререквизите значение зажимается ниже 0.4: блокировка всегда
// объяснима хотя бы одним пререквизитным фактором.
func (s *Scorer) staticPrereqFactor(node Node, state LearnerState, unmet []string) Factor {
	if len(node.StaticPrereqs) == 0 {
		return Factor{
			Type:        FactorStaticPrerequisite,
			Value:       1.0,
			Description: "no required prerequisites",
		}
	}
	met := len(node.StaticPrereqs) - len(unmet)
	fraction := float64(met) / float64(len(node.StaticPrereqs))
	if len(unmet) == 0 {
		return Factor{
			Type:        FactorStaticPrerequisite,
			Value:       1.0,
			Description: "all required prerequisites completed",
		}
	}
	return Factor{
		Type:        FactorStaticPrerequisite,
		Value:       0.39 * fraction,
		Description: fmt.Sprintf("%d of %d required prerequisites missing", len(unmet), len(node.StaticPrereqs)),
	}
}

// emergentPrereqFactor - неявные пререквизиты из коллективного знания.
// Учитываются только достаточно уверенные рёбра.
func (s *Scorer) emergentPrereqFactor(node Node, cur *collective.EmergentCurriculum, state LearnerState) (Factor, bool) {
	prereqs := cur.PrereqFor(node.ChapterID)
	var weighted, confTotal float64
	var considered int
	for _, p := range prereqs {
		if p.Confidence < s.cfg.MinPrereqConfidence {
			continue
		}
		considered++
		met := 1.0
		if !state.IsCompleted(p.PrerequisiteChapterID) {
			met = 1.0 - p.Strength
		}
		weighted += met * p.Confidence
		confTotal += p.Confidence
	}
	if considered == 0 {
		return Factor{}, false
	}
	return Factor{
		Type:        FactorEmergentPrerequisite,
		Value:       clamp01(weighted / confTotal),
		Description: fmt.Sprintf("%d discovered prerequisites considered", considered),
	}, true
}

// struggleFactor - инверсия популяционного затруднения в узле.
func (s *Scorer) struggleFactor(node Node, cur *collective.EmergentCurriculum) (Factor, bool) {
	var worst float64
	if node.SectionID != "" {
		sp, ok := cur.StruggleAt(node.ChapterID, node.SectionID)
		if !ok {
			return Factor{}, false
		}
		worst = sp.Severity
	} else {
		worst = cur.ChapterStruggle(node.ChapterID)
		if worst == 0 {
			return Factor{}, false
		}
	}
	return Factor{
		Type:        FactorCollectiveStruggle,
		Value:       clamp01(1 - worst),
		Description: fmt.Sprintf("peak cohort struggle severity %.2f", worst),
	}, true
}

// profileFactor - соответствие узла профилю: насколько сложность
// посильна при текущей уверенности и точности ученика.
func (s *Scorer) profileFactor(node Node, profile *learner.Profile) (Factor, bool) {
	if profile == nil {
		return Factor{}, false
	}
	skill := 0.6*profile.Signals.QuizAccuracy + 0.4*confidenceLevel(profile.Confidence)
	gap := node.Difficulty - skill
	value := 1.0
	if gap > 0 {
		value = clamp01(1 - gap*1.5)
	}
	return Factor{
		Type:        FactorLearnerProfile,
		Value:       value,
		Description: fmt.Sprintf("difficulty %.2f vs estimated skill %.2f", node.Difficulty, skill),
	}, true
}

func confidenceLevel(c learner.Confidence) float64 {
	switch c {
	case learner.ConfidenceExpert:
		return 1.0
	case learner.ConfidenceHigh:
		return 0.75
	case learner.ConfidenceModerate:
		return 0.5
	default:
		return 0.25
	}
}

// pastPerformanceFactor - средний результат по уже завершённым главам.
func (s *Scorer) pastPerformanceFactor(state LearnerState) (Factor, bool) {
	if len(state.Performance) == 0 {
		return Factor{}, false
	}
	keys := make([]string, 0, len(state.Performance))
	for k := range state.Performance {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sum float64
	for _, k := range keys {
		sum += state.Performance[k]
	}
	avg := sum / float64(len(keys))
	return Factor{
		Type:        FactorPastPerformance,
		Value:       clamp01(avg),
		Description: fmt.Sprintf("average result %.2f across %d chapters", avg, len(keys)),
	}, true
}

// densityFactor - плотность материала, смягчённая темпом ученика:
// быстрый темп лучше переносит плотный контент.
func (s *Scorer) densityFactor(node Node, profile *learner.Profile) (Factor, bool) {
	if node.ContentDensity <= 0 {
		return Factor{}, false
	}
	tolerance := 0.5
	if profile != nil {
		switch profile.Pace {
		case learner.PaceFast:
			tolerance = 0.8
		case learner.PaceSlow:
			tolerance = 0.3
		}
	}
	value := clamp01(1 - node.ContentDensity*(1-tolerance))
	return Factor{
		Type:        FactorContentDensity,
		Value:       value,
		Description: fmt.Sprintf("density %.2f at pace tolerance %.2f", node.ContentDensity, tolerance),
	}, true
}

// recencyFactor - свежесть последнего завершённого пререквизита:
// давно пройденный материал забывается.
func (s *Scorer) recencyFactor(node Node, state LearnerState) (Factor, bool) {
	var newest time.Time
	for _, p := range node.StaticPrereqs {
		if t, ok := state.CompletedAt(p); ok && t.After(newest) {
			newest = t
		}
	}
	if newest.IsZero() {
		return Factor{}, false
	}
	days := s.clock.Now().Sub(newest).Hours() / 24
	if days < 0 {
		days = 0
	}
	// Линейное остывание от 1.0 до 0.3 на горизонте PrereqDecayDays.
	value := 1.0 - 0.7*math.Min(days/s.cfg.PrereqDecayDays, 1.0)
	return Factor{
		Type:        FactorTimeSincePrereq,
		Value:       value,
		Description: fmt.Sprintf("freshest prerequisite completed %.0f days ago", days),
	}, true
}

// peerSuccessFactor - успешность когорты на путях, проходящих через главу.
func (s *Scorer) peerSuccessFactor(node Node, cur *collective.EmergentCurriculum) (Factor, bool) {
	var rateSum float64
	var hits int
	for _, p := range cur.OptimalPaths {
		for _, ch := range p.ChapterSequence {
			if ch == node.ChapterID {
				rateSum += p.Metrics.CompletionRate
				hits++
				break
			}
		}
	}
	if hits == 0 {
		return Factor{}, false
	}
	return Factor{
		Type:        FactorPeerSuccess,
		Value:       clamp01(rateSum / float64(hits)),
		Description: fmt.Sprintf("chapter appears on %d successful peer paths", hits),
	}, true
}

func (s *Scorer) struggleConfidence(cur *collective.EmergentCurriculum, staticOnly bool) float64 {
	if staticOnly {
		return 0.3
	}
	return clamp01(0.3 + 0.7*cur.HealthMetrics.OverallConfidence)
}

// recommend отображает оценку в рекомендацию. Нарушенный жёсткий
// пререквизит блокирует независимо от итоговой суммы; без нарушения
// blocked недостижим - низкая сумма ведёт в consider_prerequisites.
func (s *Scorer) recommend(score float64, hardViolation bool, profile *learner.Profile) Recommendation {
	switch {
	case hardViolation:
		return RecommendBlocked
	case score < s.cfg.ConsiderBelow:
		return RecommendConsiderPrereqs
	case score < s.cfg.CautionBelow:
		return RecommendProceedWithCaution
	case score < s.cfg.AccelerateAbove:
		return RecommendProceed
	default:
		if profile != nil && profile.IsHighPerformer() {
			return RecommendAccelerate
		}
		return RecommendProceed
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
