package pathway

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/collective"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/learner"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/traversal"
)

// ══════════════════════════════════════════════════════════════════════════════
// PATH RECOMMENDER
// Строит персональный маршрут: ограниченная топологическая сортировка
// учебного графа с коллективным приором, когда он достаточно уверен,
// и деградацией до авторского порядка, когда данных нет.
// ══════════════════════════════════════════════════════════════════════════════

// RecommenderConfig - параметры построения маршрута.
type RecommenderConfig struct {
	// MinPriorConfidence - минимальная общая уверенность снимка,
	// при которой коллективный приор влияет на порядок.
	MinPriorConfidence float64

	// CheckpointStruggle - предсказанное затруднение, выше которого
	// после узла вставляется контрольная точка.
	CheckpointStruggle float64

	// FastPaceFactor и SlowPaceFactor - поправки ожидаемого времени
	// под темп ученика.
	FastPaceFactor float64
	SlowPaceFactor float64
}

// DefaultRecommenderConfig возвращает значения по умолчанию.
func DefaultRecommenderConfig() RecommenderConfig {
	return RecommenderConfig{
		MinPriorConfidence: 0.4,
		CheckpointStruggle: 0.6,
		FastPaceFactor:     0.8,
		SlowPaceFactor:     1.25,
	}
}

// Recommender строит адаптивные маршруты.
type Recommender struct {
	cfg   RecommenderConfig
	clock shared.Clock
}

// NewRecommender создаёт Recommender.
func NewRecommender(cfg RecommenderConfig, clock shared.Clock) *Recommender {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Recommender{cfg: cfg, clock: clock}
}

// Recommend строит маршрут для ученика. scores - проходимость по узлам
// (ключ - ID узла); cur может быть nil. Жёсткие рёбра соблюдаются
// всегда; невалидный граф - ошибка ещё на этапе NewGraph, но порядок
// дополнительно перепроверяется.
func (r *Recommender) Recommend(g *Graph, scores map[string]traversal.Score, profile *learner.Profile, cur *collective.EmergentCurriculum) (*AdaptivePath, error) {
	if g == nil {
		return nil, shared.ErrEmptyGraph
	}

	prior := r.collectivePrior(g, cur)
	derivation := r.deriveKind(prior, profile)

	order, err := g.TopologicalOrder(r.pickFunc(g, scores, prior))
	if err != nil {
		return nil, err
	}

	nodes := r.buildNodes(g, order, scores, profile)
	path := &AdaptivePath{
		ID:          pathID(learnerIDOf(profile), nodes),
		LearnerID:   learnerIDOf(profile),
		Nodes:       nodes,
		Derivation:  derivation,
		GeneratedAt: r.clock.Now(),
	}
	if cur != nil {
		path.CurriculumVersion = cur.Version
	}
	path.Checkpoints = r.checkpoints(nodes)
	path.Metrics = r.metrics(nodes, path.Checkpoints)
	path.Alternatives = r.alternatives(g, scores, profile, path)
	return path, nil
}

// collectivePrior выбирает популярнейший успешный путь, покрывающий
// главы графа, если снимок достаточно уверен.
func (r *Recommender) collectivePrior(g *Graph, cur *collective.EmergentCurriculum) []string {
	if cur == nil || cur.IsEmpty() || cur.HealthMetrics.OverallConfidence < r.cfg.MinPriorConfidence {
		return nil
	}
	known := make(map[string]struct{})
	for _, ch := range g.Chapters() {
		known[ch] = struct{}{}
	}
	var best *collective.OptimalPath
	for i := range cur.OptimalPaths {
		p := &cur.OptimalPaths[i]
		covered := true
		for _, ch := range p.ChapterSequence {
			if _, ok := known[ch]; !ok {
				covered = false
				break
			}
		}
		if !covered {
			continue
		}
		if best == nil || p.LearnerCount > best.LearnerCount {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	return best.ChapterSequence
}

func (r *Recommender) deriveKind(prior []string, profile *learner.Profile) Derivation {
	switch {
	case prior != nil && profile != nil:
		return DerivationHybrid
	case prior != nil:
		return DerivationCollective
	case profile != nil:
		return DerivationPersonalized
	default:
		return DerivationStatic
	}
}

// pickFunc возвращает правило выбора среди готовых глав: сначала
// позиция в коллективном приоре, затем персональная цель (максимум
// предсказанной успешности при минимальном времени), затем лексикографика.
func (r *Recommender) pickFunc(g *Graph, scores map[string]traversal.Score, prior []string) func([]string) string {
	priorPos := make(map[string]int, len(prior))
	for i, ch := range prior {
		priorPos[ch] = i
	}
	return func(ready []string) string {
		best := ready[0]
		bestKey := r.chapterKey(g, scores, priorPos, best)
		for _, ch := range ready[1:] {
			if key := r.chapterKey(g, scores, priorPos, ch); key < bestKey {
				best, bestKey = ch, key
			}
		}
		return best
	}
}

// chapterKey - сортировочный ключ главы: чем меньше, тем раньше глава.
func (r *Recommender) chapterKey(g *Graph, scores map[string]traversal.Score, priorPos map[string]int, ch string) string {
	pos, inPrior := priorPos[ch]
	if !inPrior {
		pos = len(priorPos) + 1000
	}
	objective := r.chapterObjective(g, scores, ch)
	// Ключ лексикографический: позиция в приоре, затем цель, затем ID.
	return fmt.Sprintf("%06d|%09.4f|%s", pos, 1000-objective, ch)
}

// chapterObjective - средняя предсказанная успешность узлов главы
// минус штраф за время. Выше - предпочтительнее.
func (r *Recommender) chapterObjective(g *Graph, scores map[string]traversal.Score, ch string) float64 {
	nodes := g.ChapterNodes(ch)
	if len(nodes) == 0 {
		return 0
	}
	var success, minutes float64
	for _, n := range nodes {
		success += successRate(scores[n.ID])
		minutes += n.DurationMinutes
	}
	success /= float64(len(nodes))
	return success*100 - minutes*0.1
}

func (r *Recommender) buildNodes(g *Graph, order []string, scores map[string]traversal.Score, profile *learner.Profile) []LivingNode {
	paceFactor := 1.0
	if profile != nil {
		switch profile.Pace {
		case learner.PaceFast:
			paceFactor = r.cfg.FastPaceFactor
		case learner.PaceSlow:
			paceFactor = r.cfg.SlowPaceFactor
		}
	}
	var out []LivingNode
	for _, ch := range order {
		for _, n := range g.ChapterNodes(ch) {
			sc := scores[n.ID]
			out = append(out, LivingNode{
				Node:                     n,
				Traversability:           sc,
				PredictedDurationMinutes: n.DurationMinutes * paceFactor,
				PredictedSuccessRate:     successRate(sc),
				XPReward:                 n.XPReward,
			})
		}
	}
	return out
}

// checkpoints вставляет контрольные точки: узел с максимальным XP
// и узлы с высоким предсказанным затруднением.
func (r *Recommender) checkpoints(nodes []LivingNode) []PathCheckpoint {
	var out []PathCheckpoint
	maxXP, maxIdx := 0, -1
	for i, n := range nodes {
		if n.XPReward > maxXP {
			maxXP, maxIdx = n.XPReward, i
		}
	}
	for i, n := range nodes {
		switch {
		case i == maxIdx:
			out = append(out, PathCheckpoint{
				NodeID:      n.Node.ID,
				Reason:      CheckpointHighValue,
				Description: fmt.Sprintf("validate the %d XP milestone", n.XPReward),
			})
		case n.Traversability.PredictedStruggle > r.cfg.CheckpointStruggle:
			out = append(out, PathCheckpoint{
				NodeID:      n.Node.ID,
				Reason:      CheckpointHighStruggle,
				Description: "extra validation where the cohort struggles",
			})
		}
	}
	return out
}

func (r *Recommender) metrics(nodes []LivingNode, checkpoints []PathCheckpoint) PathMetrics {
	var m PathMetrics
	var success float64
	for _, n := range nodes {
		m.EstimatedDurationMinutes += n.PredictedDurationMinutes
		m.TotalXP += n.XPReward
		success += n.PredictedSuccessRate
	}
	if len(nodes) > 0 {
		m.PredictedCompletionRate = success / float64(len(nodes))
	}
	m.ValidationCount = len(checkpoints)
	return m
}

// alternatives строит варианты с ослабленной целью: чисто на скорость
// и чисто на минимальную сложность, с дельтами против основного пути.
func (r *Recommender) alternatives(g *Graph, scores map[string]traversal.Score, profile *learner.Profile, primary *AdaptivePath) []Alternative {
	objectives := []struct {
		reason string
		key    func(ch string) float64 // меньше - раньше
	}{
		{
			reason: "optimized for speed",
			key: func(ch string) float64 {
				var minutes float64
				for _, n := range g.ChapterNodes(ch) {
					minutes += n.DurationMinutes
				}
				return minutes
			},
		},
		{
			reason: "optimized for lowest difficulty",
			key: func(ch string) float64 {
				nodes := g.ChapterNodes(ch)
				if len(nodes) == 0 {
					return 0
				}
				var d float64
				for _, n := range nodes {
					d += n.Difficulty
				}
				return d / float64(len(nodes))
			},
		},
	}

	primaryDifficulty := avgDifficulty(primary.Nodes)
	var out []Alternative
	for _, obj := range objectives {
		order, err := g.TopologicalOrder(func(ready []string) string {
			best := ready[0]
			bestKey := obj.key(best)
			for _, ch := range ready[1:] {
				if k := obj.key(ch); k < bestKey || (k == bestKey && ch < best) {
					best, bestKey = ch, k
				}
			}
			return best
		})
		if err != nil {
			continue
		}
		nodes := r.buildNodes(g, order, scores, profile)
		alt := Alternative{
			PathID:          pathID(primary.LearnerID+"|"+obj.reason, nodes),
			Reason:          obj.reason,
			DifficultyDelta: avgDifficulty(nodes) - primaryDifficulty,
			Nodes:           nodeIDs(nodes),
		}
		var duration float64
		for _, n := range nodes {
			duration += n.PredictedDurationMinutes
		}
		alt.DurationDelta = duration - primary.Metrics.EstimatedDurationMinutes
		out = append(out, alt)
	}
	return out
}

func successRate(sc traversal.Score) float64 {
	// Нулевая оценка означает отсутствие данных по узлу, не провал.
	if sc.NodeID == "" {
		return 0.5
	}
	return 0.4 + 0.6*sc.Score
}

func avgDifficulty(nodes []LivingNode) float64 {
	if len(nodes) == 0 {
		return 0
	}
	var d float64
	for _, n := range nodes {
		d += n.Node.Difficulty
	}
	return d / float64(len(nodes))
}

func nodeIDs(nodes []LivingNode) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.Node.ID
	}
	return ids
}

func learnerIDOf(p *learner.Profile) string {
	if p == nil {
		return ""
	}
	return p.LearnerID
}

func pathID(seed string, nodes []LivingNode) string {
	h := fnv.New64a()
	h.Write([]byte(seed))
	h.Write([]byte(strings.Join(nodeIDs(nodes), ">")))
	return fmt.Sprintf("apath-%016x", h.Sum64())
}
