package pathway

import (
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/traversal"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADAPTIVE PATH
// Живой маршрут по учебному графу: упорядоченные узлы, обогащённые
// персональной проходимостью, контрольные точки и альтернативы.
// Маршрут - производное представление, пересчитывается при изменении
// профиля или коллективного снимка.
// ══════════════════════════════════════════════════════════════════════════════

// Derivation - источник, определивший порядок маршрута.
type Derivation string

const (
	// DerivationStatic - чисто авторский порядок, коллективных данных нет.
	DerivationStatic Derivation = "static"

	// DerivationCollective - порядок по популяционному оптимальному пути.
	DerivationCollective Derivation = "collective"

	// DerivationPersonalized - порядок по персональной проходимости.
	DerivationPersonalized Derivation = "personalized"

	// DerivationHybrid - коллективный приор, скорректированный профилем.
	DerivationHybrid Derivation = "hybrid"
)

// LivingNode - узел маршрута с предсказаниями для конкретного ученика.
type LivingNode struct {
	// Node - статические атрибуты узла.
	Node traversal.Node

	// Traversability - персональная оценка доступности.
	Traversability traversal.Score

	// PredictedDurationMinutes - ожидаемое время с поправкой на темп.
	PredictedDurationMinutes float64

	// PredictedSuccessRate - вероятность успешного прохождения [0,1].
	PredictedSuccessRate float64

	// XPReward - XP за завершение.
	XPReward int
}

// CheckpointReason - причина вставки контрольной точки.
type CheckpointReason string

const (
	CheckpointHighValue       CheckpointReason = "high_value"
	CheckpointHighStruggle    CheckpointReason = "high_struggle"
	CheckpointChapterBoundary CheckpointReason = "chapter_boundary"
)

// PathCheckpoint - точка валидации усвоения на маршруте.
type PathCheckpoint struct {
	// NodeID - узел, после которого стоит точка.
	NodeID string

	// Reason - причина вставки.
	Reason CheckpointReason

	// Description - пояснение для ученика.
	Description string
}

// PathMetrics - сводные метрики маршрута.
type PathMetrics struct {
	// EstimatedDurationMinutes - суммарное ожидаемое время.
	EstimatedDurationMinutes float64

	// TotalXP - суммарный XP маршрута.
	TotalXP int

	// PredictedCompletionRate - вероятность пройти маршрут целиком [0,1].
	PredictedCompletionRate float64

	// ValidationCount - число контрольных точек.
	ValidationCount int
}

// Alternative - альтернативный маршрут с дельтами относительно основного.
type Alternative struct {
	// PathID - идентификатор альтернативы.
	PathID string

	// Reason - чем альтернатива отличается по цели оптимизации.
	Reason string

	// DifficultyDelta - разница средней сложности с основным маршрутом.
	DifficultyDelta float64

	// DurationDelta - разница ожидаемого времени, минуты.
	DurationDelta float64

	// Nodes - порядок узлов альтернативы.
	Nodes []string
}

// AdaptivePath - персональный маршрут по учебному графу.
type AdaptivePath struct {
	// ID - детерминированный идентификатор маршрута.
	ID string

	// LearnerID - ученик, для которого построен маршрут.
	LearnerID string

	// Nodes - упорядоченные узлы.
	Nodes []LivingNode

	// Checkpoints - контрольные точки.
	Checkpoints []PathCheckpoint

	// Metrics - сводные метрики.
	Metrics PathMetrics

	// Alternatives - альтернативные маршруты.
	Alternatives []Alternative

	// Derivation - источник порядка.
	Derivation Derivation

	// CurriculumVersion - версия коллективного снимка, повлиявшего
	// на маршрут (0 для чисто статического).
	CurriculumVersion int64

	// GeneratedAt - время построения.
	GeneratedAt time.Time
}

// NodeIDs возвращает порядок узлов маршрута.
func (p *AdaptivePath) NodeIDs() []string {
	ids := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		ids[i] = n.Node.ID
	}
	return ids
}

// NextNode возвращает первый узел маршрута, не помеченный skip.
func (p *AdaptivePath) NextNode() (LivingNode, bool) {
	for _, n := range p.Nodes {
		if n.Traversability.Recommendation != traversal.RecommendSkip {
			return n, true
		}
	}
	return LivingNode{}, false
}
