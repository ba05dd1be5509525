package pathway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/collective"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/learner"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/traversal"
)

var pathInstant = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func courseNodes() []traversal.Node {
	return []traversal.Node{
		{ID: "basics/vars", ChapterID: "basics", SectionID: "vars", DurationMinutes: 20, XPReward: 50, Difficulty: 0.2},
		{ID: "basics/funcs", ChapterID: "basics", SectionID: "funcs", DurationMinutes: 30, XPReward: 60, Difficulty: 0.3},
		{ID: "pointers/intro", ChapterID: "pointers", SectionID: "intro", DurationMinutes: 40, XPReward: 80, Difficulty: 0.5, StaticPrereqs: []string{"basics"}},
		{ID: "interfaces/intro", ChapterID: "interfaces", SectionID: "intro", DurationMinutes: 45, XPReward: 120, Difficulty: 0.7, StaticPrereqs: []string{"basics"}},
	}
}

func newTestRecommender() *Recommender {
	return NewRecommender(DefaultRecommenderConfig(), shared.FixedClock{Instant: pathInstant})
}

func TestNewGraph_RejectsCycle(t *testing.T) {
	nodes := []traversal.Node{
		{ID: "a/1", ChapterID: "a", StaticPrereqs: []string{"b"}},
		{ID: "b/1", ChapterID: "b", StaticPrereqs: []string{"a"}},
	}

	_, err := NewGraph(nodes)

	require.Error(t, err)
	assert.True(t, shared.IsGraphError(err))
	assert.ErrorIs(t, err, shared.ErrGraphCycle)
}

func TestNewGraph_RejectsSelfPrereq(t *testing.T) {
	nodes := []traversal.Node{
		{ID: "a/1", ChapterID: "a", StaticPrereqs: []string{"a"}},
	}

	_, err := NewGraph(nodes)

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrGraphContradiction)
}

func TestNewGraph_RejectsUnknownPrereq(t *testing.T) {
	nodes := []traversal.Node{
		{ID: "a/1", ChapterID: "a", StaticPrereqs: []string{"ghost"}},
	}

	_, err := NewGraph(nodes)

	require.Error(t, err)
	assert.True(t, shared.IsGraphError(err))
}

func TestNewGraph_RejectsEmpty(t *testing.T) {
	_, err := NewGraph(nil)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestRecommend_HardEdgesAlwaysRespected(t *testing.T) {
	g, err := NewGraph(courseNodes())
	require.NoError(t, err)

	r := newTestRecommender()
	path, err := r.Recommend(g, nil, learner.NewProfile("ln-1", "go-basics"), nil)
	require.NoError(t, err)

	ids := path.NodeIDs()
	basicsLast := indexOf(ids, "basics/funcs")
	assert.Less(t, basicsLast, indexOf(ids, "pointers/intro"))
	assert.Less(t, basicsLast, indexOf(ids, "interfaces/intro"))
}

func TestRecommend_StaticDerivationWithoutCollectiveData(t *testing.T) {
	g, err := NewGraph(courseNodes())
	require.NoError(t, err)

	r := newTestRecommender()
	path, err := r.Recommend(g, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, DerivationStatic, path.Derivation)
	assert.Zero(t, path.CurriculumVersion)
}

func TestRecommend_LowConfidenceSnapshotFallsBackToStatic(t *testing.T) {
	g, err := NewGraph(courseNodes())
	require.NoError(t, err)

	cur := &collective.EmergentCurriculum{
		Version: 7,
		OptimalPaths: []collective.OptimalPath{
			{ID: "p1", ChapterSequence: []string{"basics", "interfaces", "pointers"}, LearnerCount: 12},
		},
		HealthMetrics: collective.HealthMetrics{TotalLearners: 6, OverallConfidence: 0.1},
	}

	r := newTestRecommender()
	path, err := r.Recommend(g, nil, nil, cur)
	require.NoError(t, err)

	// Снимок есть, но приор ниже порога уверенности: порядок статический.
	assert.Equal(t, DerivationStatic, path.Derivation)
	assert.Equal(t, int64(7), path.CurriculumVersion)
}

func TestRecommend_CollectivePriorDrivesChapterOrder(t *testing.T) {
	g, err := NewGraph(courseNodes())
	require.NoError(t, err)

	cur := &collective.EmergentCurriculum{
		Version: 9,
		OptimalPaths: []collective.OptimalPath{
			{ID: "p1", ChapterSequence: []string{"basics", "interfaces", "pointers"}, LearnerCount: 12,
				Metrics: collective.PathMetrics{CompletionRate: 0.9}},
		},
		HealthMetrics: collective.HealthMetrics{TotalLearners: 40, OverallConfidence: 0.7},
	}

	r := newTestRecommender()
	path, err := r.Recommend(g, nil, nil, cur)
	require.NoError(t, err)

	assert.Equal(t, DerivationCollective, path.Derivation)
	ids := path.NodeIDs()
	// Приор ставит interfaces раньше pointers, жёсткое ребро не мешает.
	assert.Less(t, indexOf(ids, "interfaces/intro"), indexOf(ids, "pointers/intro"))
}

func TestRecommend_HybridWithProfileAndPrior(t *testing.T) {
	g, err := NewGraph(courseNodes())
	require.NoError(t, err)

	cur := &collective.EmergentCurriculum{
		Version: 9,
		OptimalPaths: []collective.OptimalPath{
			{ID: "p1", ChapterSequence: []string{"basics", "pointers", "interfaces"}, LearnerCount: 12},
		},
		HealthMetrics: collective.HealthMetrics{TotalLearners: 40, OverallConfidence: 0.7},
	}
	profile := learner.NewProfile("ln-1", "go-basics")
	profile.Pace = learner.PaceFast

	r := newTestRecommender()
	path, err := r.Recommend(g, nil, profile, cur)
	require.NoError(t, err)

	assert.Equal(t, DerivationHybrid, path.Derivation)
	// Быстрый темп сокращает ожидаемое время каждого узла.
	assert.InDelta(t, 20*0.8, path.Nodes[0].PredictedDurationMinutes, 0.001)
}

func TestRecommend_CheckpointAtHighestXP(t *testing.T) {
	g, err := NewGraph(courseNodes())
	require.NoError(t, err)

	r := newTestRecommender()
	path, err := r.Recommend(g, nil, learner.NewProfile("ln-1", "go-basics"), nil)
	require.NoError(t, err)

	require.NotEmpty(t, path.Checkpoints)
	found := false
	for _, cp := range path.Checkpoints {
		if cp.NodeID == "interfaces/intro" && cp.Reason == CheckpointHighValue {
			found = true
		}
	}
	assert.True(t, found, "highest XP node must carry a checkpoint")
	assert.Equal(t, len(path.Checkpoints), path.Metrics.ValidationCount)
}

func TestRecommend_StruggleCheckpointFromScores(t *testing.T) {
	g, err := NewGraph(courseNodes())
	require.NoError(t, err)

	scores := map[string]traversal.Score{
		"pointers/intro": {NodeID: "pointers/intro", Score: 0.2, PredictedStruggle: 0.75},
	}

	r := newTestRecommender()
	path, err := r.Recommend(g, scores, learner.NewProfile("ln-1", "go-basics"), nil)
	require.NoError(t, err)

	found := false
	for _, cp := range path.Checkpoints {
		if cp.NodeID == "pointers/intro" && cp.Reason == CheckpointHighStruggle {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRecommend_AlternativesCarryDeltas(t *testing.T) {
	g, err := NewGraph(courseNodes())
	require.NoError(t, err)

	r := newTestRecommender()
	path, err := r.Recommend(g, nil, learner.NewProfile("ln-1", "go-basics"), nil)
	require.NoError(t, err)

	require.Len(t, path.Alternatives, 2)
	for _, alt := range path.Alternatives {
		assert.NotEmpty(t, alt.PathID)
		assert.NotEmpty(t, alt.Reason)
		assert.Len(t, alt.Nodes, len(path.Nodes))
	}
}

func TestRecommend_MetricsAggregateNodes(t *testing.T) {
	g, err := NewGraph(courseNodes())
	require.NoError(t, err)

	r := newTestRecommender()
	path, err := r.Recommend(g, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 310, path.Metrics.TotalXP)
	assert.InDelta(t, 135, path.Metrics.EstimatedDurationMinutes, 0.001)
	assert.InDelta(t, 0.5, path.Metrics.PredictedCompletionRate, 0.001)
}

func TestRecommend_Deterministic(t *testing.T) {
	g, err := NewGraph(courseNodes())
	require.NoError(t, err)

	r := newTestRecommender()
	first, err := r.Recommend(g, nil, learner.NewProfile("ln-1", "go-basics"), nil)
	require.NoError(t, err)
	second, err := r.Recommend(g, nil, learner.NewProfile("ln-1", "go-basics"), nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.NodeIDs(), second.NodeIDs())
}

func indexOf(xs []string, v string) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}
