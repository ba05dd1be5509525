package traversal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/collective"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/learner"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
)

var scorerInstant = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(DefaultScorerConfig(), shared.FixedClock{Instant: scorerInstant})
	require.NoError(t, err)
	return s
}

func strongProfile() *learner.Profile {
	p := learner.NewProfile("ln-1", "go-basics")
	p.Pace = learner.PaceFast
	p.Confidence = learner.ConfidenceHigh
	p.Signals.QuizAccuracy = 0.9
	return p
}

func richCurriculum() *collective.EmergentCurriculum {
	return &collective.EmergentCurriculum{
		Version:     3,
		GeneratedAt: scorerInstant.Add(-time.Hour),
		ImplicitPrerequisites: []collective.ImplicitPrerequisite{
			{
				PrerequisiteChapterID: "pointers",
				DependentChapterID:    "interfaces",
				Confidence:            0.7,
				Strength:              0.6,
			},
		},
		StrugglePoints: []collective.StrugglePoint{
			{ChapterID: "interfaces", SectionID: "type-assertions", Severity: 0.8, AffectedPercentage: 0.6},
		},
		OptimalPaths: []collective.OptimalPath{
			{
				ID:              "path-1",
				ChapterSequence: []string{"pointers", "interfaces"},
				LearnerCount:    9,
				Metrics:         collective.PathMetrics{CompletionRate: 0.85, AvgCompletionTimeMinutes: 120},
			},
		},
		HealthMetrics: collective.HealthMetrics{TotalLearners: 40, OverallConfidence: 0.66},
	}
}

func TestScorer_UnmetHardPrereqForcesBlocked(t *testing.T) {
	s := newTestScorer(t)
	node := Node{
		ID:            "interfaces/intro",
		ChapterID:     "interfaces",
		SectionID:     "intro",
		Difficulty:    0.1,
		StaticPrereqs: []string{"pointers"},
	}
	// Всё остальное максимально благоприятно: сильный профиль,
	// высокие прошлые результаты, свежий снимок.
	state := LearnerState{
		CompletedChapters: map[string]time.Time{"basics": scorerInstant.Add(-24 * time.Hour)},
		Performance:       map[string]float64{"basics": 0.95},
	}

	score := s.Score(node, strongProfile(), richCurriculum(), state)

	assert.Equal(t, RecommendBlocked, score.Recommendation)
	f, ok := score.Factor(FactorStaticPrerequisite)
	require.True(t, ok)
	assert.Less(t, f.Value, 0.4)
}

func TestScorer_BlockedOnlyWithUnmetHardPrereq(t *testing.T) {
	s := newTestScorer(t)
	// Пререквизиты закрыты, но все прочие сигналы плохие: рекомендация
	// не должна опуститься ниже consider_prerequisites.
	weak := learner.NewProfile("ln-2", "go-basics")
	weak.Confidence = learner.ConfidenceLow
	weak.Signals.QuizAccuracy = 0.1
	node := Node{
		ID:             "generics/constraints",
		ChapterID:      "generics",
		SectionID:      "constraints",
		Difficulty:     1.0,
		ContentDensity: 1.0,
		StaticPrereqs:  []string{"interfaces"},
	}
	state := LearnerState{
		CompletedChapters: map[string]time.Time{"interfaces": scorerInstant.Add(-200 * 24 * time.Hour)},
		Performance:       map[string]float64{"interfaces": 0.2},
	}

	score := s.Score(node, weak, nil, state)

	assert.NotEqual(t, RecommendBlocked, score.Recommendation)
	assert.GreaterOrEqual(t, score.Score, 0.0)
	assert.LessOrEqual(t, score.Score, 1.0)
}

func TestScorer_MasteredChapterResolvesToSkip(t *testing.T) {
	s := newTestScorer(t)
	node := Node{ID: "basics/vars", ChapterID: "basics", SectionID: "vars"}
	state := LearnerState{
		CompletedChapters: map[string]time.Time{"basics": scorerInstant.Add(-time.Hour)},
		Performance:       map[string]float64{"basics": 0.95},
	}

	score := s.Score(node, strongProfile(), richCurriculum(), state)

	assert.Equal(t, RecommendSkip, score.Recommendation)
	assert.Equal(t, 1.0, score.Score)
	assert.Zero(t, score.PredictedStruggle)
}

func TestScorer_NilCurriculumDegradesToStatic(t *testing.T) {
	s := newTestScorer(t)
	node := Node{ID: "interfaces/intro", ChapterID: "interfaces", SectionID: "intro", Difficulty: 0.5}
	state := LearnerState{}

	score := s.Score(node, strongProfile(), nil, state)

	assert.True(t, score.StaticOnly)
	for _, f := range score.Factors {
		assert.NotEqual(t, FactorEmergentPrerequisite, f.Type)
		assert.NotEqual(t, FactorCollectiveStruggle, f.Type)
		assert.NotEqual(t, FactorPeerSuccess, f.Type)
	}
	assert.InDelta(t, 0.3, score.StruggleConfidence, 0.001)
}

func TestScorer_CollectiveFactorsPresentWithSnapshot(t *testing.T) {
	s := newTestScorer(t)
	node := Node{
		ID:        "interfaces/type-assertions",
		ChapterID: "interfaces",
		SectionID: "type-assertions",
	}
	state := LearnerState{}

	score := s.Score(node, strongProfile(), richCurriculum(), state)

	assert.False(t, score.StaticOnly)
	struggle, ok := score.Factor(FactorCollectiveStruggle)
	require.True(t, ok)
	assert.InDelta(t, 0.2, struggle.Value, 0.001)

	emergent, ok := score.Factor(FactorEmergentPrerequisite)
	require.True(t, ok)
	// Неявный пререквизит не закрыт: значение 1 - strength.
	assert.InDelta(t, 0.4, emergent.Value, 0.001)

	peer, ok := score.Factor(FactorPeerSuccess)
	require.True(t, ok)
	assert.InDelta(t, 0.85, peer.Value, 0.001)
}

func TestScorer_LowConfidencePrereqIgnored(t *testing.T) {
	s := newTestScorer(t)
	cur := richCurriculum()
	cur.ImplicitPrerequisites[0].Confidence = 0.1
	node := Node{ID: "interfaces/intro", ChapterID: "interfaces", SectionID: "intro"}

	score := s.Score(node, strongProfile(), cur, LearnerState{})

	_, ok := score.Factor(FactorEmergentPrerequisite)
	assert.False(t, ok)
}

func TestScorer_HighPerformerAccelerates(t *testing.T) {
	s := newTestScorer(t)
	node := Node{ID: "basics/intro", ChapterID: "basics", SectionID: "intro", Difficulty: 0.2}
	state := LearnerState{
		Performance: map[string]float64{"warmup": 0.95},
	}

	score := s.Score(node, strongProfile(), nil, state)

	require.GreaterOrEqual(t, score.Score, 0.85)
	assert.Equal(t, RecommendAccelerate, score.Recommendation)
}

func TestScorer_ModerateProfileNeverAccelerates(t *testing.T) {
	s := newTestScorer(t)
	node := Node{ID: "basics/intro", ChapterID: "basics", SectionID: "intro", Difficulty: 0.1}
	state := LearnerState{Performance: map[string]float64{"warmup": 0.95}}

	score := s.Score(node, learner.NewProfile("ln-3", "go-basics"), nil, state)

	assert.NotEqual(t, RecommendAccelerate, score.Recommendation)
}

func TestScorer_Deterministic(t *testing.T) {
	s := newTestScorer(t)
	node := Node{
		ID:             "interfaces/type-assertions",
		ChapterID:      "interfaces",
		SectionID:      "type-assertions",
		Difficulty:     0.6,
		ContentDensity: 0.5,
		StaticPrereqs:  []string{"pointers"},
	}
	state := LearnerState{
		CompletedChapters: map[string]time.Time{"pointers": scorerInstant.Add(-48 * time.Hour)},
		Performance:       map[string]float64{"pointers": 0.7, "basics": 0.8},
	}

	first := s.Score(node, strongProfile(), richCurriculum(), state)
	second := s.Score(node, strongProfile(), richCurriculum(), state)

	assert.Equal(t, first, second)
}

func TestScorerConfig_RejectsBadWeights(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.WeightStruggle += 0.2

	_, err := NewScorer(cfg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestScorerConfig_RejectsUnorderedThresholds(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.CautionBelow = cfg.ConsiderBelow

	_, err := NewScorer(cfg, nil)
	assert.Error(t, err)
}
