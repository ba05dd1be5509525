package collective

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
)

var testInstant = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestAggregator() *Aggregator {
	return NewAggregator(DefaultAggregatorConfig()).WithClock(shared.FixedClock{Instant: testInstant})
}

// prereqOutcomes строит исходы главы "b": withN учеников с пройденной "a",
// withoutN - без неё, с заданными долями успеха.
func prereqOutcomes(withN int, withRate float64, withoutN int, withoutRate float64) []OutcomeRecord {
	var out []OutcomeRecord
	withSuccess := int(withRate * float64(withN))
	for i := 0; i < withN; i++ {
		out = append(out, OutcomeRecord{
			LearnerID:       fmt.Sprintf("with-%03d", i),
			ChapterID:       "b",
			CompletedBefore: []string{"a"},
			Success:         i < withSuccess,
			CompletedAt:     testInstant,
			DurationMinutes: 30,
		})
	}
	withoutSuccess := int(withoutRate * float64(withoutN))
	for i := 0; i < withoutN; i++ {
		out = append(out, OutcomeRecord{
			LearnerID:       fmt.Sprintf("without-%03d", i),
			ChapterID:       "b",
			Success:         i < withoutSuccess,
			CompletedAt:     testInstant,
			DurationMinutes: 30,
		})
	}
	return out
}

func TestAggregator_EmptyPopulationYieldsZeroConfidence(t *testing.T) {
	agg := newTestAggregator()

	cur := agg.Aggregate(nil, 1)
	require.NotNil(t, cur)
	assert.Equal(t, 0, cur.HealthMetrics.TotalLearners)
	assert.Equal(t, 0.0, cur.HealthMetrics.OverallConfidence)
	assert.Empty(t, cur.ImplicitPrerequisites)
	assert.Empty(t, cur.StrugglePoints)
	assert.Empty(t, cur.OptimalPaths)
	assert.Empty(t, cur.Recommendations)
	assert.True(t, cur.IsEmpty())
}

func TestAggregator_UndersampledPrereqNeverEmitted(t *testing.T) {
	agg := newTestAggregator()

	// 3 ученика с каждой стороны - ниже минимальной выборки.
	cur := agg.Aggregate(prereqOutcomes(3, 1.0, 3, 0.0), 1)
	assert.Empty(t, cur.ImplicitPrerequisites)
}

func TestAggregator_SmallEffectSizeNeverEmitted(t *testing.T) {
	agg := newTestAggregator()

	// 50/50 учеников, разница 2% - ниже минимального эффекта.
	cur := agg.Aggregate(prereqOutcomes(50, 0.80, 50, 0.78), 1)
	assert.Empty(t, cur.ImplicitPrerequisites)
}

func TestAggregator_SufficientEvidenceEmitsPrereq(t *testing.T) {
	agg := newTestAggregator()

	// 30/30 учеников, разница 25% - обязан эмититься.
	cur := agg.Aggregate(prereqOutcomes(30, 0.85, 30, 0.60), 1)
	require.Len(t, cur.ImplicitPrerequisites, 1)

	p := cur.ImplicitPrerequisites[0]
	assert.Equal(t, "a", p.PrerequisiteChapterID)
	assert.Equal(t, "b", p.DependentChapterID)
	assert.Equal(t, 30, p.Evidence.LearnersWithPrereq)
	assert.Equal(t, 30, p.Evidence.LearnersWithoutPrereq)
	assert.InDelta(t, 0.25, p.Evidence.EffectSize(), 0.02)
	assert.Greater(t, p.Confidence, 0.0)
	assert.LessOrEqual(t, p.Confidence, 1.0)
	assert.Greater(t, p.Strength, 0.0)
}

func TestAggregator_NegativeEffectIsNotAPrerequisite(t *testing.T) {
	agg := newTestAggregator()

	// Прошедшие "a" справляются хуже - это не пререквизит.
	cur := agg.Aggregate(prereqOutcomes(30, 0.50, 30, 0.85), 1)
	assert.Empty(t, cur.ImplicitPrerequisites)
}

func TestAggregator_Deterministic(t *testing.T) {
	agg := newTestAggregator()
	outcomes := append(prereqOutcomes(30, 0.85, 30, 0.60), struggleOutcomes(10, 0.9, 0.1)...)

	first := agg.Aggregate(outcomes, 7)
	second := agg.Aggregate(outcomes, 7)
	assert.Equal(t, first, second)
}

// struggleOutcomes строит n исходов главы "c" с секцией "c-s1"
// с заданными долями неудач и подсказок.
func struggleOutcomes(n int, failureRate, hintReliance float64) []OutcomeRecord {
	var out []OutcomeRecord
	for i := 0; i < n; i++ {
		out = append(out, OutcomeRecord{
			LearnerID:       fmt.Sprintf("strg-%03d", i),
			ChapterID:       "c",
			Success:         false,
			CompletedAt:     testInstant,
			DurationMinutes: 45,
			Sections: []SectionOutcome{
				{SectionID: "c-s1", FailureRate: failureRate, ReplayRate: 0.2, HintReliance: hintReliance},
			},
		})
	}
	return out
}

func TestAggregator_StrugglePointSeverityAndAffected(t *testing.T) {
	agg := newTestAggregator()

	cur := agg.Aggregate(struggleOutcomes(12, 0.9, 0.6), 1)
	require.NotEmpty(t, cur.StrugglePoints)

	s := cur.StrugglePoints[0]
	assert.Equal(t, "c", s.ChapterID)
	assert.Equal(t, "c-s1", s.SectionID)
	assert.Greater(t, s.Severity, 0.5)
	assert.LessOrEqual(t, s.Severity, 1.0)
	assert.Equal(t, 1.0, s.AffectedPercentage)
	assert.NotEmpty(t, s.CommonCauses)
}

func TestAggregator_SevereStruggleYieldsRecommendation(t *testing.T) {
	agg := newTestAggregator()

	cur := agg.Aggregate(struggleOutcomes(12, 1.0, 0.9), 1)
	require.NotEmpty(t, cur.Recommendations)

	// Пререквизита для "c" нет, значит рекомендация add_prerequisite.
	assert.Equal(t, RecommendAddPrerequisite, cur.Recommendations[0].Type)
	assert.Greater(t, cur.Recommendations[0].Priority, 0.0)
}

func TestAggregator_OptimalPathsClusterBySequence(t *testing.T) {
	agg := newTestAggregator()

	var outcomes []OutcomeRecord
	seq := []string{"a", "b", "c"}
	for i := 0; i < 6; i++ {
		for j, ch := range seq {
			outcomes = append(outcomes, OutcomeRecord{
				LearnerID:       fmt.Sprintf("path-%03d", i),
				ChapterID:       ch,
				Success:         true,
				CompletedAt:     testInstant.Add(time.Duration(j) * time.Hour),
				DurationMinutes: 20,
			})
		}
	}

	cur := agg.Aggregate(outcomes, 1)
	require.Len(t, cur.OptimalPaths, 1)

	p := cur.OptimalPaths[0]
	assert.Equal(t, seq, p.ChapterSequence)
	assert.Equal(t, 6, p.LearnerCount)
	assert.Equal(t, 1.0, p.Metrics.CompletionRate)
	assert.InDelta(t, 60.0, p.Metrics.AvgCompletionTimeMinutes, 0.01)
	assert.NotEmpty(t, p.ID)
}

func TestAggregator_MalformedRecordsAreSkipped(t *testing.T) {
	agg := newTestAggregator()

	outcomes := prereqOutcomes(30, 0.85, 30, 0.60)
	outcomes = append(outcomes, OutcomeRecord{ChapterID: "x"}) // нет learner_id

	cur := agg.Aggregate(outcomes, 1)
	assert.Equal(t, 60, cur.HealthMetrics.TotalLearners)
	require.Len(t, cur.ImplicitPrerequisites, 1)
}

func TestAggregator_VersionAndTimestampCarriedOnSnapshot(t *testing.T) {
	agg := newTestAggregator()

	cur := agg.Aggregate(nil, 42)
	assert.Equal(t, int64(42), cur.Version)
	assert.Equal(t, testInstant, cur.GeneratedAt)
}
