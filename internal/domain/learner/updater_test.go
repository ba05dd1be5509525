package learner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/behavior"
)

func newUpdater(t *testing.T) *Updater {
	t.Helper()
	u, err := NewUpdater(DefaultUpdaterConfig())
	require.NoError(t, err)
	return u
}

func sectionAggregate(quizCorrect, quizIncorrect, hints int) *behavior.SectionAggregate {
	scope := behavior.Scope{
		LearnerID: "learner-1",
		CourseID:  "go-basics",
		ChapterID: "ch-01",
		SectionID: "ch-01-s1",
	}
	g := behavior.NewAggregator()
	tr := func(b bool) *bool { return &b }
	for i := 0; i < quizCorrect; i++ {
		_ = g.Record(behavior.NewEvent(behavior.KindQuizAttempt, scope, behavior.Payload{Correct: tr(true), Latency: 5 * time.Second}))
	}
	for i := 0; i < quizIncorrect; i++ {
		_ = g.Record(behavior.NewEvent(behavior.KindQuizAttempt, scope, behavior.Payload{Correct: tr(false), Latency: 20 * time.Second}))
	}
	for i := 0; i < hints; i++ {
		_ = g.Record(behavior.NewEvent(behavior.KindQuizHint, scope, behavior.Payload{}))
	}
	return g.Aggregate(scope.LearnerID, scope.SectionID)
}

func TestUpdater_RejectsInvalidAlpha(t *testing.T) {
	cfg := DefaultUpdaterConfig()
	cfg.Alpha = 0
	_, err := NewUpdater(cfg)
	assert.Error(t, err)

	cfg.Alpha = 1.5
	_, err = NewUpdater(cfg)
	assert.Error(t, err)
}

func TestUpdater_StyleWeightsAlwaysSumToOne(t *testing.T) {
	u := newUpdater(t)

	p := NewProfile("learner-1", "go-basics")
	aggs := []*behavior.SectionAggregate{
		sectionAggregate(5, 0, 0),
		sectionAggregate(1, 4, 3),
		sectionAggregate(0, 0, 0),
		sectionAggregate(2, 2, 1),
	}
	for _, agg := range aggs {
		p = u.Update(agg, p)
		assert.InDelta(t, 1.0, p.LearningStyle.Sum(), 0.01)
	}
}

func TestUpdater_SmoothingDampensSingleNoisySection(t *testing.T) {
	u := newUpdater(t)

	// Стабильно сильный профиль.
	p := NewProfile("learner-1", "go-basics")
	for i := 0; i < 6; i++ {
		p = u.Update(sectionAggregate(5, 0, 0), p)
	}
	before := p.Signals.QuizAccuracy
	require.Greater(t, before, 0.85)

	// Одна провальная секция не роняет профиль в пол.
	p = u.Update(sectionAggregate(0, 5, 4), p)
	assert.Greater(t, p.Signals.QuizAccuracy, 0.5)
	assert.Less(t, p.Signals.QuizAccuracy, before)
}

func TestUpdater_RepeatedUpdateConverges(t *testing.T) {
	u := newUpdater(t)

	agg := sectionAggregate(3, 1, 0)
	p := NewProfile("learner-1", "go-basics")

	var last float64
	for i := 0; i < 50; i++ {
		p = u.Update(agg, p)
		last = p.Signals.QuizAccuracy
	}
	// Сходится к точности агрегата (0.75), а не расходится.
	assert.InDelta(t, 0.75, last, 0.01)
	assert.True(t, p.Signals.QuizAccuracy >= 0 && p.Signals.QuizAccuracy <= 1)
}

func TestUpdater_ConfidenceTrendsToExpertOnPerfectSections(t *testing.T) {
	u := newUpdater(t)

	// 5 секций подряд: все ответы верные, ни одной подсказки.
	p := NewProfile("learner-1", "go-basics")
	for i := 0; i < 8; i++ {
		p = u.Update(sectionAggregate(5, 0, 0), p)
	}

	assert.True(t, p.Confidence.AtLeast(ConfidenceHigh),
		"confidence %q should be at least high", p.Confidence)
	assert.Greater(t, p.Signals.QuizAccuracy, 0.9)
	assert.Less(t, p.Signals.HintReliance, 0.1)
}

func TestUpdater_ConfidenceFallsThroughThresholds(t *testing.T) {
	u := newUpdater(t)

	p := NewProfile("learner-1", "go-basics")
	for i := 0; i < 10; i++ {
		p = u.Update(sectionAggregate(1, 4, 3), p)
	}
	assert.Equal(t, ConfidenceLow, p.Confidence)
}

func TestUpdater_NilPriorStartsFromDefaults(t *testing.T) {
	u := newUpdater(t)

	p := u.Update(sectionAggregate(2, 2, 0), nil)
	require.NotNil(t, p)
	assert.Equal(t, "learner-1", p.LearnerID)
	assert.Equal(t, "go-basics", p.CourseID)
	assert.Equal(t, 1, p.Signals.SampleCount)
}

func TestUpdater_DismissalFeedbackRespectsPolicy(t *testing.T) {
	cfg := DefaultUpdaterConfig()
	cfg.DismissalPolicy = DismissalNegative
	u, err := NewUpdater(cfg)
	require.NoError(t, err)

	p := NewProfile("learner-1", "go-basics")
	before := p.Signals.QuizAccuracy

	// Отклонение slow_down сдвигает уверенность вверх.
	after := u.ApplyDecisionFeedback(p, "slow_down", false)
	assert.Greater(t, after.Signals.QuizAccuracy, before)

	// Нейтральная политика: профиль не меняется.
	cfg.DismissalPolicy = DismissalNeutral
	un, err := NewUpdater(cfg)
	require.NoError(t, err)
	neutral := un.ApplyDecisionFeedback(p, "slow_down", false)
	assert.Equal(t, before, neutral.Signals.QuizAccuracy)
}

func TestUpdater_AcceptedAccelerateRaisesSpeedSignal(t *testing.T) {
	u := newUpdater(t)

	p := NewProfile("learner-1", "go-basics")
	before := p.Signals.SpeedScore
	after := u.ApplyDecisionFeedback(p, "accelerate", true)
	assert.Greater(t, after.Signals.SpeedScore, before)
}

func TestUpdater_UpdateDoesNotMutatePrior(t *testing.T) {
	u := newUpdater(t)

	prior := NewProfile("learner-1", "go-basics")
	priorAccuracy := prior.Signals.QuizAccuracy
	_ = u.Update(sectionAggregate(5, 0, 0), prior)
	assert.Equal(t, priorAccuracy, prior.Signals.QuizAccuracy)
}
