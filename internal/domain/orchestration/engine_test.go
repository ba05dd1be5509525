package orchestration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/behavior"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/learner"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/traversal"
)

var engineInstant = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// tickingClock - управляемые часы для проверки остывания.
type tickingClock struct {
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	return c.now
}

func (c *tickingClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestEngine(clock shared.Clock) *Engine {
	if clock == nil {
		clock = shared.FixedClock{Instant: engineInstant}
	}
	return NewEngine("ln-1", "sess-1", DefaultEngineConfig(), clock)
}

func perfectQuizAggregate() *behavior.SectionAggregate {
	return &behavior.SectionAggregate{
		QuizCorrect:   5,
		QuizCompleted: true,
	}
}

func TestEngine_PerfectQuizProposesCelebration(t *testing.T) {
	e := newTestEngine(nil)

	d, ok := e.Evaluate(EvaluationInput{SectionID: "vars", Aggregate: perfectQuizAggregate()})

	require.True(t, ok)
	assert.Equal(t, ActionCelebrateProgress, d.Action)
	assert.GreaterOrEqual(t, d.Priority, 9.0)
	assert.Equal(t, StatePending, e.State())
}

func TestEngine_NoRuleFiredIsSilent(t *testing.T) {
	e := newTestEngine(nil)

	d, ok := e.Evaluate(EvaluationInput{SectionID: "vars"})

	assert.False(t, ok)
	assert.Nil(t, d)
	assert.Equal(t, StateIdle, e.State())
}

func TestEngine_AtMostOnePendingDecision(t *testing.T) {
	e := newTestEngine(nil)

	_, ok := e.Evaluate(EvaluationInput{SectionID: "vars", Aggregate: perfectQuizAggregate()})
	require.True(t, ok)

	// Пока решение ожидает, новые срабатывания того же или меньшего
	// приоритета подавляются.
	d, ok := e.Evaluate(EvaluationInput{SectionID: "vars", Aggregate: perfectQuizAggregate()})
	assert.False(t, ok)
	assert.Nil(t, d)
	assert.Equal(t, StatePending, e.State())
}

func TestEngine_StrictlyHigherPriorityPreempts(t *testing.T) {
	e := newTestEngine(nil)
	fast := learner.NewProfile("ln-1", "go-basics")
	fast.Pace = learner.PaceFast
	fast.Confidence = learner.ConfidenceHigh

	first, ok := e.Evaluate(EvaluationInput{SectionID: "vars", Profile: fast})
	require.True(t, ok)
	require.Equal(t, ActionAccelerate, first.Action)

	second, ok := e.Evaluate(EvaluationInput{SectionID: "vars", Aggregate: perfectQuizAggregate()})
	require.True(t, ok)
	assert.Equal(t, ActionCelebrateProgress, second.Action)

	pending, exists := e.Pending()
	require.True(t, exists)
	assert.Equal(t, second.ID, pending.ID)
}

func TestEngine_AcceptResolvesToIdle(t *testing.T) {
	e := newTestEngine(nil)

	d, ok := e.Evaluate(EvaluationInput{SectionID: "vars", Aggregate: perfectQuizAggregate()})
	require.True(t, ok)

	resolved, err := e.Accept(d.ID)
	require.NoError(t, err)
	assert.Equal(t, ResolutionAccepted, resolved.Resolution)
	assert.False(t, resolved.ResolvedAt.IsZero())
	assert.Equal(t, StateIdle, e.State())

	_, exists := e.Pending()
	assert.False(t, exists)
}

func TestEngine_DismissResolvesToIdle(t *testing.T) {
	e := newTestEngine(nil)

	d, ok := e.Evaluate(EvaluationInput{SectionID: "vars", Aggregate: perfectQuizAggregate()})
	require.True(t, ok)

	resolved, err := e.Dismiss(d.ID)
	require.NoError(t, err)
	assert.Equal(t, ResolutionDismissed, resolved.Resolution)
	assert.Equal(t, StateIdle, e.State())
}

func TestEngine_ResolveWithoutPendingFails(t *testing.T) {
	e := newTestEngine(nil)

	_, err := e.Accept("missing")
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestEngine_ResolveWrongIDFails(t *testing.T) {
	e := newTestEngine(nil)

	d, ok := e.Evaluate(EvaluationInput{SectionID: "vars", Aggregate: perfectQuizAggregate()})
	require.True(t, ok)

	_, err := e.Dismiss("other-id")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	// Исходное решение всё ещё ожидает.
	pending, exists := e.Pending()
	require.True(t, exists)
	assert.Equal(t, d.ID, pending.ID)
}

func TestEngine_SustainedStruggleFiresSlowDown(t *testing.T) {
	e := newTestEngine(nil)
	struggling := &traversal.Score{NodeID: "ptr/intro", Score: 0.2, PredictedStruggle: 0.8}

	for i := 0; i < 2; i++ {
		d, ok := e.Evaluate(EvaluationInput{SectionID: "intro", Traversability: struggling})
		assert.False(t, ok, "struggle must be sustained before firing")
		assert.Nil(t, d)
	}

	d, ok := e.Evaluate(EvaluationInput{SectionID: "intro", Traversability: struggling})
	require.True(t, ok)
	assert.Equal(t, ActionSlowDown, d.Action)
	assert.InDelta(t, 7, d.Priority, 0.001)
}

func TestEngine_StruggleStreakResetsOnCalmUpdate(t *testing.T) {
	e := newTestEngine(nil)
	struggling := &traversal.Score{NodeID: "ptr/intro", PredictedStruggle: 0.8}
	calm := &traversal.Score{NodeID: "ptr/intro", PredictedStruggle: 0.1}

	e.Evaluate(EvaluationInput{SectionID: "intro", Traversability: struggling})
	e.Evaluate(EvaluationInput{SectionID: "intro", Traversability: struggling})
	e.Evaluate(EvaluationInput{SectionID: "intro", Traversability: calm})

	_, ok := e.Evaluate(EvaluationInput{SectionID: "intro", Traversability: struggling})
	assert.False(t, ok, "streak must restart after a calm update")
}

func TestEngine_RemedialPreferredOverSlowDownOnHeavyHints(t *testing.T) {
	e := newTestEngine(nil)
	struggling := &traversal.Score{NodeID: "ptr/intro", PredictedStruggle: 0.8}
	hintHeavy := &behavior.SectionAggregate{
		QuizCorrect:   2,
		QuizIncorrect: 4,
		HintsQuiz:     6,
	}

	var last *Decision
	var fired bool
	for i := 0; i < 3; i++ {
		last, fired = e.Evaluate(EvaluationInput{SectionID: "intro", Aggregate: hintHeavy, Traversability: struggling})
	}

	require.True(t, fired)
	assert.Equal(t, ActionInjectRemedial, last.Action)
}

func TestEngine_CooldownSuppressesRepeatAction(t *testing.T) {
	clock := &tickingClock{now: engineInstant}
	e := newTestEngine(clock)

	d, ok := e.Evaluate(EvaluationInput{SectionID: "vars", Aggregate: perfectQuizAggregate()})
	require.True(t, ok)
	_, err := e.Accept(d.ID)
	require.NoError(t, err)

	// Остывание ещё действует: то же действие не предлагается повторно.
	clock.advance(time.Minute)
	_, ok = e.Evaluate(EvaluationInput{SectionID: "vars", Aggregate: perfectQuizAggregate()})
	assert.False(t, ok)

	// После окна остывания действие снова доступно.
	clock.advance(10 * time.Minute)
	d2, ok := e.Evaluate(EvaluationInput{SectionID: "vars", Aggregate: perfectQuizAggregate()})
	require.True(t, ok)
	assert.Equal(t, ActionCelebrateProgress, d2.Action)
}

func TestEngine_CodeFailuresSuggestPeerSolution(t *testing.T) {
	e := newTestEngine(nil)
	failing := &behavior.SectionAggregate{CodeExecFail: 5}

	d, ok := e.Evaluate(EvaluationInput{SectionID: "loops", Aggregate: failing})

	require.True(t, ok)
	assert.Equal(t, ActionSuggestPeerSolution, d.Action)
}

func TestEngine_ShakyQuizAddsPractice(t *testing.T) {
	e := newTestEngine(nil)
	shaky := &behavior.SectionAggregate{
		QuizCorrect:   3,
		QuizIncorrect: 2,
		QuizCompleted: true,
	}

	d, ok := e.Evaluate(EvaluationInput{SectionID: "slices", Aggregate: shaky})

	require.True(t, ok)
	assert.Equal(t, ActionAddPractice, d.Action)
}
