package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/behavior"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/collective"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/learner"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/orchestration"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/traversal"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory fakes
// ─────────────────────────────────────────────────────────────────────────────

type memProfiles struct {
	mu       sync.Mutex
	profiles map[string]*learner.Profile
	puts     int
}

func newMemProfiles() *memProfiles {
	return &memProfiles{profiles: make(map[string]*learner.Profile)}
}

func (m *memProfiles) Get(_ context.Context, learnerID, courseID string) (*learner.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[learnerID+"|"+courseID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return p.Clone(), nil
}

func (m *memProfiles) Put(_ context.Context, p *learner.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.LearnerID+"|"+p.CourseID] = p.Clone()
	m.puts++
	return nil
}

func (m *memProfiles) GetByCourse(_ context.Context, courseID string) ([]*learner.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*learner.Profile
	for _, p := range m.profiles {
		if p.CourseID == courseID {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

type memAggregates struct {
	mu   sync.Mutex
	aggs map[string]*behavior.SectionAggregate
}

func newMemAggregates() *memAggregates {
	return &memAggregates{aggs: make(map[string]*behavior.SectionAggregate)}
}

func (m *memAggregates) Get(_ context.Context, learnerID, sectionID string) (*behavior.SectionAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg, ok := m.aggs[learnerID+"|"+sectionID]
	if !ok {
		return nil, shared.ErrAggregateNotFound
	}
	return agg.Clone(), nil
}

func (m *memAggregates) GetByLearner(_ context.Context, learnerID string) ([]*behavior.SectionAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*behavior.SectionAggregate
	for _, agg := range m.aggs {
		if agg.Scope.LearnerID == learnerID {
			out = append(out, agg.Clone())
		}
	}
	return out, nil
}

func (m *memAggregates) Put(_ context.Context, agg *behavior.SectionAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggs[agg.Scope.LearnerID+"|"+agg.Scope.SectionID] = agg.Clone()
	return nil
}

func (m *memAggregates) PutBatch(ctx context.Context, aggs []*behavior.SectionAggregate) error {
	for _, agg := range aggs {
		if err := m.Put(ctx, agg); err != nil {
			return err
		}
	}
	return nil
}

type memPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (m *memPublisher) Publish(ev shared.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memPublisher) byType(t shared.EventType) []shared.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []shared.Event
	for _, ev := range m.events {
		if ev.EventType() == t {
			out = append(out, ev)
		}
	}
	return out
}

type memOutcomes struct {
	mu      sync.Mutex
	records []collective.OutcomeRecord
}

func (m *memOutcomes) Append(_ context.Context, records []collective.OutcomeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return nil
}

func (m *memOutcomes) GetAll(_ context.Context, courseID string) ([]collective.OutcomeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []collective.OutcomeRecord
	for _, r := range m.records {
		if r.CourseID == courseID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memOutcomes) CountLearners(_ context.Context, courseID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	for _, r := range m.records {
		if r.CourseID == courseID {
			seen[r.LearnerID] = struct{}{}
		}
	}
	return len(seen), nil
}

type staticCatalog struct {
	nodes map[string]traversal.Node
}

func (c *staticCatalog) Node(_ context.Context, _, chapterID, sectionID string) (traversal.Node, error) {
	n, ok := c.nodes[chapterID+"/"+sectionID]
	if !ok {
		return traversal.Node{}, shared.ErrNodeNotFound
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func testDeps(t *testing.T) (Deps, *memPublisher, *memProfiles) {
	t.Helper()
	updater, err := learner.NewUpdater(learner.DefaultUpdaterConfig())
	require.NoError(t, err)
	scorer, err := traversal.NewScorer(traversal.DefaultScorerConfig(), nil)
	require.NoError(t, err)

	pub := &memPublisher{}
	profiles := newMemProfiles()
	deps := Deps{
		Aggregates: newMemAggregates(),
		Profiles:   profiles,
		Updater:    updater,
		Scorer:     scorer,
		Publisher:  pub,
		Catalog: &staticCatalog{nodes: map[string]traversal.Node{
			"basics/vars": {ID: "basics/vars", ChapterID: "basics", SectionID: "vars", Difficulty: 0.3},
		}},
	}
	return deps, pub, profiles
}

func quizEvent(correct bool) behavior.Event {
	c := correct
	return behavior.NewEvent(behavior.KindQuizAttempt, behavior.Scope{
		LearnerID: "ln-1",
		CourseID:  "go-basics",
		ChapterID: "basics",
		SectionID: "vars",
	}, behavior.Payload{Correct: &c, Latency: 4 * time.Second})
}

func TestSession_RecordEventRunsFullPipeline(t *testing.T) {
	deps, pub, _ := testDeps(t)
	s, err := New(context.Background(), "sess-1", "ln-1", "go-basics", DefaultConfig(), orchestration.DefaultEngineConfig(), deps)
	require.NoError(t, err)
	defer s.Close(context.Background())

	outcome, err := s.RecordEvent(context.Background(), quizEvent(true))
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Aggregate.QuizCorrect)
	require.NotNil(t, outcome.Profile)
	assert.NotNil(t, outcome.Traversability)
	assert.Len(t, pub.byType(shared.EventBehaviorRecorded), 1)
}

func TestSession_MalformedEventRejected(t *testing.T) {
	deps, _, _ := testDeps(t)
	s, err := New(context.Background(), "sess-1", "ln-1", "go-basics", DefaultConfig(), orchestration.DefaultEngineConfig(), deps)
	require.NoError(t, err)
	defer s.Close(context.Background())

	bad := behavior.NewEvent(behavior.KindQuizAttempt, behavior.Scope{
		LearnerID: "ln-1", CourseID: "go-basics", ChapterID: "basics", SectionID: "vars",
	}, behavior.Payload{}) // quiz_attempt без Correct

	_, err = s.RecordEvent(context.Background(), bad)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestSession_PerfectStreakProposesCelebration(t *testing.T) {
	deps, _, _ := testDeps(t)
	s, err := New(context.Background(), "sess-1", "ln-1", "go-basics", DefaultConfig(), orchestration.DefaultEngineConfig(), deps)
	require.NoError(t, err)
	defer s.Close(context.Background())

	var decision *orchestration.Decision
	for i := 0; i < 5; i++ {
		outcome, err := s.RecordEvent(context.Background(), quizEvent(true))
		require.NoError(t, err)
		if outcome.Decision != nil {
			decision = outcome.Decision
		}
	}

	require.NotNil(t, decision, "five flawless answers must surface a decision")
	assert.Equal(t, orchestration.ActionCelebrateProgress, decision.Action)
	assert.GreaterOrEqual(t, decision.Priority, 9.0)
}

func TestSession_AcceptCelebrationEmitsSignal(t *testing.T) {
	deps, pub, _ := testDeps(t)
	s, err := New(context.Background(), "sess-1", "ln-1", "go-basics", DefaultConfig(), orchestration.DefaultEngineConfig(), deps)
	require.NoError(t, err)
	defer s.Close(context.Background())

	var decision *orchestration.Decision
	for i := 0; i < 5; i++ {
		outcome, err := s.RecordEvent(context.Background(), quizEvent(true))
		require.NoError(t, err)
		if outcome.Decision != nil {
			decision = outcome.Decision
		}
	}
	require.NotNil(t, decision)

	resolved, err := s.ResolveDecision(context.Background(), decision.ID, true)
	require.NoError(t, err)
	assert.Equal(t, orchestration.ResolutionAccepted, resolved.Resolution)

	celebrations := pub.byType(shared.EventCelebration)
	require.Len(t, celebrations, 1)
	ev := celebrations[0].(shared.CelebrationEvent)
	assert.True(t, ev.ExpiresAt.After(time.Now()))
}

func TestSession_ResolveWithoutPendingFails(t *testing.T) {
	deps, _, _ := testDeps(t)
	s, err := New(context.Background(), "sess-1", "ln-1", "go-basics", DefaultConfig(), orchestration.DefaultEngineConfig(), deps)
	require.NoError(t, err)
	defer s.Close(context.Background())

	_, err = s.ResolveDecision(context.Background(), "ghost", false)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestSession_ConcurrentSubmissionsSerialized(t *testing.T) {
	deps, _, _ := testDeps(t)
	s, err := New(context.Background(), "sess-1", "ln-1", "go-basics", DefaultConfig(), orchestration.DefaultEngineConfig(), deps)
	require.NoError(t, err)
	defer s.Close(context.Background())

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(correct bool) {
			defer wg.Done()
			_, err := s.RecordEvent(context.Background(), quizEvent(correct))
			assert.NoError(t, err)
		}(i%2 == 0)
	}
	wg.Wait()

	outcome, err := s.RecordEvent(context.Background(), quizEvent(true))
	require.NoError(t, err)
	assert.Equal(t, n+1, outcome.Aggregate.QuizAttempts())
}

func TestSession_CloseRejectsFurtherEvents(t *testing.T) {
	deps, pub, _ := testDeps(t)
	s, err := New(context.Background(), "sess-1", "ln-1", "go-basics", DefaultConfig(), orchestration.DefaultEngineConfig(), deps)
	require.NoError(t, err)

	require.NoError(t, s.Close(context.Background()))

	_, err = s.RecordEvent(context.Background(), quizEvent(true))
	assert.ErrorIs(t, err, shared.ErrSessionClosed)
	assert.Len(t, pub.byType(shared.EventSessionClosed), 1)
}

func TestManager_CloseReconcilesOutcomes(t *testing.T) {
	deps, _, _ := testDeps(t)
	outcomes := &memOutcomes{}
	m := NewManager(DefaultConfig(), orchestration.DefaultEngineConfig(), deps, outcomes)

	s, err := m.Open(context.Background(), "ln-1", "go-basics")
	require.NoError(t, err)

	_, err = s.RecordEvent(context.Background(), quizEvent(true))
	require.NoError(t, err)
	complete := behavior.NewEvent(behavior.KindSectionComplete, behavior.Scope{
		LearnerID: "ln-1", CourseID: "go-basics", ChapterID: "basics", SectionID: "vars",
	}, behavior.Payload{TimeSpent: 12 * time.Minute})
	_, err = s.RecordEvent(context.Background(), complete)
	require.NoError(t, err)

	require.NoError(t, m.Close(context.Background(), s.ID()))

	records, err := outcomes.GetAll(context.Background(), "go-basics")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "basics", records[0].ChapterID)
	assert.True(t, records[0].Success)
	assert.InDelta(t, 12, records[0].DurationMinutes, 0.001)
	assert.Equal(t, 0, m.Len())
}

func TestManager_OpenReturnsSameSessionForOwner(t *testing.T) {
	deps, _, _ := testDeps(t)
	m := NewManager(DefaultConfig(), orchestration.DefaultEngineConfig(), deps, &memOutcomes{})

	a, err := m.Open(context.Background(), "ln-1", "go-basics")
	require.NoError(t, err)
	b, err := m.Open(context.Background(), "ln-1", "go-basics")
	require.NoError(t, err)

	assert.Equal(t, a.ID(), b.ID())
	assert.Equal(t, 1, m.Len())
}
