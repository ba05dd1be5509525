// Package session owns the per-learner live pipeline: behavior events,
// profile updates, traversability scoring and orchestration decisions are
// processed strictly one at a time in arrival order.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/behavior"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/collective"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/learner"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/orchestration"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/traversal"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER SESSION
// One session = one learner = one processing loop. No two events from the
// same session are ever processed concurrently; persistence writes are
// fire-and-forget so the loop suspends only at read boundaries. The shared
// EmergentCurriculum snapshot is read-only from the session's perspective.
// ══════════════════════════════════════════════════════════════════════════════

// CurriculumCatalog resolves static curriculum structure.
type CurriculumCatalog interface {
	// Node returns the static node for a chapter/section pair.
	Node(ctx context.Context, courseID, chapterID, sectionID string) (traversal.Node, error)
}

// ProgressProvider resolves the learner's position in the course graph.
type ProgressProvider interface {
	// LearnerState returns completed chapters with timestamps and results.
	LearnerState(ctx context.Context, learnerID, courseID string) (traversal.LearnerState, error)
}

// Config contains session tunables.
type Config struct {
	// QueueSize bounds the inbox; submissions beyond it block the caller.
	QueueSize int

	// SnapshotMaxAge is the oldest collective snapshot the session will
	// score against before degrading to static-only.
	SnapshotMaxAge time.Duration

	// WriteTimeout bounds fire-and-forget persistence writes.
	WriteTimeout time.Duration
}

// DefaultConfig returns default session tunables.
func DefaultConfig() Config {
	return Config{
		QueueSize:      64,
		SnapshotMaxAge: 2 * time.Hour,
		WriteTimeout:   5 * time.Second,
	}
}

// Deps wires the session to its collaborators.
type Deps struct {
	Aggregates behavior.AggregateRepository
	Profiles   learner.Repository
	Updater    *learner.Updater
	Scorer     *traversal.Scorer
	Snapshots  collective.SnapshotProvider
	Catalog    CurriculumCatalog
	Progress   ProgressProvider
	Publisher  shared.EventPublisher
	Clock      shared.Clock
	Logger     *slog.Logger
}

// RecordOutcome is the session's answer to one behavior event.
type RecordOutcome struct {
	// Aggregate is a snapshot of the section aggregate after the event.
	Aggregate *behavior.SectionAggregate

	// Profile is the updated profile.
	Profile *learner.Profile

	// Traversability is the fresh score for the event's node, when the
	// static node could be resolved.
	Traversability *traversal.Score

	// Decision is the newly proposed decision, if a rule fired.
	Decision *orchestration.Decision
}

// Session is the live pipeline for one learner on one course.
type Session struct {
	id        string
	learnerID string
	courseID  string

	cfg   Config
	deps  Deps
	clock shared.Clock
	log   *slog.Logger

	aggregator *behavior.Aggregator
	profile    *learner.Profile
	engine     *orchestration.Engine

	inbox     chan task
	loopDone  chan struct{}
	closeOnce sync.Once

	// writes tracks fire-and-forget persistence so Close can wait for
	// in-flight writes to land.
	writes sync.WaitGroup

	startedAt time.Time
}

type task struct {
	run  func(ctx context.Context)
	done chan struct{}
}

// New creates a session and starts its processing loop. The profile is
// loaded eagerly; a missing profile starts from neutral defaults.
func New(ctx context.Context, id, learnerID, courseID string, cfg Config, engineCfg orchestration.EngineConfig, deps Deps) (*Session, error) {
	if deps.Updater == nil || deps.Scorer == nil {
		return nil, shared.NewDomainError("session", "New", shared.ErrInvalidInput, "updater and scorer are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg = DefaultConfig()
	}

	profile, err := deps.Profiles.Get(ctx, learnerID, courseID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("session: load profile: %w", err)
		}
		profile = learner.NewProfile(learnerID, courseID)
	}

	s := &Session{
		id:         id,
		learnerID:  learnerID,
		courseID:   courseID,
		cfg:        cfg,
		deps:       deps,
		clock:      clock,
		log:        log.With("session_id", id, "learner_id", learnerID),
		aggregator: behavior.NewAggregator(),
		profile:    profile,
		engine:     orchestration.NewEngine(learnerID, id, engineCfg, clock),
		inbox:      make(chan task, cfg.QueueSize),
		loopDone:   make(chan struct{}),
		startedAt:  clock.Now(),
	}
	go s.loop()

	if deps.Publisher != nil {
		deps.Publisher.Publish(shared.NewSessionStartedEvent(learnerID, id, courseID))
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// LearnerID returns the owning learner.
func (s *Session) LearnerID() string {
	return s.learnerID
}

// loop drains the inbox strictly in order until it is closed.
func (s *Session) loop() {
	defer close(s.loopDone)
	for t := range s.inbox {
		t.run(context.Background())
		close(t.done)
	}
}

// submit runs fn on the session loop and waits for completion.
func (s *Session) submit(ctx context.Context, fn func(ctx context.Context)) error {
	t := task{run: fn, done: make(chan struct{})}
	select {
	case s.inbox <- t:
	case <-s.loopDone:
		return shared.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		// The task still runs to completion on the loop; only the
		// caller stops waiting.
		return ctx.Err()
	}
}

// RecordEvent feeds one behavior event through the full pipeline:
// aggregate, profile update, traversability, decision evaluation.
// Malformed events are rejected before any state changes.
func (s *Session) RecordEvent(ctx context.Context, ev behavior.Event) (*RecordOutcome, error) {
	var outcome *RecordOutcome
	var rerr error
	err := s.submit(ctx, func(loopCtx context.Context) {
		outcome, rerr = s.processEvent(loopCtx, ev)
	})
	if err != nil {
		return nil, err
	}
	return outcome, rerr
}

func (s *Session) processEvent(ctx context.Context, ev behavior.Event) (*RecordOutcome, error) {
	if err := s.aggregator.Record(ev); err != nil {
		return nil, err
	}
	agg := s.aggregator.Aggregate(ev.Scope.LearnerID, ev.Scope.SectionID)

	updated := s.deps.Updater.Update(agg, s.profile)
	confidenceShifted := updated.Confidence != s.profile.Confidence
	paceShifted := updated.Pace != s.profile.Pace
	prevConfidence := s.profile.Confidence
	s.profile = updated

	outcome := &RecordOutcome{Aggregate: agg, Profile: updated.Clone()}

	score := s.scoreCurrentNode(ctx, ev)
	outcome.Traversability = score

	in := orchestration.EvaluationInput{
		SectionID:      ev.Scope.SectionID,
		Aggregate:      agg,
		Profile:        updated,
		Traversability: score,
	}
	if d, ok := s.engine.Evaluate(in); ok {
		outcome.Decision = d
		s.publish(shared.NewDecisionProposedEvent(d.ID, s.learnerID, string(d.Action), d.Reason, int(d.Priority)))
	}

	s.publish(shared.NewBehaviorRecordedEvent(s.learnerID, ev.Scope.SectionID, string(ev.Kind)))
	if confidenceShifted {
		s.publish(shared.NewConfidenceShiftedEvent(s.learnerID, s.courseID, string(prevConfidence), string(updated.Confidence)))
	}
	if confidenceShifted || paceShifted {
		s.publish(shared.NewProfileUpdatedEvent(s.learnerID, string(updated.Pace), string(updated.Confidence), updated.EngagementScore, updated.RetentionScore))
	}
	if ev.Kind == behavior.KindSectionComplete {
		s.publish(shared.NewSectionCompletedEvent(s.learnerID, ev.Scope.ChapterID, ev.Scope.SectionID, agg.TimeSpent))
	}

	s.persistAsync(agg, updated)
	return outcome, nil
}

// scoreCurrentNode resolves the static node and scores it. Any failure
// here degrades to "no adaptive features", never to a pipeline error.
func (s *Session) scoreCurrentNode(ctx context.Context, ev behavior.Event) *traversal.Score {
	if s.deps.Catalog == nil {
		return nil
	}
	node, err := s.deps.Catalog.Node(ctx, ev.Scope.CourseID, ev.Scope.ChapterID, ev.Scope.SectionID)
	if err != nil {
		s.log.Debug("node lookup failed, scoring skipped", "error", err)
		return nil
	}

	var state traversal.LearnerState
	if s.deps.Progress != nil {
		if st, err := s.deps.Progress.LearnerState(ctx, s.learnerID, s.courseID); err == nil {
			state = st
		}
	}

	cur := s.currentSnapshot(ctx)
	score := s.deps.Scorer.Score(node, s.profile, cur, state)
	return &score
}

// currentSnapshot returns the freshest usable collective snapshot, or nil
// when it is missing or too old. Staleness is logged, never fatal.
func (s *Session) currentSnapshot(ctx context.Context) *collective.EmergentCurriculum {
	if s.deps.Snapshots == nil {
		return nil
	}
	cur, stale, err := s.deps.Snapshots.Current(ctx, s.courseID, s.cfg.SnapshotMaxAge)
	if err != nil {
		s.log.Debug("collective snapshot unavailable", "error", err)
		return nil
	}
	if stale {
		s.log.Info("collective snapshot is stale, degrading to static scoring",
			"version", cur.Version, "age", cur.Age(s.clock.Now()).String())
		return nil
	}
	return cur
}

// PendingDecision returns the currently pending decision, if any.
func (s *Session) PendingDecision(ctx context.Context) (*orchestration.Decision, bool, error) {
	var d *orchestration.Decision
	var ok bool
	err := s.submit(ctx, func(context.Context) {
		d, ok = s.engine.Pending()
	})
	if err != nil {
		return nil, false, err
	}
	return d, ok, nil
}

// Profile returns a copy of the current profile.
func (s *Session) Profile(ctx context.Context) (*learner.Profile, error) {
	var p *learner.Profile
	err := s.submit(ctx, func(context.Context) {
		p = s.profile.Clone()
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ResolveDecision accepts or dismisses the pending decision, feeds the
// outcome back into the profile and returns the resolved decision.
func (s *Session) ResolveDecision(ctx context.Context, decisionID string, accepted bool) (*orchestration.Decision, error) {
	var resolved *orchestration.Decision
	var rerr error
	err := s.submit(ctx, func(loopCtx context.Context) {
		resolved, rerr = s.resolve(loopCtx, decisionID, accepted)
	})
	if err != nil {
		return nil, err
	}
	return resolved, rerr
}

func (s *Session) resolve(_ context.Context, decisionID string, accepted bool) (*orchestration.Decision, error) {
	var resolved *orchestration.Decision
	var err error
	if accepted {
		resolved, err = s.engine.Accept(decisionID)
	} else {
		resolved, err = s.engine.Dismiss(decisionID)
	}
	if err != nil {
		return nil, err
	}

	// Resolution feedback flows back into the profile smoothing.
	s.profile = s.deps.Updater.ApplyDecisionFeedback(s.profile, string(resolved.Action), accepted)

	s.publish(shared.NewDecisionResolvedEvent(resolved.ID, s.learnerID, string(resolved.Action), accepted))
	if accepted && resolved.Action == orchestration.ActionCelebrateProgress {
		s.publish(shared.NewCelebrationEvent(s.learnerID, resolved.SectionID, resolved.Reason, s.engine.CelebrationTTL()))
	}

	s.persistProfileAsync(s.profile)
	return resolved, nil
}

// Close drains the loop, waits for in-flight persistence writes and emits
// the session-closed event. Decisions never surfaced are simply dropped.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.inbox)
	})
	select {
	case <-s.loopDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.writes.Wait()
	s.publish(shared.NewSessionClosedEvent(s.learnerID, s.id, s.courseID, s.clock.Now().Sub(s.startedAt)))
	return nil
}

// Aggregates returns snapshots of every section aggregate of the session.
// Used by session-close reconciliation to build an outcome record.
func (s *Session) Aggregates() []*behavior.SectionAggregate {
	return s.aggregator.All()
}

// persistAsync upserts the aggregate and profile without blocking the
// loop. Failures are logged; the in-memory state stays authoritative.
func (s *Session) persistAsync(agg *behavior.SectionAggregate, profile *learner.Profile) {
	aggCopy := agg.Clone()
	profCopy := profile.Clone()
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		defer cancel()
		if s.deps.Aggregates != nil {
			if err := s.deps.Aggregates.Put(ctx, aggCopy); err != nil {
				s.log.Warn("aggregate write failed", "section_id", aggCopy.Scope.SectionID, "error", err)
			}
		}
		if s.deps.Profiles != nil {
			if err := s.deps.Profiles.Put(ctx, profCopy); err != nil {
				s.log.Warn("profile write failed", "error", err)
			}
		}
	}()
}

func (s *Session) persistProfileAsync(profile *learner.Profile) {
	profCopy := profile.Clone()
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		defer cancel()
		if s.deps.Profiles != nil {
			if err := s.deps.Profiles.Put(ctx, profCopy); err != nil {
				s.log.Warn("profile write failed", "error", err)
			}
		}
	}()
}

func (s *Session) publish(ev shared.Event) {
	if s.deps.Publisher == nil {
		return
	}
	s.deps.Publisher.Publish(ev)
}
