package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/behavior"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/collective"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/orchestration"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION MANAGER
// Registry of live sessions. Each learner+course pair owns at most one
// session; closing a session reconciles its aggregates into the population
// outcome log so the next batch aggregation can see them.
// ══════════════════════════════════════════════════════════════════════════════

// Manager owns the set of live sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session // session ID -> session
	byOwner  map[string]string   // learner|course -> session ID

	cfg       Config
	engineCfg orchestration.EngineConfig
	deps      Deps
	outcomes  collective.OutcomeRepository
	clock     shared.Clock
	log       *slog.Logger
}

// NewManager creates a session manager.
func NewManager(cfg Config, engineCfg orchestration.EngineConfig, deps Deps, outcomes collective.OutcomeRepository) *Manager {
	clock := deps.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		byOwner:   make(map[string]string),
		cfg:       cfg,
		engineCfg: engineCfg,
		deps:      deps,
		outcomes:  outcomes,
		clock:     clock,
		log:       log,
	}
}

// Open returns the learner's live session for the course, creating one if
// necessary. A learner's profile and aggregates are owned exclusively by
// that session; no cross-session locking exists.
func (m *Manager) Open(ctx context.Context, learnerID, courseID string) (*Session, error) {
	owner := ownerKey(learnerID, courseID)

	m.mu.RLock()
	if id, ok := m.byOwner[owner]; ok {
		s := m.sessions[id]
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	s, err := New(ctx, uuid.NewString(), learnerID, courseID, m.cfg, m.engineCfg, m.deps)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another caller may have opened the session while we were creating.
	if id, ok := m.byOwner[owner]; ok {
		existing := m.sessions[id]
		go func() { _ = s.Close(context.Background()) }()
		return existing, nil
	}
	m.sessions[s.ID()] = s
	m.byOwner[owner] = s.ID()
	return s, nil
}

// Get returns a live session by ID.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionClosed, sessionID)
	}
	return s, nil
}

// Close shuts a session down and reconciles its aggregates into the
// outcome log. Reconciliation failures are logged, not returned: the
// session is gone either way.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
		delete(m.byOwner, ownerKey(s.learnerID, s.courseID))
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrSessionClosed, sessionID)
	}

	aggs := s.Aggregates()
	if err := s.Close(ctx); err != nil {
		return err
	}

	if err := m.reconcile(ctx, s, aggs); err != nil {
		m.log.Warn("outcome reconciliation failed",
			"session_id", sessionID, "error", err)
	}
	return nil
}

// CloseAll closes every live session. Used on shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Close(ctx, id); err != nil {
			m.log.Warn("session close failed", "session_id", id, "error", err)
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// reconcile folds completed-chapter aggregates into outcome records.
// Only chapters with at least one completed section produce a record.
func (m *Manager) reconcile(ctx context.Context, s *Session, aggs []*behavior.SectionAggregate) error {
	if m.outcomes == nil || len(aggs) == 0 {
		return nil
	}

	byChapter := make(map[string][]*behavior.SectionAggregate)
	for _, agg := range aggs {
		if agg.Scope.ChapterID == "" {
			continue
		}
		byChapter[agg.Scope.ChapterID] = append(byChapter[agg.Scope.ChapterID], agg)
	}

	var completedBefore []string
	if m.deps.Progress != nil {
		if state, err := m.deps.Progress.LearnerState(ctx, s.learnerID, s.courseID); err == nil {
			for ch := range state.CompletedChapters {
				completedBefore = append(completedBefore, ch)
			}
		}
	}

	now := m.clock.Now()
	var records []collective.OutcomeRecord
	for chapterID, chapterAggs := range byChapter {
		rec := collective.OutcomeRecord{
			LearnerID:       s.learnerID,
			CourseID:        s.courseID,
			ChapterID:       chapterID,
			CompletedBefore: completedBefore,
			StartedAt:       s.startedAt,
			CompletedAt:     now,
		}
		anyCompleted := false
		allCompleted := true
		for _, agg := range chapterAggs {
			if agg.Completed {
				anyCompleted = true
			} else {
				allCompleted = false
			}
			rec.DurationMinutes += agg.TimeSpent.Minutes()
			rec.Sections = append(rec.Sections, sectionOutcome(agg))
		}
		if !anyCompleted {
			continue
		}
		rec.Success = allCompleted
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil
	}
	return m.outcomes.Append(ctx, records)
}

// sectionOutcome projects an aggregate into the population-facing signals.
func sectionOutcome(agg *behavior.SectionAggregate) collective.SectionOutcome {
	out := collective.SectionOutcome{SectionID: agg.Scope.SectionID}

	var attempts, failures int
	attempts = agg.QuizCorrect + agg.QuizIncorrect + agg.CodeExecSuccess + agg.CodeExecFail
	failures = agg.QuizIncorrect + agg.CodeExecFail
	if attempts > 0 {
		out.FailureRate = float64(failures) / float64(attempts)
	}
	if rate, ok := agg.ReplayRate(); ok {
		out.ReplayRate = rate
	}
	if reliance, ok := agg.HintReliance(); ok {
		out.HintReliance = reliance
	}
	return out
}

func ownerKey(learnerID, courseID string) string {
	return learnerID + "|" + courseID
}
