// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/application/session"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/behavior"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/learner"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/orchestration"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/traversal"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD BEHAVIOR EVENT COMMAND
// Feeds one raw interaction event into the learner's live pipeline. This is
// the hot path: aggregate fold, profile update, traversability scoring and
// decision evaluation all happen behind this command, strictly serialized
// per session.
// ══════════════════════════════════════════════════════════════════════════════

// RecordEventCommand contains one behavior event submission.
type RecordEventCommand struct {
	// LearnerID is the learner submitting the event.
	LearnerID string

	// CourseID, ChapterID, SectionID locate the event in the curriculum.
	CourseID  string
	ChapterID string
	SectionID string

	// Kind is the behavior event kind (video_play, quiz_attempt, ...).
	Kind string

	// Correct marks a quiz attempt outcome (quiz_attempt only).
	Correct *bool

	// LatencyMS is the answer latency in milliseconds (quiz_attempt).
	LatencyMS int64

	// Success marks a code execution outcome (code_execute only).
	Success *bool

	// SpanSeconds is the replayed span length (video_replay).
	SpanSeconds float64

	// Speed is the playback speed (video_speed_change).
	Speed float64

	// Progress is the watched ratio in [0,1] (video_progress).
	Progress float64

	// TimeSpentMS is the total section time (section_complete).
	TimeSpentMS int64

	// PeerSolutionID identifies the viewed solution (peer_solution_view).
	PeerSolutionID string

	// Timestamp is when the event occurred (defaults to now if zero).
	Timestamp time.Time
}

// Validate performs the cheap structural checks. Full kind-specific
// validation belongs to the behavior domain.
func (c RecordEventCommand) Validate() error {
	if c.LearnerID == "" {
		return fmt.Errorf("record_event: learner_id is required")
	}
	if c.CourseID == "" || c.ChapterID == "" || c.SectionID == "" {
		return fmt.Errorf("record_event: course, chapter and section are required")
	}
	if !behavior.Kind(c.Kind).IsValid() {
		return fmt.Errorf("record_event: unknown event kind: %s", c.Kind)
	}
	return nil
}

// toDomain maps the command onto the domain event.
func (c RecordEventCommand) toDomain(at time.Time) behavior.Event {
	ts := c.Timestamp
	if ts.IsZero() {
		ts = at
	}
	return behavior.Event{
		Kind: behavior.Kind(c.Kind),
		Scope: behavior.Scope{
			LearnerID: c.LearnerID,
			CourseID:  c.CourseID,
			ChapterID: c.ChapterID,
			SectionID: c.SectionID,
		},
		Timestamp: ts,
		Payload: behavior.Payload{
			Correct:        c.Correct,
			Latency:        time.Duration(c.LatencyMS) * time.Millisecond,
			Success:        c.Success,
			SpanSeconds:    c.SpanSeconds,
			Speed:          c.Speed,
			Progress:       c.Progress,
			TimeSpent:      time.Duration(c.TimeSpentMS) * time.Millisecond,
			PeerSolutionID: c.PeerSolutionID,
		},
	}
}

// RecordEventResult is the pipeline's answer to one event.
type RecordEventResult struct {
	// SessionID is the live session that absorbed the event.
	SessionID string

	// Profile is the profile after the update.
	Profile *learner.Profile

	// Traversability is the fresh score for the event's node, when
	// available. Nil means no adaptive data for this node.
	Traversability *traversal.Score

	// Decision is the newly proposed orchestration decision, if any.
	Decision *orchestration.Decision

	// RecordedAt is when the event was absorbed.
	RecordedAt time.Time
}

// RecordEventHandler handles RecordEventCommand.
type RecordEventHandler struct {
	sessions *session.Manager
}

// NewRecordEventHandler creates a new RecordEventHandler.
func NewRecordEventHandler(sessions *session.Manager) *RecordEventHandler {
	return &RecordEventHandler{sessions: sessions}
}

// Handle routes the event to the learner's live session. Validation
// errors surface immediately so the UI can decide to retry or drop.
func (h *RecordEventHandler) Handle(ctx context.Context, cmd RecordEventCommand) (*RecordEventResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	sess, err := h.sessions.Open(ctx, cmd.LearnerID, cmd.CourseID)
	if err != nil {
		return nil, fmt.Errorf("record_event: open session: %w", err)
	}

	now := time.Now().UTC()
	outcome, err := sess.RecordEvent(ctx, cmd.toDomain(now))
	if err != nil {
		return nil, err
	}

	return &RecordEventResult{
		SessionID:      sess.ID(),
		Profile:        outcome.Profile,
		Traversability: outcome.Traversability,
		Decision:       outcome.Decision,
		RecordedAt:     now,
	}, nil
}
