package command

import (
	"context"
	"fmt"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/application/session"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/orchestration"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESOLVE DECISION COMMAND
// Accepts or dismisses the pending orchestration decision of a session.
// The resolution feeds back into profile smoothing: repeated dismissal of
// "slow down" style suggestions nudges confidence up.
// ══════════════════════════════════════════════════════════════════════════════

// ResolveDecisionCommand resolves one pending decision.
type ResolveDecisionCommand struct {
	// SessionID is the live session holding the decision.
	SessionID string

	// DecisionID is the decision to resolve.
	DecisionID string

	// Accepted is true for accept, false for dismiss.
	Accepted bool
}

// Validate validates the command.
func (c ResolveDecisionCommand) Validate() error {
	if c.SessionID == "" {
		return fmt.Errorf("resolve_decision: session_id is required")
	}
	if c.DecisionID == "" {
		return fmt.Errorf("resolve_decision: decision_id is required")
	}
	return nil
}

// ResolveDecisionResult contains the resolved decision.
type ResolveDecisionResult struct {
	// Decision is the resolved decision with its final resolution.
	Decision *orchestration.Decision

	// ResolvedAt is when the resolution happened.
	ResolvedAt time.Time
}

// ResolveDecisionHandler handles ResolveDecisionCommand.
type ResolveDecisionHandler struct {
	sessions *session.Manager
	log      orchestration.DecisionLog
}

// NewResolveDecisionHandler creates a new ResolveDecisionHandler.
func NewResolveDecisionHandler(sessions *session.Manager, log orchestration.DecisionLog) *ResolveDecisionHandler {
	return &ResolveDecisionHandler{sessions: sessions, log: log}
}

// Handle resolves the decision on the session loop and records it in the
// decision log. Log failures do not undo the resolution.
func (h *ResolveDecisionHandler) Handle(ctx context.Context, cmd ResolveDecisionCommand) (*ResolveDecisionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	sess, err := h.sessions.Get(cmd.SessionID)
	if err != nil {
		return nil, err
	}

	resolved, err := sess.ResolveDecision(ctx, cmd.DecisionID, cmd.Accepted)
	if err != nil {
		return nil, err
	}

	if h.log != nil {
		_ = h.log.Record(ctx, resolved)
	}

	return &ResolveDecisionResult{
		Decision:   resolved,
		ResolvedAt: resolved.ResolvedAt,
	}, nil
}
