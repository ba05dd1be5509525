package command

import (
	"context"
	"fmt"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/application/session"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLOSE SESSION COMMAND
// Shuts down a live session: the loop drains, in-flight writes land, and
// chapter aggregates are reconciled into the population outcome log.
// Decisions never surfaced are dropped.
// ══════════════════════════════════════════════════════════════════════════════

// CloseSessionCommand closes one live session.
type CloseSessionCommand struct {
	// SessionID is the session to close.
	SessionID string
}

// Validate validates the command.
func (c CloseSessionCommand) Validate() error {
	if c.SessionID == "" {
		return fmt.Errorf("close_session: session_id is required")
	}
	return nil
}

// CloseSessionHandler handles CloseSessionCommand.
type CloseSessionHandler struct {
	sessions *session.Manager
}

// NewCloseSessionHandler creates a new CloseSessionHandler.
func NewCloseSessionHandler(sessions *session.Manager) *CloseSessionHandler {
	return &CloseSessionHandler{sessions: sessions}
}

// Handle closes the session.
func (h *CloseSessionHandler) Handle(ctx context.Context, cmd CloseSessionCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	return h.sessions.Close(ctx, cmd.SessionID)
}
