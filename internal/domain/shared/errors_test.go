package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_MatchesItsKind(t *testing.T) {
	assert.ErrorIs(t, ErrProfileNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrMalformedEvent, ErrValidation)
	assert.ErrorIs(t, ErrPopulationTooSmall, ErrInsufficientData)
	assert.ErrorIs(t, ErrSnapshotTooOld, ErrStaleSnapshot)
	assert.ErrorIs(t, ErrGraphHasCycle, ErrGraphCycle)

	assert.NotErrorIs(t, ErrProfileNotFound, ErrValidation)
}

func TestDomainError_MatchesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("loading profile: %w", ErrProfileNotFound)
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.ErrorIs(t, wrapped, ErrProfileNotFound)
}

func TestWrapError_ExposesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError("learner", "Load", ErrNotFound, "profile lookup failed", cause)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "learner")
	assert.Contains(t, err.Error(), "profile lookup failed")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNewDomainError_ErrorString(t *testing.T) {
	err := NewDomainError("traversal", "Score", ErrValueOutOfRange, "weight above 1")
	assert.Contains(t, err.Error(), "traversal")
	assert.Contains(t, err.Error(), "Score")
	assert.Contains(t, err.Error(), "weight above 1")
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name string
		pred func(error) bool
		hit  error
		miss error
	}{
		{"not found", IsNotFound, ErrDecisionNotFound, ErrMalformedEvent},
		{"validation", IsValidation, ErrInvalidLearnerID, ErrSnapshotNotFound},
		{"insufficient data", IsInsufficientData, ErrPopulationTooSmall, ErrNodeNotFound},
		{"stale snapshot", IsStaleSnapshot, ErrSnapshotTooOld, ErrSnapshotNotFound},
		{"graph error", IsGraphError, ErrGraphInconsistent, ErrEmptyGraph},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.pred(tt.hit))
			assert.False(t, tt.pred(tt.miss))
			assert.False(t, tt.pred(nil))
		})
	}
}

func TestErrorPredicates_SeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("recompute path: %w", ErrGraphHasCycle)
	require.True(t, IsGraphError(wrapped))
	assert.False(t, IsNotFound(wrapped))
}
