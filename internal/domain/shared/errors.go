// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Sentinel errors the domain packages classify failures with. Callers match
// them through errors.Is, usually via a DomainError wrapper.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// ErrInsufficientData marks a defined empty result, not a failure: the
	// population is simply too small to say anything yet.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrStaleSnapshot marks an emergent curriculum past its maximum age.
	// Scoring degrades to static-only mode rather than aborting.
	ErrStaleSnapshot = errors.New("snapshot is stale")

	ErrGraphCycle         = errors.New("curriculum graph contains a cycle")
	ErrGraphContradiction = errors.New("contradictory prerequisite edges")

	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyProcessed = errors.New("already processed")
)

// DomainError ties a failure to the domain and operation it happened in.
// Kind carries the sentinel used for classification; Err the wrapped cause.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the cause to errors.Is chains.
func (e *DomainError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewDomainError builds a DomainError without a wrapped cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError builds a DomainError around an underlying cause.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Behavior domain errors
var (
	ErrMalformedEvent       = NewDomainError("behavior", "Validate", ErrValidation, "malformed behavior event")
	ErrUnknownEventKind     = NewDomainError("behavior", "Validate", ErrInvalidInput, "unknown behavior event kind")
	ErrAggregateNotFound    = NewDomainError("behavior", "Find", ErrNotFound, "section aggregate not found")
	ErrEventAfterSessionEnd = NewDomainError("behavior", "Record", ErrInvalidState, "event recorded after session end")
)

// Learner domain errors
var (
	ErrProfileNotFound    = NewDomainError("learner", "Find", ErrNotFound, "learner profile not found")
	ErrInvalidLearnerID   = NewDomainError("learner", "Validate", ErrInvalidID, "invalid learner ID")
	ErrInvalidSmoothing   = NewDomainError("learner", "Configure", ErrValueOutOfRange, "smoothing factor must be in (0,1]")
	ErrStyleWeightsBroken = NewDomainError("learner", "Validate", ErrValueOutOfRange, "learning style weights must sum to 1")
)

// Collective intelligence errors
var (
	ErrSnapshotNotFound   = NewDomainError("collective", "FindSnapshot", ErrNotFound, "emergent curriculum snapshot not found")
	ErrSnapshotTooOld     = NewDomainError("collective", "CheckAge", ErrStaleSnapshot, "emergent curriculum snapshot exceeds max age")
	ErrOutcomeMalformed   = NewDomainError("collective", "Validate", ErrValidation, "malformed outcome record")
	ErrPopulationTooSmall = NewDomainError("collective", "Aggregate", ErrInsufficientData, "population below minimum sample size")
)

// Traversal domain errors
var (
	ErrNodeNotFound   = NewDomainError("traversal", "Find", ErrNotFound, "curriculum node not found")
	ErrInvalidWeights = NewDomainError("traversal", "Configure", ErrValueOutOfRange, "factor weights must sum to 1")
)

// Pathway domain errors
var (
	ErrGraphHasCycle     = NewDomainError("pathway", "Order", ErrGraphCycle, "prerequisite graph contains a cycle")
	ErrGraphInconsistent = NewDomainError("pathway", "Order", ErrGraphContradiction, "prerequisite graph is contradictory")
	ErrEmptyGraph        = NewDomainError("pathway", "Recommend", ErrInvalidInput, "curriculum graph has no nodes")
)

// Orchestration domain errors
var (
	ErrDecisionNotFound   = NewDomainError("orchestration", "Resolve", ErrNotFound, "decision not found")
	ErrDecisionNotPending = NewDomainError("orchestration", "Resolve", ErrInvalidState, "decision is not pending")
	ErrDecisionSuperseded = NewDomainError("orchestration", "Resolve", ErrAlreadyProcessed, "decision was preempted by a higher priority decision")
	ErrSessionClosed      = NewDomainError("orchestration", "Evaluate", ErrInvalidState, "session is closed")
)

// IsNotFound reports whether err means the entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is any of the input-rejection kinds.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsInsufficientData reports whether err only signals "no data yet".
// Callers must treat this as a defined empty result, not a failure.
func IsInsufficientData(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}

// IsStaleSnapshot reports whether err signals a stale emergent curriculum.
func IsStaleSnapshot(err error) bool {
	return errors.Is(err, ErrStaleSnapshot)
}

// IsGraphError reports whether err comes from an invalid prerequisite graph.
func IsGraphError(err error) bool {
	return errors.Is(err, ErrGraphCycle) || errors.Is(err, ErrGraphContradiction)
}
