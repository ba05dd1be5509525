// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// LearnerID represents a unique learner identifier (UUID format).
type LearnerID string

// IsValid checks if the learner ID is a valid UUID.
func (l LearnerID) IsValid() bool {
	return uuidRegex.MatchString(string(l))
}

// String returns the string representation.
func (l LearnerID) String() string {
	return string(l)
}

// IsEmpty checks if the ID is empty.
func (l LearnerID) IsEmpty() bool {
	return l == ""
}

// NewLearnerID creates a new LearnerID with validation.
func NewLearnerID(id string) (LearnerID, error) {
	lid := LearnerID(strings.TrimSpace(id))
	if !lid.IsValid() {
		return "", ErrInvalidLearnerID
	}
	return lid, nil
}

// ContentID represents a curriculum content identifier (course, chapter or
// section). Authored slugs: lowercase, digits, hyphens.
type ContentID string

var contentIDRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// IsValid checks if the content ID has a valid slug format.
func (c ContentID) IsValid() bool {
	return contentIDRegex.MatchString(string(c))
}

// String returns the string representation.
func (c ContentID) String() string {
	return string(c)
}

// IsEmpty checks if the ID is empty.
func (c ContentID) IsEmpty() bool {
	return c == ""
}

// NewContentID creates a new ContentID with validation.
func NewContentID(id string) (ContentID, error) {
	cid := ContentID(strings.ToLower(strings.TrimSpace(id)))
	if !cid.IsValid() {
		return "", NewDomainError("shared", "Validate", ErrInvalidID, fmt.Sprintf("invalid content ID %q", id))
	}
	return cid, nil
}

// SessionID represents a live learning session identifier (UUID format).
type SessionID string

// IsValid checks if the session ID is a valid UUID.
func (s SessionID) IsValid() bool {
	return uuidRegex.MatchString(string(s))
}

// String returns the string representation.
func (s SessionID) String() string {
	return string(s)
}

// ═══════════════════════════════════════════════════════════════════════════
// Normalized Score Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UnitScore is a score normalized to [0,1]. The engine keeps every derived
// signal (traversability factors, severity, confidence) in this range so
// weighted combinations stay in range by construction.
type UnitScore float64

// IsValid checks that the score is within [0,1].
func (u UnitScore) IsValid() bool {
	return u >= 0 && u <= 1
}

// Float64 returns the underlying value.
func (u UnitScore) Float64() float64 {
	return float64(u)
}

// Clamp returns the score clamped to [0,1].
func (u UnitScore) Clamp() UnitScore {
	if u < 0 {
		return 0
	}
	if u > 1 {
		return 1
	}
	return u
}

// NewUnitScore creates a UnitScore, clamping out-of-range input.
func NewUnitScore(v float64) UnitScore {
	return UnitScore(v).Clamp()
}

// Percentage is a score in [0,100] (engagement, retention).
type Percentage float64

// IsValid checks that the value is within [0,100].
func (p Percentage) IsValid() bool {
	return p >= 0 && p <= 100
}

// Clamp returns the value clamped to [0,100].
func (p Percentage) Clamp() Percentage {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Float64 returns the underlying value.
func (p Percentage) Float64() float64 {
	return float64(p)
}

// ═══════════════════════════════════════════════════════════════════════════
// Snapshot Version
// ═══════════════════════════════════════════════════════════════════════════

// SnapshotVersion identifies a published emergent curriculum snapshot.
// Versions are monotonically increasing; readers compare versions to detect
// that a newer snapshot has been published.
type SnapshotVersion int64

// IsZero reports whether this is the "no snapshot yet" version.
func (v SnapshotVersion) IsZero() bool {
	return v == 0
}

// Next returns the following version.
func (v SnapshotVersion) Next() SnapshotVersion {
	return v + 1
}

// ═══════════════════════════════════════════════════════════════════════════
// Time helpers
// ═══════════════════════════════════════════════════════════════════════════

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock is a Clock that always returns the same instant. Test helper.
type FixedClock struct {
	Instant time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time {
	return c.Instant
}
