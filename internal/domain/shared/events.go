// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import "time"

// EventType names a kind of domain event.
type EventType string

// Every signal the engine emits. Handlers subscribe by these names, and the
// Redis bus carries them between instances.
const (
	// Behavior events
	EventBehaviorRecorded EventType = "behavior.recorded"
	EventSectionCompleted EventType = "behavior.section_completed"

	// Learner profile events
	EventProfileUpdated    EventType = "learner.profile_updated"
	EventConfidenceShifted EventType = "learner.confidence_shifted"

	// Collective intelligence events
	EventCurriculumAggregated EventType = "collective.curriculum_aggregated"
	EventSnapshotStale        EventType = "collective.snapshot_stale"

	// Pathway events
	EventPathRecomputed EventType = "pathway.recomputed"

	// Orchestration events
	EventDecisionProposed  EventType = "orchestration.decision_proposed"
	EventDecisionAccepted  EventType = "orchestration.decision_accepted"
	EventDecisionDismissed EventType = "orchestration.decision_dismissed"
	EventCelebration       EventType = "orchestration.celebration"

	// Session events
	EventSessionStarted EventType = "session.started"
	EventSessionClosed  EventType = "session.closed"
)

// Event is what the buses carry. Payload flattens the typed fields into a
// map so remote instances can consume events without the concrete type.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
	Payload() map[string]interface{}
}

// BaseEvent carries the fields every event shares; concrete events embed it.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
}

func (e BaseEvent) EventType() EventType { return e.Type }

func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

func (e BaseEvent) AggregateID() string { return e.AggregateId }

// NewBaseEvent stamps a fresh event with the current time.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Behavior Events
// ═══════════════════════════════════════════════════════════════════════════

// BehaviorRecordedEvent is emitted after a behavior event has been folded
// into its section aggregate.
type BehaviorRecordedEvent struct {
	BaseEvent
	LearnerID string `json:"learner_id"`
	SectionID string `json:"section_id"`
	Kind      string `json:"kind"`
}

func (e BehaviorRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id": e.LearnerID,
		"section_id": e.SectionID,
		"kind":       e.Kind,
	}
}

func NewBehaviorRecordedEvent(learnerID, sectionID, kind string) BehaviorRecordedEvent {
	return BehaviorRecordedEvent{
		BaseEvent: NewBaseEvent(EventBehaviorRecorded, learnerID),
		LearnerID: learnerID,
		SectionID: sectionID,
		Kind:      kind,
	}
}

// SectionCompletedEvent is emitted when a learner finishes a section.
type SectionCompletedEvent struct {
	BaseEvent
	LearnerID string        `json:"learner_id"`
	ChapterID string        `json:"chapter_id"`
	SectionID string        `json:"section_id"`
	TimeSpent time.Duration `json:"time_spent"`
}

func (e SectionCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id": e.LearnerID,
		"chapter_id": e.ChapterID,
		"section_id": e.SectionID,
		"time_spent": e.TimeSpent.String(),
	}
}

func NewSectionCompletedEvent(learnerID, chapterID, sectionID string, timeSpent time.Duration) SectionCompletedEvent {
	return SectionCompletedEvent{
		BaseEvent: NewBaseEvent(EventSectionCompleted, learnerID),
		LearnerID: learnerID,
		ChapterID: chapterID,
		SectionID: sectionID,
		TimeSpent: timeSpent,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Learner Profile Events
// ═══════════════════════════════════════════════════════════════════════════

// ProfileUpdatedEvent is emitted when the learner profile is recomputed.
type ProfileUpdatedEvent struct {
	BaseEvent
	LearnerID  string  `json:"learner_id"`
	Pace       string  `json:"pace"`
	Confidence string  `json:"confidence"`
	Engagement float64 `json:"engagement"`
	Retention  float64 `json:"retention"`
}

func (e ProfileUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id": e.LearnerID,
		"pace":       e.Pace,
		"confidence": e.Confidence,
		"engagement": e.Engagement,
		"retention":  e.Retention,
	}
}

func NewProfileUpdatedEvent(learnerID, pace, confidence string, engagement, retention float64) ProfileUpdatedEvent {
	return ProfileUpdatedEvent{
		BaseEvent:  NewBaseEvent(EventProfileUpdated, learnerID),
		LearnerID:  learnerID,
		Pace:       pace,
		Confidence: confidence,
		Engagement: engagement,
		Retention:  retention,
	}
}

// ConfidenceShiftedEvent is emitted when the categorical confidence projection changes.
type ConfidenceShiftedEvent struct {
	BaseEvent
	LearnerID     string `json:"learner_id"`
	CourseID      string `json:"course_id"`
	OldConfidence string `json:"old_confidence"`
	NewConfidence string `json:"new_confidence"`
}

func (e ConfidenceShiftedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id":     e.LearnerID,
		"course_id":      e.CourseID,
		"old_confidence": e.OldConfidence,
		"new_confidence": e.NewConfidence,
	}
}

func NewConfidenceShiftedEvent(learnerID, courseID, oldC, newC string) ConfidenceShiftedEvent {
	return ConfidenceShiftedEvent{
		BaseEvent:     NewBaseEvent(EventConfidenceShifted, learnerID),
		LearnerID:     learnerID,
		CourseID:      courseID,
		OldConfidence: oldC,
		NewConfidence: newC,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Collective Intelligence Events
// ═══════════════════════════════════════════════════════════════════════════

// CurriculumAggregatedEvent is emitted when a new emergent curriculum
// snapshot has been computed and published.
type CurriculumAggregatedEvent struct {
	BaseEvent
	SnapshotVersion   int64   `json:"snapshot_version"`
	TotalLearners     int     `json:"total_learners"`
	PrerequisiteCount int     `json:"prerequisite_count"`
	StruggleCount     int     `json:"struggle_count"`
	OverallConfidence float64 `json:"overall_confidence"`
}

func (e CurriculumAggregatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"snapshot_version":   e.SnapshotVersion,
		"total_learners":     e.TotalLearners,
		"prerequisite_count": e.PrerequisiteCount,
		"struggle_count":     e.StruggleCount,
		"overall_confidence": e.OverallConfidence,
	}
}

func NewCurriculumAggregatedEvent(version int64, learners, prereqs, struggles int, confidence float64) CurriculumAggregatedEvent {
	return CurriculumAggregatedEvent{
		BaseEvent:         NewBaseEvent(EventCurriculumAggregated, "collective"),
		SnapshotVersion:   version,
		TotalLearners:     learners,
		PrerequisiteCount: prereqs,
		StruggleCount:     struggles,
		OverallConfidence: confidence,
	}
}

// SnapshotStaleEvent is emitted when the health check finds a curriculum
// snapshot past its maximum age. Sessions on that course are already
// degrading to static scoring; the event exists for operator alerting.
type SnapshotStaleEvent struct {
	BaseEvent
	CourseID        string `json:"course_id"`
	SnapshotVersion int64  `json:"snapshot_version"`
	AgeSeconds      int64  `json:"age_seconds"`
	MaxAgeSeconds   int64  `json:"max_age_seconds"`
}

func (e SnapshotStaleEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"course_id":        e.CourseID,
		"snapshot_version": e.SnapshotVersion,
		"age_seconds":      e.AgeSeconds,
		"max_age_seconds":  e.MaxAgeSeconds,
	}
}

func NewSnapshotStaleEvent(courseID string, version int64, age, maxAge time.Duration) SnapshotStaleEvent {
	return SnapshotStaleEvent{
		BaseEvent:       NewBaseEvent(EventSnapshotStale, courseID),
		CourseID:        courseID,
		SnapshotVersion: version,
		AgeSeconds:      int64(age.Seconds()),
		MaxAgeSeconds:   int64(maxAge.Seconds()),
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Orchestration Events
// ═══════════════════════════════════════════════════════════════════════════

// DecisionProposedEvent is emitted when the engine surfaces a pending decision.
type DecisionProposedEvent struct {
	BaseEvent
	DecisionID string `json:"decision_id"`
	LearnerID  string `json:"learner_id"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
	Priority   int    `json:"priority"`
}

func (e DecisionProposedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"decision_id": e.DecisionID,
		"learner_id":  e.LearnerID,
		"action":      e.Action,
		"reason":      e.Reason,
		"priority":    e.Priority,
	}
}

func NewDecisionProposedEvent(decisionID, learnerID, action, reason string, priority int) DecisionProposedEvent {
	return DecisionProposedEvent{
		BaseEvent:  NewBaseEvent(EventDecisionProposed, learnerID),
		DecisionID: decisionID,
		LearnerID:  learnerID,
		Action:     action,
		Reason:     reason,
		Priority:   priority,
	}
}

// DecisionResolvedEvent is emitted when a pending decision is accepted or dismissed.
type DecisionResolvedEvent struct {
	BaseEvent
	DecisionID string `json:"decision_id"`
	LearnerID  string `json:"learner_id"`
	Action     string `json:"action"`
	Accepted   bool   `json:"accepted"`
}

func (e DecisionResolvedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"decision_id": e.DecisionID,
		"learner_id":  e.LearnerID,
		"action":      e.Action,
		"accepted":    e.Accepted,
	}
}

func NewDecisionResolvedEvent(decisionID, learnerID, action string, accepted bool) DecisionResolvedEvent {
	t := EventDecisionDismissed
	if accepted {
		t = EventDecisionAccepted
	}
	return DecisionResolvedEvent{
		BaseEvent:  NewBaseEvent(t, learnerID),
		DecisionID: decisionID,
		LearnerID:  learnerID,
		Action:     action,
		Accepted:   accepted,
	}
}

// CelebrationEvent is emitted as the side effect of an accepted
// celebrate_progress decision. It carries an auto-expiry deadline.
type CelebrationEvent struct {
	BaseEvent
	LearnerID string    `json:"learner_id"`
	SectionID string    `json:"section_id"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e CelebrationEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id": e.LearnerID,
		"section_id": e.SectionID,
		"message":    e.Message,
		"expires_at": e.ExpiresAt.Format(time.RFC3339),
	}
}

func NewCelebrationEvent(learnerID, sectionID, message string, ttl time.Duration) CelebrationEvent {
	return CelebrationEvent{
		BaseEvent: NewBaseEvent(EventCelebration, learnerID),
		LearnerID: learnerID,
		SectionID: sectionID,
		Message:   message,
		ExpiresAt: time.Now().Add(ttl),
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Pathway Events
// ═══════════════════════════════════════════════════════════════════════════

// PathRecomputedEvent is emitted when a learner's adaptive path is rebuilt.
type PathRecomputedEvent struct {
	BaseEvent
	LearnerID  string `json:"learner_id"`
	PathID     string `json:"path_id"`
	Derivation string `json:"derivation"`
	NodeCount  int    `json:"node_count"`
}

func (e PathRecomputedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id": e.LearnerID,
		"path_id":    e.PathID,
		"derivation": e.Derivation,
		"node_count": e.NodeCount,
	}
}

func NewPathRecomputedEvent(learnerID, pathID, derivation string, nodeCount int) PathRecomputedEvent {
	return PathRecomputedEvent{
		BaseEvent:  NewBaseEvent(EventPathRecomputed, learnerID),
		LearnerID:  learnerID,
		PathID:     pathID,
		Derivation: derivation,
		NodeCount:  nodeCount,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Session Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionStartedEvent is emitted when a learner session begins.
type SessionStartedEvent struct {
	BaseEvent
	LearnerID string `json:"learner_id"`
	SessionID string `json:"session_id"`
	CourseID  string `json:"course_id"`
}

func (e SessionStartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id": e.LearnerID,
		"session_id": e.SessionID,
		"course_id":  e.CourseID,
	}
}

func NewSessionStartedEvent(learnerID, sessionID, courseID string) SessionStartedEvent {
	return SessionStartedEvent{
		BaseEvent: NewBaseEvent(EventSessionStarted, sessionID),
		LearnerID: learnerID,
		SessionID: sessionID,
		CourseID:  courseID,
	}
}

// SessionClosedEvent is emitted when a learner session ends. Carries the
// session duration so outcome reconciliation can record timing.
type SessionClosedEvent struct {
	BaseEvent
	LearnerID string        `json:"learner_id"`
	SessionID string        `json:"session_id"`
	CourseID  string        `json:"course_id"`
	Duration  time.Duration `json:"duration"`
}

func (e SessionClosedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id":       e.LearnerID,
		"session_id":       e.SessionID,
		"course_id":        e.CourseID,
		"duration_seconds": e.Duration.Seconds(),
	}
}

func NewSessionClosedEvent(learnerID, sessionID, courseID string, duration time.Duration) SessionClosedEvent {
	return SessionClosedEvent{
		BaseEvent: NewBaseEvent(EventSessionClosed, sessionID),
		LearnerID: learnerID,
		SessionID: sessionID,
		CourseID:  courseID,
		Duration:  duration,
	}
}

// EventHandler consumes one event; a non-nil error is logged by the bus.
type EventHandler func(event Event) error

// EventPublisher is the write half of a bus. The worker only needs this.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber is the read half of a bus.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// EventBus is the full bus surface the API server wires up.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
