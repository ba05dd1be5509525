package orchestration

import (
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// ORCHESTRATION DECISION
// Единица вмешательства: одно предложение ученику (замедлиться, пропустить,
// отметить прогресс). В любой момент у сессии не более одного ожидающего
// решения; принятие и отклонение возвращают сигнал в профиль.
// ══════════════════════════════════════════════════════════════════════════════

// Action - тип вмешательства.
type Action string

const (
	ActionInjectRemedial      Action = "inject_remedial"
	ActionSkipSection         Action = "skip_section"
	ActionSuggestPeerSolution Action = "suggest_peer_solution"
	ActionSlowDown            Action = "slow_down"
	ActionAccelerate          Action = "accelerate"
	ActionReorderSections     Action = "reorder_sections"
	ActionAddPractice         Action = "add_practice"
	ActionReduceContent       Action = "reduce_content"
	ActionExpandContent       Action = "expand_content"
	ActionSuggestBreak        Action = "suggest_break"
	ActionCelebrateProgress   Action = "celebrate_progress"
)

// IsValid проверяет принадлежность к известным действиям.
func (a Action) IsValid() bool {
	switch a {
	case ActionInjectRemedial, ActionSkipSection, ActionSuggestPeerSolution,
		ActionSlowDown, ActionAccelerate, ActionReorderSections,
		ActionAddPractice, ActionReduceContent, ActionExpandContent,
		ActionSuggestBreak, ActionCelebrateProgress:
		return true
	}
	return false
}

// Resolution - исход решения.
type Resolution string

const (
	ResolutionAccepted  Resolution = "accepted"
	ResolutionDismissed Resolution = "dismissed"
	ResolutionExpired   Resolution = "expired"
	ResolutionPreempted Resolution = "preempted"
)

// Decision - одно предложенное вмешательство.
type Decision struct {
	// ID - идентификатор решения.
	ID string

	// LearnerID и SessionID - адресат.
	LearnerID string
	SessionID string

	// Action - тип вмешательства.
	Action Action

	// Reason - человекочитаемое обоснование.
	Reason string

	// Priority - приоритет [0,10]. Выше - важнее; вытеснение требует
	// строго большего приоритета.
	Priority float64

	// SectionID - секция, к которой относится решение (может быть пустой).
	SectionID string

	// ProposedAt - время предложения.
	ProposedAt time.Time

	// ResolvedAt - время разрешения (нулевое, пока решение ожидает).
	ResolvedAt time.Time

	// Resolution - исход (пустой, пока решение ожидает).
	Resolution Resolution
}

// NewDecision создаёт ожидающее решение.
func NewDecision(learnerID, sessionID string, action Action, reason string, priority float64, sectionID string, at time.Time) *Decision {
	return &Decision{
		ID:         uuid.NewString(),
		LearnerID:  learnerID,
		SessionID:  sessionID,
		Action:     action,
		Reason:     reason,
		Priority:   priority,
		SectionID:  sectionID,
		ProposedAt: at,
	}
}

// IsResolved сообщает, разрешено ли решение.
func (d *Decision) IsResolved() bool {
	return d.Resolution != ""
}

// resolve фиксирует исход. Идемпотентность обеспечивает движок.
func (d *Decision) resolve(r Resolution, at time.Time) {
	d.Resolution = r
	d.ResolvedAt = at
}

// Clone возвращает копию решения.
func (d *Decision) Clone() *Decision {
	cp := *d
	return &cp
}
