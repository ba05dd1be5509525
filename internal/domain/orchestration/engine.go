package orchestration

import (
	"fmt"
	"sort"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/behavior"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/learner"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/traversal"
)

// ══════════════════════════════════════════════════════════════════════════════
// DECISION ENGINE
// Конечный автомат сессии: Idle → Evaluating → Pending → Resolved → Idle.
// На каждое обновление поведения или проходимости движок в Idle прогоняет
// правила по убыванию приоритета; сработавшее правило с наивысшим
// приоритетом становится ожидающим решением. Пока решение ожидает, новые
// оценки подавляются - вытеснить может только строго больший приоритет.
// "Ни одно правило не сработало" - нормальный тихий исход, не ошибка.
//
// Движок не потокобезопасен: сессия обрабатывает события строго
// по одному, сериализацию обеспечивает слой приложения.
// ══════════════════════════════════════════════════════════════════════════════

// State - состояние автомата решений.
type State string

const (
	StateIdle       State = "idle"
	StateEvaluating State = "evaluating"
	StatePending    State = "pending"
	StateResolved   State = "resolved"
)

// EvaluationInput - снимок сигналов сессии на момент оценки.
type EvaluationInput struct {
	// SectionID - текущая секция.
	SectionID string

	// Aggregate - поведенческий агрегат секции (может быть nil).
	Aggregate *behavior.SectionAggregate

	// Profile - актуальный профиль (может быть nil).
	Profile *learner.Profile

	// Traversability - оценка текущего узла (может быть nil).
	Traversability *traversal.Score
}

// Rule - одно правило вмешательства.
type Rule struct {
	// Name - имя правила для журнала решений.
	Name string

	// Action - предлагаемое действие.
	Action Action

	// Priority - приоритет [0,10].
	Priority float64

	// Fires возвращает обоснование, если правило сработало.
	Fires func(in EvaluationInput, s *sessionSignals) (string, bool)
}

// sessionSignals - накапливаемые движком сигналы между оценками.
type sessionSignals struct {
	// highStruggleStreak - подряд идущие оценки с высоким
	// предсказанным затруднением.
	highStruggleStreak int

	// lastEventAt - время последней оценки.
	lastEventAt time.Time

	// sessionStartedAt - время первой оценки.
	sessionStartedAt time.Time
}

// EngineConfig - пороги правил и антиспам.
type EngineConfig struct {
	// Cooldown - минимальный интервал между решениями одного действия.
	Cooldown time.Duration

	// StruggleThreshold - предсказанное затруднение, считающееся высоким.
	StruggleThreshold float64

	// SustainedEvents - сколько подряд оценок затруднение должно
	// держаться, чтобы правило сработало.
	SustainedEvents int

	// CelebrateStreak - подряд верных ответов без подсказок
	// для празднования.
	CelebrateStreak int

	// HintRelianceForRemedial - зависимость от подсказок, при которой
	// вместо замедления предлагается дополнительный материал.
	HintRelianceForRemedial float64

	// CodeFailuresForPeer - неудачные запуски кода подряд для
	// предложения чужого решения.
	CodeFailuresForPeer int

	// BreakAfter - непрерывная активность, после которой предлагается
	// перерыв.
	BreakAfter time.Duration

	// CelebrationTTL - время жизни сигнала празднования.
	CelebrationTTL time.Duration
}

// DefaultEngineConfig возвращает значения по умолчанию.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Cooldown:                5 * time.Minute,
		StruggleThreshold:       0.6,
		SustainedEvents:         3,
		CelebrateStreak:         5,
		HintRelianceForRemedial: 0.3,
		CodeFailuresForPeer:     4,
		BreakAfter:              50 * time.Minute,
		CelebrationTTL:          30 * time.Second,
	}
}

// Engine - движок решений одной сессии.
type Engine struct {
	cfg     EngineConfig
	clock   shared.Clock
	rules   []Rule
	state   State
	pending *Decision
	signals sessionSignals

	learnerID string
	sessionID string

	// lastProposed - время последнего предложения по каждому действию.
	lastProposed map[Action]time.Time
}

// NewEngine создаёт движок в состоянии Idle со стандартным набором правил.
func NewEngine(learnerID, sessionID string, cfg EngineConfig, clock shared.Clock) *Engine {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	e := &Engine{
		cfg:          cfg,
		clock:        clock,
		state:        StateIdle,
		learnerID:    learnerID,
		sessionID:    sessionID,
		lastProposed: make(map[Action]time.Time),
	}
	e.rules = defaultRules(cfg)
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority > e.rules[j].Priority
	})
	return e
}

// State возвращает текущее состояние автомата.
func (e *Engine) State() State {
	return e.state
}

// Pending возвращает копию ожидающего решения.
func (e *Engine) Pending() (*Decision, bool) {
	if e.pending == nil {
		return nil, false
	}
	return e.pending.Clone(), true
}

// Evaluate прогоняет правила по снимку сигналов. Возвращает новое
// ожидающее решение, если оно появилось. Отсутствие решения - не ошибка.
// В Pending оценка подавляется, кроме строгого вытеснения.
func (e *Engine) Evaluate(in EvaluationInput) (*Decision, bool) {
	now := e.clock.Now()
	e.track(in, now)

	// Переход Idle → Evaluating → (Pending | Idle) атомарен для
	// вызывающего: снаружи Evaluating не наблюдаем.
	e.state = StateEvaluating
	fired, ok := e.fire(in, now)
	if !ok {
		e.restoreAfterEvaluation()
		return nil, false
	}

	if e.pending != nil {
		if fired.Priority <= e.pending.Priority {
			e.state = StatePending
			return nil, false
		}
		// Строгое вытеснение: текущее решение снимается без участия
		// ученика.
		e.pending.resolve(ResolutionPreempted, now)
	}

	e.pending = fired
	e.state = StatePending
	e.lastProposed[fired.Action] = now
	return fired.Clone(), true
}

// Accept принимает ожидающее решение и возвращает автомат в Idle.
func (e *Engine) Accept(decisionID string) (*Decision, error) {
	return e.resolvePending(decisionID, ResolutionAccepted)
}

// Dismiss отклоняет ожидающее решение и возвращает автомат в Idle.
func (e *Engine) Dismiss(decisionID string) (*Decision, error) {
	return e.resolvePending(decisionID, ResolutionDismissed)
}

func (e *Engine) resolvePending(decisionID string, r Resolution) (*Decision, error) {
	if e.pending == nil {
		return nil, shared.ErrDecisionNotPending
	}
	if e.pending.ID != decisionID {
		return nil, fmt.Errorf("%w: %s", shared.ErrDecisionNotFound, decisionID)
	}
	e.state = StateResolved
	e.pending.resolve(r, e.clock.Now())
	resolved := e.pending
	e.pending = nil
	e.state = StateIdle
	return resolved, nil
}

// CelebrationTTL возвращает время жизни сигнала празднования.
func (e *Engine) CelebrationTTL() time.Duration {
	return e.cfg.CelebrationTTL
}

func (e *Engine) restoreAfterEvaluation() {
	if e.pending != nil {
		e.state = StatePending
		return
	}
	e.state = StateIdle
}

// track обновляет накапливаемые сигналы до прогона правил.
func (e *Engine) track(in EvaluationInput, now time.Time) {
	if e.signals.sessionStartedAt.IsZero() {
		e.signals.sessionStartedAt = now
	}
	e.signals.lastEventAt = now
	if in.Traversability != nil && in.Traversability.PredictedStruggle > e.cfg.StruggleThreshold {
		e.signals.highStruggleStreak++
	} else {
		e.signals.highStruggleStreak = 0
	}
}

// fire возвращает решение первого сработавшего правила в порядке
// убывания приоритета, пропуская действия в остывании.
func (e *Engine) fire(in EvaluationInput, now time.Time) (*Decision, bool) {
	for _, rule := range e.rules {
		if last, ok := e.lastProposed[rule.Action]; ok && now.Sub(last) < e.cfg.Cooldown {
			continue
		}
		reason, ok := rule.Fires(in, &e.signals)
		if !ok {
			continue
		}
		return NewDecision(e.learnerID, e.sessionID, rule.Action, reason, rule.Priority, in.SectionID, now), true
	}
	return nil, false
}

// defaultRules - стандартный набор правил по убыванию приоритета.
func defaultRules(cfg EngineConfig) []Rule {
	return []Rule{
		{
			Name:     "perfect_quiz_celebration",
			Action:   ActionCelebrateProgress,
			Priority: 9,
			Fires: func(in EvaluationInput, _ *sessionSignals) (string, bool) {
				a := in.Aggregate
				if a == nil {
					return "", false
				}
				if a.QuizCorrect >= cfg.CelebrateStreak && a.QuizIncorrect == 0 &&
					a.HintsQuiz == 0 && a.ReplayCount == 0 {
					return fmt.Sprintf("%d correct answers in a row without hints", a.QuizCorrect), true
				}
				return "", false
			},
		},
		{
			Name:     "sustained_struggle_remedial",
			Action:   ActionInjectRemedial,
			Priority: 7,
			Fires: func(in EvaluationInput, s *sessionSignals) (string, bool) {
				if s.highStruggleStreak < cfg.SustainedEvents || in.Aggregate == nil {
					return "", false
				}
				reliance, ok := in.Aggregate.HintReliance()
				if !ok || reliance < cfg.HintRelianceForRemedial {
					return "", false
				}
				return "sustained struggle with heavy hint use, extra material should help", true
			},
		},
		{
			Name:     "sustained_struggle_slow_down",
			Action:   ActionSlowDown,
			Priority: 7,
			Fires: func(in EvaluationInput, s *sessionSignals) (string, bool) {
				if s.highStruggleStreak < cfg.SustainedEvents {
					return "", false
				}
				return fmt.Sprintf("predicted struggle stayed high across %d updates", s.highStruggleStreak), true
			},
		},
		{
			Name:     "repeated_code_failures_peer",
			Action:   ActionSuggestPeerSolution,
			Priority: 6,
			Fires: func(in EvaluationInput, _ *sessionSignals) (string, bool) {
				a := in.Aggregate
				if a == nil || a.CodeExecSuccess > 0 || a.CodeExecFail < cfg.CodeFailuresForPeer {
					return "", false
				}
				return fmt.Sprintf("%d failed runs without success, a peer solution may unblock", a.CodeExecFail), true
			},
		},
		{
			Name:     "high_performer_accelerate",
			Action:   ActionAccelerate,
			Priority: 5,
			Fires: func(in EvaluationInput, s *sessionSignals) (string, bool) {
				if in.Profile == nil || !in.Profile.IsHighPerformer() {
					return "", false
				}
				if in.Traversability != nil && in.Traversability.PredictedStruggle > 0.3 {
					return "", false
				}
				if s.highStruggleStreak > 0 {
					return "", false
				}
				return "fast pace and high confidence with low predicted struggle", true
			},
		},
		{
			Name:     "long_session_break",
			Action:   ActionSuggestBreak,
			Priority: 4,
			Fires: func(_ EvaluationInput, s *sessionSignals) (string, bool) {
				if s.sessionStartedAt.IsZero() || s.lastEventAt.Sub(s.sessionStartedAt) < cfg.BreakAfter {
					return "", false
				}
				return "long continuous activity, a short break improves retention", true
			},
		},
		{
			Name:     "shaky_quiz_add_practice",
			Action:   ActionAddPractice,
			Priority: 3,
			Fires: func(in EvaluationInput, _ *sessionSignals) (string, bool) {
				a := in.Aggregate
				if a == nil || !a.QuizCompleted {
					return "", false
				}
				accuracy, ok := a.QuizAccuracy()
				if !ok || accuracy >= 0.7 || accuracy < 0.4 {
					return "", false
				}
				return fmt.Sprintf("quiz finished at %.0f%% accuracy, extra practice should consolidate", accuracy*100), true
			},
		},
	}
}
