package behavior

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SECTION BEHAVIOR AGGREGATE
// Скользящие счётчики по паре (ученик, секция). Создаётся при первом событии,
// растёт монотонно, не удаляется пока сессия активна.
// ══════════════════════════════════════════════════════════════════════════════

// ReplaySpan - один пересмотренный фрагмент видео.
type ReplaySpan struct {
	// At - момент пересмотра.
	At time.Time

	// Seconds - длительность фрагмента.
	Seconds float64
}

// SectionAggregate содержит накопленные сигналы поведения по одной секции.
// Чистое накопление: никакой логики решений здесь нет.
type SectionAggregate struct {
	// Scope - область агрегата (ученик, курс, глава, секция).
	Scope Scope

	// PauseCount - количество пауз видео.
	PauseCount int

	// ReplayCount - количество пересмотров.
	ReplayCount int

	// ReplaySpans - фрагменты пересмотров.
	ReplaySpans []ReplaySpan

	// SeekCount - количество перемоток.
	SeekCount int

	// QuizCorrect - количество верных ответов.
	QuizCorrect int

	// QuizIncorrect - количество неверных ответов.
	QuizIncorrect int

	// QuizTotalLatency - суммарное время ответов (для средней задержки).
	QuizTotalLatency time.Duration

	// QuizCompleted - квиз секции завершён.
	QuizCompleted bool

	// CodeExecSuccess - успешные запуски кода.
	CodeExecSuccess int

	// CodeExecFail - неудачные запуски кода.
	CodeExecFail int

	// CodeEditCount - количество правок кода.
	CodeEditCount int

	// HintsQuiz - подсказки, взятые в квизе.
	HintsQuiz int

	// HintsCode - подсказки, взятые в коде.
	HintsCode int

	// PeerSolutionViews - просмотры чужих решений.
	PeerSolutionViews int

	// VideoWatchedRatio - максимальная достигнутая доля просмотра видео.
	VideoWatchedRatio float64

	// PlaybackSpeed - последняя выбранная скорость воспроизведения.
	PlaybackSpeed float64

	// Completed - секция завершена.
	Completed bool

	// TimeSpent - время в секции (из события section_complete).
	TimeSpent time.Duration

	// EventCount - общее число свёрнутых событий.
	EventCount int

	// FirstEventAt - время первого события.
	FirstEventAt time.Time

	// LastEventAt - время последнего события.
	LastEventAt time.Time
}

// NewSectionAggregate создаёт нулевой агрегат для области.
func NewSectionAggregate(scope Scope) *SectionAggregate {
	return &SectionAggregate{
		Scope:         scope,
		PlaybackSpeed: 1.0,
	}
}

// apply сворачивает одно событие в агрегат. Событие уже провалидировано.
func (a *SectionAggregate) apply(e Event) {
	switch e.Kind {
	case KindVideoPause:
		a.PauseCount++
	case KindVideoReplay:
		a.ReplayCount++
		a.ReplaySpans = append(a.ReplaySpans, ReplaySpan{At: e.Timestamp, Seconds: e.Payload.SpanSeconds})
	case KindVideoSeek:
		a.SeekCount++
	case KindVideoSpeedChange:
		if e.Payload.Speed > 0 {
			a.PlaybackSpeed = e.Payload.Speed
		}
	case KindVideoProgress:
		if e.Payload.Progress > a.VideoWatchedRatio {
			a.VideoWatchedRatio = e.Payload.Progress
		}
	case KindQuizAttempt:
		if *e.Payload.Correct {
			a.QuizCorrect++
		} else {
			a.QuizIncorrect++
		}
		a.QuizTotalLatency += e.Payload.Latency
	case KindQuizHint:
		a.HintsQuiz++
	case KindQuizComplete:
		a.QuizCompleted = true
	case KindCodeExecution:
		if *e.Payload.Success {
			a.CodeExecSuccess++
		} else {
			a.CodeExecFail++
		}
	case KindCodeEdit:
		a.CodeEditCount++
	case KindCodeHint:
		a.HintsCode++
	case KindPeerSolutionView:
		a.PeerSolutionViews++
	case KindSectionComplete:
		a.Completed = true
		if e.Payload.TimeSpent > 0 {
			a.TimeSpent = e.Payload.TimeSpent
		}
	}

	a.EventCount++
	if a.FirstEventAt.IsZero() || e.Timestamp.Before(a.FirstEventAt) {
		a.FirstEventAt = e.Timestamp
	}
	if e.Timestamp.After(a.LastEventAt) {
		a.LastEventAt = e.Timestamp
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Производные сигналы.
// Используются Profile Updater'ом; сам агрегат решений не принимает.
// ─────────────────────────────────────────────────────────────────────────────

// QuizAttempts возвращает общее число попыток квиза.
func (a *SectionAggregate) QuizAttempts() int {
	return a.QuizCorrect + a.QuizIncorrect
}

// QuizAccuracy возвращает точность ответов: correct/(correct+incorrect).
// При отсутствии попыток возвращает 0 и false.
func (a *SectionAggregate) QuizAccuracy() (float64, bool) {
	attempts := a.QuizAttempts()
	if attempts == 0 {
		return 0, false
	}
	return float64(a.QuizCorrect) / float64(attempts), true
}

// HintReliance возвращает долю подсказок: hints/(attempts+hints).
func (a *SectionAggregate) HintReliance() (float64, bool) {
	hints := a.HintsQuiz + a.HintsCode
	attempts := a.QuizAttempts() + a.CodeExecSuccess + a.CodeExecFail
	if attempts+hints == 0 {
		return 0, false
	}
	return float64(hints) / float64(attempts+hints), true
}

// CodeSuccessRate возвращает долю успешных запусков кода.
func (a *SectionAggregate) CodeSuccessRate() (float64, bool) {
	runs := a.CodeExecSuccess + a.CodeExecFail
	if runs == 0 {
		return 0, false
	}
	return float64(a.CodeExecSuccess) / float64(runs), true
}

// ReplayRate возвращает частоту пересмотров: replays / минута в секции.
// Если время в секции неизвестно, используется интервал между первым
// и последним событием.
func (a *SectionAggregate) ReplayRate() (float64, bool) {
	d := a.TimeSpent
	if d <= 0 {
		d = a.LastEventAt.Sub(a.FirstEventAt)
	}
	if d <= 0 {
		return 0, false
	}
	return float64(a.ReplayCount) / d.Minutes(), true
}

// ReplaySeconds возвращает суммарную длительность пересмотров.
func (a *SectionAggregate) ReplaySeconds() float64 {
	var total float64
	for _, s := range a.ReplaySpans {
		total += s.Seconds
	}
	return total
}

// ActiveSpan возвращает интервал между первым и последним событием.
func (a *SectionAggregate) ActiveSpan() time.Duration {
	if a.FirstEventAt.IsZero() {
		return 0
	}
	return a.LastEventAt.Sub(a.FirstEventAt)
}

// Clone возвращает глубокую копию агрегата.
// Агрегатор отдаёт наружу только копии, чтобы владение оригиналом
// оставалось за сессией.
func (a *SectionAggregate) Clone() *SectionAggregate {
	cp := *a
	cp.ReplaySpans = make([]ReplaySpan, len(a.ReplaySpans))
	copy(cp.ReplaySpans, a.ReplaySpans)
	return &cp
}
