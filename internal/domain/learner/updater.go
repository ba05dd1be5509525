package learner

import (
	"math"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/behavior"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE UPDATER
// Пересчитывает профиль из агрегата секции через экспоненциальное сглаживание:
// new = α·signal + (1−α)·old. Повторный вызов с тем же агрегатом сходится
// к сигналу, а не расходится.
// ══════════════════════════════════════════════════════════════════════════════

// DismissalPolicy определяет трактовку отклонения решения оркестратора.
type DismissalPolicy string

const (
	// DismissalNegative - отклонение считается отрицательным сигналом
	// (ученик не согласен с оценкой движка).
	DismissalNegative DismissalPolicy = "negative"

	// DismissalNeutral - отклонение не влияет на профиль
	// (ученик мог быть просто занят).
	DismissalNeutral DismissalPolicy = "neutral"
)

// UpdaterConfig содержит настраиваемые параметры пересчёта профиля.
// Пороги задокументированы здесь и не прошиты по коду.
type UpdaterConfig struct {
	// Alpha - коэффициент сглаживания (0,1]. Чем больше, тем быстрее
	// профиль реагирует на новые секции.
	Alpha float64

	// StyleAlpha - отдельный коэффициент для весов стиля обучения.
	StyleAlpha float64

	// ExpertMinSamples - минимальное число секций для уровня expert.
	ExpertMinSamples int

	// ExpertAccuracy - минимальная сглаженная точность для expert.
	ExpertAccuracy float64

	// ExpertMaxHintReliance - максимальная зависимость от подсказок для expert.
	ExpertMaxHintReliance float64

	// HighAccuracy - порог точности для high.
	HighAccuracy float64

	// ModerateAccuracy - порог точности для moderate.
	ModerateAccuracy float64

	// FastSpeedScore - порог сигнала темпа для fast.
	FastSpeedScore float64

	// SlowSpeedScore - порог сигнала темпа, ниже которого темп slow.
	SlowSpeedScore float64

	// DismissalPolicy - трактовка отклонённых решений.
	DismissalPolicy DismissalPolicy

	// FeedbackNudge - величина сдвига сигналов при обратной связи
	// по решениям (принятие/отклонение).
	FeedbackNudge float64
}

// DefaultUpdaterConfig возвращает параметры по умолчанию.
func DefaultUpdaterConfig() UpdaterConfig {
	return UpdaterConfig{
		Alpha:                 0.3,
		StyleAlpha:            0.2,
		ExpertMinSamples:      5,
		ExpertAccuracy:        0.9,
		ExpertMaxHintReliance: 0.1,
		HighAccuracy:          0.75,
		ModerateAccuracy:      0.5,
		FastSpeedScore:        0.65,
		SlowSpeedScore:        0.35,
		DismissalPolicy:       DismissalNegative,
		FeedbackNudge:         0.05,
	}
}

// Validate проверяет конфигурацию.
func (c UpdaterConfig) Validate() error {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return shared.ErrInvalidSmoothing
	}
	if c.StyleAlpha <= 0 || c.StyleAlpha > 1 {
		return shared.ErrInvalidSmoothing
	}
	return nil
}

// Updater пересчитывает профиль ученика из агрегатов поведения.
// Конфигурация неизменна после создания.
type Updater struct {
	cfg   UpdaterConfig
	clock shared.Clock
}

// NewUpdater создаёт Updater с указанной конфигурацией.
func NewUpdater(cfg UpdaterConfig) (*Updater, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Updater{cfg: cfg, clock: shared.SystemClock{}}, nil
}

// WithClock подменяет источник времени (для тестов).
func (u *Updater) WithClock(clock shared.Clock) *Updater {
	u.clock = clock
	return u
}

// Config возвращает текущую конфигурацию.
func (u *Updater) Config() UpdaterConfig {
	return u.cfg
}

// Update пересчитывает профиль по агрегату секции. Исходный профиль
// не изменяется; возвращается новый. Пустой (nil) prior трактуется
// как стартовый профиль.
func (u *Updater) Update(agg *behavior.SectionAggregate, prior *Profile) *Profile {
	if prior == nil {
		prior = NewProfile(agg.Scope.LearnerID, agg.Scope.CourseID)
	}
	p := prior.Clone()
	alpha := u.cfg.Alpha

	// Мгновенные сигналы секции. Отсутствующий сигнал (нет попыток,
	// нет запусков) не тянет сглаженное значение к нулю - он просто
	// пропускается.
	if acc, ok := agg.QuizAccuracy(); ok {
		p.Signals.QuizAccuracy = smooth(p.Signals.QuizAccuracy, acc, alpha)
	}
	if hints, ok := agg.HintReliance(); ok {
		p.Signals.HintReliance = smooth(p.Signals.HintReliance, hints, alpha)
	}
	if code, ok := agg.CodeSuccessRate(); ok {
		p.Signals.CodeSuccess = smooth(p.Signals.CodeSuccess, code, alpha)
	}
	if replay, ok := agg.ReplayRate(); ok {
		p.Signals.ReplayRate = smooth(p.Signals.ReplayRate, replay, alpha)
	}
	p.Signals.SpeedScore = smooth(p.Signals.SpeedScore, speedSignal(agg), alpha)
	p.Signals.SampleCount = prior.Signals.SampleCount + 1

	// Категориальные проекции.
	p.Confidence = u.projectConfidence(p.Signals)
	p.Pace = u.projectPace(p.Signals)

	// Вовлечённость и удержание.
	p.EngagementScore = clampPercent(smooth(p.EngagementScore, engagementSignal(agg), alpha))
	p.RetentionScore = clampPercent(smooth(p.RetentionScore, retentionSignal(agg, p.Signals), alpha))

	// Стиль обучения: сглаживаем к распределению форматов в секции,
	// затем перенормируем к сумме 1.
	p.LearningStyle = u.blendStyle(p.LearningStyle, styleSignal(agg))

	p.UpdatedAt = u.clock.Now()
	return p
}

// ApplyDecisionFeedback учитывает реакцию ученика на решение оркестратора.
// Принятие подтверждает оценку движка, отклонение - в зависимости от
// политики - либо сдвигает сигналы в противоположную сторону, либо
// игнорируется.
func (u *Updater) ApplyDecisionFeedback(prior *Profile, action string, accepted bool) *Profile {
	p := prior.Clone()
	nudge := u.cfg.FeedbackNudge

	if !accepted {
		if u.cfg.DismissalPolicy == DismissalNeutral {
			return p
		}
		// Отклонение замедляющих вмешательств - признак уверенности:
		// ученик считает, что справляется сам.
		switch action {
		case "slow_down", "inject_remedial", "add_practice", "suggest_break":
			p.Signals.QuizAccuracy = clamp01(p.Signals.QuizAccuracy + nudge)
			p.Signals.HintReliance = clamp01(p.Signals.HintReliance - nudge/2)
		case "accelerate", "skip_section":
			// Отклонение ускорения - ученик предпочитает текущий темп.
			p.Signals.SpeedScore = clamp01(p.Signals.SpeedScore - nudge)
		}
	} else {
		switch action {
		case "slow_down", "inject_remedial", "add_practice":
			// Принятие помощи подтверждает затруднение.
			p.Signals.QuizAccuracy = clamp01(p.Signals.QuizAccuracy - nudge/2)
		case "accelerate", "skip_section":
			p.Signals.SpeedScore = clamp01(p.Signals.SpeedScore + nudge)
		}
	}

	p.Confidence = u.projectConfidence(p.Signals)
	p.Pace = u.projectPace(p.Signals)
	p.UpdatedAt = u.clock.Now()
	return p
}

// projectConfidence проецирует сглаженные сигналы на уровень уверенности.
// Пороги срабатывают в порядке убывания: expert -> high -> moderate -> low.
func (u *Updater) projectConfidence(s Signals) Confidence {
	if s.QuizAccuracy > u.cfg.ExpertAccuracy &&
		s.HintReliance < u.cfg.ExpertMaxHintReliance &&
		s.SampleCount >= u.cfg.ExpertMinSamples {
		return ConfidenceExpert
	}
	if s.QuizAccuracy > u.cfg.HighAccuracy && s.HintReliance < 0.25 {
		return ConfidenceHigh
	}
	if s.QuizAccuracy > u.cfg.ModerateAccuracy {
		return ConfidenceModerate
	}
	return ConfidenceLow
}

// projectPace проецирует сигнал темпа на категорию.
func (u *Updater) projectPace(s Signals) Pace {
	if s.SpeedScore > u.cfg.FastSpeedScore {
		return PaceFast
	}
	if s.SpeedScore < u.cfg.SlowSpeedScore {
		return PaceSlow
	}
	return PaceModerate
}

// blendStyle сглаживает веса стиля и перенормирует их к сумме 1.
func (u *Updater) blendStyle(old, signal LearningStyle) LearningStyle {
	a := u.cfg.StyleAlpha
	blended := LearningStyle{
		Video:       smooth(old.Video, signal.Video, a),
		Code:        smooth(old.Code, signal.Code, a),
		Text:        smooth(old.Text, signal.Text, a),
		Interactive: smooth(old.Interactive, signal.Interactive, a),
	}
	return blended.Normalize()
}

// ─────────────────────────────────────────────────────────────────────────────
// Мгновенные сигналы секции.
// ─────────────────────────────────────────────────────────────────────────────

// speedSignal оценивает темп работы в секции в [0,1].
// Выше скорость воспроизведения, меньше пересмотров и пауз - быстрее темп.
func speedSignal(agg *behavior.SectionAggregate) float64 {
	score := 0.5

	if agg.PlaybackSpeed > 0 {
		// 1.0x -> 0, 2.0x -> +0.25, 0.5x -> -0.125
		score += (agg.PlaybackSpeed - 1.0) * 0.25
	}
	if rate, ok := agg.ReplayRate(); ok {
		// Пересмотры замедляют: 1 пересмотр/мин снимает 0.2.
		score -= math.Min(rate*0.2, 0.3)
	}
	if agg.EventCount > 0 {
		pauseShare := float64(agg.PauseCount) / float64(agg.EventCount)
		score -= pauseShare * 0.2
	}
	if agg.QuizAttempts() > 0 && agg.QuizTotalLatency > 0 {
		avg := agg.QuizTotalLatency.Seconds() / float64(agg.QuizAttempts())
		// Быстрые ответы (< 10с) поднимают сигнал, медленные (> 60с) опускают.
		switch {
		case avg < 10:
			score += 0.15
		case avg > 60:
			score -= 0.15
		}
	}
	return clamp01(score)
}

// engagementSignal оценивает вовлечённость в [0,100]:
// разнообразие и плотность взаимодействий.
func engagementSignal(agg *behavior.SectionAggregate) float64 {
	if agg.EventCount == 0 {
		return 0
	}
	kinds := 0.0
	if agg.QuizAttempts() > 0 {
		kinds++
	}
	if agg.CodeExecSuccess+agg.CodeExecFail+agg.CodeEditCount > 0 {
		kinds++
	}
	if agg.VideoWatchedRatio > 0 || agg.ReplayCount > 0 || agg.PauseCount > 0 {
		kinds++
	}
	if agg.PeerSolutionViews > 0 {
		kinds++
	}
	diversity := kinds / 4.0
	volume := math.Min(float64(agg.EventCount)/20.0, 1.0)
	return (0.6*diversity + 0.4*volume) * 100
}

// retentionSignal оценивает удержание материала в [0,100]:
// высокая точность без пересмотров и подсказок.
func retentionSignal(agg *behavior.SectionAggregate, s Signals) float64 {
	base := s.QuizAccuracy
	if acc, ok := agg.QuizAccuracy(); ok {
		base = acc
	}
	penalty := 0.0
	if rate, ok := agg.ReplayRate(); ok {
		penalty += math.Min(rate*0.2, 0.3)
	}
	if hints, ok := agg.HintReliance(); ok {
		penalty += hints * 0.3
	}
	return clamp01(base-penalty) * 100
}

// styleSignal строит мгновенное распределение форматов по событиям секции.
func styleSignal(agg *behavior.SectionAggregate) LearningStyle {
	video := float64(agg.PauseCount + agg.ReplayCount + agg.SeekCount)
	if agg.VideoWatchedRatio > 0 {
		video += agg.VideoWatchedRatio * 5
	}
	code := float64(agg.CodeExecSuccess + agg.CodeExecFail + agg.CodeEditCount + agg.HintsCode)
	interactive := float64(agg.QuizAttempts() + agg.HintsQuiz)
	// Текст не генерирует событий; время в секции сверх объяснённого
	// другими форматами относится к чтению.
	text := 1.0
	if agg.Completed && agg.EventCount <= 2 {
		text += 3
	}
	return LearningStyle{Video: video, Code: code, Text: text, Interactive: interactive}.Normalize()
}

// smooth - экспоненциальное сглаживание.
func smooth(old, signal, alpha float64) float64 {
	return alpha*signal + (1-alpha)*old
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
