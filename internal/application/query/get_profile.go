// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/learner"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROFILE QUERY
// Возвращает текущий профиль ученика: темп, уверенность, стиль,
// вовлечённость. Читает сквозь кеш; отсутствие профиля - не ошибка,
// а нейтральный стартовый профиль.
// ══════════════════════════════════════════════════════════════════════════════

// GetProfileQuery содержит параметры запроса профиля.
type GetProfileQuery struct {
	// LearnerID - идентификатор ученика.
	LearnerID string

	// CourseID - курс.
	CourseID string
}

// Validate проверяет запрос.
func (q GetProfileQuery) Validate() error {
	if q.LearnerID == "" {
		return fmt.Errorf("get_profile: learner_id is required")
	}
	if q.CourseID == "" {
		return fmt.Errorf("get_profile: course_id is required")
	}
	return nil
}

// GetProfileResult содержит профиль.
type GetProfileResult struct {
	// Profile - профиль ученика.
	Profile *learner.Profile

	// IsDefault - профиль ещё не накоплен, возвращён нейтральный.
	IsDefault bool
}

// GetProfileHandler обрабатывает GetProfileQuery.
type GetProfileHandler struct {
	profiles learner.Repository
	cache    learner.ProfileCache
}

// NewGetProfileHandler создаёт обработчик.
func NewGetProfileHandler(profiles learner.Repository, cache learner.ProfileCache) *GetProfileHandler {
	return &GetProfileHandler{profiles: profiles, cache: cache}
}

// Handle выполняет запрос.
func (h *GetProfileHandler) Handle(ctx context.Context, q GetProfileQuery) (*GetProfileResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if h.cache != nil {
		if p, err := h.cache.Get(ctx, q.LearnerID, q.CourseID); err == nil {
			return &GetProfileResult{Profile: p}, nil
		}
	}

	p, err := h.profiles.Get(ctx, q.LearnerID, q.CourseID)
	if err != nil {
		if shared.IsNotFound(err) {
			return &GetProfileResult{
				Profile:   learner.NewProfile(q.LearnerID, q.CourseID),
				IsDefault: true,
			}, nil
		}
		return nil, fmt.Errorf("get_profile: %w", err)
	}

	if h.cache != nil {
		_ = h.cache.Set(ctx, p)
	}
	return &GetProfileResult{Profile: p}, nil
}
