package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/application/command"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/application/query"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Lumen Adaptive Hub API",
		"version":     "v1",
		"description": "Adaptive learning orchestration and collective intelligence engine",
		"uptime":      timeutil.FormatDuration(s.Uptime()),
		"endpoints": map[string]string{
			"health":   "/health",
			"events":   "/api/v1/events",
			"path":     "/api/v1/learners/{id}/courses/{courseID}/path",
			"insights": "/api/v1/courses/{id}/insights",
		},
	}

	writeJSON(w, r, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, r, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, r, http.StatusOK, status)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT INGESTION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// recordEventRequest is the JSON body of POST /api/v1/events.
type recordEventRequest struct {
	LearnerID string `json:"learner_id"`
	CourseID  string `json:"course_id"`
	ChapterID string `json:"chapter_id"`
	SectionID string `json:"section_id"`
	Kind      string `json:"kind"`

	Correct        *bool   `json:"correct,omitempty"`
	LatencyMS      int64   `json:"latency_ms,omitempty"`
	Success        *bool   `json:"success,omitempty"`
	SpanSeconds    float64 `json:"span_seconds,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
	Progress       float64 `json:"progress,omitempty"`
	TimeSpentMS    int64   `json:"time_spent_ms,omitempty"`
	PeerSolutionID string  `json:"peer_solution_id,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`
}

// handleRecordEvent handles POST /api/v1/events
func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	if s.deps.RecordEventHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Event handler not configured")
		return
	}

	var req recordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Malformed JSON body")
		return
	}

	cmd := command.RecordEventCommand{
		LearnerID:      req.LearnerID,
		CourseID:       req.CourseID,
		ChapterID:      req.ChapterID,
		SectionID:      req.SectionID,
		Kind:           req.Kind,
		Correct:        req.Correct,
		LatencyMS:      req.LatencyMS,
		Success:        req.Success,
		SpanSeconds:    req.SpanSeconds,
		Speed:          req.Speed,
		Progress:       req.Progress,
		TimeSpentMS:    req.TimeSpentMS,
		PeerSolutionID: req.PeerSolutionID,
		Timestamp:      req.Timestamp,
	}

	result, err := s.deps.RecordEventHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to record event")
		return
	}

	writeJSON(w, r, http.StatusAccepted, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION & DECISION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleAcceptDecision handles POST /api/v1/sessions/{id}/decisions/{decisionID}/accept
func (s *Server) handleAcceptDecision(w http.ResponseWriter, r *http.Request) {
	s.resolveDecision(w, r, true)
}

// handleDismissDecision handles POST /api/v1/sessions/{id}/decisions/{decisionID}/dismiss
func (s *Server) handleDismissDecision(w http.ResponseWriter, r *http.Request) {
	s.resolveDecision(w, r, false)
}

func (s *Server) resolveDecision(w http.ResponseWriter, r *http.Request, accepted bool) {
	if s.deps.ResolveDecisionHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Decision handler not configured")
		return
	}

	cmd := command.ResolveDecisionCommand{
		SessionID:  r.PathValue("id"),
		DecisionID: r.PathValue("decisionID"),
		Accepted:   accepted,
	}

	result, err := s.deps.ResolveDecisionHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to resolve decision")
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// handleCloseSession handles DELETE /api/v1/sessions/{id}
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.CloseSessionHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Session handler not configured")
		return
	}

	cmd := command.CloseSessionCommand{SessionID: r.PathValue("id")}

	if err := s.deps.CloseSessionHandler.Handle(r.Context(), cmd); err != nil {
		s.writeDomainError(w, r, err, "failed to close session")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "closed"})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER READ HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetProfile handles GET /api/v1/learners/{id}/courses/{courseID}/profile
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetProfileHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Profile handler not configured")
		return
	}

	q := query.GetProfileQuery{
		LearnerID: r.PathValue("id"),
		CourseID:  r.PathValue("courseID"),
	}

	result, err := s.deps.GetProfileHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get profile")
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// handleGetAdaptivePath handles GET /api/v1/learners/{id}/courses/{courseID}/path
func (s *Server) handleGetAdaptivePath(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetAdaptivePathHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Path handler not configured")
		return
	}

	q := query.GetAdaptivePathQuery{
		LearnerID: r.PathValue("id"),
		CourseID:  r.PathValue("courseID"),
	}

	result, err := s.deps.GetAdaptivePathHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to build adaptive path")
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// handleGetTraversability handles GET /api/v1/learners/{id}/courses/{courseID}/traversability
func (s *Server) handleGetTraversability(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetTraversabilityHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Traversability handler not configured")
		return
	}

	q := query.GetTraversabilityQuery{
		LearnerID: r.PathValue("id"),
		CourseID:  r.PathValue("courseID"),
		ChapterID: getQueryParam(r, "chapter", ""),
		SectionID: getQueryParam(r, "section", ""),
	}

	result, err := s.deps.GetTraversabilityHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to score node")
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// handleGetDecisionHistory handles GET /api/v1/learners/{id}/decisions
func (s *Server) handleGetDecisionHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetDecisionHistoryHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Decision history handler not configured")
		return
	}

	q := query.GetDecisionHistoryQuery{
		LearnerID: r.PathValue("id"),
		Limit:     getQueryParamInt(r, "limit", 20),
	}

	result, err := s.deps.GetDecisionHistoryHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get decision history")
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// handleGetCelebrations handles GET /api/v1/learners/{id}/celebrations
func (s *Server) handleGetCelebrations(w http.ResponseWriter, r *http.Request) {
	if s.deps.Celebrations == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Celebration store not configured")
		return
	}

	learnerID := r.PathValue("id")
	if learnerID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Learner ID is required")
		return
	}

	messages, err := s.deps.Celebrations.Active(r.Context(), learnerID)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get celebrations")
		return
	}
	if messages == nil {
		messages = []string{}
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"learner_id":   learnerID,
		"celebrations": messages,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE AUTHOR HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetCurriculumInsights handles GET /api/v1/courses/{id}/insights
func (s *Server) handleGetCurriculumInsights(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetCurriculumInsightsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Insights handler not configured")
		return
	}

	maxAgeMinutes := getQueryParamInt(r, "max_age_minutes", 0)

	q := query.GetCurriculumInsightsQuery{
		CourseID: r.PathValue("id"),
		MaxAge:   time.Duration(maxAgeMinutes) * time.Minute,
	}

	result, err := s.deps.GetCurriculumInsightsHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get curriculum insights")
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps domain errors onto HTTP statuses. Only infrastructure
// failures become 500s; everything the client can act on keeps its meaning.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, shared.ErrSessionClosed):
		writeJSONError(w, http.StatusConflict, "session_closed", err.Error())
	case errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrAlreadyProcessed):
		writeJSONError(w, http.StatusConflict, "conflict", err.Error())
	default:
		s.logger.Error(logMsg,
			"error", err,
			"path", r.URL.Path,
			"request_id", requestID(r.Context()),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
