// File: internal/infra/web/handlers.go
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"coaching-ai-engine/internal/domain"
	"coaching-ai-engine/internal/domain/model"
)

type jobCreateRequest struct {
	TopicID    string            `json:"topic_id"`
	Parameters map[string]string `json:"parameters"`
}

type sessionCreateRequest struct {
	TopicID string `json:"topic_id"`
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

type jobResponse struct {
	ID                  string         `json:"id"`
	TopicID             string         `json:"topic_id"`
	SessionID           string         `json:"session_id,omitempty"`
	Status              string         `json:"status"`
	Result              map[string]any `json:"result,omitempty"`
	Error               string         `json:"error,omitempty"`
	ErrorCode           string         `json:"error_code,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	StartedAt           *time.Time     `json:"started_at,omitempty"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
	EstimatedDurationMs int64          `json:"estimated_duration_ms"`
	ProcessingTimeMs    int64          `json:"processing_time_ms,omitempty"`
}

type sessionResponse struct {
	ID             string         `json:"id"`
	TopicID        string         `json:"topic_id"`
	Status         string         `json:"status"`
	Turn           int            `json:"turn"`
	MaxTurns       int            `json:"max_turns"`
	Result         map[string]any `json:"result,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
}

func toJobResponse(j *model.Job) jobResponse {
	return jobResponse{
		ID:                  j.ID,
		TopicID:             string(j.TopicID),
		SessionID:           j.SessionID,
		Status:              string(j.Status),
		Result:              j.Result,
		Error:               j.Error,
		ErrorCode:           string(j.ErrorCode),
		CreatedAt:           j.CreatedAt,
		StartedAt:           j.StartedAt,
		CompletedAt:         j.CompletedAt,
		EstimatedDurationMs: j.EstimatedDurationMs,
		ProcessingTimeMs:    j.ProcessingTimeMs,
	}
}

func toSessionResponse(s *model.ConversationSession) sessionResponse {
	return sessionResponse{
		ID:             s.ID,
		TopicID:        string(s.TopicID),
		Status:         string(s.Status),
		Turn:           s.Turn,
		MaxTurns:       s.MaxTurns,
		Result:         s.Result,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	id := identityFrom(r)

	job, err := s.orch.CreateJob(r.Context(), id.TenantID, id.UserID, model.TopicID(req.TopicID), req.Parameters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	job, err := s.orch.GetJob(r.Context(), id.TenantID, chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	jobs, err := s.orch.ListJobs(r.Context(), id.TenantID, id.UserID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	id := identityFrom(r)

	sess, err := s.conv.StartSession(r.Context(), id.TenantID, id.UserID, model.TopicID(req.TopicID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	sess, err := s.conv.GetSession(r.Context(), id.TenantID, chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

// handleSendMessage accepts a dialogue turn as an async job; the caller
// polls the returned job for the assistant reply.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	id := identityFrom(r)

	job, err := s.orch.CreateTurnJob(r.Context(), id.TenantID, id.UserID, chi.URLParam(r, "sessionID"), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if err := s.conv.Pause(r.Context(), id.TenantID, chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if err := s.conv.Resume(r.Context(), id.TenantID, chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if err := s.conv.Cancel(r.Context(), id.TenantID, chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	sess, err := s.conv.Complete(r.Context(), id.TenantID, chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrTopicNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrParameterValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotActive),
		errors.Is(err, domain.ErrStatusConflict),
		errors.Is(err, domain.ErrMaxTurnsReached):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrSessionIdleTimeout):
		status = http.StatusGone
	}
	body := map[string]string{"error": err.Error()}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
