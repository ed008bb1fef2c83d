package model

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition may leave this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo enforces the monotonic lifecycle:
// pending -> processing -> completed|failed, with failed reachable
// directly from pending as well. Terminal states accept nothing.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// Job is one unit of asynchronous generation work. The persisted record is
// the source of truth for its lifecycle; it is never deleted by business
// logic, only allowed to lapse via ExpiresAt.
type Job struct {
	ID       string `json:"job_id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`

	TopicID    TopicID           `json:"topic_id"`
	Parameters map[string]string `json:"parameters,omitempty"`

	// Set only when the job represents one conversation turn.
	SessionID   string `json:"session_id,omitempty"`
	UserMessage string `json:"user_message,omitempty"`

	// EnrichmentToken is a short-lived credential minted at creation and
	// consumed at execute time to resolve tenant-scoped enrichment data.
	EnrichmentToken string `json:"enrichment_token,omitempty"`

	Status    JobStatus      `json:"status"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`

	CreatedAt           time.Time  `json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	ExpiresAt           time.Time  `json:"expires_at"`
	EstimatedDurationMs int64      `json:"estimated_duration_ms"`
	ProcessingTimeMs    int64      `json:"processing_time_ms"`
}

// IsConversationTurn reports whether this job advances a dialogue rather
// than producing a single-shot result.
func (j *Job) IsConversationTurn() bool { return j.SessionID != "" }

func NewJob(id, tenantID, userID string, topicID TopicID, params map[string]string, estimateMs int64, ttl time.Duration) *Job {
	now := time.Now()
	return &Job{
		ID:                  id,
		TenantID:            tenantID,
		UserID:              userID,
		TopicID:             topicID,
		Parameters:          params,
		Status:              JobStatusPending,
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
		EstimatedDurationMs: estimateMs,
	}
}
