package model

import "time"

// EventType names one family of bus events. job.created is the execution
// trigger; the rest are best-effort notifications.
type EventType string

const (
	EventJobCreated   EventType = "job.created"
	EventJobStarted   EventType = "job.started"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"

	EventMessageCreated   EventType = "message.created"
	EventMessageCompleted EventType = "message.completed"
	EventMessageFailed    EventType = "message.failed"
)

// Event is the payload moved across the trigger/notification bus.
// Delivery is at least once; consumers must tolerate duplicates.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	JobID      string         `json:"job_id"`
	TenantID   string         `json:"tenant_id"`
	UserID     string         `json:"user_id"`
	TopicID    TopicID        `json:"topic_id"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
