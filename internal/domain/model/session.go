package model

import (
	"fmt"
	"strings"
	"time"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionExpired
}

// Message is one entry in a session's ordered history.
type Message struct {
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // "user" | "assistant" | "system"
	Content   string    `json:"content"`
	Tokens    int       `json:"tokens"`
	Timestamp time.Time `json:"timestamp"`
}

// TokenEstimator estimates the token cost of a piece of text. The infra
// layer provides a tokenizer-backed implementation; EstimateTokens is the
// fallback used when none is injected.
type TokenEstimator func(text string) int

// EstimateTokens is a rough chars/4 heuristic.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// ConversationMemory is the bounded representation of history handed to the
// backend: a running summary, a short list of key points, and the most
// recent raw messages. Raw history is compacted once its estimated token
// cost exceeds the configured budget.
type ConversationMemory struct {
	Summary   string    `json:"summary"`
	KeyPoints []string  `json:"key_points,omitempty"`
	Recent    []Message `json:"recent"`
}

func (m *ConversationMemory) Append(msg Message) {
	m.Recent = append(m.Recent, msg)
}

// EstimatedTokens returns the estimated token cost of the raw window.
func (m *ConversationMemory) EstimatedTokens(est TokenEstimator) int {
	if est == nil {
		est = EstimateTokens
	}
	total := 0
	for _, msg := range m.Recent {
		if msg.Tokens > 0 {
			total += msg.Tokens
			continue
		}
		total += est(msg.Content)
	}
	return total
}

// NeedsCompaction reports whether the raw window exceeds the budget.
func (m *ConversationMemory) NeedsCompaction(budget int, est TokenEstimator) bool {
	return budget > 0 && m.EstimatedTokens(est) > budget
}

// Compact folds the oldest half of the raw window into Summary and drops
// the raw text. It never touches the newer half, so the most recent
// exchange always reaches the backend verbatim.
func (m *ConversationMemory) Compact() {
	if len(m.Recent) < 2 {
		return
	}
	half := len(m.Recent) / 2
	var b strings.Builder
	b.WriteString(m.Summary)
	for _, msg := range m.Recent[:half] {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(fmt.Sprintf("[%s] %s", msg.Role, msg.Content))
	}
	m.Summary = b.String()
	m.Recent = append([]Message(nil), m.Recent[half:]...)
}

// MessagesForLLM builds the backend context: the compacted summary (as a
// system message) followed by the recent raw messages.
func (m *ConversationMemory) MessagesForLLM() []Message {
	out := make([]Message, 0, len(m.Recent)+1)
	if m.Summary != "" {
		out = append(out, Message{Role: "system", Content: "Summary of earlier conversation: " + m.Summary})
	}
	out = append(out, m.Recent...)
	return out
}

// ConversationSession is the aggregate root for one multi-turn dialogue.
type ConversationSession struct {
	ID       string  `json:"session_id"`
	TenantID string  `json:"tenant_id"`
	UserID   string  `json:"user_id"`
	TopicID  TopicID `json:"topic_id"`

	Status   SessionStatus      `json:"status"`
	Turn     int                `json:"turn"`
	MaxTurns int                `json:"max_turns"`
	Memory   ConversationMemory `json:"memory"`

	// Result is captured on auto-completion or explicit completion.
	Result map[string]any `json:"result,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

func NewConversationSession(id, tenantID, userID string, topic TopicConfig) *ConversationSession {
	now := time.Now()
	return &ConversationSession{
		ID:             id,
		TenantID:       tenantID,
		UserID:         userID,
		TopicID:        topic.ID,
		Status:         SessionActive,
		MaxTurns:       topic.MaxTurns,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}
}

func (s *ConversationSession) AddMessage(role, content string, tokens int) {
	now := time.Now()
	s.Memory.Append(Message{
		SessionID: s.ID,
		Role:      role,
		Content:   content,
		Tokens:    tokens,
		Timestamp: now,
	})
	s.UpdatedAt = now
	s.LastActivityAt = now
}

// IdleExpired reports whether the idle window has lapsed. A zero timeout
// disables idle expiry.
func (s *ConversationSession) IdleExpired(timeout time.Duration, now time.Time) bool {
	return timeout > 0 && now.Sub(s.LastActivityAt) > timeout
}
