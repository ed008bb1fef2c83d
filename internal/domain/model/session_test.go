package model

import (
	"strings"
	"testing"
	"time"
)

func TestMemoryCompact_FoldsOldestHalf(t *testing.T) {
	t.Parallel()

	var m ConversationMemory
	for i := 0; i < 6; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		m.Append(Message{Role: role, Content: strings.Repeat("word ", 50), Tokens: 50})
	}

	before := m.EstimatedTokens(nil)
	m.Compact()

	if len(m.Recent) != 3 {
		t.Fatalf("recent window = %d, want 3", len(m.Recent))
	}
	if m.Summary == "" {
		t.Fatal("summary empty after compaction")
	}
	if !strings.Contains(m.Summary, "[user]") || !strings.Contains(m.Summary, "[assistant]") {
		t.Fatalf("summary lost roles: %q", m.Summary)
	}
	after := m.EstimatedTokens(nil)
	if after >= before {
		t.Fatalf("raw window estimate did not drop: before=%d after=%d", before, after)
	}
}

func TestMemoryCompact_TinyWindowUntouched(t *testing.T) {
	t.Parallel()

	m := ConversationMemory{Recent: []Message{{Role: "user", Content: "hi"}}}
	m.Compact()
	if len(m.Recent) != 1 || m.Summary != "" {
		t.Fatalf("single-message window must not compact: %+v", m)
	}
}

func TestMemoryNeedsCompaction(t *testing.T) {
	t.Parallel()

	m := ConversationMemory{Recent: []Message{{Content: "x", Tokens: 100}}}
	if m.NeedsCompaction(200, nil) {
		t.Fatal("under budget")
	}
	if !m.NeedsCompaction(50, nil) {
		t.Fatal("over budget")
	}
	if m.NeedsCompaction(0, nil) {
		t.Fatal("zero budget disables compaction")
	}
}

func TestMessagesForLLM_SummaryLeads(t *testing.T) {
	t.Parallel()

	m := ConversationMemory{
		Summary: "user runs a bakery",
		Recent:  []Message{{Role: "user", Content: "what next?"}},
	}
	out := m.MessagesForLLM()
	if len(out) != 2 {
		t.Fatalf("len = %d", len(out))
	}
	if out[0].Role != "system" || !strings.Contains(out[0].Content, "user runs a bakery") {
		t.Fatalf("summary message wrong: %+v", out[0])
	}
	if out[1].Content != "what next?" {
		t.Fatalf("raw message wrong: %+v", out[1])
	}
}

func TestSessionIdleExpired(t *testing.T) {
	t.Parallel()

	s := &ConversationSession{LastActivityAt: time.Now().Add(-45 * time.Minute)}
	if !s.IdleExpired(30*time.Minute, time.Now()) {
		t.Fatal("should be idle-expired")
	}
	if s.IdleExpired(0, time.Now()) {
		t.Fatal("zero timeout disables idle expiry")
	}
	s.LastActivityAt = time.Now()
	if s.IdleExpired(30*time.Minute, time.Now()) {
		t.Fatal("fresh session expired")
	}
}
