package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"coaching-ai-engine/internal/domain"
	"coaching-ai-engine/internal/domain/model"
	"coaching-ai-engine/internal/domain/ports/adapter"
)

func newTestEngine(sessions *memSessionRepo, gen *stubGen) ConversationEngine {
	return NewConversationEngine(sessions, gen, &mockTxManager{}, nil, newLogger())
}

func seedSession(t *testing.T, repo *memSessionRepo, tenantID, userID string, topicID model.TopicID) *model.ConversationSession {
	t.Helper()
	topic, ok := model.LookupTopic(topicID)
	if !ok {
		t.Fatalf("unknown topic %s", topicID)
	}
	s := model.NewConversationSession("sess-"+userID, tenantID, userID, topic)
	if err := repo.Save(context.Background(), nil, s); err != nil {
		t.Fatal(err)
	}
	return s
}

func finalEnvelope(confidence float64) string {
	return fmt.Sprintf(`{"message":"Here is your niche statement.","is_final":true,"result":{"statement":"b2b saas founders"},"confidence":%g}`, confidence)
}

func TestStartSession(t *testing.T) {
	t.Parallel()
	repo := newMemSessionRepo()
	eng := newTestEngine(repo, &stubGen{})
	ctx := context.Background()

	if _, err := eng.StartSession(ctx, "t1", "u1", model.TopicNicheReview); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("single-shot topic must be rejected: %v", err)
	}

	s, err := eng.StartSession(ctx, "t1", "u1", model.TopicNicheDiscovery)
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != model.SessionActive || s.Turn != 0 {
		t.Fatalf("fresh session: %+v", s)
	}
	if s.MaxTurns <= 0 {
		t.Fatal("turn bound missing")
	}

	// starting again while one is active returns the existing session
	again, err := eng.StartSession(ctx, "t1", "u1", model.TopicNicheDiscovery)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != s.ID {
		t.Fatalf("expected existing session %s, got %s", s.ID, again.ID)
	}
}

func TestStartSession_ActiveGuardIsPerTopic(t *testing.T) {
	t.Parallel()
	repo := newMemSessionRepo()
	eng := newTestEngine(repo, &stubGen{})
	ctx := context.Background()

	discovery, err := eng.StartSession(ctx, "t1", "u1", model.TopicNicheDiscovery)
	if err != nil {
		t.Fatal(err)
	}

	// an active session on another topic must not block a fresh start
	design, err := eng.StartSession(ctx, "t1", "u1", model.TopicOfferDesign)
	if err != nil {
		t.Fatal(err)
	}
	if design.ID == discovery.ID {
		t.Fatal("different topics must get separate sessions")
	}
	if design.TopicID != model.TopicOfferDesign {
		t.Fatalf("wrong topic: %s", design.TopicID)
	}

	// and each topic still reuses its own active session
	again, err := eng.StartSession(ctx, "t1", "u1", model.TopicNicheDiscovery)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != discovery.ID {
		t.Fatalf("expected existing session %s, got %s", discovery.ID, again.ID)
	}
}

func TestSendMessage_AdvancesTurn(t *testing.T) {
	t.Parallel()
	repo := newMemSessionRepo()
	gen := &stubGen{respond: func(_ int, system string, msgs []adapter.Message) (adapter.GenerateResult, error) {
		if len(msgs) == 0 || msgs[len(msgs)-1].Content != "I sell software to dentists" {
			return adapter.GenerateResult{}, fmt.Errorf("latest user message missing from context: %+v", msgs)
		}
		return adapter.GenerateResult{Text: `{"message":"What size are the practices?","is_final":false,"confidence":0.3}`}, nil
	}}
	eng := newTestEngine(repo, gen)
	s := seedSession(t, repo, "t1", "u1", model.TopicNicheDiscovery)

	turn, err := eng.SendMessage(context.Background(), "t1", s.ID, "I sell software to dentists")
	if err != nil {
		t.Fatal(err)
	}
	if turn.Turn != 1 {
		t.Fatalf("turn = %d", turn.Turn)
	}
	if turn.Completed || turn.Result != nil {
		t.Fatalf("non-final turn completed: %+v", turn)
	}
	if turn.Reply != "What size are the practices?" {
		t.Fatalf("reply = %q", turn.Reply)
	}

	stored, _ := repo.FindByTenant(context.Background(), nil, "t1", s.ID)
	if stored.Turn != 1 || stored.Status != model.SessionActive {
		t.Fatalf("persisted session: %+v", stored)
	}
	if len(stored.Memory.Recent) != 2 {
		t.Fatalf("memory window = %d, want user+assistant", len(stored.Memory.Recent))
	}
	if repo.messageCount() != 2 {
		t.Fatalf("message log = %d rows", repo.messageCount())
	}
}

func TestSendMessage_AutoCompletes(t *testing.T) {
	t.Parallel()
	repo := newMemSessionRepo()
	gen := &stubGen{respond: func(int, string, []adapter.Message) (adapter.GenerateResult, error) {
		return adapter.GenerateResult{Text: finalEnvelope(0.9)}, nil
	}}
	eng := newTestEngine(repo, gen)
	s := seedSession(t, repo, "t1", "u1", model.TopicNicheDiscovery)

	turn, err := eng.SendMessage(context.Background(), "t1", s.ID, "that sounds right")
	if err != nil {
		t.Fatal(err)
	}
	if !turn.Completed {
		t.Fatal("turn should auto-complete")
	}
	if turn.Result["statement"] != "b2b saas founders" {
		t.Fatalf("result = %+v", turn.Result)
	}

	stored, _ := repo.FindByTenant(context.Background(), nil, "t1", s.ID)
	if stored.Status != model.SessionCompleted {
		t.Fatalf("status = %s", stored.Status)
	}
	if stored.Result == nil {
		t.Fatal("result not captured on session")
	}
}

func TestSendMessage_SubThresholdConfidenceStaysOpen(t *testing.T) {
	t.Parallel()
	repo := newMemSessionRepo()
	gen := &stubGen{respond: func(int, string, []adapter.Message) (adapter.GenerateResult, error) {
		return adapter.GenerateResult{Text: finalEnvelope(0.69999)}, nil
	}}
	eng := newTestEngine(repo, gen)
	s := seedSession(t, repo, "t1", "u1", model.TopicNicheDiscovery)

	turn, err := eng.SendMessage(context.Background(), "t1", s.ID, "ok")
	if err != nil {
		t.Fatal(err)
	}
	if turn.Completed {
		t.Fatal("confidence below threshold must not complete")
	}
	stored, _ := repo.FindByTenant(context.Background(), nil, "t1", s.ID)
	if stored.Status != model.SessionActive {
		t.Fatalf("status = %s", stored.Status)
	}
}

func TestSendMessage_MaxTurnsReached(t *testing.T) {
	t.Parallel()
	repo := newMemSessionRepo()
	eng := newTestEngine(repo, &stubGen{})
	s := seedSession(t, repo, "t1", "u1", model.TopicNicheDiscovery)
	s.Turn = s.MaxTurns
	_ = repo.Save(context.Background(), nil, s)

	if _, err := eng.SendMessage(context.Background(), "t1", s.ID, "one more"); !errors.Is(err, domain.ErrMaxTurnsReached) {
		t.Fatalf("want ErrMaxTurnsReached, got %v", err)
	}
}

func TestSendMessage_IdleSessionExpires(t *testing.T) {
	t.Parallel()
	repo := newMemSessionRepo()
	eng := newTestEngine(repo, &stubGen{})
	s := seedSession(t, repo, "t1", "u1", model.TopicNicheDiscovery)
	s.LastActivityAt = time.Now().Add(-2 * time.Hour)
	_ = repo.Save(context.Background(), nil, s)

	if _, err := eng.SendMessage(context.Background(), "t1", s.ID, "hello again"); !errors.Is(err, domain.ErrSessionIdleTimeout) {
		t.Fatalf("want ErrSessionIdleTimeout, got %v", err)
	}
	stored, _ := repo.FindByTenant(context.Background(), nil, "t1", s.ID)
	if stored.Status != model.SessionExpired {
		t.Fatalf("status = %s, want expired", stored.Status)
	}
}

func TestSendMessage_PausedSessionRejects(t *testing.T) {
	t.Parallel()
	repo := newMemSessionRepo()
	eng := newTestEngine(repo, &stubGen{})
	s := seedSession(t, repo, "t1", "u1", model.TopicNicheDiscovery)
	if err := eng.Pause(context.Background(), "t1", s.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := eng.SendMessage(context.Background(), "t1", s.ID, "hi"); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("want ErrSessionNotActive, got %v", err)
	}

	if err := eng.Resume(context.Background(), "t1", s.ID); err != nil {
		t.Fatal(err)
	}
	stored, _ := repo.FindByTenant(context.Background(), nil, "t1", s.ID)
	if stored.Status != model.SessionActive {
		t.Fatalf("status after resume = %s", stored.Status)
	}
}

func TestSendMessage_BackendFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()
	repo := newMemSessionRepo()
	gen := &stubGen{respond: func(int, string, []adapter.Message) (adapter.GenerateResult, error) {
		return adapter.GenerateResult{Degraded: true}, domain.ErrBackendExhausted
	}}
	eng := newTestEngine(repo, gen)
	s := seedSession(t, repo, "t1", "u1", model.TopicNicheDiscovery)

	if _, err := eng.SendMessage(context.Background(), "t1", s.ID, "hello"); !errors.Is(err, domain.ErrBackendExhausted) {
		t.Fatalf("want backend error, got %v", err)
	}

	stored, _ := repo.FindByTenant(context.Background(), nil, "t1", s.ID)
	if stored.Turn != 0 || len(stored.Memory.Recent) != 0 {
		t.Fatalf("failed turn leaked into state: %+v", stored)
	}
	if repo.messageCount() != 0 {
		t.Fatal("failed turn persisted messages")
	}
}

func TestSendMessage_CompactsWhenOverBudget(t *testing.T) {
	t.Parallel()
	repo := newMemSessionRepo()
	gen := &stubGen{respond: func(int, string, []adapter.Message) (adapter.GenerateResult, error) {
		return adapter.GenerateResult{Text: `{"message":"noted","is_final":false,"confidence":0.1}`}, nil
	}}
	eng := newTestEngine(repo, gen)
	s := seedSession(t, repo, "t1", "u1", model.TopicNicheDiscovery)
	for i := 0; i < 4; i++ {
		s.AddMessage("user", fmt.Sprintf("long context %d", i), 2000)
	}
	s.Turn = 4
	_ = repo.Save(context.Background(), nil, s)

	if _, err := eng.SendMessage(context.Background(), "t1", s.ID, "and another thing"); err != nil {
		t.Fatal(err)
	}

	stored, _ := repo.FindByTenant(context.Background(), nil, "t1", s.ID)
	if stored.Memory.Summary == "" {
		t.Fatal("over-budget window was not compacted")
	}
	// 5 raw messages compact to 3, plus the assistant reply
	if len(stored.Memory.Recent) != 4 {
		t.Fatalf("window after compaction = %d", len(stored.Memory.Recent))
	}
}

func TestCancelAndComplete(t *testing.T) {
	t.Parallel()
	repo := newMemSessionRepo()
	gen := &stubGen{analyze: map[string]any{"statement": "extracted from history"}}
	eng := newTestEngine(repo, gen)
	ctx := context.Background()

	s1 := seedSession(t, repo, "t1", "u1", model.TopicNicheDiscovery)
	if err := eng.Cancel(ctx, "t1", s1.ID); err != nil {
		t.Fatal(err)
	}
	stored, _ := repo.FindByTenant(ctx, nil, "t1", s1.ID)
	if stored.Status != model.SessionExpired {
		t.Fatalf("cancelled status = %s", stored.Status)
	}
	if err := eng.Cancel(ctx, "t1", s1.ID); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("double cancel: %v", err)
	}

	s2 := seedSession(t, repo, "t1", "u2", model.TopicNicheDiscovery)
	s2.AddMessage("user", "I think b2b is my market", 10)
	_ = repo.Save(ctx, nil, s2)

	done, err := eng.Complete(ctx, "t1", s2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != model.SessionCompleted {
		t.Fatalf("status = %s", done.Status)
	}
	if done.Result["statement"] != "extracted from history" {
		t.Fatalf("extraction result = %+v", done.Result)
	}
}

func TestSessionTopic(t *testing.T) {
	t.Parallel()
	repo := newMemSessionRepo()
	eng := newTestEngine(repo, &stubGen{}).(*conversationUC)
	ctx := context.Background()

	s := seedSession(t, repo, "t1", "u1", model.TopicOfferDesign)
	topic, err := eng.SessionTopic(ctx, "t1", s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if topic != model.TopicOfferDesign {
		t.Fatalf("topic = %s", topic)
	}

	if _, err := eng.SessionTopic(ctx, "t2", s.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("cross-tenant lookup: %v", err)
	}

	_ = eng.Pause(ctx, "t1", s.ID)
	if _, err := eng.SessionTopic(ctx, "t1", s.ID); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("paused session topic: %v", err)
	}
}

func TestExecuteTurn_WrapsSendMessage(t *testing.T) {
	t.Parallel()
	repo := newMemSessionRepo()
	gen := &stubGen{respond: func(int, string, []adapter.Message) (adapter.GenerateResult, error) {
		return adapter.GenerateResult{Text: finalEnvelope(0.8)}, nil
	}}
	eng := newTestEngine(repo, gen).(*conversationUC)
	s := seedSession(t, repo, "t1", "u1", model.TopicNicheDiscovery)

	job := &model.Job{ID: "j1", TenantID: "t1", UserID: "u1", TopicID: s.TopicID, SessionID: s.ID, UserMessage: "wrap it up"}
	out, err := eng.ExecuteTurn(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	if out["completed"] != true {
		t.Fatalf("out = %+v", out)
	}
	if out["reply"] == "" || out["result"] == nil {
		t.Fatalf("out = %+v", out)
	}
}
