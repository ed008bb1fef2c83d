// File: internal/usecase/conversation_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"coaching-ai-engine/internal/domain"
	"coaching-ai-engine/internal/domain/model"
	"coaching-ai-engine/internal/domain/ports/adapter"
	"coaching-ai-engine/internal/domain/ports/repository"
	"coaching-ai-engine/internal/infra/logging"
	"coaching-ai-engine/internal/infra/metrics"
)

// Compile-time checks
var (
	_ ConversationEngine = (*conversationUC)(nil)
	_ TurnExecutor       = (*conversationUC)(nil)
)

// TurnResult is what one accepted dialogue turn produced.
type TurnResult struct {
	SessionID string
	Turn      int
	Reply     string
	Completed bool
	Result    map[string]any
}

// ConversationEngine advances one dialogue turn per invocation and owns
// session lifecycle: turn limits, idle expiry, confidence-gated
// auto-completion, and the explicit status operations.
type ConversationEngine interface {
	StartSession(ctx context.Context, tenantID, userID string, topicID model.TopicID) (*model.ConversationSession, error)
	SendMessage(ctx context.Context, tenantID, sessionID, userMessage string) (*TurnResult, error)
	GetSession(ctx context.Context, tenantID, sessionID string) (*model.ConversationSession, error)
	Pause(ctx context.Context, tenantID, sessionID string) error
	Resume(ctx context.Context, tenantID, sessionID string) error
	Cancel(ctx context.Context, tenantID, sessionID string) error
	Complete(ctx context.Context, tenantID, sessionID string) (*model.ConversationSession, error)
}

type conversationUC struct {
	sessions repository.SessionRepository
	gen      adapter.TextGenerator
	tm       repository.TransactionManager
	estimate model.TokenEstimator
	log      *zerolog.Logger
}

func NewConversationEngine(
	sessions repository.SessionRepository,
	gen adapter.TextGenerator,
	tm repository.TransactionManager,
	estimate model.TokenEstimator,
	log *zerolog.Logger,
) *conversationUC {
	if estimate == nil {
		estimate = model.EstimateTokens
	}
	return &conversationUC{sessions: sessions, gen: gen, tm: tm, estimate: estimate, log: log}
}

func (c *conversationUC) StartSession(ctx context.Context, tenantID, userID string, topicID model.TopicID) (*model.ConversationSession, error) {
	topic, ok := model.LookupTopic(topicID)
	if !ok || !topic.Active {
		return nil, fmt.Errorf("%w: %s", domain.ErrTopicNotFound, topicID)
	}
	if topic.Kind != model.TopicKindConversational {
		return nil, fmt.Errorf("%w: topic %s is not conversational", domain.ErrInvalidArgument, topicID)
	}

	// One active session per user and topic keeps turn accounting sane.
	if s, err := c.sessions.FindActiveByUser(ctx, nil, tenantID, userID, topicID); err == nil && s != nil {
		return s, nil
	}

	s := model.NewConversationSession(uuid.NewString(), tenantID, userID, topic)
	if err := c.sessions.Save(ctx, nil, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *conversationUC) GetSession(ctx context.Context, tenantID, sessionID string) (*model.ConversationSession, error) {
	s, err := c.sessions.FindByTenant(ctx, nil, tenantID, sessionID)
	if err != nil {
		return nil, sessionNotFound(err)
	}
	return s, nil
}

// SessionTopic lets the orchestrator validate a turn job without pulling
// in the whole session aggregate.
func (c *conversationUC) SessionTopic(ctx context.Context, tenantID, sessionID string) (model.TopicID, error) {
	s, err := c.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return "", err
	}
	if s.Status != model.SessionActive {
		return "", fmt.Errorf("%w: session is %s", domain.ErrSessionNotActive, s.Status)
	}
	return s.TopicID, nil
}

// ExecuteTurn adapts one turn job into a SendMessage call; the orchestrator
// owns the job record, the engine owns the session.
func (c *conversationUC) ExecuteTurn(ctx context.Context, job *model.Job) (map[string]any, error) {
	turn, err := c.SendMessage(ctx, job.TenantID, job.SessionID, job.UserMessage)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"session_id": turn.SessionID,
		"turn":       turn.Turn,
		"reply":      turn.Reply,
		"completed":  turn.Completed,
	}
	if turn.Result != nil {
		out["result"] = turn.Result
	}
	return out, nil
}

func (c *conversationUC) SendMessage(ctx context.Context, tenantID, sessionID, userMessage string) (*TurnResult, error) {
	ctx = logging.WithSessID(logging.WithTenantID(ctx, tenantID), sessionID)
	log := logging.With(ctx, c.log)
	defer logging.TraceDuration(log, "ConversationEngine.SendMessage")()

	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return nil, fmt.Errorf("%w: empty message", domain.ErrInvalidArgument)
	}

	s, err := c.sessions.FindByTenant(ctx, nil, tenantID, sessionID)
	if err != nil {
		return nil, sessionNotFound(err)
	}
	topic, ok := model.LookupTopic(s.TopicID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTopicNotFound, s.TopicID)
	}

	// Idle expiry is evaluated lazily, here and only here.
	if s.Status == model.SessionActive && s.IdleExpired(topic.IdleTimeout, time.Now()) {
		if err := c.sessions.UpdateStatus(ctx, nil, s.ID, model.SessionExpired); err != nil {
			return nil, err
		}
		metrics.IncTermination("idle_timeout")
		return nil, domain.ErrSessionIdleTimeout
	}
	if s.Status != model.SessionActive {
		return nil, fmt.Errorf("%w: session is %s", domain.ErrSessionNotActive, s.Status)
	}
	if s.MaxTurns > 0 && s.Turn >= s.MaxTurns {
		return nil, domain.ErrMaxTurnsReached
	}

	s.AddMessage("user", userMessage, c.estimate(userMessage))
	s.Turn++

	if s.Memory.NeedsCompaction(topic.MemoryTokenBudget, c.estimate) {
		s.Memory.Compact()
		metrics.IncCompaction()
		log.Debug().Int("window", len(s.Memory.Recent)).Msg("memory compacted")
	}

	system, err := renderSystemPrompt(topic, s)
	if err != nil {
		return nil, err
	}
	history := s.Memory.MessagesForLLM()
	msgs := make([]adapter.Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, adapter.Message{Role: m.Role, Content: m.Content})
	}

	// A backend failure leaves the session untouched: nothing has been
	// persisted yet, so the turn simply did not happen.
	res, err := c.gen.Generate(ctx, system, msgs, adapter.GenerateOptions{})
	if err != nil {
		return nil, err
	}
	metrics.AddTokens(res.ProviderUsed, res.ModelUsed, res.Usage.PromptTokens, res.Usage.CompletionTokens)

	env := model.ParseTurnEnvelope(res.Text)
	s.AddMessage("assistant", env.Message, c.estimate(env.Message))

	completed := env.ShouldAutoComplete()
	if completed {
		s.Status = model.SessionCompleted
		s.Result = env.Result
	}

	// Both messages and the advanced session state land atomically.
	userMsg := s.Memory.Recent[maxInt(0, len(s.Memory.Recent)-2)]
	assistantMsg := s.Memory.Recent[len(s.Memory.Recent)-1]
	err = c.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := c.sessions.SaveMessage(ctx, tx, &userMsg); err != nil {
			return err
		}
		if err := c.sessions.SaveMessage(ctx, tx, &assistantMsg); err != nil {
			return err
		}
		return c.sessions.Save(ctx, tx, s)
	})
	if err != nil {
		return nil, fmt.Errorf("persist turn: %w", err)
	}

	metrics.IncTurn(string(s.TopicID))
	if completed {
		metrics.IncTermination("auto_complete")
		log.Info().Float64("confidence", env.Confidence).Msg("session auto-completed")
	}

	return &TurnResult{
		SessionID: s.ID,
		Turn:      s.Turn,
		Reply:     env.Message,
		Completed: completed,
		Result:    s.Result,
	}, nil
}

func (c *conversationUC) Pause(ctx context.Context, tenantID, sessionID string) error {
	return c.transition(ctx, tenantID, sessionID, model.SessionActive, model.SessionPaused)
}

func (c *conversationUC) Resume(ctx context.Context, tenantID, sessionID string) error {
	return c.transition(ctx, tenantID, sessionID, model.SessionPaused, model.SessionActive)
}

func (c *conversationUC) Cancel(ctx context.Context, tenantID, sessionID string) error {
	s, err := c.sessions.FindByTenant(ctx, nil, tenantID, sessionID)
	if err != nil {
		return sessionNotFound(err)
	}
	if s.Status.Terminal() {
		return fmt.Errorf("%w: session is %s", domain.ErrSessionNotActive, s.Status)
	}
	if err := c.sessions.UpdateStatus(ctx, nil, sessionID, model.SessionExpired); err != nil {
		return err
	}
	metrics.IncTermination("cancelled")
	return nil
}

// Complete terminates the session explicitly. When no result was
// auto-captured it attempts a best-effort extraction over the history;
// extraction can only enrich the outcome, never block completion.
func (c *conversationUC) Complete(ctx context.Context, tenantID, sessionID string) (*model.ConversationSession, error) {
	s, err := c.sessions.FindByTenant(ctx, nil, tenantID, sessionID)
	if err != nil {
		return nil, sessionNotFound(err)
	}
	if s.Status.Terminal() {
		return nil, fmt.Errorf("%w: session is %s", domain.ErrSessionNotActive, s.Status)
	}

	if s.Result == nil {
		topic, ok := model.LookupTopic(s.TopicID)
		if ok {
			if contract, ok := lookupContract(topic.ResponseContract); ok {
				s.Result = c.gen.Analyze(ctx, historyText(s), "Extract the final result from this coaching conversation. "+contract)
			}
		}
	}

	s.Status = model.SessionCompleted
	s.UpdatedAt = time.Now()
	if err := c.sessions.Save(ctx, nil, s); err != nil {
		return nil, err
	}
	metrics.IncTermination("explicit")
	return s, nil
}

func (c *conversationUC) transition(ctx context.Context, tenantID, sessionID string, from, to model.SessionStatus) error {
	s, err := c.sessions.FindByTenant(ctx, nil, tenantID, sessionID)
	if err != nil {
		return sessionNotFound(err)
	}
	if s.Status != from {
		return fmt.Errorf("%w: session is %s", domain.ErrSessionNotActive, s.Status)
	}
	return c.sessions.UpdateStatus(ctx, nil, sessionID, to)
}

func historyText(s *model.ConversationSession) string {
	var b strings.Builder
	if s.Memory.Summary != "" {
		b.WriteString(s.Memory.Summary)
		b.WriteString("\n")
	}
	for _, m := range s.Memory.Recent {
		b.WriteString(fmt.Sprintf("[%s] %s\n", m.Role, m.Content))
	}
	return b.String()
}

func sessionNotFound(err error) error {
	// Tenant isolation surfaces as plain not-found: a foreign tenant's id
	// looks exactly like a missing one.
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrSessionNotFound
	}
	return err
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
