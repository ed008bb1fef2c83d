package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"coaching-ai-engine/internal/domain"
	"coaching-ai-engine/internal/domain/model"
	"coaching-ai-engine/internal/domain/ports/adapter"
	"coaching-ai-engine/internal/domain/ports/repository"
)

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

//
// -------------------- job repository --------------------
//

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: map[string]*model.Job{}}
}

var _ repository.JobRepository = (*memJobRepo)(nil)

func (r *memJobRepo) Save(ctx context.Context, _ repository.Tx, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *memJobRepo) FindByTenant(ctx context.Context, _ repository.Tx, tenantID, jobID string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.TenantID != tenantID || !j.ExpiresAt.After(time.Now()) {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) ListByTenantUser(ctx context.Context, _ repository.Tx, tenantID, userID string, limit int) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Job
	for _, j := range r.jobs {
		if j.TenantID == tenantID && j.UserID == userID && j.ExpiresAt.After(time.Now()) {
			cp := *j
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// UpdateStatusIf mirrors the conditional UPDATE: the swap only lands when
// the stored status still matches, under one lock, so concurrent consumers
// race exactly like they would against the database.
func (r *memJobRepo) UpdateStatusIf(ctx context.Context, _ repository.Tx, job *model.Job, expected model.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != expected {
		return fmt.Errorf("%w: job %s is %s", domain.ErrStatusConflict, job.ID, stored.Status)
	}
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

//
// -------------------- session repository --------------------
//

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.ConversationSession
	messages []model.Message
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: map[string]*model.ConversationSession{}}
}

var _ repository.SessionRepository = (*memSessionRepo)(nil)

func (r *memSessionRepo) Save(ctx context.Context, _ repository.Tx, s *model.ConversationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	cp.Memory.Recent = append([]model.Message(nil), s.Memory.Recent...)
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) SaveMessage(ctx context.Context, _ repository.Tx, m *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, *m)
	return nil
}

func (r *memSessionRepo) FindByTenant(ctx context.Context, _ repository.Tx, tenantID, sessionID string) (*model.ConversationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	cp := *s
	cp.Memory.Recent = append([]model.Message(nil), s.Memory.Recent...)
	return &cp, nil
}

func (r *memSessionRepo) FindActiveByUser(ctx context.Context, _ repository.Tx, tenantID, userID string, topicID model.TopicID) (*model.ConversationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.TenantID == tenantID && s.UserID == userID && s.TopicID == topicID && s.Status == model.SessionActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memSessionRepo) UpdateStatus(ctx context.Context, _ repository.Tx, sessionID string, status model.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.Status = status
	return nil
}

func (r *memSessionRepo) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

//
// -------------------- event bus --------------------
//

type recordBus struct {
	mu      sync.Mutex
	events  []model.Event
	failOn  map[model.EventType]bool
	failAll bool
}

func newRecordBus() *recordBus {
	return &recordBus{failOn: map[model.EventType]bool{}}
}

var _ adapter.EventBus = (*recordBus)(nil)

func (b *recordBus) Publish(ctx context.Context, ev model.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAll || b.failOn[ev.Type] {
		return fmt.Errorf("bus unavailable")
	}
	b.events = append(b.events, ev)
	return nil
}

func (b *recordBus) byType(t model.EventType) []model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.Event
	for _, ev := range b.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

//
// -------------------- text generator --------------------
//

type stubGen struct {
	mu      sync.Mutex
	calls   int
	respond func(call int, system string, msgs []adapter.Message) (adapter.GenerateResult, error)
	analyze map[string]any
}

var _ adapter.TextGenerator = (*stubGen)(nil)

func (g *stubGen) Generate(ctx context.Context, system string, msgs []adapter.Message, _ adapter.GenerateOptions) (adapter.GenerateResult, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()
	if g.respond != nil {
		return g.respond(n, system, msgs)
	}
	return adapter.GenerateResult{Text: `{"analysis":"ok"}`, ProviderUsed: "stub", ModelUsed: "stub-1"}, nil
}

func (g *stubGen) Analyze(ctx context.Context, text, instructions string) map[string]any {
	if g.analyze != nil {
		return g.analyze
	}
	return map[string]any{"text": text, "extracted": false}
}

func (g *stubGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

//
// -------------------- transaction manager --------------------
//

type noTx struct{}

type mockTxManager struct{}

var _ repository.TransactionManager = (*mockTxManager)(nil)

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, noTx{})
}

//
// -------------------- turn executor --------------------
//

type stubTurns struct {
	topic  model.TopicID
	result map[string]any
	err    error
	topErr error
}

var _ TurnExecutor = (*stubTurns)(nil)

func (s *stubTurns) ExecuteTurn(ctx context.Context, job *model.Job) (map[string]any, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubTurns) SessionTopic(ctx context.Context, tenantID, sessionID string) (model.TopicID, error) {
	if s.topErr != nil {
		return "", s.topErr
	}
	return s.topic, nil
}
