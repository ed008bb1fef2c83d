// File: internal/infra/worker/consumer_test.go
package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"coaching-ai-engine/internal/domain/model"
)

type queueSource struct {
	mu     sync.Mutex
	events []model.Event
}

func (s *queueSource) Next(ctx context.Context, family model.EventType) (model.Event, error) {
	s.mu.Lock()
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		s.mu.Unlock()
		return ev, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return model.Event{}, ctx.Err()
}

type recordOrchestrator struct {
	mu       sync.Mutex
	executed []string
	done     chan struct{}
	want     int
}

func (o *recordOrchestrator) ExecuteJobFromEvent(ctx context.Context, jobID, tenantID string) error {
	o.mu.Lock()
	o.executed = append(o.executed, tenantID+"/"+jobID)
	if len(o.executed) == o.want {
		close(o.done)
	}
	o.mu.Unlock()
	return nil
}

func (o *recordOrchestrator) CreateJob(ctx context.Context, tenantID, userID string, topicID model.TopicID, params map[string]string) (*model.Job, error) {
	return nil, nil
}

func (o *recordOrchestrator) CreateTurnJob(ctx context.Context, tenantID, userID, sessionID, userMessage string) (*model.Job, error) {
	return nil, nil
}

func (o *recordOrchestrator) GetJob(ctx context.Context, tenantID, jobID string) (*model.Job, error) {
	return nil, nil
}

func (o *recordOrchestrator) ListJobs(ctx context.Context, tenantID, userID string, limit int) ([]*model.Job, error) {
	return nil, nil
}

func TestEventConsumer_DispatchesEachEvent(t *testing.T) {
	t.Parallel()
	src := &queueSource{events: []model.Event{
		{ID: "e1", Type: model.EventJobCreated, JobID: "job-1", TenantID: "t1"},
		{ID: "e2", Type: model.EventJobCreated, JobID: "job-2", TenantID: "t1"},
		{ID: "e3", Type: model.EventJobCreated, JobID: "job-3", TenantID: "t2"},
	}}
	orch := &recordOrchestrator{done: make(chan struct{}), want: 3}
	log := zerolog.Nop()
	pool := NewPool(2, &log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	consumer := NewEventConsumer(src, orch, pool, &log)
	go consumer.Run(ctx, model.EventJobCreated)

	select {
	case <-orch.done:
	case <-time.After(2 * time.Second):
		t.Fatal("events not dispatched in time")
	}

	orch.mu.Lock()
	defer orch.mu.Unlock()
	seen := map[string]bool{}
	for _, e := range orch.executed {
		seen[e] = true
	}
	for _, want := range []string{"t1/job-1", "t1/job-2", "t2/job-3"} {
		if !seen[want] {
			t.Fatalf("missing execution %s, got %v", want, orch.executed)
		}
	}
}

func TestEventConsumer_FullQueueRunsInline(t *testing.T) {
	t.Parallel()
	src := &queueSource{events: []model.Event{
		{ID: "e1", Type: model.EventJobCreated, JobID: "job-1", TenantID: "t1"},
	}}
	orch := &recordOrchestrator{done: make(chan struct{}), want: 1}
	log := zerolog.Nop()
	// never Start the pool so Submit fills its queue and starts failing
	pool := NewPool(1, &log)
	for pool.Submit(func(ctx context.Context) error { return nil }) == nil {
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	consumer := NewEventConsumer(src, orch, pool, &log)
	go consumer.Run(ctx, model.EventJobCreated)

	select {
	case <-orch.done:
	case <-time.After(2 * time.Second):
		t.Fatal("event dropped when the queue was full")
	}
}
