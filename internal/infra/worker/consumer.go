// File: internal/infra/worker/consumer.go
package worker

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"coaching-ai-engine/internal/domain/model"
	"coaching-ai-engine/internal/domain/ports/adapter"
	"coaching-ai-engine/internal/usecase"
)

// EventConsumer drains trigger events and hands each one to the pool.
// Delivery is at-least-once: a redelivered event reaches the orchestrator
// again and is discarded there, so the consumer never tracks seen ids.
type EventConsumer struct {
	src  adapter.EventSource
	orch usecase.JobOrchestrator
	pool *Pool
	log  *zerolog.Logger
}

func NewEventConsumer(src adapter.EventSource, orch usecase.JobOrchestrator, pool *Pool, log *zerolog.Logger) *EventConsumer {
	return &EventConsumer{src: src, orch: orch, pool: pool, log: log}
}

// Run blocks until ctx is cancelled. One Run per trigger family; job
// creation and conversation turns travel on separate queues.
func (c *EventConsumer) Run(ctx context.Context, family model.EventType) {
	c.log.Info().Str("family", string(family)).Msg("event consumer started")
	for {
		ev, err := c.src.Next(ctx, family)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info().Str("family", string(family)).Msg("event consumer stopping")
				return
			}
			c.log.Error().Err(err).Str("family", string(family)).Msg("failed to read event")
			continue
		}

		submitErr := c.pool.Submit(func(ctx context.Context) error {
			return c.orch.ExecuteJobFromEvent(ctx, ev.JobID, ev.TenantID)
		})
		if submitErr != nil {
			// The queue is full; run inline rather than drop the trigger,
			// a lost event would strand the job in pending.
			if err := c.orch.ExecuteJobFromEvent(ctx, ev.JobID, ev.TenantID); err != nil && !errors.Is(err, context.Canceled) {
				c.log.Error().Err(err).Str("job_id", ev.JobID).Msg("inline job execution failed")
			}
		}
	}
}
