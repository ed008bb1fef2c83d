package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"coaching-ai-engine/internal/domain/model"
	"coaching-ai-engine/internal/domain/ports/adapter"
)

// Compile-time checks
var (
	_ adapter.EventBus    = (*EventBus)(nil)
	_ adapter.EventSource = (*EventBus)(nil)
)

// EventBus moves trigger and notification events over Redis lists, one list
// per event family. LPUSH/BRPOP gives at-least-once hand-off between the
// create-time and execute-time invocations; consumers stay idempotent.
type EventBus struct {
	client *Client
}

func NewEventBus(client *Client) *EventBus {
	return &EventBus{client: client}
}

func queueKey(t model.EventType) string { return "events:" + string(t) }

func (b *EventBus) Publish(ctx context.Context, ev model.Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.LPush(ctx, queueKey(ev.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Next blocks until an event of the given family arrives. The short poll
// timeout keeps the loop responsive to ctx cancellation.
func (b *EventBus) Next(ctx context.Context, family model.EventType) (model.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return model.Event{}, err
		}
		raw, err := b.client.BRPop(ctx, 2*time.Second, queueKey(family))
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return model.Event{}, err
		}
		var ev model.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return model.Event{}, fmt.Errorf("decode event: %w", err)
		}
		return ev, nil
	}
}
