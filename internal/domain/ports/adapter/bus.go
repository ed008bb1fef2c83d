package adapter

import (
	"context"

	"coaching-ai-engine/internal/domain/model"
)

// EventBus is the trigger/notification port. Delivery is at least once;
// publishing the same event twice must be harmless for consumers.
type EventBus interface {
	Publish(ctx context.Context, ev model.Event) error
}

// EventSource hands trigger events to a consumer loop. Next blocks until an
// event of the given family arrives or ctx is done.
type EventSource interface {
	Next(ctx context.Context, family model.EventType) (model.Event, error)
}
