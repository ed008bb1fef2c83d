package ai

import (
	"context"
	"time"

	"coaching-ai-engine/internal/domain/ports/adapter"
)

var _ adapter.AIProvider = (*NoopProvider)(nil)

// NoopProvider implements adapter.AIProvider for local/dev testing.
// It echoes a canned reply instead of calling a real backend.
type NoopProvider struct {
	Reply string
}

func NewNoopProvider() *NoopProvider {
	return &NoopProvider{Reply: "This is a noop AI response."}
}

func (a *NoopProvider) Name() string              { return "noop" }
func (a *NoopProvider) Supports(model string) bool { return true }

func (a *NoopProvider) Generate(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return "", adapter.Usage{}, ctx.Err()
	}
	return a.Reply, adapter.Usage{CompletionTokens: len(a.Reply) / 4}, nil
}
