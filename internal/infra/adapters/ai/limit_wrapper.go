package ai

import (
	"context"

	"coaching-ai-engine/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.TextGenerator = (*limitedGenerator)(nil)

type limitedGenerator struct {
	inner adapter.TextGenerator
	sem   chan struct{}
}

// NewLimitedGenerator caps concurrent backend calls across the process.
func NewLimitedGenerator(inner adapter.TextGenerator, maxConcurrent int) adapter.TextGenerator {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedGenerator{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedGenerator) Generate(ctx context.Context, systemPrompt string, messages []adapter.Message, opts adapter.GenerateOptions) (adapter.GenerateResult, error) {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	return l.inner.Generate(ctx, systemPrompt, messages, opts)
}

func (l *limitedGenerator) Analyze(ctx context.Context, text, instructions string) map[string]any {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	return l.inner.Analyze(ctx, text, instructions)
}
