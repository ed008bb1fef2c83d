package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"coaching-ai-engine/internal/domain"
	"coaching-ai-engine/internal/domain/ports/adapter"
	"coaching-ai-engine/internal/infra/metrics"
)

// DegradedMessage is the fixed user-safe reply returned when every backend
// has failed. Raw backend errors never reach end users; the trace carries
// the root cause for observability.
const DegradedMessage = "We're experiencing technical difficulties right now. Please try again in a few minutes."

var _ adapter.TextGenerator = (*FailoverGenerator)(nil)

// FailoverGenerator presents one uniform generate operation over an ordered
// list of providers. The default provider is tried first (a per-call model
// hint may promote another provider); each remaining provider gets exactly
// one attempt, in order. Stateless across invocations.
type FailoverGenerator struct {
	providers      []adapter.AIProvider
	attemptTimeout time.Duration
	log            *zerolog.Logger
}

// NewFailoverGenerator builds the chain: defaultProvider first, then the
// fallback list in configured order.
func NewFailoverGenerator(providers []adapter.AIProvider, attemptTimeout time.Duration, log *zerolog.Logger) (*FailoverGenerator, error) {
	if len(providers) == 0 {
		return nil, errors.New("failover: no providers configured")
	}
	if attemptTimeout <= 0 {
		attemptTimeout = 60 * time.Second
	}
	return &FailoverGenerator{providers: providers, attemptTimeout: attemptTimeout, log: log}, nil
}

func (f *FailoverGenerator) chainFor(modelHint string) []adapter.AIProvider {
	if modelHint == "" {
		return f.providers
	}
	// A hint that only a non-default provider can serve promotes that
	// provider to the front; the rest keep their configured order.
	for i, p := range f.providers {
		if p.Supports(modelHint) {
			if i == 0 {
				return f.providers
			}
			chain := make([]adapter.AIProvider, 0, len(f.providers))
			chain = append(chain, p)
			for j, q := range f.providers {
				if j != i {
					chain = append(chain, q)
				}
			}
			return chain
		}
	}
	return f.providers
}

func (f *FailoverGenerator) Generate(ctx context.Context, systemPrompt string, messages []adapter.Message, opts adapter.GenerateOptions) (adapter.GenerateResult, error) {
	msgs := make([]adapter.Message, 0, len(messages)+1)
	if systemPrompt != "" {
		msgs = append(msgs, adapter.Message{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, messages...)

	var trace []string
	timeouts := 0
	for _, p := range f.chainFor(opts.ModelHint) {
		model := ""
		if opts.ModelHint != "" && p.Supports(opts.ModelHint) {
			model = opts.ModelHint
		}

		attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
		start := time.Now()
		text, usage, err := p.Generate(attemptCtx, model, msgs)
		cancel()
		latency := time.Since(start)

		if err != nil {
			trace = append(trace, fmt.Sprintf("%s: %v", p.Name(), err))
			if errors.Is(err, context.DeadlineExceeded) {
				timeouts++
			}
			metrics.ObserveGenerate(p.Name(), model, int(latency/time.Millisecond), false)
			f.log.Warn().Err(err).Str("provider", p.Name()).Str("model", model).Msg("provider attempt failed, advancing")
			continue
		}

		metrics.ObserveGenerate(p.Name(), model, int(latency/time.Millisecond), true)
		metrics.ObserveFallbackDepth(len(trace))
		return adapter.GenerateResult{
			Text:         text,
			ProviderUsed: p.Name(),
			ModelUsed:    model,
			Usage:        usage,
			Trace:        trace,
		}, nil
	}

	metrics.IncFallbackExhausted()
	f.log.Error().Strs("trace", trace).Msg("all providers failed")

	err := domain.ErrBackendExhausted
	if timeouts == len(trace) && timeouts > 0 {
		err = domain.ErrBackendTimeout
	}
	return adapter.GenerateResult{
		Text:     DegradedMessage,
		Trace:    trace,
		Degraded: true,
	}, fmt.Errorf("%w: %s", err, strings.Join(trace, "; "))
}

// Analyze runs the same fallback discipline for structured extraction.
// It always returns something usable: when the backend output cannot be
// parsed as an object (or every backend failed), the text is wrapped.
func (f *FailoverGenerator) Analyze(ctx context.Context, text, instructions string) map[string]any {
	prompt := "You extract structured data. Respond with one JSON object and nothing else."
	res, err := f.Generate(ctx, prompt, []adapter.Message{
		{Role: "user", Content: instructions + "\n\n" + text},
	}, adapter.GenerateOptions{})
	if err != nil {
		return map[string]any{"text": text, "extracted": false}
	}
	if obj, ok := decodeObject(res.Text); ok {
		return obj
	}
	return map[string]any{"text": res.Text, "extracted": false}
}

// decodeObject accepts bare JSON or JSON inside a fenced code block.
func decodeObject(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && strings.EqualFold(strings.TrimSpace(s[:nl]), "json") {
			s = s[nl+1:]
		}
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}
