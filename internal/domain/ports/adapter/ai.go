package adapter

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Usage for a single generation call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// GenerateOptions tune one call. ModelHint overrides the configured default
// provider selection when set.
type GenerateOptions struct {
	ModelHint   string
	Temperature float64
	MaxTokens   int
}

// GenerateResult is the normalized response of a generation call.
type GenerateResult struct {
	Text         string
	ProviderUsed string
	ModelUsed    string
	Usage        Usage
	// Trace holds one "<provider>: <error>" entry per failed attempt,
	// in the order the backends were tried.
	Trace []string
	// Degraded is true when every backend failed and Text carries the
	// fixed user-safe fallback message.
	Degraded bool
}

// AIProvider is one interchangeable text-generation backend.
type AIProvider interface {
	Name() string
	// Supports reports whether this provider can serve the requested
	// model family. An empty model is always supported.
	Supports(model string) bool
	Generate(ctx context.Context, model string, messages []Message) (string, Usage, error)
}

// TextGenerator is the uniform generation port presented to use cases.
// Implementations hide individual backend failure behind ordered fallback
// and are safe for concurrent reuse.
type TextGenerator interface {
	// Generate fails only when every configured backend has failed.
	Generate(ctx context.Context, systemPrompt string, messages []Message, opts GenerateOptions) (GenerateResult, error)
	// Analyze asks the backend to extract a structured object from text.
	// It never fails: when parsing is impossible it returns a best-effort
	// wrapped-text result.
	Analyze(ctx context.Context, text, instructions string) map[string]any
}
