package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"coaching-ai-engine/internal/domain/model"
)

// New returns a model.TokenEstimator backed by tiktoken's cl100k_base
// encoding. Loading the encoding is deferred to first use; when it is
// unavailable (offline environments) the chars/4 heuristic is used instead.
func New() model.TokenEstimator {
	var (
		once sync.Once
		enc  *tiktoken.Tiktoken
	)
	return func(text string) int {
		once.Do(func() {
			enc, _ = tiktoken.GetEncoding("cl100k_base")
		})
		if enc == nil {
			return model.EstimateTokens(text)
		}
		return len(enc.Encode(text, nil, nil))
	}
}
