package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(aiCallsLatencyMs, aiFallbackDepth, aiFallbackExhausted, aiTokensIn, aiTokensOut)
}

var (
	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "Backend call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000, 30000},
		},
		[]string{"provider", "model", "success"},
	)

	aiFallbackDepth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ai_fallback_depth",
			Help:    "Number of failed providers before a successful attempt.",
			Buckets: []float64{0, 1, 2, 3, 4},
		},
	)

	aiFallbackExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ai_fallback_exhausted_total",
			Help: "Generation calls where every configured provider failed.",
		},
	)

	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)
)

func ObserveGenerate(provider, model string, latencyMs int, success bool) {
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func ObserveFallbackDepth(failedBefore int) {
	aiFallbackDepth.Observe(float64(failedBefore))
}

func IncFallbackExhausted() { aiFallbackExhausted.Inc() }

func AddTokens(provider, model string, in, out int) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(in))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(out))
}
