package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deckcheck_llm_requests_total",
		Help: "LLM requests by provider, model, and outcome.",
	}, []string{"provider", "model", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deckcheck_llm_request_duration_seconds",
		Help:    "LLM request latency.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"provider", "model"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deckcheck_llm_tokens_total",
		Help: "Tokens consumed by provider, model, and direction.",
	}, []string{"provider", "model", "direction"})
)

func observeRequest(provider, model, status string, d time.Duration) {
	requestsTotal.WithLabelValues(provider, model, status).Inc()
	requestDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

func observeUsage(provider, model string, usage TokenUsage) {
	if usage.PromptTokens > 0 {
		tokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		tokensTotal.WithLabelValues(provider, model, "completion").Add(float64(usage.CompletionTokens))
	}
}
