// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/lumikids/tutorflow/types"
)

// Collector registers and updates every pipeline metric. A nil *Collector is
// valid and drops all observations, so callers never need nil checks.
type Collector struct {
	pipelineRequestsTotal *prometheus.CounterVec
	pipelineDuration      *prometheus.HistogramVec

	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmCost            *prometheus.CounterVec

	filterViolations   *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
	prunedMessages     prometheus.Histogram

	logger *zap.Logger
}

// NewCollector creates a collector registered on reg under namespace.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.pipelineRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_requests_total",
			Help:      "Total tutoring pipeline requests by outcome",
		},
		[]string{"outcome"},
	)

	c.pipelineDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_request_duration_seconds",
			Help:      "End-to-end pipeline request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total LLM completion requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM completion request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"model", "kind"},
	)

	c.llmCost = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_usd_total",
			Help:      "Total LLM spend in USD",
		},
		[]string{"model"},
	)

	c.filterViolations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_filter_violations_total",
			Help:      "Content filter violations by kind and severity",
		},
		[]string{"kind", "severity"},
	)

	c.breakerTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"to_state"},
	)

	c.prunedMessages = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pruned_messages",
			Help:      "Messages dropped from history per pruning pass",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	return c
}

// RecordPipeline counts one pipeline request and its duration.
func (c *Collector) RecordPipeline(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.pipelineRequestsTotal.WithLabelValues(outcome).Inc()
	c.pipelineDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordLLMRequest counts one upstream completion call.
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordTokenUsage adds one exchange's token and cost spend.
func (c *Collector) RecordTokenUsage(model string, usage types.TokenUsage) {
	if c == nil {
		return
	}
	c.llmTokensUsed.WithLabelValues(model, "prompt").Add(float64(usage.PromptTokens))
	c.llmTokensUsed.WithLabelValues(model, "completion").Add(float64(usage.CompletionTokens))
	c.llmCost.WithLabelValues(model).Add(usage.Cost)
}

// RecordViolation counts one content filter violation.
func (c *Collector) RecordViolation(kind, severity string) {
	if c == nil {
		return
	}
	c.filterViolations.WithLabelValues(kind, severity).Inc()
}

// RecordBreakerTransition counts one circuit breaker state change.
func (c *Collector) RecordBreakerTransition(toState string) {
	if c == nil {
		return
	}
	c.breakerTransitions.WithLabelValues(toState).Inc()
}

// RecordPruning observes how many messages a pruning pass dropped.
func (c *Collector) RecordPruning(dropped int) {
	if c == nil {
		return
	}
	c.prunedMessages.Observe(float64(dropped))
}
