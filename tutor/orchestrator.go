package tutor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lumikids/tutorflow/guardrails"
	"github.com/lumikids/tutorflow/internal/metrics"
	"github.com/lumikids/tutorflow/llm"
	"github.com/lumikids/tutorflow/llm/circuitbreaker"
	"github.com/lumikids/tutorflow/prompt"
	"github.com/lumikids/tutorflow/tokens"
	"github.com/lumikids/tutorflow/types"
)

// Response is the pipeline's answer to one user message. Safety vetoes are
// not errors: a vetoed exchange still returns a Response, flagged
// AgeAppropriate=false and carrying fallback copy.
type Response struct {
	Content        string           `json:"content"`
	TokenUsage     types.TokenUsage `json:"token_usage"`
	Model          string           `json:"model"`
	Timestamp      time.Time        `json:"timestamp"`
	Filtered       bool             `json:"filtered"`
	AgeAppropriate bool             `json:"age_appropriate"`
	RequestID      string           `json:"request_id"`
}

// defaultSlowDownMessage is returned when a child exceeds the rate limit.
const defaultSlowDownMessage = "Whoa, so many questions! Give me just a moment to catch up, then ask again."

// Options tunes the orchestrator. The zero value is usable.
type Options struct {
	// PrioritizeCost keeps simple and moderate conversations on the cheapest
	// model tier.
	PrioritizeCost bool
	// HistoryTokenBudget is the token allowance for prompt plus history;
	// 0 means the 2000 default.
	HistoryTokenBudget int
	// HistoryLimit caps messages loaded from the store; 0 means 50.
	HistoryLimit int
	// RateLimit/RateBurst shape the per-child limiter; zero values mean one
	// request per 2 seconds with a burst of 3.
	RateLimit rate.Limit
	RateBurst int
	// Safety is the safety-check template; AgeGroup is filled per call.
	Safety types.SafetyCheckConfig
	// Estimator overrides the token estimator; nil uses the heuristic one.
	Estimator tokens.Estimator
	// SlowDownMessage overrides the rate-limit copy.
	SlowDownMessage string
}

func (o Options) withDefaults() Options {
	if o.HistoryTokenBudget <= 0 {
		o.HistoryTokenBudget = 2000
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 50
	}
	if o.RateLimit == 0 {
		o.RateLimit = rate.Every(2 * time.Second)
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 3
	}
	if o.Estimator == nil {
		o.Estimator = tokens.NewHeuristicEstimator()
	}
	if o.SlowDownMessage == "" {
		o.SlowDownMessage = defaultSlowDownMessage
	}
	return o
}

// Orchestrator runs the full tutoring response pipeline: prompt composition,
// history pruning, the guarded completion call, content filtering and
// sanitization, and usage accounting.
type Orchestrator struct {
	provider  llm.Provider
	store     ConversationStore
	filter    *guardrails.ContentFilter
	sanitizer *guardrails.ResponseSanitizer
	analyzer  *tokens.ComplexityAnalyzer
	selector  *tokens.ModelSelector
	pruner    *tokens.Pruner
	estimator tokens.Estimator
	composer  prompt.Composer
	usage     *tokens.UsageTracker
	limiter   *childLimiter
	metrics   *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger
	opts      Options

	safetyMu sync.RWMutex
	safety   types.SafetyCheckConfig

	now func() time.Time
}

// New creates an orchestrator around provider. store and collector may be
// nil: a nil store degrades to caller-supplied history, a nil collector
// drops metrics.
func New(provider llm.Provider, store ConversationStore, collector *metrics.Collector, opts Options, logger *zap.Logger) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		provider:  provider,
		store:     store,
		filter:    guardrails.NewContentFilter(logger),
		sanitizer: guardrails.NewResponseSanitizer(logger),
		analyzer:  tokens.NewComplexityAnalyzer(opts.Estimator, logger),
		selector:  tokens.NewModelSelector(logger),
		pruner:    tokens.NewPruner(opts.Estimator, logger),
		estimator: opts.Estimator,
		composer:  prompt.NewComposer(),
		usage:     tokens.NewUsageTracker(logger),
		limiter:   newChildLimiter(opts.RateLimit, opts.RateBurst),
		metrics:   collector,
		tracer:    otel.Tracer("tutorflow/tutor"),
		logger:    logger,
		opts:      opts,
		safety:    opts.Safety,
		now:       time.Now,
	}
}

// UpdateSafety swaps the safety posture applied to subsequent requests.
// Used by config hot reload.
func (o *Orchestrator) UpdateSafety(cfg types.SafetyCheckConfig) {
	o.safetyMu.Lock()
	o.safety = cfg
	o.safetyMu.Unlock()
}

// Usage exposes the per-session usage tracker.
func (o *Orchestrator) Usage() *tokens.UsageTracker { return o.usage }

// GenerateResponse runs one user message through the whole pipeline. Errors
// are returned only for genuine provider connectivity/contract failures;
// safety vetoes and rate limiting produce normal responses.
func (o *Orchestrator) GenerateResponse(ctx context.Context, convCtx types.ConversationContext, userMessage string) (*Response, error) {
	start := o.now()
	ctx, span := o.tracer.Start(ctx, "tutor.generate_response", trace.WithAttributes(
		attribute.String("age_group", string(convCtx.AgeGroup)),
		attribute.String("subject", convCtx.Subject),
	))
	defer span.End()

	requestID := uuid.NewString()
	logger := o.logger.With(
		zap.String("request_id", requestID),
		zap.String("session_id", convCtx.SessionID),
	)

	if !o.limiter.allow(convCtx.ChildID) {
		logger.Info("request rate limited", zap.String("child_id", convCtx.ChildID))
		o.metrics.RecordPipeline("rate_limited", o.now().Sub(start))
		return &Response{
			Content:        o.opts.SlowDownMessage,
			Timestamp:      o.now(),
			AgeAppropriate: true,
			RequestID:      requestID,
		}, nil
	}

	history := o.loadHistory(ctx, convCtx, logger)

	analysis := append(append([]types.Message(nil), history...), types.NewUserMessage(userMessage))
	complexity := o.analyzer.Analyze(analysis, convCtx.Subject, convCtx.AgeGroup)
	model := o.selector.Recommend(complexity, o.opts.PrioritizeCost)
	plan := o.composer.Compose(convCtx)

	budget := o.opts.HistoryTokenBudget - o.estimator.Count(plan.SystemPrompt) - o.estimator.Count(userMessage)
	if budget < 0 {
		budget = 0
	}
	pruned := o.pruner.Prune(history, budget, convCtx.AgeGroup)
	o.metrics.RecordPruning(len(history) - len(pruned))

	req := &llm.ChatRequest{
		Model:       string(model),
		Messages:    buildWireMessages(plan.SystemPrompt, pruned, userMessage),
		MaxTokens:   plan.MaxTokens,
		Temperature: float32(plan.Temperature),
		User:        convCtx.SessionID,
	}

	llmStart := o.now()
	resp, err := o.provider.Completion(ctx, req)
	o.metrics.RecordLLMRequest(o.provider.Name(), string(model), callStatus(err), o.now().Sub(llmStart))
	if err != nil {
		pe := mapProviderError(err)
		logger.Error("completion failed", zap.String("code", string(pe.Code)), zap.Error(err))
		span.RecordError(pe)
		o.metrics.RecordPipeline("error", o.now().Sub(start))
		return nil, pe
	}

	content, err := llm.FirstChoiceContent(resp, o.provider.Name())
	if err != nil {
		pe := types.NewPipelineError(types.ErrCodeInvalidUpstreamResponse, "completion had no usable content", err)
		logger.Error("completion malformed", zap.Error(err))
		o.metrics.RecordPipeline("error", o.now().Sub(start))
		return nil, pe
	}

	usage := types.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Cost:             o.selector.CalculateCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, model),
	}
	o.usage.Record(convCtx.SessionID, usage)
	o.metrics.RecordTokenUsage(string(model), usage)

	o.safetyMu.RLock()
	safety := o.safety
	o.safetyMu.RUnlock()
	safety.AgeGroup = convCtx.AgeGroup

	filterResult := o.filter.Filter(content, convCtx.AgeGroup, &guardrails.FilterOptions{
		AllowEducationalExceptions: safety.AllowEducationalExceptions,
	})
	for _, v := range filterResult.Violations {
		o.metrics.RecordViolation(string(v.Kind), string(v.Severity))
	}

	if !filterResult.IsAppropriate {
		logger.Info("response blocked by content filter",
			zap.Int("violations", len(filterResult.Violations)),
			zap.Float64("confidence", filterResult.Confidence),
		)
		return o.finish(ctx, convCtx, userMessage, &Response{
			Content:        guardrails.PolicyFor(convCtx.AgeGroup).FallbackMessage,
			TokenUsage:     usage,
			Model:          string(model),
			Timestamp:      o.now(),
			Filtered:       true,
			AgeAppropriate: false,
			RequestID:      requestID,
		}, "filtered", start, logger), nil
	}

	sanitized := o.sanitizer.Sanitize(filterResult.FilteredContent, safety)
	if sanitized.Blocked {
		logger.Info("response blocked by sanitizer",
			zap.Float64("safety_score", sanitized.SafetyScore),
		)
		return o.finish(ctx, convCtx, userMessage, &Response{
			Content:        sanitized.SanitizedContent,
			TokenUsage:     usage,
			Model:          string(model),
			Timestamp:      o.now(),
			Filtered:       true,
			AgeAppropriate: false,
			RequestID:      requestID,
		}, "sanitized", start, logger), nil
	}

	modified := len(filterResult.Violations) > 0 || len(sanitized.Modifications) > 0
	return o.finish(ctx, convCtx, userMessage, &Response{
		Content:        sanitized.SanitizedContent,
		TokenUsage:     usage,
		Model:          string(model),
		Timestamp:      o.now(),
		Filtered:       modified,
		AgeAppropriate: true,
		RequestID:      requestID,
	}, "ok", start, logger), nil
}

// HealthCheck probes the provider; used by the service health endpoint.
func (o *Orchestrator) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return o.provider.HealthCheck(ctx)
}

// loadHistory prefers the store, falling back to the caller's history when
// the store is absent or failing.
func (o *Orchestrator) loadHistory(ctx context.Context, convCtx types.ConversationContext, logger *zap.Logger) []types.Message {
	if o.store == nil || convCtx.SessionID == "" {
		return convCtx.History
	}
	history, err := o.store.History(ctx, convCtx.SessionID, o.opts.HistoryLimit)
	if err != nil {
		logger.Warn("conversation store unavailable, using caller history", zap.Error(err))
		return convCtx.History
	}
	if len(history) == 0 {
		return convCtx.History
	}
	return history
}

// finish persists the exchange and records the pipeline outcome.
func (o *Orchestrator) finish(ctx context.Context, convCtx types.ConversationContext, userMessage string, resp *Response, outcome string, start time.Time, logger *zap.Logger) *Response {
	if o.store != nil && convCtx.SessionID != "" {
		userMsg := types.NewUserMessage(userMessage)
		userMsg.TokenCount = o.estimator.Count(userMessage)
		reply := types.NewAssistantMessage(resp.Content)
		reply.TokenCount = resp.TokenUsage.CompletionTokens
		if err := o.store.Append(ctx, convCtx.SessionID, userMsg, reply); err != nil {
			logger.Warn("failed to persist exchange", zap.Error(err))
		}
	}
	o.metrics.RecordPipeline(outcome, o.now().Sub(start))
	return resp
}

// buildWireMessages assembles the outbound message sequence: system prompt,
// pruned history, then the new user message.
func buildWireMessages(systemPrompt string, history []types.Message, userMessage string) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(history)+2)
	out = append(out, llm.ChatMessage{Role: string(types.RoleSystem), Content: systemPrompt})
	for _, m := range history {
		out = append(out, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	out = append(out, llm.ChatMessage{Role: string(types.RoleUser), Content: userMessage})
	return out
}

// callStatus labels a completion call for metrics.
func callStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// mapProviderError translates provider failures into the pipeline taxonomy.
func mapProviderError(err error) *types.PipelineError {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return types.NewPipelineError(types.ErrCodeCircuitOpen, "provider circuit breaker is open", err)
	}

	var le *llm.Error
	if errors.As(err, &le) {
		switch {
		case le.Code == llm.ErrInvalidResponse:
			return types.NewPipelineError(types.ErrCodeInvalidUpstreamResponse, "provider returned a malformed completion", err)
		case le.Retryable:
			return types.NewPipelineError(types.ErrCodeUpstreamTransient, "provider unavailable after retries", err)
		default:
			return types.NewPipelineError(types.ErrCodeUpstreamNonRetryable, "provider rejected the request", err)
		}
	}
	return types.NewPipelineError(types.ErrCodeUpstreamTransient, "provider call failed", err)
}
