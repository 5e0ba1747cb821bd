package tutor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/lumikids/tutorflow/guardrails"
	"github.com/lumikids/tutorflow/llm"
	"github.com/lumikids/tutorflow/llm/circuitbreaker"
	"github.com/lumikids/tutorflow/types"
)

// scriptedProvider returns canned responses and records every request it saw.
type scriptedProvider struct {
	responses []*llm.ChatResponse
	errs      []error
	requests  []*llm.ChatRequest
}

func (p *scriptedProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.requests = append(p.requests, req)
	i := len(p.requests) - 1
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return p.responses[len(p.responses)-1], nil
}

func (p *scriptedProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true, Latency: time.Millisecond}, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func scriptedResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Model: "gpt-4o-mini",
		Choices: []llm.ChatChoice{
			{Message: llm.ChatMessage{Role: "assistant", Content: content}},
		},
		Usage: llm.ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
}

func testContext() types.ConversationContext {
	return types.ConversationContext{
		ChildID:   "child-1",
		AgeGroup:  types.AgeGroupMiddle,
		Subject:   "science",
		SessionID: "session-1",
	}
}

func TestGenerateResponseHappyPath(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		scriptedResponse("Plants need sunlight, water, and air to grow."),
	}}
	orch := New(provider, nil, nil, Options{PrioritizeCost: true}, zaptest.NewLogger(t))

	resp, err := orch.GenerateResponse(context.Background(), testContext(), "What do plants need to grow?")
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, "Plants need sunlight, water, and air to grow.", resp.Content)
	assert.True(t, resp.AgeAppropriate)
	assert.False(t, resp.Filtered)
	assert.NotEmpty(t, resp.RequestID)

	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Equal(t, 10, resp.TokenUsage.PromptTokens)
	assert.Equal(t, 20, resp.TokenUsage.CompletionTokens)
	assert.Equal(t, 30, resp.TokenUsage.TotalTokens)
	assert.InDelta(t, 10.0/1000*0.00015+20.0/1000*0.0006, resp.TokenUsage.Cost, 1e-12)

	require.Len(t, provider.requests, 1)
	req := provider.requests[0]
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, 500, req.MaxTokens)
	assert.InDelta(t, 0.7, float64(req.Temperature), 1e-6)
	assert.Equal(t, "session-1", req.User)

	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.NotEmpty(t, req.Messages[0].Content)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "What do plants need to grow?", req.Messages[1].Content)

	snap, ok := orch.Usage().Snapshot("session-1")
	require.True(t, ok)
	assert.Equal(t, 30, snap.TotalTokens)
	assert.Equal(t, 1, snap.MessageCount)
}

func TestGenerateResponseFilterBlocksInappropriateContent(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		scriptedResponse("You can call me at 555-123-4567 anytime."),
	}}
	orch := New(provider, nil, nil, Options{}, zaptest.NewLogger(t))

	resp, err := orch.GenerateResponse(context.Background(), testContext(), "How do I reach you?")
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.True(t, resp.Filtered)
	assert.False(t, resp.AgeAppropriate)
	assert.Equal(t, guardrails.PolicyFor(types.AgeGroupMiddle).FallbackMessage, resp.Content)
	assert.Equal(t, 30, resp.TokenUsage.TotalTokens)
}

func TestGenerateResponseSanitizerBlocksEmergencyContent(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		scriptedResponse("If you are hurt, call 911 right away."),
	}}
	orch := New(provider, nil, nil, Options{}, zaptest.NewLogger(t))

	convCtx := testContext()
	convCtx.AgeGroup = types.AgeGroupYoung

	resp, err := orch.GenerateResponse(context.Background(), convCtx, "What should I do if I fall?")
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.True(t, resp.Filtered)
	assert.False(t, resp.AgeAppropriate)
	assert.Equal(t, guardrails.PolicyFor(types.AgeGroupYoung).FallbackMessage, resp.Content)
}

func TestGenerateResponseErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		response *llm.ChatResponse
		wantCode types.PipelineErrorCode
	}{
		{
			name:     "non-retryable provider error",
			err:      &llm.Error{Code: llm.ErrUnauthorized, Message: "bad key", Retryable: false},
			wantCode: types.ErrCodeUpstreamNonRetryable,
		},
		{
			name:     "retryable provider error",
			err:      &llm.Error{Code: llm.ErrUpstreamError, Message: "upstream 503", Retryable: true},
			wantCode: types.ErrCodeUpstreamTransient,
		},
		{
			name:     "circuit breaker open",
			err:      circuitbreaker.ErrCircuitOpen,
			wantCode: types.ErrCodeCircuitOpen,
		},
		{
			name:     "malformed completion",
			response: &llm.ChatResponse{Model: "gpt-4o-mini"},
			wantCode: types.ErrCodeInvalidUpstreamResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &scriptedProvider{
				responses: []*llm.ChatResponse{tt.response},
				errs:      []error{tt.err},
			}
			orch := New(provider, nil, nil, Options{}, zaptest.NewLogger(t))

			resp, err := orch.GenerateResponse(context.Background(), testContext(), "What is photosynthesis?")
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Equal(t, tt.wantCode, types.PipelineErrorCodeOf(err))
		})
	}
}

func TestGenerateResponseRateLimitsPerChild(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		scriptedResponse("The sky looks blue because air scatters blue light."),
	}}
	orch := New(provider, nil, nil, Options{
		RateLimit: rate.Every(time.Hour),
		RateBurst: 1,
	}, zaptest.NewLogger(t))

	first, err := orch.GenerateResponse(context.Background(), testContext(), "Why is the sky blue?")
	require.NoError(t, err)
	assert.True(t, first.AgeAppropriate)

	second, err := orch.GenerateResponse(context.Background(), testContext(), "Why is the sky blue?")
	require.NoError(t, err)
	assert.Equal(t, defaultSlowDownMessage, second.Content)
	assert.True(t, second.AgeAppropriate)
	assert.False(t, second.Filtered)

	// The limited request never reached the provider.
	assert.Len(t, provider.requests, 1)

	// A different child is unaffected.
	other := testContext()
	other.ChildID = "child-2"
	other.SessionID = "session-2"
	third, err := orch.GenerateResponse(context.Background(), other, "Why is the sky blue?")
	require.NoError(t, err)
	assert.NotEqual(t, defaultSlowDownMessage, third.Content)
	assert.Len(t, provider.requests, 2)
}

func TestGenerateResponsePersistsExchangeHistory(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		scriptedResponse("A spider has eight legs."),
		scriptedResponse("Most insects have six legs."),
	}}
	store := NewMemoryStore(0)
	orch := New(provider, store, nil, Options{}, zaptest.NewLogger(t))

	_, err := orch.GenerateResponse(context.Background(), testContext(), "How many legs does a spider have?")
	require.NoError(t, err)

	history, err := store.History(context.Background(), "session-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, types.RoleUser, history[0].Role)
	assert.Equal(t, "How many legs does a spider have?", history[0].Content)
	assert.Equal(t, types.RoleAssistant, history[1].Role)
	assert.Equal(t, "A spider has eight legs.", history[1].Content)
	assert.Equal(t, 20, history[1].TokenCount)

	_, err = orch.GenerateResponse(context.Background(), testContext(), "What about insects?")
	require.NoError(t, err)

	// Second request carries the stored exchange on the wire.
	require.Len(t, provider.requests, 2)
	second := provider.requests[1]
	require.Len(t, second.Messages, 4)
	assert.Equal(t, "system", second.Messages[0].Role)
	assert.Equal(t, "How many legs does a spider have?", second.Messages[1].Content)
	assert.Equal(t, "A spider has eight legs.", second.Messages[2].Content)
	assert.Equal(t, "What about insects?", second.Messages[3].Content)
}
