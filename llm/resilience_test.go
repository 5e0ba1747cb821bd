package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumikids/tutorflow/llm/circuitbreaker"
)

// scriptedProvider returns canned errors per attempt, then succeeds.
type scriptedProvider struct {
	errs  []error
	calls int
}

func (p *scriptedProvider) Completion(_ context.Context, _ *ChatRequest) (*ChatResponse, error) {
	p.calls++
	if p.calls <= len(p.errs) {
		return nil, p.errs[p.calls-1]
	}
	return &ChatResponse{
		Model:   "gpt-4o-mini",
		Choices: []ChatChoice{{Message: ChatMessage{Role: "assistant", Content: "ok"}}},
		Usage:   ChatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (p *scriptedProvider) HealthCheck(context.Context) (*HealthStatus, error) {
	return &HealthStatus{Healthy: true}, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func newResilient(p Provider, breaker *circuitbreaker.CircuitBreaker, policy *RetryPolicy) *ResilientProvider {
	rp := NewResilientProvider(p, breaker, policy, zap.NewNop())
	rp.sleep = func(context.Context, time.Duration) error { return nil }
	return rp
}

func transientErr() error {
	return &Error{Code: ErrUpstreamError, Message: "upstream 503", Retryable: true}
}

func TestCompletionSucceedsFirstTry(t *testing.T) {
	p := &scriptedProvider{}
	rp := newResilient(p, nil, nil)

	resp, err := rp.Completion(context.Background(), &ChatRequest{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Choices[0].Message.Content)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 0, rp.Breaker().Failures())
}

func TestCompletionRetriesTransientErrors(t *testing.T) {
	p := &scriptedProvider{errs: []error{transientErr(), transientErr()}}
	rp := newResilient(p, nil, nil)

	resp, err := rp.Completion(context.Background(), &ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Choices[0].Message.Content)
	assert.Equal(t, 3, p.calls)
	// Success resets the breaker even after intermediate failures.
	assert.Equal(t, 0, rp.Breaker().Failures())
}

func TestCompletionDoesNotRetryNonRetryable(t *testing.T) {
	authErr := &Error{Code: ErrUnauthorized, Message: "bad key", Retryable: false}
	p := &scriptedProvider{errs: []error{authErr}}
	rp := newResilient(p, nil, nil)

	_, err := rp.Completion(context.Background(), &ChatRequest{})
	require.Error(t, err)
	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrUnauthorized, le.Code)
	assert.Equal(t, 1, p.calls, "non-retryable errors must short-circuit")
	assert.Equal(t, 1, rp.Breaker().Failures(), "failures still count toward the breaker")
}

func TestCompletionExhaustsRetries(t *testing.T) {
	p := &scriptedProvider{errs: []error{transientErr(), transientErr(), transientErr(), transientErr(), transientErr()}}
	rp := newResilient(p, nil, &RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxBackoff: time.Millisecond})

	_, err := rp.Completion(context.Background(), &ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, 3, p.calls, "initial attempt plus two retries")
	assert.Equal(t, 3, rp.Breaker().Failures())
}

func TestCompletionFailsFastWhenBreakerOpen(t *testing.T) {
	breaker := circuitbreaker.New(&circuitbreaker.Config{Threshold: 1, OpenDuration: time.Hour}, zap.NewNop())
	breaker.RecordFailure()

	p := &scriptedProvider{}
	rp := newResilient(p, breaker, nil)

	_, err := rp.Completion(context.Background(), &ChatRequest{})
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 0, p.calls, "open breaker must not attempt the call")
}

func TestCompletionStopsWhenBreakerTripsMidSequence(t *testing.T) {
	breaker := circuitbreaker.New(&circuitbreaker.Config{Threshold: 2, OpenDuration: time.Hour}, zap.NewNop())
	p := &scriptedProvider{errs: []error{transientErr(), transientErr(), transientErr(), transientErr()}}
	rp := newResilient(p, breaker, &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxBackoff: time.Millisecond})

	_, err := rp.Completion(context.Background(), &ChatRequest{})
	require.Error(t, err)
	// The breaker opened after the second failure; the remaining retries were
	// abandoned and the last upstream error surfaced.
	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrUpstreamError, le.Code)
	assert.Equal(t, 2, p.calls)
}

func TestCompletionHonoursCancellation(t *testing.T) {
	p := &scriptedProvider{errs: []error{transientErr(), transientErr(), transientErr()}}
	rp := NewResilientProvider(p, nil, &RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour, MaxBackoff: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rp.Completion(ctx, &ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls, "cancellation must stop scheduling further attempts")
}

func TestBackoffFor(t *testing.T) {
	policy := &RetryPolicy{MaxRetries: 5, BaseDelay: time.Second, MaxBackoff: 30 * time.Second}
	assert.Equal(t, 1*time.Second, policy.backoffFor(1))
	assert.Equal(t, 2*time.Second, policy.backoffFor(2))
	assert.Equal(t, 4*time.Second, policy.backoffFor(3))
	assert.Equal(t, 8*time.Second, policy.backoffFor(4))

	capped := &RetryPolicy{MaxRetries: 10, BaseDelay: time.Second, MaxBackoff: 4 * time.Second}
	assert.Equal(t, 4*time.Second, capped.backoffFor(7))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("connection reset")))
	assert.True(t, IsRetryable(&Error{Code: ErrUpstreamError, Retryable: true}))
	assert.False(t, IsRetryable(&Error{Code: ErrRateLimited, Retryable: false}))
}

func TestFirstChoiceContent(t *testing.T) {
	_, err := FirstChoiceContent(nil, "openai")
	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrInvalidResponse, le.Code)

	_, err = FirstChoiceContent(&ChatResponse{}, "openai")
	require.ErrorAs(t, err, &le)

	_, err = FirstChoiceContent(&ChatResponse{Choices: []ChatChoice{{}}}, "openai")
	require.ErrorAs(t, err, &le)

	content, err := FirstChoiceContent(&ChatResponse{
		Choices: []ChatChoice{{Message: ChatMessage{Content: "hello"}}},
	}, "openai")
	require.NoError(t, err)
	assert.Equal(t, "hello", content)
}
