package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumikids/tutorflow/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "test-key", BaseURL: srv.URL}, zap.NewNop())
}

func TestCompletionSuccess(t *testing.T) {
	var gotAuth string
	var gotBody chatCompletionRequest

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini",
			"created": 1756600000,
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Great question!"}}],
			"usage": {"prompt_tokens": 42, "completion_tokens": 12, "total_tokens": 54}
		}`))
	})

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Model: "gpt-4o-mini",
		Messages: []llm.ChatMessage{
			{Role: "system", Content: "You are a friendly tutor."},
			{Role: "user", Content: "Why is the sky blue?"},
		},
		MaxTokens:   300,
		Temperature: 0.7,
		User:        "session-123",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotBody.Model)
	assert.Equal(t, "session-123", gotBody.User)
	assert.Len(t, gotBody.Messages, 2)

	assert.Equal(t, "Great question!", resp.Choices[0].Message.Content)
	assert.Equal(t, 54, resp.Usage.TotalTokens)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
}

func TestCompletionErrorMapping(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantCode      llm.ErrorCode
		wantRetryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, llm.ErrUnauthorized, false},
		{"forbidden", http.StatusForbidden, `{"error":{"message":"nope"}}`, llm.ErrForbidden, false},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, llm.ErrRateLimited, false},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad payload"}}`, llm.ErrInvalidRequest, false},
		{"quota", http.StatusBadRequest, `{"error":{"message":"insufficient quota"}}`, llm.ErrQuotaExceeded, false},
		{"server error", http.StatusInternalServerError, `oops`, llm.ErrUpstreamError, true},
		{"bad gateway", http.StatusBadGateway, `oops`, llm.ErrUpstreamError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := p.Completion(context.Background(), &llm.ChatRequest{Model: "gpt-4o-mini"})
			var le *llm.Error
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.wantCode, le.Code)
			assert.Equal(t, tt.wantRetryable, le.Retryable)
		})
	}
}

func TestCompletionMalformedShape(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty choices", `{"model":"gpt-4o-mini","choices":[],"usage":{}}`},
		{"missing content", `{"model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant"}}],"usage":{}}`},
		{"not json", `<html>gateway error</html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			_, err := p.Completion(context.Background(), &llm.ChatRequest{Model: "gpt-4o-mini"})
			var le *llm.Error
			require.ErrorAs(t, err, &le)
			assert.Equal(t, llm.ErrInvalidResponse, le.Code)
			assert.False(t, le.Retryable, "malformed responses are not retried")
		})
	}
}

func TestHealthCheck(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Write([]byte(`{"data":[]}`))
	})

	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Greater(t, int64(status.Latency), int64(0))
}
