package llm

import (
	"context"
	"errors"
	"time"
)

// ErrorCode is a unified LLM error code aligning HTTP status, retryability
// and the pipeline's degradation policy.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "LLM_INVALID_REQUEST"  // malformed parameters
	ErrUnauthorized    ErrorCode = "LLM_UNAUTHORIZED"     // missing or invalid key
	ErrForbidden       ErrorCode = "LLM_FORBIDDEN"        // permission or policy refusal
	ErrRateLimited     ErrorCode = "LLM_RATE_LIMITED"     // upstream throttling
	ErrQuotaExceeded   ErrorCode = "LLM_QUOTA_EXCEEDED"   // credits exhausted
	ErrUpstreamTimeout ErrorCode = "LLM_UPSTREAM_TIMEOUT" // request deadline hit
	ErrUpstreamError   ErrorCode = "LLM_UPSTREAM_ERROR"   // 5xx or network failure
	ErrInvalidResponse ErrorCode = "LLM_INVALID_RESPONSE" // malformed completion shape
)

// Error is the typed error returned by providers.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

// IsRetryable reports whether the error may succeed on a subsequent attempt.
// Typed provider errors carry their own flag; untyped errors (raw network
// failures) default to retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Retryable
	}
	return true
}

// ChatMessage is one message of the outbound wire contract.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the outbound completion request.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	// User is an opaque session/user tag forwarded to the provider.
	User string `json:"user,omitempty"`
}

// ChatUsage reports token consumption as returned by the provider.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatChoice is one candidate completion.
type ChatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Message      ChatMessage `json:"message"`
}

// ChatResponse is the provider's completion response.
type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// HealthStatus is the result of a lightweight provider probe.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider is the unified completion interface consumed by the pipeline.
type Provider interface {
	// Completion performs a synchronous chat request.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthCheck performs a lightweight availability probe.
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name returns the provider's unique identifier.
	Name() string
}
