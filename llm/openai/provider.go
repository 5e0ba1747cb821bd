// Package openai implements the llm.Provider contract against an
// OpenAI-compatible chat-completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lumikids/tutorflow/llm"
)

// Config configures the provider.
type Config struct {
	APIKey       string        `yaml:"api_key" json:"api_key"`
	BaseURL      string        `yaml:"base_url" json:"base_url"`
	Organization string        `yaml:"organization" json:"organization"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
}

// Provider calls an OpenAI-compatible chat-completions API.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates the provider.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "openai" }

type chatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []llm.ChatMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float32           `json:"temperature,omitempty"`
	User        string            `json:"user,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Index        int             `json:"index"`
		FinishReason string          `json:"finish_reason"`
		Message      llm.ChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Completion implements llm.Provider.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		User:        req.User,
	})
	if err != nil {
		return nil, &llm.Error{Code: llm.ErrInvalidRequest, Message: fmt.Sprintf("encode request: %v", err), Provider: p.Name()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &llm.Error{Code: llm.ErrInvalidRequest, Message: err.Error(), Provider: p.Name()}
	}
	p.setHeaders(httpReq)

	start := time.Now()
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &llm.Error{Code: llm.ErrUpstreamTimeout, Message: err.Error(), Retryable: false, Provider: p.Name()}
		}
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name()}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: fmt.Sprintf("read response: %v", err), Retryable: true, Provider: p.Name()}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(httpResp.StatusCode, errorMessage(raw), p.Name())
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &llm.Error{Code: llm.ErrInvalidResponse, Message: fmt.Sprintf("decode response: %v", err), Provider: p.Name()}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		// Invalid shape is a contract violation, not retried as a normal failure.
		return nil, &llm.Error{Code: llm.ErrInvalidResponse, Message: "completion has no usable choices", Provider: p.Name()}
	}

	p.logger.Debug("completion finished",
		zap.String("model", parsed.Model),
		zap.Int("total_tokens", parsed.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)),
	)

	resp := &llm.ChatResponse{
		ID:        parsed.ID,
		Model:     parsed.Model,
		Usage:     llm.ChatUsage(parsed.Usage),
		CreatedAt: time.Unix(parsed.Created, 0),
	}
	for _, c := range parsed.Choices {
		resp.Choices = append(resp.Choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      c.Message,
		})
	}
	return resp, nil
}

// HealthCheck implements llm.Provider with a lightweight model-list probe.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/v1/models", nil)
	if err != nil {
		return nil, err
	}
	p.setHeaders(httpReq)

	start := time.Now()
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: time.Since(start)}, err
	}
	defer httpResp.Body.Close()
	io.Copy(io.Discard, httpResp.Body)

	return &llm.HealthStatus{
		Healthy: httpResp.StatusCode == http.StatusOK,
		Latency: time.Since(start),
	}, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Organization != "" {
		req.Header.Set("OpenAI-Organization", p.cfg.Organization)
	}
}

func errorMessage(raw []byte) string {
	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != nil {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// mapHTTPError maps an upstream HTTP status to a typed llm.Error. Auth,
// forbidden, malformed-request and rate-limit/quota failures are modelled
// non-retryable and propagate immediately.
func mapHTTPError(status int, msg, provider string) *llm.Error {
	switch status {
	case http.StatusUnauthorized:
		return &llm.Error{Code: llm.ErrUnauthorized, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusForbidden:
		return &llm.Error{Code: llm.ErrForbidden, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusTooManyRequests:
		return &llm.Error{Code: llm.ErrRateLimited, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") || strings.Contains(lower, "billing") {
			return &llm.Error{Code: llm.ErrQuotaExceeded, Message: msg, HTTPStatus: status, Provider: provider}
		}
		return &llm.Error{Code: llm.ErrInvalidRequest, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return &llm.Error{Code: llm.ErrUpstreamTimeout, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	default:
		return &llm.Error{Code: llm.ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: status >= 500, Provider: provider}
	}
}
