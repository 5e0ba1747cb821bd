package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumikids/tutorflow/llm/circuitbreaker"
)

// RetryPolicy defines the bounded retry behaviour around the upstream call.
// Attempt n sleeps 2^n seconds before running, capped at MaxBackoff. Retries
// are strictly sequential; a non-retryable error short-circuits immediately.
type RetryPolicy struct {
	MaxRetries int           `json:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay"`
	MaxBackoff time.Duration `json:"max_backoff"`
}

// DefaultRetryPolicy returns the standard pipeline policy.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

// backoffFor computes the sleep before attempt n (n >= 1).
func (p *RetryPolicy) backoffFor(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// ResilientProvider decorates a Provider with a shared circuit breaker and
// bounded exponential retry. It does not modify the wrapped provider.
type ResilientProvider struct {
	provider Provider
	breaker  *circuitbreaker.CircuitBreaker
	policy   *RetryPolicy
	logger   *zap.Logger

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewResilientProvider wraps provider. A nil policy uses defaults; a nil
// breaker gets a default one. The breaker is shared state for the whole
// process, so callers running several providers should pass the same one.
func NewResilientProvider(provider Provider, breaker *circuitbreaker.CircuitBreaker, policy *RetryPolicy, logger *zap.Logger) *ResilientProvider {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if breaker == nil {
		breaker = circuitbreaker.New(nil, logger)
	}
	return &ResilientProvider{
		provider: provider,
		breaker:  breaker,
		policy:   policy,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Breaker exposes the shared breaker for observation (health, metrics).
func (rp *ResilientProvider) Breaker() *circuitbreaker.CircuitBreaker { return rp.breaker }

// Name implements Provider.
func (rp *ResilientProvider) Name() string { return rp.provider.Name() }

// HealthCheck implements Provider. It bypasses retry but respects the breaker.
func (rp *ResilientProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	if err := rp.breaker.Allow(); err != nil {
		return &HealthStatus{Healthy: false}, err
	}
	return rp.provider.HealthCheck(ctx)
}

// Completion implements Provider. The breaker is consulted before every
// attempt; breaker bookkeeping happens immediately before and after the call,
// never while awaiting it. If the breaker trips mid-sequence the remaining
// retries are abandoned.
func (rp *ResilientProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= rp.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := rp.policy.backoffFor(attempt)
			rp.logger.Debug("retrying completion",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", rp.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := rp.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		if err := rp.breaker.Allow(); err != nil {
			if lastErr != nil {
				// The breaker tripped during this retry sequence; surface the
				// upstream error rather than masking it.
				return nil, lastErr
			}
			return nil, err
		}

		resp, err := rp.provider.Completion(ctx, req)
		if err == nil {
			rp.breaker.RecordSuccess()
			if attempt > 0 {
				rp.logger.Info("completion recovered after retry", zap.Int("attempt", attempt))
			}
			return resp, nil
		}

		rp.breaker.RecordFailure()
		lastErr = err

		if !IsRetryable(err) {
			rp.logger.Debug("completion error is not retryable", zap.Error(err))
			return nil, err
		}
	}

	rp.logger.Warn("completion retries exhausted",
		zap.Int("attempts", rp.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}
