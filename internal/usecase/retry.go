package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/tradelens/backend/internal/domain"
)

// RetryPolicy retries transient provider failures with exponential backoff.
// The delay before attempt n+1 is BaseDelay * ExponentialBase^(n-1).
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	ExponentialBase float64
	Log             *zap.Logger
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.ExponentialBase <= 0 {
		p.ExponentialBase = 2
	}
	if p.Log == nil {
		p.Log = zap.NewNop()
	}
	return p
}

// Do runs op until it succeeds, fails fatally, or exhausts MaxAttempts.
// Only timeouts, rate limits, and provider server errors are retried;
// authentication and bad-request failures surface immediately.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) (string, error)) (string, error) {
	p = p.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		if !retryable(err) {
			p.Log.Error("provider call failed, not retrying", zap.Error(err))
			return "", err
		}
		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}

		delay := time.Duration(float64(p.BaseDelay) * math.Pow(p.ExponentialBase, float64(attempt-1)))
		p.Log.Warn("provider call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", p.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	p.Log.Error("provider retries exhausted",
		zap.Int("attempts", p.MaxAttempts),
		zap.Error(lastErr))
	return "", fmt.Errorf("after %d attempts: %w", p.MaxAttempts, lastErr)
}

// retryable reports whether an error is worth another attempt.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrProviderTimeout) ||
		errors.Is(err, domain.ErrProviderRateLimited) ||
		errors.Is(err, domain.ErrProviderServer)
}

// RetryingGenerator layers a RetryPolicy over an inner TextGenerator so
// callers get retry semantics through the plain Generate contract.
type RetryingGenerator struct {
	inner  domain.TextGenerator
	policy RetryPolicy
}

// NewRetryingGenerator wraps inner with policy.
func NewRetryingGenerator(inner domain.TextGenerator, policy RetryPolicy) *RetryingGenerator {
	return &RetryingGenerator{inner: inner, policy: policy}
}

// Generate implements domain.TextGenerator.
func (g *RetryingGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.policy.Do(ctx, func(ctx context.Context) (string, error) {
		return g.inner.Generate(ctx, systemPrompt, userPrompt)
	})
}
