// Package retry provides bounded exponential-backoff retry with jitter for
// remote API calls.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/mirrorlake/assetsync/pkg/logger"
	"github.com/mirrorlake/assetsync/pkg/metrics"
	"github.com/mirrorlake/assetsync/pkg/syncerrors"
)

// Policy defines retry behavior
type Policy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64
}

// NewPolicy creates a new retry policy with exponential backoff
func NewPolicy(maxAttempts int, initialDelay time.Duration) *Policy {
	return &Policy{
		MaxAttempts:     maxAttempts,
		InitialDelay:    initialDelay,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

// Execute runs fn under the policy, retrying only transient failures as
// classified by syncerrors.IsRetryable. Non-retryable errors propagate
// immediately without consuming retry budget. The name identifies the
// operation in logs and metrics.
func (p *Policy) Execute(ctx context.Context, name string, fn func() error) error {
	return p.ExecuteWithCondition(ctx, name, fn, syncerrors.IsRetryable)
}

// ExecuteWithCondition runs fn with retry gated on shouldRetry
func (p *Policy) ExecuteWithCondition(ctx context.Context, name string, fn func() error, shouldRetry func(error) bool) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !shouldRetry(err) {
			return err
		}

		// Don't retry on the last attempt
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.calculateDelay(attempt)
		metrics.RetryAttempts.WithLabelValues(name).Inc()
		logger.Debug("retrying operation",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
			// Continue to next attempt
		}
	}

	return fmt.Errorf("all %d attempts of %s failed: %w", p.MaxAttempts, name, lastErr)
}

// calculateDelay calculates the delay for a given attempt
func (p *Policy) calculateDelay(attempt int) time.Duration {
	// Base delay calculation with exponential backoff
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt))

	// Apply max delay cap
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	// Apply randomization factor (jitter)
	if p.RandomizeFactor > 0 {
		delta := delay * p.RandomizeFactor
		minDelay := delay - delta
		maxDelay := delay + delta

		delay = minDelay + (rand.Float64() * (maxDelay - minDelay))
	}

	return time.Duration(delay)
}

// GetDelay returns the delay for a specific attempt (for testing/preview)
func (p *Policy) GetDelay(attempt int) time.Duration {
	return p.calculateDelay(attempt)
}

// Clone creates a copy of the retry policy
func (p *Policy) Clone() *Policy {
	return &Policy{
		MaxAttempts:     p.MaxAttempts,
		InitialDelay:    p.InitialDelay,
		MaxDelay:        p.MaxDelay,
		Multiplier:      p.Multiplier,
		RandomizeFactor: p.RandomizeFactor,
	}
}

// WithMaxAttempts returns a new policy with updated max attempts
func (p *Policy) WithMaxAttempts(attempts int) *Policy {
	policy := p.Clone()
	policy.MaxAttempts = attempts
	return policy
}

// WithDelay returns a new policy with updated delays
func (p *Policy) WithDelay(initial, max time.Duration) *Policy {
	policy := p.Clone()
	policy.InitialDelay = initial
	policy.MaxDelay = max
	return policy
}

// DefaultPolicy returns the standard tier used for describe and list calls
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:     3,
		InitialDelay:    1 * time.Second,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

// ThrottledPolicy returns the tier for categories the upstream API throttles
// heavily (permissions, tags): more attempts with a larger initial delay.
func ThrottledPolicy() *Policy {
	return &Policy{
		MaxAttempts:     5,
		InitialDelay:    2 * time.Second,
		MaxDelay:        60 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.5,
	}
}

// NoRetryPolicy returns a policy that doesn't retry
func NoRetryPolicy() *Policy {
	return &Policy{
		MaxAttempts: 1,
	}
}
