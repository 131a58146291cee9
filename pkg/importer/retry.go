package importer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"costscan/pkg/billing"
	"costscan/pkg/config"
	"costscan/pkg/logger"

	"go.uber.org/zap"
)

// RetryPolicy wraps calls to providers and stores with bounded exponential
// backoff. Fatal provider errors and the not-ready signal bypass retry and
// propagate immediately.
type RetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryPolicy builds a policy from importer configuration
func NewRetryPolicy(cfg *config.ImporterConfig) *RetryPolicy {
	return &RetryPolicy{
		maxRetries: cfg.MaxRetries,
		baseDelay:  time.Duration(cfg.RetryBaseDelayMS) * time.Millisecond,
		maxDelay:   time.Duration(cfg.RetryMaxDelayMS) * time.Millisecond,
	}
}

// Do runs fn, retrying transient failures up to the bounded attempt count
func (p *RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.delay(attempt)
			logger.Warn("retrying operation",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		// Bypass list: these must propagate immediately. Provider errors
		// carrying a code are only retried when the classifier deems them
		// transient (throttling, timeouts, 5xx).
		if IsFatal(err) || IsNotReady(err) {
			return err
		}
		var apiErr *billing.APIError
		if errors.As(err, &apiErr) && !billing.IsRetryableError(apiErr) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
	}

	return fmt.Errorf("%w: %s: %v", ErrRetriesExhausted, op, lastErr)
}

// delay computes the exponential backoff with jitter for an attempt
func (p *RetryPolicy) delay(attempt int) time.Duration {
	delay := time.Duration(float64(p.baseDelay) * math.Pow(2, float64(attempt-1)))
	if delay > p.maxDelay {
		delay = p.maxDelay
	}

	// 0.85-1.15x jitter to avoid thundering herd
	jitter := rand.Float64()*0.3 + 0.85
	return time.Duration(float64(delay) * jitter)
}
