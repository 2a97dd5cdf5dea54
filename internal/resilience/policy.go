package resilience

import (
	"context"
	"time"

	"github.com/sells-group/veracity/internal/config"
)

// Policy combines a retry backoff with a circuit breaker.
type Policy struct {
	Backoff Backoff
	Breaker *Breaker
}

// FromClassifierConfig builds the policy for the classification backend.
func FromClassifierConfig(name string, cfg config.ClassifierConfig) Policy {
	b := DefaultBackoff()
	if cfg.MaxAttempts > 0 {
		b.MaxAttempts = cfg.MaxAttempts
	}
	return Policy{
		Backoff: b,
		Breaker: NewBreaker(name, cfg.CircuitFailureThreshold, time.Duration(cfg.CircuitResetSecs)*time.Second),
	}
}

// Call runs fn under p. Each attempt passes through the breaker, so an open
// breaker ends the retry loop immediately.
func Call[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	return Retry(ctx, p.Backoff, op, func(ctx context.Context) (T, error) {
		var zero T
		if p.Breaker != nil {
			if err := p.Breaker.Allow(); err != nil {
				return zero, err
			}
		}
		val, err := fn(ctx)
		if p.Breaker != nil {
			p.Breaker.Record(err)
		}
		return val, err
	})
}
