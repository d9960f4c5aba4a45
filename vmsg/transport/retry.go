package transport

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy retries failed sends with exponential backoff and jitter.
// Receiving is never retried here; a closed listener is restarted by the
// caller opening a new one.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// Multiplier grows the delay after each attempt.
	Multiplier float64
	// Jitter randomizes delays by the given factor (0.0 to 1.0).
	Jitter float64
}

// DefaultRetryPolicy returns a conservative default.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		amount := d * p.Jitter
		d = d - amount + rand.Float64()*2*amount
	}
	return time.Duration(d)
}

func (p RetryPolicy) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type retrying struct {
	inner  Adapter
	policy RetryPolicy
}

// WithRetry wraps an adapter so sends are retried per policy. The final
// failure after the budget is exhausted surfaces as ErrUnreachable.
func WithRetry(inner Adapter, policy RetryPolicy) Adapter {
	return &retrying{inner: inner, policy: policy}
}

func (r *retrying) Send(ctx context.Context, address string, message []byte) error {
	var last error
	for attempt := 0; ; attempt++ {
		last = r.inner.Send(ctx, address, message)
		if last == nil {
			return nil
		}
		if errors.Is(last, context.Canceled) || errors.Is(last, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrTimeout, address)
		}
		if attempt >= r.policy.MaxRetries {
			break
		}
		if err := r.policy.wait(ctx, attempt); err != nil {
			return fmt.Errorf("%w: %s", ErrTimeout, address)
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrUnreachable, address, last)
}

func (r *retrying) Listen(ctx context.Context, address string) (Inbound, error) {
	return r.inner.Listen(ctx, address)
}
