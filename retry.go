package quizbank

import (
	"context"
	"time"
)

// RetryPolicy bounds a retried operation. MaxRetries counts retries after the
// first attempt, so an operation runs at most MaxRetries+1 times.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy is three retries starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}
}

// Backoff returns the wait after the given zero-based failed attempt:
// BaseDelay * 2^attempt, no jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(1<<uint(attempt))
}

// Retry runs op until it succeeds or the policy is exhausted, sleeping with
// exponential backoff between attempts. The last error is returned.
func Retry[T any](ctx context.Context, policy RetryPolicy, logger *Logger, op func(ctx context.Context) (T, error)) (T, error) {
	logger = orNop(logger)
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == policy.MaxRetries {
			break
		}

		delay := policy.Backoff(attempt)
		logger.Warn("Attempt failed, retrying",
			"attempt", attempt+1,
			"max_attempts", policy.MaxRetries+1,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	logger.Warn("All attempts failed", "attempts", policy.MaxRetries+1, "error", lastErr)
	return zero, lastErr
}
