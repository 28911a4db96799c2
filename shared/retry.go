package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy describes how a single upstream call is retried.
// Delay is fixed between attempts; there is no backoff growth and no jitter.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy returns the registry call policy: 5 attempts, 2s apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Delay:       2 * time.Second,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// CallWithRetry invokes fn until it succeeds or the policy is exhausted. Any error
// triggers a retry and the failed attempt's result is discarded. When every attempt
// fails the last cause is returned wrapped in an upstream ServiceError.
func CallWithRetry[T any](ctx context.Context, policy RetryPolicy, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "ResilientCaller",
		"operation": operation,
	})

	var zero T
	var lastErr error
	maxAttempts := policy.attempts()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   policy.Delay,
			}).Debug("Retrying upstream call after fixed delay")

			if err := sleepContext(ctx, policy.Delay); err != nil {
				RecordRPCAttempt(operation, "cancelled")
				return zero, NewUpstreamError(operation, attempt-1, fmt.Errorf("%w (last error: %v)", err, lastErr))
			}
		}

		result, err := fn(ctx)
		if err == nil {
			RecordRPCAttempt(operation, "success")
			if attempt > 1 {
				logger.WithField("attempt", attempt).Info("Upstream call succeeded after retry")
			}
			return result, nil
		}

		RecordRPCAttempt(operation, "failure")
		lastErr = err
		logger.WithError(err).WithField("attempt", attempt).Debug("Upstream call attempt failed")

		if ctx.Err() != nil {
			return zero, NewUpstreamError(operation, attempt, err)
		}
	}

	logger.WithFields(logrus.Fields{
		"total_attempts": maxAttempts,
		"final_error":    lastErr,
	}).Error("Upstream call failed after all retry attempts")

	return zero, NewUpstreamError(operation, maxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
