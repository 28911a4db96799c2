package shared

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPRequestRateLimiter enforces a minimum spacing between outgoing requests
type HTTPRequestRateLimiter struct {
	minimumDelay    time.Duration
	lastRequestTime time.Time
	mutex           sync.Mutex
	requestCount    int64
}

// NewHTTPRequestRateLimiter creates a new rate limiter with the specified minimum delay.
// A zero delay never blocks.
func NewHTTPRequestRateLimiter(minimumDelay time.Duration) *HTTPRequestRateLimiter {
	return &HTTPRequestRateLimiter{
		minimumDelay: minimumDelay,
	}
}

// Wait blocks until the minimum delay has elapsed since the previous request or ctx is done.
func (limiter *HTTPRequestRateLimiter) Wait(ctx context.Context) error {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	if !limiter.lastRequestTime.IsZero() {
		elapsedTime := time.Since(limiter.lastRequestTime)
		if elapsedTime < limiter.minimumDelay {
			remainingDelay := limiter.minimumDelay - elapsedTime

			logrus.WithFields(logrus.Fields{
				"component":       "HTTPRequestRateLimiter",
				"remaining_delay": remainingDelay,
				"request_count":   limiter.requestCount + 1,
			}).Debug("Enforcing rate limit delay")

			if err := sleepContext(ctx, remainingDelay); err != nil {
				return err
			}
		}
	}

	limiter.lastRequestTime = time.Now()
	limiter.requestCount++
	return nil
}

// GetRequestCount returns the total number of requests processed
func (limiter *HTTPRequestRateLimiter) GetRequestCount() int64 {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	return limiter.requestCount
}
