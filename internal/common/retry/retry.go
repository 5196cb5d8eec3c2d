// internal/common/retry/retry.go
package retry

import (
	"context"
	"math/rand"
	"time"

	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
)

// Policy wraps fallible external calls with bounded exponential backoff.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	logger      logger.Logger
}

func New(log logger.Logger) *Policy {
	return &Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		logger:      log.WithFields(map[string]interface{}{"component": "retry"}),
	}
}

// Do runs fn up to MaxAttempts times with exponential backoff and jitter.
// Non-retryable pipeline errors short-circuit. When every attempt fails
// the last error is surfaced as TRANSIENT_EXHAUSTED, never swallowed.
func (p *Policy) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := p.BaseDelay * time.Duration(1<<(attempt-2))
			// Full jitter keeps concurrent workers from retrying in lockstep.
			backoff = time.Duration(rand.Int63n(int64(backoff)) + int64(backoff)/2)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return errors.NewTransientError(operation, ctx.Err())
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if code := errors.CodeOf(lastErr); code != "" && !errors.IsRetryableErrorCode(code) {
			return lastErr
		}

		p.logger.Warn("attempt failed", map[string]interface{}{
			"operation":   operation,
			"attempt":     attempt,
			"maxAttempts": p.MaxAttempts,
			"error":       lastErr.Error(),
		})
	}

	return errors.NewTransientExhaustedError(operation, p.MaxAttempts, lastErr)
}
