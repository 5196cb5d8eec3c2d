// internal/common/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"sync"
	"time"

	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/common/metrics"
)

// GlobalBucket is the shared cost-accounting bucket for costed external calls.
const GlobalBucket = "global"

// Limiter holds one token bucket per channel plus the global cost bucket.
// Token state is ephemeral: buckets start full after restart and are
// never persisted.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	logger  logger.Logger
	now     func() time.Time
}

type bucket struct {
	capacity    int
	perToken    time.Duration // time to regain one token
	tokens      float64
	lastRefill  time.Time
	spent       int
}

func New(log logger.Logger) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		logger:  log.WithFields(map[string]interface{}{"component": "ratelimit"}),
		now:     time.Now,
	}
}

// Configure registers a bucket for channel with the given burst size and
// per-token refill interval. Buckets start full.
func (l *Limiter) Configure(channel string, burst int, refillInterval time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[channel] = &bucket{
		capacity:   burst,
		perToken:   refillInterval,
		tokens:     float64(burst),
		lastRefill: l.now(),
	}
}

// refillLocked advances the bucket's token count from elapsed wall time.
func (b *bucket) refillLocked(now time.Time) {
	if b.perToken <= 0 {
		return
	}
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens += float64(elapsed) / float64(b.perToken)
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
	b.lastRefill = now
}

// Acquire blocks cooperatively until a token is available for channel or
// ctx expires, in which case it returns RATE_LIMITED. Callers bound the
// wait with a context deadline.
func (l *Limiter) Acquire(ctx context.Context, channel string) error {
	waited := false
	for {
		wait, ok := l.take(channel)
		if ok {
			result := "immediate"
			if waited {
				result = "waited"
			}
			metrics.RateLimitWaits.WithLabelValues(channel, result).Inc()
			return nil
		}

		waited = true
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			metrics.RateLimitWaits.WithLabelValues(channel, "timeout").Inc()
			return errors.NewRateLimitedError(channel)
		}
	}
}

// TryAcquire takes a token without blocking. The orchestrator uses it to
// check budget before paying generation cost for a channel.
func (l *Limiter) TryAcquire(channel string) bool {
	_, ok := l.take(channel)
	return ok
}

// Available reports whether channel has a token right now, without
// consuming it. A cheaper pre-check than TryAcquire when the caller is
// not ready to spend yet.
func (l *Limiter) Available(channel string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[channel]
	if !exists {
		return true
	}
	b.refillLocked(l.now())
	return b.tokens >= 1
}

// take attempts to consume one token; on failure it returns how long to
// wait before the next token materializes.
func (l *Limiter) take(channel string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[channel]
	if !exists {
		// Unconfigured channels are unlimited; the closed channel set is
		// enforced upstream at config load.
		l.logger.Debug("acquire on unconfigured bucket", map[string]interface{}{"channel": channel})
		return 0, true
	}

	now := l.now()
	b.refillLocked(now)

	if b.tokens >= 1 {
		b.tokens--
		b.spent++
		return 0, true
	}

	wait := time.Duration((1 - b.tokens) * float64(b.perToken))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait, false
}

// Spent returns the number of tokens consumed on channel since start.
func (l *Limiter) Spent(channel string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[channel]; ok {
		return b.spent
	}
	return 0
}
