// internal/common/ratelimit/limiter_test.go
package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	l := New(logger.NewNoOpLogger())
	l.now = clock.Now
	return l, clock
}

func TestLimiter_BurstThenExhausted(t *testing.T) {
	l, _ := newTestLimiter()
	l.Configure("email", 3, time.Hour)

	for i := 0; i < 3; i++ {
		assert.True(t, l.TryAcquire("email"), "token %d should be available", i)
	}
	assert.False(t, l.TryAcquire("email"))
	assert.Equal(t, 3, l.Spent("email"))
}

func TestLimiter_RefillOverTime(t *testing.T) {
	l, clock := newTestLimiter()
	l.Configure("linkedin", 2, time.Hour)

	require.True(t, l.TryAcquire("linkedin"))
	require.True(t, l.TryAcquire("linkedin"))
	require.False(t, l.TryAcquire("linkedin"))

	clock.Advance(time.Hour)
	assert.True(t, l.TryAcquire("linkedin"))
	assert.False(t, l.TryAcquire("linkedin"))
}

func TestLimiter_RefillCapsAtBurst(t *testing.T) {
	l, clock := newTestLimiter()
	l.Configure("twitter", 2, time.Minute)

	clock.Advance(24 * time.Hour)

	assert.True(t, l.TryAcquire("twitter"))
	assert.True(t, l.TryAcquire("twitter"))
	assert.False(t, l.TryAcquire("twitter"))
}

func TestAcquire_TimesOutAsRateLimited(t *testing.T) {
	l, _ := newTestLimiter()
	l.Configure("email", 1, time.Hour)
	require.True(t, l.TryAcquire("email"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, "email")
	assert.Equal(t, errors.ErrCodeRateLimited, errors.CodeOf(err))
}

func TestAcquire_UnblocksWhenTokenArrives(t *testing.T) {
	l := New(logger.NewNoOpLogger())
	l.Configure("email", 1, 20*time.Millisecond)
	require.True(t, l.TryAcquire("email"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	err := l.Acquire(ctx, "email")
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestLimiter_ChannelsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter()
	l.Configure("email", 1, time.Hour)
	l.Configure("linkedin", 1, time.Hour)

	require.True(t, l.TryAcquire("email"))
	assert.False(t, l.TryAcquire("email"))
	assert.True(t, l.TryAcquire("linkedin"))
}

func TestLimiter_GlobalCostAccounting(t *testing.T) {
	l, _ := newTestLimiter()
	l.Configure(GlobalBucket, 100, time.Minute)

	for i := 0; i < 7; i++ {
		require.True(t, l.TryAcquire(GlobalBucket))
	}
	assert.Equal(t, 7, l.Spent(GlobalBucket))
}
