// internal/common/retry/retry_test.go
package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
)

func newFastPolicy() *Policy {
	p := New(logger.NewNoOpLogger())
	p.BaseDelay = time.Millisecond
	return p
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	p := newFastPolicy()
	calls := 0

	err := p.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RecoversAfterTransientFailure(t *testing.T) {
	p := newFastPolicy()
	calls := 0

	err := p.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return stderrors.New("connection reset")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustionSurfacesTypedError(t *testing.T) {
	p := newFastPolicy()
	calls := 0

	err := p.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		return stderrors.New("still down")
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, errors.ErrCodeTransientExhausted, errors.CodeOf(err))
}

func TestDo_NonRetryableShortCircuits(t *testing.T) {
	p := newFastPolicy()
	calls := 0

	err := p.Do(context.Background(), "generate", func(ctx context.Context) error {
		calls++
		return errors.NewGenerationFailedError("email", stderrors.New("bad prompt"))
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, errors.ErrCodeGenerationFailed, errors.CodeOf(err))
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	p := New(logger.NewNoOpLogger())
	p.BaseDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, "fetch", func(ctx context.Context) error {
		calls++
		return stderrors.New("down")
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, errors.ErrCodeTransient, errors.CodeOf(err))
}
