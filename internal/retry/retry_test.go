package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	perrors "github.com/p-blackswan/chatpurge/internal/errors"
)

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
}

func TestDo_Success(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_NonRetryableError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) error {
		calls++
		return perrors.NewAPIError("slack", 403, "not_in_channel")
	})
	assert.ErrorIs(t, err, perrors.ErrForbidden)
	assert.Equal(t, 1, calls)
}

func TestDo_RetryableError_EventualSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return perrors.NewAPIError("slack", 503, "service_unavailable")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_RetryableError_AllFail(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(2), func(ctx context.Context) error {
		calls++
		return perrors.NewRateLimitError("slack", time.Millisecond)
	})
	assert.ErrorIs(t, err, perrors.ErrRateLimit)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, fastConfig(3), func(ctx context.Context) error {
		calls++
		return perrors.NewAPIError("slack", 500, "internal_error")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_GenericNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) error {
		calls++
		return errors.New("generic error")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoff(t *testing.T) {
	cfg := Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	plain := errors.New("boom")

	assert.Equal(t, 100*time.Millisecond, Backoff(cfg, 0, plain))
	assert.Equal(t, 400*time.Millisecond, Backoff(cfg, 2, plain))
	assert.Equal(t, time.Second, Backoff(cfg, 10, plain))

	assert.Equal(t, 300*time.Millisecond, Backoff(cfg, 0, perrors.NewRateLimitError("slack", 300*time.Millisecond)))
	assert.Equal(t, time.Second, Backoff(cfg, 0, perrors.NewRateLimitError("slack", time.Minute)), "hint is capped")

	cfg.Jitter = true
	for i := 0; i < 20; i++ {
		d := Backoff(cfg, 1, plain)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 200*time.Millisecond)
	}
}
