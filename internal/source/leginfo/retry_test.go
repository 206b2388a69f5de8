package leginfo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryDo_SucceedsAfterTransientFailures(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), testLogger(), "fetch", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryDo_ExhaustionWrapsLastError(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	lastErr := errors.New("still down")
	err := policy.Do(context.Background(), testLogger(), "fetch", func() error {
		return lastErr
	})

	require.ErrorIs(t, err, lastErr)
	assert.Contains(t, err.Error(), "fetch after 2 attempts")
}

func TestRetryDo_CanceledContextStopsRetrying(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Minute, MaxBackoff: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := policy.Do(ctx, testLogger(), "fetch", func() error {
		calls++
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryBackoff_DoublesAndCaps(t *testing.T) {
	policy := RetryPolicy{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second}

	assert.Equal(t, time.Second, policy.backoff(1))
	assert.Equal(t, 2*time.Second, policy.backoff(2))
	assert.Equal(t, 4*time.Second, policy.backoff(3))
	assert.Equal(t, 5*time.Second, policy.backoff(4))
}
