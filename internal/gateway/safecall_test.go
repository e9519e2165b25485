package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastSafeCall() SafeCall {
	return SafeCall{Timeout: 100 * time.Millisecond, Retries: 3, Backoff: time.Millisecond}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	out, err := Do(context.Background(), fastSafeCall(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	out, err := Do(context.Background(), fastSafeCall(), "op", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &TransientError{Op: "op", Err: context.DeadlineExceeded}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastSafeCall(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, &TransientError{Op: "op", Err: context.DeadlineExceeded}
	})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, calls)
}

func TestDo_DoesNotRetryRejection(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastSafeCall(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, &RejectedError{Op: "op", Reason: "invalid volume"}
	})
	require.Error(t, err)
	assert.True(t, IsRejected(err))
	assert.Equal(t, 1, calls, "rejections are final")
}

func TestDo_DoesNotRetryConnectionLost(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastSafeCall(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, &ConnectionLostError{Op: "op"}
	})
	require.Error(t, err)
	assert.True(t, IsConnectionLost(err))
	assert.Equal(t, 1, calls)
}

func TestDo_TimeoutRetriedAsTransient(t *testing.T) {
	sc := SafeCall{Timeout: 20 * time.Millisecond, Retries: 2, Backoff: time.Millisecond}
	calls := 0
	_, err := Do(context.Background(), sc, "op", func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls, "a timed-out attempt may succeed on retry")
}

func TestDo_ParentCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, fastSafeCall(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestDo_BackoffIsLinear(t *testing.T) {
	sc := SafeCall{Timeout: 100 * time.Millisecond, Retries: 3, Backoff: 30 * time.Millisecond}
	start := time.Now()
	_, err := Do(context.Background(), sc, "op", func(ctx context.Context) (int, error) {
		return 0, &TransientError{Op: "op", Err: context.DeadlineExceeded}
	})
	require.Error(t, err)
	// Sleeps of 30ms and 60ms between the three attempts.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestNewSafeCall_OrderSubmissionDefaults(t *testing.T) {
	sc := NewSafeCall()
	assert.Equal(t, 5*time.Second, sc.Timeout)
	assert.Equal(t, 3, sc.Retries)
	assert.Equal(t, 500*time.Millisecond, sc.Backoff)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "rejected", Kind(&RejectedError{Op: "x", Reason: "r"}))
	assert.Equal(t, "connection_lost", Kind(&ConnectionLostError{Op: "x"}))
	assert.Equal(t, "transient", Kind(&TransientError{Op: "x", Err: context.DeadlineExceeded}))
	assert.Equal(t, "unknown", Kind(assert.AnError))
}
