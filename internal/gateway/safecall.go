package gateway

import (
	"context"
	"time"

	"github.com/trademaestro/trading-agent/internal/observ"
)

// SafeCall bounds every external call with a per-attempt timeout and retries
// transient failures with linear backoff. It is the single timeout wrapper
// for all gateway and feed call sites; nothing in the pipeline calls a
// collaborator without going through it.
type SafeCall struct {
	Timeout time.Duration
	Retries int
	Backoff time.Duration // sleep = Backoff * attempt
}

// NewSafeCall applies the defaults used for order submission: 5s timeout,
// 3 attempts, 0.5s linear backoff.
func NewSafeCall() SafeCall {
	return SafeCall{Timeout: 5 * time.Second, Retries: 3, Backoff: 500 * time.Millisecond}
}

// Do runs fn with the executor's timeout, retrying transient errors. Any
// other error kind surfaces immediately. The parent context cancels waits
// between attempts as well as the attempts themselves.
func Do[T any](ctx context.Context, sc SafeCall, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	retries := sc.Retries
	if retries < 1 {
		retries = 1
	}
	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		attemptCtx := ctx
		var cancel context.CancelFunc
		if sc.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, sc.Timeout)
		}
		start := time.Now()
		var out T
		out, err = fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		observ.RecordDuration("safecall_latency", time.Since(start), map[string]string{"op": op})
		if err == nil {
			return out, nil
		}
		if !IsTransient(err) {
			observ.IncCounter("safecall_failures_total", map[string]string{"op": op, "kind": Kind(err)})
			return zero, err
		}
		observ.IncCounter("safecall_retries_total", map[string]string{"op": op})
		observ.Warn("safecall_transient", map[string]any{
			"op":      op,
			"attempt": attempt,
			"error":   err.Error(),
		})
		if attempt < retries {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(sc.Backoff * time.Duration(attempt)):
			}
		}
	}
	observ.IncCounter("safecall_failures_total", map[string]string{"op": op, "kind": Kind(err)})
	return zero, err
}
