package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds for gateway failures. Only transient errors are retried by the
// SafeCall executor; rejections are logged and the request dropped; lost
// connections escalate to the self-healer.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: transient: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

type RejectedError struct {
	Op     string
	Reason string
}

func (e *RejectedError) Error() string { return fmt.Sprintf("%s: rejected: %s", e.Op, e.Reason) }

type ConnectionLostError struct {
	Op  string
	Err error
}

func (e *ConnectionLostError) Error() string { return fmt.Sprintf("%s: connection lost: %v", e.Op, e.Err) }
func (e *ConnectionLostError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried. Deadline expiry counts:
// a timed-out call may succeed on the next attempt.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

func IsConnectionLost(err error) bool {
	var ce *ConnectionLostError
	return errors.As(err, &ce)
}

// Kind classifies an error for logs and the outcome journal.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsRejected(err):
		return "rejected"
	case IsConnectionLost(err):
		return "connection_lost"
	case IsTransient(err):
		return "transient"
	default:
		return "unknown"
	}
}
