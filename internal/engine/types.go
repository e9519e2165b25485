package engine

import (
	"time"

	"github.com/trademaestro/trading-agent/internal/strategy"
)

// Signal is a validated strategy verdict. Read-only once created; it is
// discarded after execution or suppression.
type Signal struct {
	Symbol      string
	Strategy    string
	Action      strategy.Action
	Quality     float64
	Reasons     []string
	Fingerprint string
	At          time.Time
}

// ExecutionRequest is a signal that survived dedup, outlier filtering and
// adaptive sizing. Consumed exactly once by the execution worker.
type ExecutionRequest struct {
	Signal  Signal
	Lot     float64
	TPPrice float64
	SLPrice float64
}
