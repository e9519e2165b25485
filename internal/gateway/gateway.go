package gateway

import (
	"context"
	"time"
)

// Action is the order direction.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// OrderRequest is a fully-sized order ready for submission.
type OrderRequest struct {
	Symbol string
	Action Action
	Volume float64
	Price  float64
	TP     float64
	SL     float64
}

// Tick is a point-in-time bid/ask pair.
type Tick struct {
	Symbol string
	Bid    float64
	Ask    float64
	At     time.Time
}

// AccountSnapshot is the broker's view of the account. SafetyMonitor is the
// only component that fetches it; everyone else reads the monitor's copy.
type AccountSnapshot struct {
	Balance          float64
	Equity           float64
	OpenPositions    int
	RealizedDailyPnL float64
	FloatingPnL      float64 // negative while positions are under water
	At               time.Time
}

// FloatingDrawdownPct is the current unrealized loss as a percentage of
// balance; zero when positions are in profit.
func (a AccountSnapshot) FloatingDrawdownPct() float64 {
	if a.Balance <= 0 || a.FloatingPnL >= 0 {
		return 0
	}
	return -a.FloatingPnL / a.Balance * 100
}

// Gateway is the broker execution collaborator. Every method may block on the
// wire, so call sites go through the SafeCall executor.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (ticket int64, err error)
	CloseAllPositions(ctx context.Context) error
	GetAccountSnapshot(ctx context.Context) (AccountSnapshot, error)
	GetTick(ctx context.Context, symbol string) (Tick, error)
	CheckConnection(ctx context.Context) bool
	Reconnect(ctx context.Context) error
}
