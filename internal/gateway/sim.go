package gateway

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SimGateway is an in-process broker used for dry runs and tests. It paces
// submissions with a token bucket the way a real gateway budget would, keeps
// a position count, and lets tests script failures and connection drops.
type SimGateway struct {
	mu      sync.Mutex
	limiter *rate.Limiter

	account    AccountSnapshot
	nextTicket int64
	spread     float64
	prices     map[string]float64

	// Test/scenario knobs.
	SubmitErr    error // returned by SubmitOrder when set
	SnapshotErr  error // returned by GetAccountSnapshot when set
	connected    bool
	reconnectErr error
	CallLatency  time.Duration // artificial per-call delay

	submitted []OrderRequest
	closedAll int
}

// NewSimGateway starts with the given balance, no open positions, and a
// healthy connection. requestsPerMinute bounds order submission the way
// broker APIs meter clients.
func NewSimGateway(balance float64, requestsPerMinute int) *SimGateway {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &SimGateway{
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), requestsPerMinute),
		account: AccountSnapshot{
			Balance: balance,
			Equity:  balance,
			At:      time.Now().UTC(),
		},
		nextTicket: 1000,
		spread:     0.0002,
		prices:     map[string]float64{},
		connected:  true,
	}
}

// SetPrice sets the mid price served by GetTick for a symbol.
func (g *SimGateway) SetPrice(symbol string, mid float64) {
	g.mu.Lock()
	g.prices[symbol] = mid
	g.mu.Unlock()
}

// SetAccount overwrites the simulated account, e.g. to script a drawdown.
func (g *SimGateway) SetAccount(a AccountSnapshot) {
	g.mu.Lock()
	a.At = time.Now().UTC()
	g.account = a
	g.mu.Unlock()
}

// SetConnected scripts the connection state seen by CheckConnection.
func (g *SimGateway) SetConnected(up bool) {
	g.mu.Lock()
	g.connected = up
	g.mu.Unlock()
}

// SetReconnectErr makes Reconnect fail until cleared.
func (g *SimGateway) SetReconnectErr(err error) {
	g.mu.Lock()
	g.reconnectErr = err
	g.mu.Unlock()
}

// Submitted returns a copy of all accepted orders.
func (g *SimGateway) Submitted() []OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]OrderRequest, len(g.submitted))
	copy(out, g.submitted)
	return out
}

// CloseAllCalls reports how many times CloseAllPositions ran.
func (g *SimGateway) CloseAllCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closedAll
}

func (g *SimGateway) delay(ctx context.Context) error {
	if g.CallLatency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(g.CallLatency):
		return nil
	}
}

func (g *SimGateway) SubmitOrder(ctx context.Context, req OrderRequest) (int64, error) {
	if err := g.delay(ctx); err != nil {
		return 0, err
	}
	if !g.limiter.Allow() {
		return 0, &TransientError{Op: "submit_order", Err: context.DeadlineExceeded}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.SubmitErr != nil {
		return 0, g.SubmitErr
	}
	if !g.connected {
		return 0, &ConnectionLostError{Op: "submit_order"}
	}
	if req.Volume <= 0 {
		return 0, &RejectedError{Op: "submit_order", Reason: "invalid volume"}
	}
	g.nextTicket++
	g.submitted = append(g.submitted, req)
	g.account.OpenPositions++
	return g.nextTicket, nil
}

func (g *SimGateway) CloseAllPositions(ctx context.Context) error {
	if err := g.delay(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closedAll++
	g.account.OpenPositions = 0
	g.account.FloatingPnL = 0
	return nil
}

func (g *SimGateway) GetAccountSnapshot(ctx context.Context) (AccountSnapshot, error) {
	if err := g.delay(ctx); err != nil {
		return AccountSnapshot{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.SnapshotErr != nil {
		return AccountSnapshot{}, g.SnapshotErr
	}
	snap := g.account
	snap.At = time.Now().UTC()
	return snap, nil
}

func (g *SimGateway) GetTick(ctx context.Context, symbol string) (Tick, error) {
	if err := g.delay(ctx); err != nil {
		return Tick{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return Tick{}, &ConnectionLostError{Op: "get_tick"}
	}
	mid, ok := g.prices[symbol]
	if !ok {
		mid = 1.0
	}
	half := mid * g.spread / 2
	return Tick{Symbol: symbol, Bid: mid - half, Ask: mid + half, At: time.Now().UTC()}, nil
}

func (g *SimGateway) CheckConnection(ctx context.Context) bool {
	if err := g.delay(ctx); err != nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

func (g *SimGateway) Reconnect(ctx context.Context) error {
	if err := g.delay(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reconnectErr != nil {
		return g.reconnectErr
	}
	g.connected = true
	return nil
}
