package engine

import (
	"context"
	"time"

	"github.com/trademaestro/trading-agent/internal/dedup"
	"github.com/trademaestro/trading-agent/internal/gateway"
	"github.com/trademaestro/trading-agent/internal/journal"
	"github.com/trademaestro/trading-agent/internal/observ"
	"github.com/trademaestro/trading-agent/internal/risk"
	"github.com/trademaestro/trading-agent/internal/safety"
)

// Executor is the single consumer of the execution queue. Exactly one
// instance runs so the safety gate and the per-symbol cooldown see a serial
// order stream.
type Executor struct {
	gw      gateway.Gateway
	monitor *safety.Monitor
	limiter *risk.RateLimiter
	dedup   *dedup.Deduplicator
	jrnl    *journal.Journal
	spec    gateway.SymbolSpec
	in      *Queue[ExecutionRequest]
	sc      gateway.SafeCall
	maxPos  int
}

func NewExecutor(
	gw gateway.Gateway,
	monitor *safety.Monitor,
	limiter *risk.RateLimiter,
	dd *dedup.Deduplicator,
	jrnl *journal.Journal,
	spec gateway.SymbolSpec,
	maxPositions int,
	in *Queue[ExecutionRequest],
) *Executor {
	if maxPositions <= 0 {
		maxPositions = 10
	}
	return &Executor{
		gw:      gw,
		monitor: monitor,
		limiter: limiter,
		dedup:   dd,
		jrnl:    jrnl,
		spec:    spec,
		in:      in,
		sc:      gateway.NewSafeCall(),
		maxPos:  maxPositions,
	}
}

// Run drains the queue until ctx is cancelled. Individual submission failures
// are recorded and the loop continues; the worker never exits on a broker
// error.
func (e *Executor) Run(ctx context.Context) {
	observ.Log("executor_started", nil)
	for ctx.Err() == nil {
		req, ok := e.in.Pop(ctx, time.Second)
		if !ok {
			continue
		}
		e.execute(ctx, req)
	}
	observ.Log("executor_stopped", nil)
}

func (e *Executor) execute(ctx context.Context, req ExecutionRequest) {
	sig := req.Signal

	if status, reason := e.monitor.Status(); status != safety.StatusActive {
		observ.Log("execution_blocked", map[string]any{
			"symbol": sig.Symbol,
			"status": string(status),
			"reason": reason,
		})
		observ.IncCounter("executions_blocked_total", map[string]string{"status": string(status)})
		return
	}

	if !e.limiter.Allow(sig.Symbol, time.Now()) {
		observ.Debug("execution_rate_limited", map[string]any{"symbol": sig.Symbol})
		return
	}

	if open := e.monitor.Account().OpenPositions; open >= e.maxPos {
		observ.Log("execution_blocked", map[string]any{
			"symbol":         sig.Symbol,
			"status":         "POSITION_CAP",
			"open_positions": open,
		})
		return
	}

	tick, err := gateway.Do(ctx, e.sc, "get_tick", func(ctx context.Context) (gateway.Tick, error) {
		return e.gw.GetTick(ctx, sig.Symbol)
	})
	if err != nil {
		observ.Warn("tick_fetch_failed", map[string]any{"symbol": sig.Symbol, "error": err.Error()})
		return
	}
	price := tick.Ask
	if sig.Action == "SELL" {
		price = tick.Bid
	}

	order := e.spec.NormalizeOrder(gateway.OrderRequest{
		Symbol: sig.Symbol,
		Action: gateway.Action(sig.Action),
		Volume: req.Lot,
		Price:  price,
		TP:     req.TPPrice,
		SL:     req.SLPrice,
	})

	start := time.Now()
	ticket, err := gateway.Do(ctx, e.sc, "submit_order", func(ctx context.Context) (int64, error) {
		return e.gw.SubmitOrder(ctx, order)
	})
	latency := time.Since(start)

	outcome := journal.Outcome{
		Symbol:      sig.Symbol,
		Strategy:    sig.Strategy,
		Action:      string(sig.Action),
		Fingerprint: sig.Fingerprint,
		Quality:     sig.Quality,
		Lot:         order.Volume,
		Price:       order.Price,
		TP:          order.TP,
		SL:          order.SL,
		LatencyMs:   latency.Milliseconds(),
	}

	if err != nil {
		outcome.ErrorKind = gateway.Kind(err)
		observ.IncCounter("orders_failed_total", map[string]string{"symbol": sig.Symbol, "kind": outcome.ErrorKind})
		observ.Warn("order_failed", map[string]any{
			"symbol": sig.Symbol,
			"action": string(sig.Action),
			"kind":   outcome.ErrorKind,
			"error":  err.Error(),
		})
	} else {
		outcome.Accepted = true
		outcome.Ticket = ticket
		e.dedup.MarkExecuted(sig.Symbol, sig.Fingerprint, time.Now().UTC())
		observ.IncCounter("orders_submitted_total", map[string]string{"symbol": sig.Symbol, "action": string(sig.Action)})
		observ.RecordDuration("order_latency", latency, map[string]string{"symbol": sig.Symbol})
		observ.Log("order_submitted", map[string]any{
			"symbol": sig.Symbol,
			"action": string(sig.Action),
			"lot":    order.Volume,
			"price":  order.Price,
			"tp":     order.TP,
			"sl":     order.SL,
			"ticket": ticket,
		})
	}

	if jerr := e.jrnl.Record(outcome); jerr != nil {
		observ.Warn("journal_write_failed", map[string]any{"error": jerr.Error()})
	}
}
