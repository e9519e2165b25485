package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trademaestro/trading-agent/internal/dedup"
	"github.com/trademaestro/trading-agent/internal/market"
	"github.com/trademaestro/trading-agent/internal/observ"
	"github.com/trademaestro/trading-agent/internal/risk"
	"github.com/trademaestro/trading-agent/internal/safety"
)

// staleFetchAfter is how long without a successful fetch before the health
// loop starts warning.
const staleFetchAfter = 60 * time.Second

// Core owns the pipeline goroutines: fetcher, processing pool, execution
// worker, safety monitor, self-healer and the health reporter. Start spins
// them up; Stop cancels and waits for all of them.
type Core struct {
	fetcher   *Fetcher
	pool      *ProcessorPool
	executor  *Executor
	monitor   *safety.Monitor
	healer    *safety.SelfHealer
	dedup     *dedup.Deduplicator
	sizer     *risk.AdaptiveEngine
	symbols   []string
	candleQ   *Queue[market.CandleBatch]
	executeQ  *Queue[ExecutionRequest]
	healthSec int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type CoreDeps struct {
	Fetcher        *Fetcher
	Pool           *ProcessorPool
	Executor       *Executor
	Monitor        *safety.Monitor
	Healer         *safety.SelfHealer
	Dedup          *dedup.Deduplicator
	Sizer          *risk.AdaptiveEngine
	Symbols        []string
	CandleQueue    *Queue[market.CandleBatch]
	ExecuteQueue   *Queue[ExecutionRequest]
	HealthEverySec int
}

func NewCore(d CoreDeps) *Core {
	if d.HealthEverySec <= 0 {
		d.HealthEverySec = 30
	}
	return &Core{
		fetcher:   d.Fetcher,
		pool:      d.Pool,
		executor:  d.Executor,
		monitor:   d.Monitor,
		healer:    d.Healer,
		dedup:     d.Dedup,
		sizer:     d.Sizer,
		symbols:   d.Symbols,
		candleQ:   d.CandleQueue,
		executeQ:  d.ExecuteQueue,
		healthSec: d.HealthEverySec,
	}
}

// Start launches all pipeline goroutines against a child of ctx.
func (c *Core) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	observ.Log("core_started", map[string]any{"symbols": c.symbols})

	run := func(fn func(context.Context)) {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			fn(ctx)
		}()
	}
	run(c.fetcher.Run)
	run(c.pool.Run)
	run(c.executor.Run)
	run(c.monitor.Run)
	run(c.healer.Run)
	run(c.healthLoop)
}

// Stop cancels all goroutines and blocks until they exit. Consumers wait at
// most one second between queue polls, so shutdown completes quickly.
func (c *Core) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	observ.Log("core_stopped", nil)
}

// healthLoop publishes liveness gauges every 5s and a health summary line on
// the configured cadence.
func (c *Core) healthLoop(ctx context.Context) {
	gauges := time.NewTicker(5 * time.Second)
	defer gauges.Stop()
	summary := time.NewTicker(time.Duration(c.healthSec) * time.Second)
	defer summary.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-gauges.C:
			c.publishGauges()
		case <-summary.C:
			c.logHealth()
		}
	}
}

func (c *Core) publishGauges() {
	observ.SetGauge("candle_queue_depth", float64(c.candleQ.Len()), nil)
	observ.SetGauge("execute_queue_depth", float64(c.executeQ.Len()), nil)
	if last := c.fetcher.LastFetch(); !last.IsZero() {
		observ.SetGauge("fetch_age_seconds", time.Since(last).Seconds(), nil)
	}
}

func (c *Core) logHealth() {
	now := time.Now().UTC()
	status, reason := c.monitor.Status()
	tracked, executed := c.dedup.Stats(now)

	kv := map[string]any{
		"safety_status":  string(status),
		"conn_state":     string(c.healer.State()),
		"candle_queue":   c.candleQ.Len(),
		"execute_queue":  c.executeQ.Len(),
		"dedup_tracked":  tracked,
		"dedup_executed": executed,
	}
	if reason != "" {
		kv["safety_reason"] = reason
	}
	for _, sym := range c.symbols {
		vol, regime, conf := c.sizer.Classification(sym)
		kv["vol_"+sym] = string(vol)
		kv["regime_"+sym] = fmt.Sprintf("%s(%.2f)", regime, conf)
	}
	last := c.fetcher.LastFetch()
	if last.IsZero() {
		kv["last_fetch"] = "never"
	} else {
		age := now.Sub(last)
		kv["fetch_age_ms"] = age.Milliseconds()
		if age > staleFetchAfter {
			observ.Warn("fetch_stale", map[string]any{"age_ms": age.Milliseconds()})
		}
	}
	observ.Log("health", kv)
}
