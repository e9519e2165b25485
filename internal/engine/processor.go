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
	"github.com/trademaestro/trading-agent/internal/strategy"
)

// ProcessorConfig holds the base sizing inputs and the soft latency budget.
// BaseTP and BaseSL are price distances in quote units.
type ProcessorConfig struct {
	Workers        int     `yaml:"workers"`
	BaseLot        float64 `yaml:"base_lot"`
	BaseTP         float64 `yaml:"base_tp"`
	BaseSL         float64 `yaml:"base_sl"`
	SoftDeadlineMs int     `yaml:"soft_deadline_ms"`
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	if c.Workers < 2 {
		c.Workers = 2
	}
	if c.BaseLot <= 0 {
		c.BaseLot = 0.1
	}
	if c.BaseTP <= 0 {
		c.BaseTP = 0.0050
	}
	if c.BaseSL <= 0 {
		c.BaseSL = 0.0030
	}
	if c.SoftDeadlineMs <= 0 {
		c.SoftDeadlineMs = 2000
	}
	return c
}

// ProcessorPool turns candle batches into execution requests: strategy
// evaluation, then dedup, outlier filtering and adaptive sizing. Exceeding
// the soft deadline is logged, not aborted; latency is bounded upstream by
// queue capacity.
type ProcessorPool struct {
	cfg      ProcessorConfig
	strat    strategy.Strategy
	dedup    *dedup.Deduplicator
	outliers *dedup.OutlierFilter
	sizer    *risk.AdaptiveEngine
	in       *Queue[market.CandleBatch]
	out      *Queue[ExecutionRequest]
}

func NewProcessorPool(
	cfg ProcessorConfig,
	strat strategy.Strategy,
	dd *dedup.Deduplicator,
	outliers *dedup.OutlierFilter,
	sizer *risk.AdaptiveEngine,
	in *Queue[market.CandleBatch],
	out *Queue[ExecutionRequest],
) *ProcessorPool {
	return &ProcessorPool{
		cfg:      cfg.withDefaults(),
		strat:    strat,
		dedup:    dd,
		outliers: outliers,
		sizer:    sizer,
		in:       in,
		out:      out,
	}
}

// Run starts the worker pool and blocks until all workers exit.
func (p *ProcessorPool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 1; i <= p.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *ProcessorPool) worker(ctx context.Context, id int) {
	observ.Log("processor_started", map[string]any{"worker": id})
	for ctx.Err() == nil {
		batch, ok := p.in.Pop(ctx, time.Second)
		if !ok {
			continue
		}
		p.safeProcess(batch, id)
	}
	observ.Log("processor_stopped", map[string]any{"worker": id})
}

// safeProcess isolates a panicking strategy from the worker loop.
func (p *ProcessorPool) safeProcess(batch market.CandleBatch, id int) {
	defer func() {
		if r := recover(); r != nil {
			observ.Warn("processor_panic", map[string]any{"worker": id, "symbol": batch.Symbol, "panic": fmt.Sprint(r)})
		}
	}()
	p.process(batch, id)
}

func (p *ProcessorPool) process(batch market.CandleBatch, id int) {
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		observ.RecordDuration("processing_latency", elapsed, nil)
		if elapsed > time.Duration(p.cfg.SoftDeadlineMs)*time.Millisecond {
			observ.Warn("slow_processing", map[string]any{
				"worker":     id,
				"symbol":     batch.Symbol,
				"elapsed_ms": elapsed.Milliseconds(),
			})
		}
	}()

	// Volatility state updates on every batch, signal or not, so pause
	// detection does not lag the market.
	p.sizer.ObserveBatch(batch)

	cand, err := p.strat.Evaluate(batch)
	if err != nil {
		observ.Warn("strategy_error", map[string]any{"symbol": batch.Symbol, "error": err.Error()})
		return
	}
	if cand == nil {
		return
	}
	observ.IncCounter("signals_generated_total", map[string]string{"strategy": p.strat.Name()})

	now := time.Now().UTC()
	fp := dedup.Fingerprint(batch.Symbol, p.strat.Name(), string(cand.Action), cand.Reasons)

	if isDup, reason := p.dedup.IsDuplicate(batch.Symbol, p.strat.Name(), string(cand.Action), cand.Reasons, now); isDup {
		observ.Debug("signal_duplicate", map[string]any{"symbol": batch.Symbol, "fingerprint": fp, "reason": reason})
		return
	}
	if p.dedup.WasExecuted(batch.Symbol, fp, now) {
		observ.Debug("signal_already_executed", map[string]any{"symbol": batch.Symbol, "fingerprint": fp})
		return
	}

	if isOut, reason := p.outliers.IsOutlier(p.strat.Name(), cand.Quality); isOut {
		observ.Log("signal_outlier_rejected", map[string]any{"symbol": batch.Symbol, "quality": cand.Quality, "reason": reason})
		p.outliers.Record(p.strat.Name(), cand.Quality)
		return
	}
	p.outliers.Record(p.strat.Name(), cand.Quality)

	if pause, reason := p.sizer.ShouldPause(batch.Symbol); pause {
		observ.Log("signal_skipped_pause", map[string]any{"symbol": batch.Symbol, "reason": reason})
		return
	}

	lot, tpDist, slDist := p.sizer.Size(batch.Symbol, p.cfg.BaseLot, p.cfg.BaseTP, p.cfg.BaseSL)

	last, ok := batch.Last()
	if !ok {
		return
	}
	var tpPrice, slPrice float64
	if cand.Action == strategy.ActionBuy {
		tpPrice = last.Close + tpDist
		slPrice = last.Close - slDist
	} else {
		tpPrice = last.Close - tpDist
		slPrice = last.Close + slDist
	}

	req := ExecutionRequest{
		Signal: Signal{
			Symbol:      batch.Symbol,
			Strategy:    p.strat.Name(),
			Action:      cand.Action,
			Quality:     cand.Quality,
			Reasons:     cand.Reasons,
			Fingerprint: fp,
			At:          now,
		},
		Lot:     lot,
		TPPrice: tpPrice,
		SLPrice: slPrice,
	}
	if p.out.Push(req) {
		observ.Debug("request_evicted", map[string]any{"symbol": batch.Symbol})
	}
	observ.IncCounter("signals_validated_total", map[string]string{"strategy": p.strat.Name()})
}
