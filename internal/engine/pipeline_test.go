package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trademaestro/trading-agent/internal/dedup"
	"github.com/trademaestro/trading-agent/internal/gateway"
	"github.com/trademaestro/trading-agent/internal/journal"
	"github.com/trademaestro/trading-agent/internal/market"
	"github.com/trademaestro/trading-agent/internal/risk"
	"github.com/trademaestro/trading-agent/internal/safety"
	"github.com/trademaestro/trading-agent/internal/strategy"
)

// scriptedStrategy emits a fixed candidate for every batch.
type scriptedStrategy struct {
	cand *strategy.Candidate
	err  error
}

func (s *scriptedStrategy) Name() string { return "Scripted" }

func (s *scriptedStrategy) Evaluate(market.CandleBatch) (*strategy.Candidate, error) {
	return s.cand, s.err
}

func buyCandidate() *strategy.Candidate {
	return &strategy.Candidate{
		Action:  strategy.ActionBuy,
		Quality: 80,
		Reasons: []string{"scripted condition one", "scripted condition two"},
	}
}

func testProcessorConfig() ProcessorConfig {
	return ProcessorConfig{Workers: 2, BaseLot: 0.1, BaseTP: 0.0050, BaseSL: 0.0030, SoftDeadlineMs: 2000}
}

func newPipelineFixtures() (*dedup.Deduplicator, *dedup.OutlierFilter, *risk.AdaptiveEngine) {
	return dedup.New(dedup.DefaultConfig()), dedup.NewOutlierFilter(), risk.NewAdaptiveEngine(risk.AdaptiveConfig{MinLot: 0.01})
}

func TestProcessorPool_ProducesSizedRequest(t *testing.T) {
	dd, outliers, sizer := newPipelineFixtures()
	in := NewQueue[market.CandleBatch]("candles", 10, SameSymbolOldest)
	out := NewQueue[ExecutionRequest]("execute", 10, nil)
	pool := NewProcessorPool(testProcessorConfig(), &scriptedStrategy{cand: buyCandidate()}, dd, outliers, sizer, in, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	in.Push(batchFor("EURUSD", time.Now()))

	req, ok := out.Pop(ctx, 3*time.Second)
	require.True(t, ok)
	assert.Equal(t, "EURUSD", req.Signal.Symbol)
	assert.Equal(t, strategy.ActionBuy, req.Signal.Action)
	assert.Equal(t, "Scripted", req.Signal.Strategy)
	assert.NotEmpty(t, req.Signal.Fingerprint)
	assert.InDelta(t, 0.1, req.Lot, 1e-9, "neutral state keeps the base lot")
	assert.InDelta(t, 1.0+0.0050, req.TPPrice, 1e-9)
	assert.InDelta(t, 1.0-0.0030, req.SLPrice, 1e-9)
}

func TestProcessorPool_SuppressesDuplicateSignal(t *testing.T) {
	dd, outliers, sizer := newPipelineFixtures()
	in := NewQueue[market.CandleBatch]("candles", 10, SameSymbolOldest)
	out := NewQueue[ExecutionRequest]("execute", 10, nil)
	pool := NewProcessorPool(testProcessorConfig(), &scriptedStrategy{cand: buyCandidate()}, dd, outliers, sizer, in, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	in.Push(batchFor("EURUSD", time.Now()))
	_, ok := out.Pop(ctx, 3*time.Second)
	require.True(t, ok)

	// Identical signal content within the suppression window: nothing comes out.
	in.Push(batchFor("EURUSD", time.Now()))
	_, ok = out.Pop(ctx, 500*time.Millisecond)
	assert.False(t, ok)
}

func TestProcessorPool_PauseBlocksSignal(t *testing.T) {
	dd, outliers, sizer := newPipelineFixtures()
	sizer.SetVolatilityForTest("EURUSD", risk.VolExtreme)
	in := NewQueue[market.CandleBatch]("candles", 10, SameSymbolOldest)
	out := NewQueue[ExecutionRequest]("execute", 10, nil)
	pool := NewProcessorPool(testProcessorConfig(), &scriptedStrategy{cand: buyCandidate()}, dd, outliers, sizer, in, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	in.Push(batchFor("EURUSD", time.Now()))
	_, ok := out.Pop(ctx, 500*time.Millisecond)
	assert.False(t, ok, "extreme volatility is a hard skip")
}

func TestProcessorPool_SellRequestInvertsPrices(t *testing.T) {
	dd, outliers, sizer := newPipelineFixtures()
	in := NewQueue[market.CandleBatch]("candles", 10, SameSymbolOldest)
	out := NewQueue[ExecutionRequest]("execute", 10, nil)
	sell := &strategy.Candidate{Action: strategy.ActionSell, Quality: 75, Reasons: []string{"sell condition"}}
	pool := NewProcessorPool(testProcessorConfig(), &scriptedStrategy{cand: sell}, dd, outliers, sizer, in, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	in.Push(batchFor("EURUSD", time.Now()))
	req, ok := out.Pop(ctx, 3*time.Second)
	require.True(t, ok)
	assert.InDelta(t, 1.0-0.0050, req.TPPrice, 1e-9)
	assert.InDelta(t, 1.0+0.0030, req.SLPrice, 1e-9)
}

func TestProcessorPool_NoSignalNoOutput(t *testing.T) {
	dd, outliers, sizer := newPipelineFixtures()
	in := NewQueue[market.CandleBatch]("candles", 10, SameSymbolOldest)
	out := NewQueue[ExecutionRequest]("execute", 10, nil)
	pool := NewProcessorPool(testProcessorConfig(), &scriptedStrategy{cand: nil}, dd, outliers, sizer, in, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	in.Push(batchFor("EURUSD", time.Now()))
	_, ok := out.Pop(ctx, 300*time.Millisecond)
	assert.False(t, ok)
}

func newTestExecutor(gw *gateway.SimGateway, monitor *safety.Monitor, limiter *risk.RateLimiter, dd *dedup.Deduplicator, in *Queue[ExecutionRequest]) *Executor {
	return NewExecutor(gw, monitor, limiter, dd, (*journal.Journal)(nil), gateway.DefaultSpec, 10, in)
}

func sizedRequest(symbol string) ExecutionRequest {
	reasons := []string{"scripted condition one", "scripted condition two"}
	return ExecutionRequest{
		Signal: Signal{
			Symbol:      symbol,
			Strategy:    "Scripted",
			Action:      strategy.ActionBuy,
			Quality:     80,
			Reasons:     reasons,
			Fingerprint: dedup.Fingerprint(symbol, "Scripted", "BUY", reasons),
			At:          time.Now().UTC(),
		},
		Lot:     0.1,
		TPPrice: 1.1050,
		SLPrice: 1.0970,
	}
}

func TestExecutor_SubmitsNormalizedOrder(t *testing.T) {
	gw := gateway.NewSimGateway(10000, 60)
	gw.SetPrice("EURUSD", 1.1000)
	dd := dedup.New(dedup.DefaultConfig())
	monitor := safety.NewMonitor(safety.MonitorConfig{}, gw, nil)
	in := NewQueue[ExecutionRequest]("execute", 10, nil)
	ex := newTestExecutor(gw, monitor, risk.NewRateLimiter(time.Millisecond), dd, in)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ex.Run(ctx)

	req := sizedRequest("EURUSD")
	in.Push(req)

	require.Eventually(t, func() bool { return len(gw.Submitted()) == 1 }, 3*time.Second, 20*time.Millisecond)
	order := gw.Submitted()[0]
	assert.Equal(t, gateway.ActionBuy, order.Action)
	assert.InDelta(t, 0.1, order.Volume, 1e-9)
	// Entry at the ask for a buy, rounded to the symbol's digits.
	assert.InDelta(t, 1.10011, order.Price, 1e-9)
	assert.True(t, dd.WasExecuted("EURUSD", req.Signal.Fingerprint, time.Now()))
}

func TestExecutor_BlockedWhenNotActive(t *testing.T) {
	gw := gateway.NewSimGateway(10000, 60)
	gw.SetPrice("EURUSD", 1.1000)
	dd := dedup.New(dedup.DefaultConfig())
	monitor := safety.NewMonitor(safety.MonitorConfig{}, gw, nil)
	monitor.TriggerEmergencyStop(context.Background(), "test stop")
	in := NewQueue[ExecutionRequest]("execute", 10, nil)
	ex := newTestExecutor(gw, monitor, risk.NewRateLimiter(time.Millisecond), dd, in)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ex.Run(ctx)

	in.Push(sizedRequest("EURUSD"))
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, gw.Submitted())
}

func TestExecutor_RateLimitDropsBurst(t *testing.T) {
	gw := gateway.NewSimGateway(10000, 600)
	gw.SetPrice("EURUSD", 1.1000)
	dd := dedup.New(dedup.DefaultConfig())
	monitor := safety.NewMonitor(safety.MonitorConfig{}, gw, nil)
	in := NewQueue[ExecutionRequest]("execute", 10, nil)
	// One order per hour per symbol: the second request in the burst drops.
	ex := newTestExecutor(gw, monitor, risk.NewRateLimiter(time.Hour), dd, in)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ex.Run(ctx)

	a := sizedRequest("EURUSD")
	b := sizedRequest("EURUSD")
	b.Signal.Reasons = []string{"entirely different basis"}
	b.Signal.Fingerprint = dedup.Fingerprint("EURUSD", "Scripted", "BUY", b.Signal.Reasons)
	in.Push(a)
	in.Push(b)

	require.Eventually(t, func() bool { return len(gw.Submitted()) == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, gw.Submitted(), 1)
}

func TestExecutor_SurvivesBrokerRejection(t *testing.T) {
	gw := gateway.NewSimGateway(10000, 60)
	gw.SetPrice("EURUSD", 1.1000)
	gw.SubmitErr = &gateway.RejectedError{Op: "submit_order", Reason: "scripted"}
	dd := dedup.New(dedup.DefaultConfig())
	monitor := safety.NewMonitor(safety.MonitorConfig{}, gw, nil)
	in := NewQueue[ExecutionRequest]("execute", 10, nil)
	ex := newTestExecutor(gw, monitor, risk.NewRateLimiter(time.Millisecond), dd, in)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ex.Run(ctx)

	req := sizedRequest("EURUSD")
	in.Push(req)
	time.Sleep(300 * time.Millisecond)

	assert.Empty(t, gw.Submitted())
	assert.False(t, dd.WasExecuted("EURUSD", req.Signal.Fingerprint, time.Now()),
		"failed orders must stay re-executable")

	// The worker is still alive: clearing the fault lets the next order through.
	gw.SubmitErr = nil
	next := sizedRequest("EURUSD")
	next.Signal.Reasons = []string{"fresh basis"}
	next.Signal.Fingerprint = dedup.Fingerprint("EURUSD", "Scripted", "BUY", next.Signal.Reasons)
	in.Push(next)
	require.Eventually(t, func() bool { return len(gw.Submitted()) == 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestFetcher_PublishesBatches(t *testing.T) {
	feed := market.NewSimFeed(1, map[string]float64{"EURUSD": 1.1})
	q := NewQueue[market.CandleBatch]("candles", 200, SameSymbolOldest)
	f := NewFetcher(FetcherConfig{
		Symbols:         []string{"EURUSD"},
		BarCount:        50,
		FetchIntervalMs: 10,
	}, feed, q)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	b, ok := q.Pop(ctx, 3*time.Second)
	require.True(t, ok)
	assert.Equal(t, "EURUSD", b.Symbol)
	assert.NotEmpty(t, b.Candles)
	assert.False(t, f.LastFetch().IsZero())
}

// End-to-end: candles flow from the feed through processing into the sim
// broker.
func TestPipeline_EndToEnd(t *testing.T) {
	feed := market.NewSimFeed(42, map[string]float64{"EURUSD": 1.1})
	gw := gateway.NewSimGateway(10000, 600)
	gw.SetPrice("EURUSD", 1.1)
	dd, outliers, sizer := newPipelineFixtures()
	monitor := safety.NewMonitor(safety.MonitorConfig{}, gw, nil)
	healer := safety.NewSelfHealer(safety.HealerConfig{ProbeIntervalSec: 1}, gw, nil)

	candleQ := NewQueue[market.CandleBatch]("candles", 200, SameSymbolOldest)
	executeQ := NewQueue[ExecutionRequest]("execute", 200, nil)

	core := NewCore(CoreDeps{
		Fetcher: NewFetcher(FetcherConfig{
			Symbols:         []string{"EURUSD"},
			BarCount:        50,
			FetchIntervalMs: 10,
		}, feed, candleQ),
		Pool:         NewProcessorPool(testProcessorConfig(), &scriptedStrategy{cand: buyCandidate()}, dd, outliers, sizer, candleQ, executeQ),
		Executor:     NewExecutor(gw, monitor, risk.NewRateLimiter(time.Millisecond), dd, (*journal.Journal)(nil), gateway.DefaultSpec, 10, executeQ),
		Monitor:      monitor,
		Healer:       healer,
		Dedup:        dd,
		Sizer:        sizer,
		Symbols:      []string{"EURUSD"},
		CandleQueue:  candleQ,
		ExecuteQueue: executeQ,
	})

	core.Start(context.Background())
	require.Eventually(t, func() bool { return len(gw.Submitted()) >= 1 }, 5*time.Second, 50*time.Millisecond)
	core.Stop()

	order := gw.Submitted()[0]
	assert.Equal(t, "EURUSD", order.Symbol)
	assert.Greater(t, order.Volume, 0.0)
}
