package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/trademaestro/trading-agent/internal/gateway"
	"github.com/trademaestro/trading-agent/internal/market"
	"github.com/trademaestro/trading-agent/internal/observ"
)

// FetcherConfig controls the polling cadence.
type FetcherConfig struct {
	Symbols         []string `yaml:"symbols"`
	Timeframe       string   `yaml:"timeframe"`
	BarCount        int      `yaml:"bar_count"`
	FetchIntervalMs int      `yaml:"fetch_interval_ms"`
}

func (c FetcherConfig) withDefaults() FetcherConfig {
	if c.Timeframe == "" {
		c.Timeframe = "M1"
	}
	if c.BarCount <= 0 {
		c.BarCount = 100
	}
	if c.FetchIntervalMs <= 0 {
		c.FetchIntervalMs = 500
	}
	return c
}

// Fetcher polls the market-data collaborator on a fixed interval and
// publishes candle batches. A failed fetch is logged and retried on the next
// tick; the fetcher never blocks longer than one interval per symbol.
type Fetcher struct {
	cfg       FetcherConfig
	feed      market.Feed
	out       *Queue[market.CandleBatch]
	sc        gateway.SafeCall
	lastFetch atomic.Int64 // unix nanos of the last successful fetch
}

func NewFetcher(cfg FetcherConfig, feed market.Feed, out *Queue[market.CandleBatch]) *Fetcher {
	cfg = cfg.withDefaults()
	return &Fetcher{
		cfg:  cfg,
		feed: feed,
		out:  out,
		sc: gateway.SafeCall{
			Timeout: time.Duration(cfg.FetchIntervalMs) * time.Millisecond,
			Retries: 1,
		},
	}
}

// Run polls until ctx is cancelled.
func (f *Fetcher) Run(ctx context.Context) {
	observ.Log("fetcher_started", map[string]any{
		"symbols":     f.cfg.Symbols,
		"timeframe":   f.cfg.Timeframe,
		"interval_ms": f.cfg.FetchIntervalMs,
	})
	ticker := time.NewTicker(time.Duration(f.cfg.FetchIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			observ.Log("fetcher_stopped", nil)
			return
		case <-ticker.C:
			f.tick(ctx)
		}
	}
}

func (f *Fetcher) tick(ctx context.Context) {
	for _, symbol := range f.cfg.Symbols {
		batch, err := gateway.Do(ctx, f.sc, "get_candles", func(ctx context.Context) (market.CandleBatch, error) {
			return f.feed.GetCandles(ctx, symbol, f.cfg.Timeframe, f.cfg.BarCount)
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			observ.Warn("fetch_failed", map[string]any{"symbol": symbol, "error": err.Error()})
			continue
		}
		if len(batch.Candles) == 0 {
			continue
		}
		f.lastFetch.Store(time.Now().UnixNano())
		if f.out.Push(batch) {
			observ.Debug("batch_evicted", map[string]any{"symbol": symbol})
		}
	}
}

// LastFetch returns when the fetcher last succeeded; zero time if never.
func (f *Fetcher) LastFetch() time.Time {
	ns := f.lastFetch.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// SameSymbolOldest is the Q1 eviction policy: prefer dropping the oldest
// queued batch of the incoming batch's symbol, falling back to the global
// oldest. Staleness is bounded per symbol without starving other symbols.
func SameSymbolOldest(items []market.CandleBatch, incoming market.CandleBatch) int {
	for i, b := range items {
		if b.Symbol == incoming.Symbol {
			return i
		}
	}
	return 0
}
