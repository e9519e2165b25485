package market

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimFeed generates deterministic-ish random-walk candles per symbol. It is
// the default feed for dry runs and the workhorse for tests.
type SimFeed struct {
	mu      sync.Mutex
	rng     *rand.Rand
	prices  map[string]float64
	history map[string][]Candle
	// Drift nudges the walk so trending regimes actually occur.
	Drift float64
	// Shock, when set >0, multiplies bar ranges to simulate a volatility spike.
	Shock float64
}

// NewSimFeed seeds a simulated feed. Symbols not in seeds start at 1.0.
func NewSimFeed(seed int64, seeds map[string]float64) *SimFeed {
	prices := map[string]float64{}
	for s, p := range seeds {
		prices[s] = p
	}
	return &SimFeed{
		rng:     rand.New(rand.NewSource(seed)),
		prices:  prices,
		history: map[string][]Candle{},
		Shock:   1.0,
	}
}

func (f *SimFeed) GetCandles(ctx context.Context, symbol, timeframe string, count int) (CandleBatch, error) {
	if err := ctx.Err(); err != nil {
		return CandleBatch{}, err
	}
	if count <= 0 {
		return CandleBatch{}, fmt.Errorf("sim feed: bad bar count %d", count)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	price, ok := f.prices[symbol]
	if !ok {
		price = 1.0
	}
	bars := f.history[symbol]

	// Advance the walk by one bar per call.
	step := price * 0.0005 * f.Shock
	move := (f.rng.Float64()*2 - 1 + f.Drift) * step
	open := price
	close := price + move
	high := math.Max(open, close) + f.rng.Float64()*step
	low := math.Min(open, close) - f.rng.Float64()*step
	bars = append(bars, Candle{
		Time:   time.Now().UTC(),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: 100 + f.rng.Float64()*900,
	})
	if len(bars) > 2*count && count > 0 {
		bars = bars[len(bars)-count:]
	}
	f.prices[symbol] = close
	f.history[symbol] = bars

	n := count
	if n > len(bars) {
		n = len(bars)
	}
	out := make([]Candle, n)
	copy(out, bars[len(bars)-n:])
	return CandleBatch{
		Symbol:    symbol,
		Timeframe: timeframe,
		Candles:   out,
		FetchedAt: time.Now().UTC(),
	}, nil
}
