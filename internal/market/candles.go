package market

import (
	"context"
	"time"
)

// Candle is a single OHLCV bar.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// CandleBatch is an ordered run of bars for one symbol/timeframe. A batch is
// immutable once published; ownership passes to whichever queue holds it and
// then to the single worker that dequeues it.
type CandleBatch struct {
	Symbol    string
	Timeframe string
	Candles   []Candle
	FetchedAt time.Time
}

// Last returns the most recent bar. ok is false for an empty batch.
func (b CandleBatch) Last() (Candle, bool) {
	if len(b.Candles) == 0 {
		return Candle{}, false
	}
	return b.Candles[len(b.Candles)-1], true
}

// Feed is the market-data collaborator. Implementations must honor the
// context deadline; the fetcher never waits longer than one poll interval.
type Feed interface {
	GetCandles(ctx context.Context, symbol, timeframe string, count int) (CandleBatch, error)
}
