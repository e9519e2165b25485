package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trademaestro/trading-agent/internal/observ"
)

// wsBar is the wire shape the candle stream pushes.
type wsBar struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	Time      int64   `json:"time"` // unix seconds, bar open
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// WSFeed keeps a rolling per-symbol bar buffer fed by a websocket candle
// stream and serves GetCandles from that buffer. The reader goroutine
// reconnects on its own; a feed with an empty buffer returns an error so the
// fetcher logs and retries on the next tick.
type WSFeed struct {
	url     string
	maxBars int

	mu   sync.RWMutex
	bars map[string][]Candle

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWSFeed dials url in the background and starts buffering bars. maxBars
// bounds per-symbol memory.
func NewWSFeed(url string, maxBars int) *WSFeed {
	if maxBars <= 0 {
		maxBars = 500
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &WSFeed{
		url:     url,
		maxBars: maxBars,
		bars:    map[string][]Candle{},
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go f.readLoop(ctx)
	return f
}

// Close stops the reader goroutine.
func (f *WSFeed) Close() {
	f.cancel()
	<-f.done
}

func (f *WSFeed) GetCandles(ctx context.Context, symbol, timeframe string, count int) (CandleBatch, error) {
	if err := ctx.Err(); err != nil {
		return CandleBatch{}, err
	}
	f.mu.RLock()
	buf := f.bars[symbol]
	n := count
	if n > len(buf) {
		n = len(buf)
	}
	out := make([]Candle, n)
	copy(out, buf[len(buf)-n:])
	f.mu.RUnlock()

	if len(out) == 0 {
		return CandleBatch{}, fmt.Errorf("ws feed: no bars buffered for %s", symbol)
	}
	return CandleBatch{
		Symbol:    symbol,
		Timeframe: timeframe,
		Candles:   out,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (f *WSFeed) readLoop(ctx context.Context) {
	defer close(f.done)
	backoff := time.Second
	for ctx.Err() == nil {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
		if err != nil {
			observ.Warn("ws_feed_dial_failed", map[string]any{"url": f.url, "error": err.Error()})
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		observ.Log("ws_feed_connected", map[string]any{"url": f.url})

		// Close the socket when the context is cancelled so ReadMessage
		// unblocks.
		stop := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-stop:
			}
		}()

		f.consume(conn)
		close(stop)
		conn.Close()
	}
}

func (f *WSFeed) consume(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			observ.Warn("ws_feed_read_failed", map[string]any{"error": err.Error()})
			return
		}
		var bar wsBar
		if err := json.Unmarshal(msg, &bar); err != nil {
			observ.Debug("ws_feed_bad_message", map[string]any{"error": err.Error()})
			continue
		}
		f.append(bar)
	}
}

func (f *WSFeed) append(bar wsBar) {
	c := Candle{
		Time:   time.Unix(bar.Time, 0).UTC(),
		Open:   bar.Open,
		High:   bar.High,
		Low:    bar.Low,
		Close:  bar.Close,
		Volume: bar.Volume,
	}
	f.mu.Lock()
	buf := f.bars[bar.Symbol]
	// Same bar open time means an update of the forming bar, not a new one.
	if n := len(buf); n > 0 && buf[n-1].Time.Equal(c.Time) {
		buf[n-1] = c
	} else {
		buf = append(buf, c)
		if len(buf) > f.maxBars {
			buf = buf[len(buf)-f.maxBars:]
		}
	}
	f.bars[bar.Symbol] = buf
	f.mu.Unlock()
}
