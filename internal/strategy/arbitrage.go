package strategy

import (
	"math"

	"github.com/trademaestro/trading-agent/internal/market"
)

// Arbitrage is mean reversion against the 20-bar average: fade moves that
// stretch too far from it.
type Arbitrage struct{}

func (s *Arbitrage) Name() string { return "Arbitrage" }

func (s *Arbitrage) Evaluate(batch market.CandleBatch) (*Candidate, error) {
	cs := closes(batch.Candles)
	if len(cs) < 25 {
		return nil, nil
	}
	mean := sma(cs, 20)
	last := cs[len(cs)-1]
	if mean == 0 {
		return nil, nil
	}
	dev := (last - mean) / mean
	if math.Abs(dev) < 0.002 {
		return nil, nil
	}

	action := ActionSell
	reasons := []string{"price stretched above mean"}
	if dev < 0 {
		action = ActionBuy
		reasons = []string{"price stretched below mean"}
	}
	quality := 50 + math.Min(40, math.Abs(dev)*10000)
	reasons = append(reasons, "mean reversion setup")
	return &Candidate{Action: action, Quality: quality, Reasons: reasons}, nil
}
