package strategy

import (
	"github.com/trademaestro/trading-agent/internal/market"
)

// Scalping trades short EMA alignment with recent momentum. It is the
// default strategy.
type Scalping struct{}

func (s *Scalping) Name() string { return "Scalping" }

func (s *Scalping) Evaluate(batch market.CandleBatch) (*Candidate, error) {
	cs := closes(batch.Candles)
	if len(cs) < 30 {
		return nil, nil
	}
	e9 := ema(cs, 9)
	e21 := ema(cs, 21)
	mom := momentum(cs, 5)
	last := cs[len(cs)-1]

	var reasons []string
	quality := 0.0
	var action Action

	switch {
	case e9 > e21 && last > e9:
		action = ActionBuy
		reasons = append(reasons, "ema9 above ema21", "price above fast ema")
		quality += 50
	case e9 < e21 && last < e9:
		action = ActionSell
		reasons = append(reasons, "ema9 below ema21", "price below fast ema")
		quality += 50
	default:
		return nil, nil
	}

	if (action == ActionBuy && mom > 0.0005) || (action == ActionSell && mom < -0.0005) {
		reasons = append(reasons, "momentum confirms direction")
		quality += 30
	}
	if vol := avgVolume(batch.Candles, 5); vol > 1.2*avgVolume(batch.Candles, 20) {
		reasons = append(reasons, "volume above average")
		quality += 20
	}
	if quality < 60 {
		return nil, nil
	}
	return &Candidate{Action: action, Quality: quality, Reasons: reasons}, nil
}
