package strategy

import (
	"github.com/trademaestro/trading-agent/internal/market"
)

// Intraday follows the medium trend (ema20 vs ema50) and enters on pullbacks
// toward the fast average.
type Intraday struct{}

func (s *Intraday) Name() string { return "Intraday" }

func (s *Intraday) Evaluate(batch market.CandleBatch) (*Candidate, error) {
	cs := closes(batch.Candles)
	if len(cs) < 55 {
		return nil, nil
	}
	e20 := ema(cs, 20)
	e50 := ema(cs, 50)
	last := cs[len(cs)-1]
	if e50 == 0 {
		return nil, nil
	}
	sep := (e20 - e50) / e50

	var action Action
	var reasons []string
	quality := 0.0

	switch {
	case sep > 0.001 && last <= e20:
		action = ActionBuy
		reasons = append(reasons, "uptrend ema20 over ema50", "pullback to fast ema")
		quality += 60
	case sep < -0.001 && last >= e20:
		action = ActionSell
		reasons = append(reasons, "downtrend ema20 under ema50", "rally to fast ema")
		quality += 60
	default:
		return nil, nil
	}

	if mom := momentum(cs, 10); (action == ActionBuy && mom > 0) || (action == ActionSell && mom < 0) {
		reasons = append(reasons, "ten bar momentum aligned")
		quality += 20
	}
	return &Candidate{Action: action, Quality: quality, Reasons: reasons}, nil
}
