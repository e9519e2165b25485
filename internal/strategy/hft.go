package strategy

import (
	"github.com/trademaestro/trading-agent/internal/market"
)

// HFT reacts to very short bursts: three consecutive closes in one direction
// with a volume surge.
type HFT struct{}

func (h *HFT) Name() string { return "HFT" }

func (h *HFT) Evaluate(batch market.CandleBatch) (*Candidate, error) {
	cs := closes(batch.Candles)
	if len(cs) < 25 {
		return nil, nil
	}
	last3 := cs[len(cs)-3:]
	rising := last3[0] < last3[1] && last3[1] < last3[2]
	falling := last3[0] > last3[1] && last3[1] > last3[2]
	if !rising && !falling {
		return nil, nil
	}

	action := ActionBuy
	reasons := []string{"three consecutive rising closes"}
	if falling {
		action = ActionSell
		reasons = []string{"three consecutive falling closes"}
	}
	quality := 55.0

	if avgVolume(batch.Candles, 3) > 1.5*avgVolume(batch.Candles, 20) {
		reasons = append(reasons, "volume surge")
		quality += 25
	}
	if mom := momentum(cs, 3); (action == ActionBuy && mom > 0.001) || (action == ActionSell && mom < -0.001) {
		reasons = append(reasons, "burst momentum")
		quality += 20
	}
	if quality < 70 {
		return nil, nil
	}
	return &Candidate{Action: action, Quality: quality, Reasons: reasons}, nil
}
