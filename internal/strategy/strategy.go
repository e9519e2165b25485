package strategy

import (
	"fmt"
	"strings"

	"github.com/trademaestro/trading-agent/internal/market"
)

// Action is a candidate signal direction.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Candidate is a strategy's verdict on a candle batch: direction, a quality
// score in [0,100], and the ordered list of conditions that contributed.
type Candidate struct {
	Action  Action
	Quality float64
	Reasons []string
}

// Strategy is the indicator/strategy collaborator. Evaluate returns nil when
// no actionable condition exists, which is the common case.
type Strategy interface {
	Name() string
	Evaluate(batch market.CandleBatch) (*Candidate, error)
}

// New builds a strategy by name. Dispatch happens once here; nothing else in
// the pipeline branches on strategy names.
func New(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "hft":
		return &HFT{}, nil
	case "scalping":
		return &Scalping{}, nil
	case "intraday":
		return &Intraday{}, nil
	case "arbitrage":
		return &Arbitrage{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
