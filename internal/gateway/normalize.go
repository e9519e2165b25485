package gateway

import (
	"github.com/shopspring/decimal"
)

// SymbolSpec carries the broker metadata needed to shape an order the
// gateway will accept. Lookup of these specs belongs to the connection
// collaborator; the executor only consumes them.
type SymbolSpec struct {
	Symbol  string  `yaml:"symbol"`
	Digits  int32   `yaml:"digits"`
	LotStep float64 `yaml:"lot_step"`
	MinLot  float64 `yaml:"min_lot"`
	MaxLot  float64 `yaml:"max_lot"`
}

// DefaultSpec is a forex-style fallback for symbols without metadata.
var DefaultSpec = SymbolSpec{Digits: 5, LotStep: 0.01, MinLot: 0.01, MaxLot: 100}

// NormalizeVolume snaps volume down to the lot step and clamps it into
// [MinLot, MaxLot]. Decimal arithmetic avoids float residue like 0.30000000004
// lots, which brokers reject outright.
func (s SymbolSpec) NormalizeVolume(volume float64) float64 {
	step := decimal.NewFromFloat(s.LotStep)
	if step.IsZero() {
		step = decimal.NewFromFloat(0.01)
	}
	v := decimal.NewFromFloat(volume)
	snapped := v.Div(step).Floor().Mul(step)

	min := decimal.NewFromFloat(s.MinLot)
	max := decimal.NewFromFloat(s.MaxLot)
	if snapped.LessThan(min) {
		snapped = min
	}
	if max.IsPositive() && snapped.GreaterThan(max) {
		snapped = max
	}
	f, _ := snapped.Float64()
	return f
}

// NormalizePrice rounds a price to the symbol's digits.
func (s SymbolSpec) NormalizePrice(price float64) float64 {
	digits := s.Digits
	if digits <= 0 {
		digits = 5
	}
	f, _ := decimal.NewFromFloat(price).Round(digits).Float64()
	return f
}

// NormalizeOrder returns a copy of req with volume and all prices shaped to
// the spec.
func (s SymbolSpec) NormalizeOrder(req OrderRequest) OrderRequest {
	req.Volume = s.NormalizeVolume(req.Volume)
	req.Price = s.NormalizePrice(req.Price)
	if req.TP != 0 {
		req.TP = s.NormalizePrice(req.TP)
	}
	if req.SL != 0 {
		req.SL = s.NormalizePrice(req.SL)
	}
	return req
}
