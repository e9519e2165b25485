package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVolume(t *testing.T) {
	spec := DefaultSpec
	cases := []struct {
		name string
		in   float64
		want float64
	}{
		{"exact step", 0.10, 0.10},
		{"float residue snaps down", 0.30000000004, 0.30},
		{"between steps snaps down", 0.057, 0.05},
		{"below min clamps up", 0.003, 0.01},
		{"above max clamps down", 150, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, spec.NormalizeVolume(tc.in), 1e-12)
		})
	}
}

func TestNormalizePrice(t *testing.T) {
	spec := SymbolSpec{Digits: 5, LotStep: 0.01, MinLot: 0.01, MaxLot: 100}
	assert.InDelta(t, 1.23457, spec.NormalizePrice(1.2345678), 1e-12)

	jpy := SymbolSpec{Digits: 3, LotStep: 0.01, MinLot: 0.01, MaxLot: 100}
	assert.InDelta(t, 154.321, jpy.NormalizePrice(154.32149), 1e-12)
}

func TestNormalizeOrder(t *testing.T) {
	spec := DefaultSpec
	out := spec.NormalizeOrder(OrderRequest{
		Symbol: "EURUSD",
		Action: ActionBuy,
		Volume: 0.123,
		Price:  1.2345678,
		TP:     1.2395678,
		SL:     1.2315678,
	})
	assert.InDelta(t, 0.12, out.Volume, 1e-12)
	assert.InDelta(t, 1.23457, out.Price, 1e-12)
	assert.InDelta(t, 1.23957, out.TP, 1e-12)
	assert.InDelta(t, 1.23157, out.SL, 1e-12)

	// Zero TP/SL means none set; they stay zero rather than rounding.
	out = spec.NormalizeOrder(OrderRequest{Symbol: "EURUSD", Action: ActionSell, Volume: 0.1, Price: 1.1})
	assert.Equal(t, 0.0, out.TP)
	assert.Equal(t, 0.0, out.SL)
}

func TestNormalizeVolume_ZeroStepFallsBack(t *testing.T) {
	spec := SymbolSpec{Digits: 5, MinLot: 0.01, MaxLot: 100}
	assert.InDelta(t, 0.05, spec.NormalizeVolume(0.057), 1e-12)
}
