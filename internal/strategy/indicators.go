package strategy

import "github.com/trademaestro/trading-agent/internal/market"

func closes(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func ema(xs []float64, span int) float64 {
	if len(xs) == 0 {
		return 0
	}
	alpha := 2.0 / (float64(span) + 1)
	v := xs[0]
	for _, x := range xs[1:] {
		v = alpha*x + (1-alpha)*v
	}
	return v
}

func sma(xs []float64, n int) float64 {
	if len(xs) < n || n <= 0 {
		return 0
	}
	var sum float64
	for _, x := range xs[len(xs)-n:] {
		sum += x
	}
	return sum / float64(n)
}

// momentum is the fractional price change over the last n bars.
func momentum(xs []float64, n int) float64 {
	if len(xs) <= n || xs[len(xs)-1-n] == 0 {
		return 0
	}
	return (xs[len(xs)-1] - xs[len(xs)-1-n]) / xs[len(xs)-1-n]
}

func avgVolume(candles []market.Candle, n int) float64 {
	if len(candles) < n || n <= 0 {
		return 0
	}
	var sum float64
	for _, c := range candles[len(candles)-n:] {
		sum += c.Volume
	}
	return sum / float64(n)
}
