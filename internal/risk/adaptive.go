package risk

import (
	"fmt"
	"math"
	"sync"

	"github.com/trademaestro/trading-agent/internal/market"
	"github.com/trademaestro/trading-agent/internal/observ"
)

// VolatilityClass buckets current ATR against its trailing average.
type VolatilityClass string

const (
	VolLow     VolatilityClass = "LOW"
	VolNormal  VolatilityClass = "NORMAL"
	VolHigh    VolatilityClass = "HIGH"
	VolExtreme VolatilityClass = "EXTREME"
)

// Regime is the classified market behavior mode.
type Regime string

const (
	RegimeNormal    Regime = "NORMAL"
	RegimeTrending  Regime = "TRENDING"
	RegimeRanging   Regime = "RANGING"
	RegimeHighVol   Regime = "HIGH_VOL"
	RegimeNewsSpike Regime = "NEWS_SPIKE"
)

// Volatility ratio thresholds (current ATR / 20-period ATR average).
const (
	volLowRatio     = 0.5
	volHighRatio    = 2.0
	volExtremeRatio = 3.0
)

var lotMultipliers = map[VolatilityClass]float64{
	VolLow:     1.2,
	VolNormal:  1.0,
	VolHigh:    0.7,
	VolExtreme: 0.3,
}

type tpSlMultiplier struct{ tp, sl float64 }

var regimeMultipliers = map[Regime]tpSlMultiplier{
	RegimeTrending:  {tp: 1.5, sl: 0.8},
	RegimeRanging:   {tp: 0.8, sl: 1.2},
	RegimeHighVol:   {tp: 1.2, sl: 1.5},
	RegimeNewsSpike: {tp: 0.5, sl: 2.0},
}

const (
	atrPeriod      = 14
	atrAvgWindow   = 20
	atrMaxHistory  = 100
	atrMinReadings = 10
)

// AdaptiveConfig bounds the sizing outputs.
type AdaptiveConfig struct {
	MinLot float64 `yaml:"min_lot"`
}

type symbolState struct {
	atrHistory []float64
	volClass   VolatilityClass
	regime     Regime
	confidence float64
}

// AdaptiveEngine converts base lot/TP/SL into volatility- and
// regime-adjusted values. Processing workers feed it candle batches; sizing
// reads a consistent snapshot of the per-symbol state.
type AdaptiveEngine struct {
	mu      sync.RWMutex
	cfg     AdaptiveConfig
	symbols map[string]*symbolState
}

func NewAdaptiveEngine(cfg AdaptiveConfig) *AdaptiveEngine {
	if cfg.MinLot <= 0 {
		cfg.MinLot = 0.01
	}
	return &AdaptiveEngine{cfg: cfg, symbols: map[string]*symbolState{}}
}

func (e *AdaptiveEngine) state(symbol string) *symbolState {
	st, ok := e.symbols[symbol]
	if !ok {
		st = &symbolState{volClass: VolNormal, regime: RegimeNormal, confidence: 0.5}
		e.symbols[symbol] = st
	}
	return st
}

// ObserveBatch updates ATR history, volatility class and regime for the
// batch's symbol. Batches shorter than the ATR period are ignored.
func (e *AdaptiveEngine) ObserveBatch(batch market.CandleBatch) {
	atr, ok := atr14(batch.Candles)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state(batch.Symbol)

	st.atrHistory = append(st.atrHistory, atr)
	if len(st.atrHistory) > atrMaxHistory {
		st.atrHistory = st.atrHistory[len(st.atrHistory)-atrMaxHistory:]
	}

	prevClass := st.volClass
	st.volClass = classifyVolatility(st.atrHistory, atr)
	if st.volClass != prevClass && (st.volClass == VolHigh || st.volClass == VolExtreme) {
		observ.Warn("volatility_elevated", map[string]any{
			"symbol": batch.Symbol,
			"class":  string(st.volClass),
		})
	}

	st.regime, st.confidence = classifyRegime(batch.Candles, st.volClass)
	observ.SetGauge("regime_confidence", st.confidence, map[string]string{
		"symbol": batch.Symbol,
		"regime": string(st.regime),
	})
}

// Size returns the volatility-adjusted lot and regime-adjusted TP/SL
// distances. Lot is clamped to [MinLot, 2x base]; TP to [0.5x, 2x] base and
// SL to [0.5x, 3x] base.
func (e *AdaptiveEngine) Size(symbol string, baseLot, baseTP, baseSL float64) (lot, tp, sl float64) {
	e.mu.RLock()
	st, ok := e.symbols[symbol]
	volClass, regime := VolNormal, RegimeNormal
	if ok {
		volClass, regime = st.volClass, st.regime
	}
	e.mu.RUnlock()

	lot = baseLot * lotMultipliers[volClass]
	lot = clamp(lot, e.cfg.MinLot, 2*baseLot)

	mult, ok := regimeMultipliers[regime]
	if !ok {
		mult = tpSlMultiplier{tp: 1.0, sl: 1.0}
	}
	tp = clamp(baseTP*mult.tp, 0.5*baseTP, 2.0*baseTP)
	sl = clamp(baseSL*mult.sl, 0.5*baseSL, 3.0*baseSL)

	if lot != baseLot {
		observ.Debug("adaptive_sizing", map[string]any{
			"symbol": symbol, "base_lot": baseLot, "lot": lot,
			"vol_class": string(volClass), "regime": string(regime),
		})
	}
	return lot, tp, sl
}

// ShouldPause reports whether conditions are too hostile to trade the symbol
// at all. Callers must treat a pause as a hard skip, not a size reduction.
func (e *AdaptiveEngine) ShouldPause(symbol string) (bool, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.symbols[symbol]
	if !ok {
		return false, ""
	}
	if st.volClass == VolExtreme {
		return true, "extreme volatility"
	}
	if st.regime == RegimeNewsSpike && st.confidence > 0.8 {
		return true, fmt.Sprintf("news spike (confidence: %.2f)", st.confidence)
	}
	return false, ""
}

// Classification returns the current volatility class and regime for a
// symbol, primarily for the health line.
func (e *AdaptiveEngine) Classification(symbol string) (VolatilityClass, Regime, float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.symbols[symbol]
	if !ok {
		return VolNormal, RegimeNormal, 0.5
	}
	return st.volClass, st.regime, st.confidence
}

// atr14 computes a simple rolling-mean ATR over the last 14 true ranges.
func atr14(candles []market.Candle) (float64, bool) {
	if len(candles) < atrPeriod+1 {
		return 0, false
	}
	var sum float64
	start := len(candles) - atrPeriod
	for i := start; i < len(candles); i++ {
		prevClose := candles[i-1].Close
		hl := candles[i].High - candles[i].Low
		hc := math.Abs(candles[i].High - prevClose)
		lc := math.Abs(candles[i].Low - prevClose)
		sum += math.Max(hl, math.Max(hc, lc))
	}
	return sum / atrPeriod, true
}

func classifyVolatility(history []float64, current float64) VolatilityClass {
	if len(history) < atrMinReadings {
		return VolNormal
	}
	window := history
	if len(window) > atrAvgWindow {
		window = window[len(window)-atrAvgWindow:]
	}
	var avg float64
	for _, v := range window {
		avg += v
	}
	avg /= float64(len(window))
	if avg <= 0 {
		return VolNormal
	}
	ratio := current / avg
	switch {
	case ratio >= volExtremeRatio:
		return VolExtreme
	case ratio >= volHighRatio:
		return VolHigh
	case ratio <= volLowRatio:
		return VolLow
	default:
		return VolNormal
	}
}

func classifyRegime(candles []market.Candle, volClass VolatilityClass) (Regime, float64) {
	switch volClass {
	case VolExtreme:
		return RegimeNewsSpike, 0.9
	case VolHigh:
		return RegimeHighVol, 0.8
	}
	if len(candles) < 50 {
		return RegimeNormal, 0.5
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	e20 := ema(closes, 20)
	e50 := ema(closes, 50)
	lastClose := closes[len(closes)-1]
	if e50 == 0 || lastClose == 0 {
		return RegimeNormal, 0.5
	}
	trendStrength := math.Abs(e20-e50) / e50
	if trendStrength > 0.02 {
		return RegimeTrending, clamp(trendStrength*20, 0.1, 1.0)
	}
	hi, lo := candles[len(candles)-20].High, candles[len(candles)-20].Low
	for _, c := range candles[len(candles)-20:] {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	if (hi-lo)/lastClose < 0.01 {
		return RegimeRanging, 0.7
	}
	return RegimeNormal, 0.6
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

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
