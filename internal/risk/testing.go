package risk

// Test helpers for driving the adaptive engine into specific states without
// synthesizing long candle histories.

// SetVolatilityForTest forces a symbol's volatility class.
func (e *AdaptiveEngine) SetVolatilityForTest(symbol string, class VolatilityClass) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state(symbol).volClass = class
}

// SetRegimeForTest forces a symbol's regime and confidence.
func (e *AdaptiveEngine) SetRegimeForTest(symbol string, regime Regime, confidence float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state(symbol)
	st.regime = regime
	st.confidence = confidence
}
