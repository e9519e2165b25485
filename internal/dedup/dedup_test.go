package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("EURUSD", "Scalping", "BUY", []string{"ema9 above ema21", "momentum confirms direction"})
	b := Fingerprint("EURUSD", "Scalping", "BUY", []string{"ema9 above ema21", "momentum confirms direction"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 12)
}

func TestFingerprint_ReasonOrderAndCaseInsensitive(t *testing.T) {
	a := Fingerprint("EURUSD", "Scalping", "BUY", []string{"reason one", "Reason Two"})
	b := Fingerprint("eurusd", "Scalping", "BUY", []string{"reason two", "reason one"})
	assert.Equal(t, a, b)
}

func TestFingerprint_DifferentContent(t *testing.T) {
	base := Fingerprint("EURUSD", "Scalping", "BUY", []string{"r1"})
	assert.NotEqual(t, base, Fingerprint("GBPUSD", "Scalping", "BUY", []string{"r1"}))
	assert.NotEqual(t, base, Fingerprint("EURUSD", "Scalping", "SELL", []string{"r1"}))
	assert.NotEqual(t, base, Fingerprint("EURUSD", "HFT", "BUY", []string{"r1"}))
}

func TestIsDuplicate_IdenticalWithinInterval(t *testing.T) {
	d := New(DefaultConfig())
	now := time.Now()
	reasons := []string{"ema9 above ema21", "momentum confirms direction"}

	dup, reason := d.IsDuplicate("EURUSD", "Scalping", "BUY", reasons, now)
	require.False(t, dup)
	assert.Equal(t, "Signal is unique", reason)

	// Identical signal 10s later is suppressed.
	dup, reason = d.IsDuplicate("EURUSD", "Scalping", "BUY", reasons, now.Add(10*time.Second))
	assert.True(t, dup)
	assert.Equal(t, "Duplicate signal within 30s", reason)
}

func TestIsDuplicate_IdenticalAfterInterval(t *testing.T) {
	d := New(DefaultConfig())
	now := time.Now()
	reasons := []string{"three consecutive rising closes"}

	dup, _ := d.IsDuplicate("EURUSD", "HFT", "BUY", reasons, now)
	require.False(t, dup)

	// Past the 30s window the same fingerprint is accepted again, though the
	// similarity rule would still catch it; push past that window too.
	dup, _ = d.IsDuplicate("EURUSD", "HFT", "BUY", reasons, now.Add(121*time.Second))
	assert.False(t, dup)
}

func TestIsDuplicate_PerSymbolRateLimit(t *testing.T) {
	d := New(DefaultConfig())
	now := time.Now()

	// Five distinct signals inside a minute fill the symbol's budget. Distinct
	// reasons keep the similarity rule out of the way.
	for i := 0; i < 5; i++ {
		dup, _ := d.IsDuplicate("EURUSD", "Scalping", "BUY",
			[]string{fmt.Sprintf("condition%d alpha%d", i, i), fmt.Sprintf("extra%d beta%d", i*7, i*3)},
			now.Add(time.Duration(i)*time.Second))
		require.False(t, dup, "signal %d should be unique", i)
	}
	dup, reason := d.IsDuplicate("EURUSD", "Scalping", "BUY",
		[]string{"completely different words", "nothing shared here"}, now.Add(6*time.Second))
	assert.True(t, dup)
	assert.Equal(t, "Rate limit exceeded: 5 signals in last minute", reason)

	// Another symbol is unaffected.
	dup, _ = d.IsDuplicate("GBPUSD", "Scalping", "BUY", []string{"fresh symbol"}, now.Add(6*time.Second))
	assert.False(t, dup)
}

func TestIsDuplicate_SimilarReasonSet(t *testing.T) {
	d := New(DefaultConfig())
	now := time.Now()

	dup, _ := d.IsDuplicate("EURUSD", "Scalping", "BUY",
		[]string{"ema9 above ema21", "price above fast ema", "momentum confirms direction"}, now)
	require.False(t, dup)

	// Same reasons plus one extra word, 60s later: past the identical window
	// but inside the similarity window with jaccard >= 0.8.
	dup, reason := d.IsDuplicate("EURUSD", "Scalping", "BUY",
		[]string{"ema9 above ema21", "price above fast ema", "momentum confirms direction now"},
		now.Add(60*time.Second))
	assert.True(t, dup)
	assert.Contains(t, reason, "Similar signal detected")
	assert.Contains(t, reason, "60s ago")
}

func TestIsDuplicate_SimilarityIgnoresOtherStrategyOrAction(t *testing.T) {
	d := New(DefaultConfig())
	now := time.Now()
	reasons := []string{"ema9 above ema21", "price above fast ema"}

	dup, _ := d.IsDuplicate("EURUSD", "Scalping", "BUY", reasons, now)
	require.False(t, dup)

	// Same words, different action: not compared.
	dup, _ = d.IsDuplicate("EURUSD", "Scalping", "SELL", reasons, now.Add(time.Second))
	assert.False(t, dup)

	// Same words, different strategy: not compared.
	dup, _ = d.IsDuplicate("EURUSD", "Intraday", "BUY", reasons, now.Add(2*time.Second))
	assert.False(t, dup)
}

func TestIsDuplicate_RetentionExpiry(t *testing.T) {
	d := New(DefaultConfig())
	now := time.Now()
	reasons := []string{"mean reversion setup"}

	dup, _ := d.IsDuplicate("EURUSD", "Arbitrage", "SELL", reasons, now)
	require.False(t, dup)

	// Past retention everything about the first signal is forgotten.
	dup, _ = d.IsDuplicate("EURUSD", "Arbitrage", "SELL", reasons, now.Add(301*time.Second))
	assert.False(t, dup)

	tracked, _ := d.Stats(now.Add(302 * time.Second))
	assert.Equal(t, 1, tracked)
}

func TestMarkExecuted(t *testing.T) {
	d := New(DefaultConfig())
	now := time.Now()
	fp := Fingerprint("EURUSD", "Scalping", "BUY", []string{"r1"})

	assert.False(t, d.WasExecuted("EURUSD", fp, now))
	d.MarkExecuted("EURUSD", fp, now)
	assert.True(t, d.WasExecuted("EURUSD", fp, now.Add(time.Minute)))

	// Executed markers also expire with retention.
	assert.False(t, d.WasExecuted("EURUSD", fp, now.Add(301*time.Second)))
}

func TestNormalize_YamlSecondsFields(t *testing.T) {
	c := Config{RetentionSec: 600, MinIntervalSec: 60, SimilarWindowSec: 240, MaxPerMinute: 10, SimilarScore: 0.9}.Normalize()
	assert.Equal(t, 600*time.Second, c.Retention)
	assert.Equal(t, 60*time.Second, c.MinInterval)
	assert.Equal(t, 240*time.Second, c.SimilarWindow)

	// Zero value falls back to the desk defaults.
	def := Config{}.Normalize()
	assert.Equal(t, 300*time.Second, def.Retention)
	assert.Equal(t, 30*time.Second, def.MinInterval)
	assert.Equal(t, 5, def.MaxPerMinute)
	assert.Equal(t, 120*time.Second, def.SimilarWindow)
	assert.Equal(t, 0.8, def.SimilarScore)
}

func TestJaccard(t *testing.T) {
	a := reasonWords([]string{"one two three four"})
	b := reasonWords([]string{"one two three five"})
	assert.InDelta(t, 0.6, jaccard(a, b), 1e-9)
	assert.Equal(t, 1.0, jaccard(a, a))
	assert.Equal(t, 0.0, jaccard(a, reasonWords(nil)))
}
