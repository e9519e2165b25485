package dedup

import (
	"fmt"
	"math"
	"sync"

	"github.com/trademaestro/trading-agent/internal/observ"
)

const (
	outlierMinHistory = 20
	outlierMaxHistory = 100
	outlierThreshold  = 2.5 // standard deviations
)

// OutlierFilter rejects signals whose quality score sits anomalously below a
// strategy's trailing distribution. Above-mean outliers pass: an unusually
// strong signal is not treated as suspect, only an unusually weak one.
type OutlierFilter struct {
	mu      sync.Mutex
	history map[string][]float64 // strategy -> trailing quality scores
}

func NewOutlierFilter() *OutlierFilter {
	return &OutlierFilter{history: map[string][]float64{}}
}

// Record appends a quality score to a strategy's history.
func (f *OutlierFilter) Record(strategy string, quality float64) {
	f.mu.Lock()
	h := append(f.history[strategy], quality)
	if len(h) > outlierMaxHistory {
		h = h[len(h)-outlierMaxHistory:]
	}
	f.history[strategy] = h
	f.mu.Unlock()
}

// IsOutlier z-scores quality against the strategy's trailing history. With
// fewer than 20 samples nothing is filtered.
func (f *OutlierFilter) IsOutlier(strategy string, quality float64) (bool, string) {
	f.mu.Lock()
	h := f.history[strategy]
	mean, std := meanStd(h)
	n := len(h)
	f.mu.Unlock()

	if n < outlierMinHistory {
		return false, "insufficient history"
	}
	if std == 0 {
		return false, "no variation in quality history"
	}
	z := math.Abs(quality-mean) / std
	if z > outlierThreshold {
		if quality < mean {
			observ.IncCounter("outlier_rejects_total", map[string]string{"strategy": strategy})
			return true, fmt.Sprintf("low quality outlier (z-score: %.2f)", z)
		}
		return false, fmt.Sprintf("high quality outlier (z-score: %.2f) allowed", z)
	}
	return false, fmt.Sprintf("normal quality (z-score: %.2f)", z)
}

// SampleCount returns the history length for a strategy.
func (f *OutlierFilter) SampleCount(strategy string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.history[strategy])
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}
