package risk

import (
	"sync"
	"time"

	"github.com/trademaestro/trading-agent/internal/observ"
)

// RateLimiter is a per-symbol cooldown gate in front of order submission.
// Deliberately a plain timestamp check rather than a token bucket: broker
// gateways punish burst submission far harder than steady-state rate.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

// NewRateLimiter gates each symbol to one order per interval. A non-positive
// interval defaults to 3s.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &RateLimiter{interval: interval, last: map[string]time.Time{}}
}

// Allow reports whether a submission for symbol may proceed now, and if so
// starts the symbol's next cooldown. The timestamp only advances on allowed
// calls, so two calls inside one interval can never both pass.
func (rl *RateLimiter) Allow(symbol string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if last, ok := rl.last[symbol]; ok && now.Sub(last) < rl.interval {
		observ.IncCounter("ratelimit_blocks_total", map[string]string{"symbol": symbol})
		return false
	}
	rl.last[symbol] = now
	return true
}

// Remaining returns how long until symbol may submit again; zero when clear.
func (rl *RateLimiter) Remaining(symbol string, now time.Time) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	last, ok := rl.last[symbol]
	if !ok {
		return 0
	}
	if rem := rl.interval - now.Sub(last); rem > 0 {
		return rem
	}
	return 0
}
