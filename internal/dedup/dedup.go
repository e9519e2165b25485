package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trademaestro/trading-agent/internal/observ"
)

// Config bounds the deduplication windows.
type Config struct {
	Retention     time.Duration `yaml:"-"` // how long fingerprints are remembered
	MinInterval   time.Duration `yaml:"-"` // identical fingerprint suppression window
	MaxPerMinute  int           `yaml:"max_per_minute"`
	SimilarWindow time.Duration `yaml:"-"` // reason-set similarity lookback
	SimilarScore  float64       `yaml:"similar_score"`

	RetentionSec     int `yaml:"retention_sec"`
	MinIntervalSec   int `yaml:"min_interval_sec"`
	SimilarWindowSec int `yaml:"similar_window_sec"`
}

// DefaultConfig mirrors the windows the execution desk runs with: 300s
// retention, 30s identical-signal interval, 5 signals/minute/symbol, 0.8
// Jaccard over 120s.
func DefaultConfig() Config {
	return Config{
		Retention:     300 * time.Second,
		MinInterval:   30 * time.Second,
		MaxPerMinute:  5,
		SimilarWindow: 120 * time.Second,
		SimilarScore:  0.8,
	}
}

// Normalize fills duration fields from their *_sec yaml counterparts and
// applies defaults for anything unset.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.RetentionSec > 0 {
		c.Retention = time.Duration(c.RetentionSec) * time.Second
	}
	if c.MinIntervalSec > 0 {
		c.MinInterval = time.Duration(c.MinIntervalSec) * time.Second
	}
	if c.SimilarWindowSec > 0 {
		c.SimilarWindow = time.Duration(c.SimilarWindowSec) * time.Second
	}
	if c.Retention <= 0 {
		c.Retention = def.Retention
	}
	if c.MinInterval <= 0 {
		c.MinInterval = def.MinInterval
	}
	if c.MaxPerMinute <= 0 {
		c.MaxPerMinute = def.MaxPerMinute
	}
	if c.SimilarWindow <= 0 {
		c.SimilarWindow = def.SimilarWindow
	}
	if c.SimilarScore <= 0 {
		c.SimilarScore = def.SimilarScore
	}
	return c
}

type record struct {
	fingerprint string
	at          time.Time
	strategy    string
	action      string
	words       map[string]struct{}
}

// shard holds dedup state for a subset of symbols so concurrent processing
// workers do not serialize on one lock.
type shard struct {
	mu       sync.Mutex
	seen     map[string]time.Time // fingerprint -> last accepted
	executed map[string]time.Time // fingerprint -> executed at
	bySymbol map[string][]record
}

const shardCount = 16

// Deduplicator suppresses repeated signals. State is sharded by symbol and
// expires after the retention window.
type Deduplicator struct {
	cfg    Config
	shards [shardCount]*shard
}

func New(cfg Config) *Deduplicator {
	d := &Deduplicator{cfg: cfg.Normalize()}
	for i := range d.shards {
		d.shards[i] = &shard{
			seen:     map[string]time.Time{},
			executed: map[string]time.Time{},
			bySymbol: map[string][]record{},
		}
	}
	return d
}

func (d *Deduplicator) shardFor(symbol string) *shard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return d.shards[h.Sum32()%shardCount]
}

// Fingerprint hashes the semantic content of a signal: symbol, strategy,
// action and the sorted, lower-cased reason set. Insertion order and casing
// of reasons do not change the result.
func Fingerprint(symbol, strategy, action string, reasons []string) string {
	canon := make([]string, len(reasons))
	for i, r := range reasons {
		canon[i] = strings.ToLower(strings.TrimSpace(r))
	}
	sort.Strings(canon)
	content := strings.ToUpper(symbol) + "|" + strategy + "|" + action + "|" + strings.Join(canon, "|")
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:12]
}

// IsDuplicate applies the duplicate rules in priority order: identical
// fingerprint within the min interval, per-symbol rate over the trailing
// minute, then reason-set similarity for the same strategy/action. A unique
// signal is recorded before returning.
func (d *Deduplicator) IsDuplicate(symbol, strategy, action string, reasons []string, now time.Time) (bool, string) {
	fp := Fingerprint(symbol, strategy, action, reasons)
	s := d.shardFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expire(symbol, now, d.cfg.Retention)

	if last, ok := s.seen[fp]; ok && now.Sub(last) < d.cfg.MinInterval {
		observ.IncCounter("dedup_rejects_total", map[string]string{"rule": "identical"})
		return true, fmt.Sprintf("Duplicate signal within %ds", int(d.cfg.MinInterval.Seconds()))
	}

	recent := 0
	for _, r := range s.bySymbol[symbol] {
		if now.Sub(r.at) <= time.Minute {
			recent++
		}
	}
	if recent >= d.cfg.MaxPerMinute {
		observ.IncCounter("dedup_rejects_total", map[string]string{"rule": "rate"})
		return true, fmt.Sprintf("Rate limit exceeded: %d signals in last minute", recent)
	}

	words := reasonWords(reasons)
	for _, r := range s.bySymbol[symbol] {
		if now.Sub(r.at) > d.cfg.SimilarWindow {
			continue
		}
		if r.strategy != strategy || r.action != action {
			continue
		}
		if sim := jaccard(words, r.words); sim >= d.cfg.SimilarScore {
			observ.IncCounter("dedup_rejects_total", map[string]string{"rule": "similarity"})
			return true, fmt.Sprintf("Similar signal detected (similarity: %.2f, %.0fs ago)", sim, now.Sub(r.at).Seconds())
		}
	}

	s.seen[fp] = now
	s.bySymbol[symbol] = append(s.bySymbol[symbol], record{
		fingerprint: fp,
		at:          now,
		strategy:    strategy,
		action:      action,
		words:       words,
	})
	return false, "Signal is unique"
}

// MarkExecuted records that the order for this fingerprint went to the
// broker, so a re-emitted signal cannot execute again within retention.
func (d *Deduplicator) MarkExecuted(symbol, fingerprint string, now time.Time) {
	s := d.shardFor(symbol)
	s.mu.Lock()
	s.executed[fingerprint] = now
	s.mu.Unlock()
}

// WasExecuted reports whether a fingerprint already reached the broker
// within the retention window.
func (d *Deduplicator) WasExecuted(symbol, fingerprint string, now time.Time) bool {
	s := d.shardFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.executed[fingerprint]
	return ok && now.Sub(at) <= d.cfg.Retention
}

// Stats returns tracked/executed counts for the health line.
func (d *Deduplicator) Stats(now time.Time) (tracked, executed int) {
	for _, s := range d.shards {
		s.mu.Lock()
		for _, recs := range s.bySymbol {
			for _, r := range recs {
				if now.Sub(r.at) <= d.cfg.Retention {
					tracked++
				}
			}
		}
		executed += len(s.executed)
		s.mu.Unlock()
	}
	return tracked, executed
}

// expire drops records older than retention. Caller holds the shard lock.
func (s *shard) expire(symbol string, now time.Time, retention time.Duration) {
	for fp, at := range s.seen {
		if now.Sub(at) > retention {
			delete(s.seen, fp)
		}
	}
	for fp, at := range s.executed {
		if now.Sub(at) > retention {
			delete(s.executed, fp)
		}
	}
	recs := s.bySymbol[symbol]
	kept := recs[:0]
	for _, r := range recs {
		if now.Sub(r.at) <= retention {
			kept = append(kept, r)
		}
	}
	s.bySymbol[symbol] = kept
}

func reasonWords(reasons []string) map[string]struct{} {
	words := map[string]struct{}{}
	for _, r := range reasons {
		for _, w := range strings.Fields(strings.ToLower(r)) {
			words[w] = struct{}{}
		}
	}
	return words
}

// jaccard is |A∩B| / |A∪B| over reason word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
