package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trademaestro/trading-agent/internal/alerts"
	"github.com/trademaestro/trading-agent/internal/gateway"
	"github.com/trademaestro/trading-agent/internal/observ"
)

// Status is the trading safety state. EMERGENCY_STOPPED is sticky: only an
// explicit forced resume leaves it. PAUSED clears itself once conditions do.
type Status string

const (
	StatusActive           Status = "ACTIVE"
	StatusPaused           Status = "PAUSED"
	StatusEmergencyStopped Status = "EMERGENCY_STOPPED"
)

// MonitorConfig holds the account safety limits.
type MonitorConfig struct {
	MaxDrawdownPct    float64 `yaml:"max_drawdown_pct"`
	MaxDailyLoss      float64 `yaml:"max_daily_loss"`
	MaxPositions      int     `yaml:"max_positions"`
	SampleIntervalSec int     `yaml:"sample_interval_sec"`
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.MaxDrawdownPct <= 0 {
		c.MaxDrawdownPct = 10.0
	}
	if c.MaxDailyLoss <= 0 {
		c.MaxDailyLoss = 500.0
	}
	if c.MaxPositions <= 0 {
		c.MaxPositions = 10
	}
	if c.SampleIntervalSec <= 0 {
		c.SampleIntervalSec = 30
	}
	return c
}

// Monitor samples the account on a fixed cadence, evaluates the safety
// invariants in order (drawdown, daily loss, position count) and drives the
// ACTIVE/PAUSED/EMERGENCY_STOPPED machine. It is the single writer of the
// shared account snapshot; all other components read point-in-time copies.
type Monitor struct {
	cfg      MonitorConfig
	gw       gateway.Gateway
	notifier alerts.Notifier
	sc       gateway.SafeCall

	mu      sync.RWMutex
	status  Status
	reason  string
	since   time.Time
	account gateway.AccountSnapshot
}

func NewMonitor(cfg MonitorConfig, gw gateway.Gateway, notifier alerts.Notifier) *Monitor {
	if notifier == nil {
		notifier = alerts.Nop{}
	}
	return &Monitor{
		cfg:      cfg.withDefaults(),
		gw:       gw,
		notifier: notifier,
		sc:       gateway.SafeCall{Timeout: 5 * time.Second, Retries: 2, Backoff: 500 * time.Millisecond},
		status:   StatusActive,
		since:    time.Now().UTC(),
	}
}

// Run samples until ctx is cancelled. A failed or panicking sample is logged
// and the loop continues on the next tick; the monitor's own faults must
// never stop the process.
func (m *Monitor) Run(ctx context.Context) {
	observ.Log("safety_monitor_started", map[string]any{
		"interval_sec":     m.cfg.SampleIntervalSec,
		"max_drawdown_pct": m.cfg.MaxDrawdownPct,
		"max_daily_loss":   m.cfg.MaxDailyLoss,
		"max_positions":    m.cfg.MaxPositions,
	})
	ticker := time.NewTicker(time.Duration(m.cfg.SampleIntervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			observ.Log("safety_monitor_stopped", nil)
			return
		case <-ticker.C:
			m.safeSample(ctx)
		}
	}
}

func (m *Monitor) safeSample(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			observ.Warn("safety_monitor_panic", map[string]any{"panic": fmt.Sprint(r)})
		}
	}()
	if err := m.Sample(ctx); err != nil {
		observ.Warn("safety_sample_failed", map[string]any{"error": err.Error()})
	}
}

// Sample fetches a fresh account snapshot and re-evaluates all safety
// invariants. Exported so tests can tick the machine directly.
func (m *Monitor) Sample(ctx context.Context) error {
	snap, err := gateway.Do(ctx, m.sc, "get_account_snapshot", m.gw.GetAccountSnapshot)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.account = snap
	observ.SetGauge("account_balance", snap.Balance, nil)
	observ.SetGauge("account_equity", snap.Equity, nil)
	observ.SetGauge("account_open_positions", float64(snap.OpenPositions), nil)
	observ.SetGauge("account_drawdown_pct", snap.FloatingDrawdownPct(), nil)

	if m.status == StatusEmergencyStopped {
		m.mu.Unlock()
		return nil
	}

	// First violation wins; loss-related violations escalate to emergency.
	dd := snap.FloatingDrawdownPct()
	switch {
	case dd > m.cfg.MaxDrawdownPct:
		reason := fmt.Sprintf("drawdown %.1f%% exceeds limit %.1f%%", dd, m.cfg.MaxDrawdownPct)
		m.transitionLocked(StatusEmergencyStopped, reason)
		m.mu.Unlock()
		m.closeAll(ctx, reason)
		return nil
	case snap.RealizedDailyPnL < -m.cfg.MaxDailyLoss:
		reason := fmt.Sprintf("daily loss %.2f exceeds limit %.2f", -snap.RealizedDailyPnL, m.cfg.MaxDailyLoss)
		m.transitionLocked(StatusEmergencyStopped, reason)
		m.mu.Unlock()
		m.closeAll(ctx, reason)
		return nil
	case snap.OpenPositions > m.cfg.MaxPositions:
		m.transitionLocked(StatusPaused, fmt.Sprintf("open positions %d exceed limit %d", snap.OpenPositions, m.cfg.MaxPositions))
	default:
		if m.status == StatusPaused {
			m.transitionLocked(StatusActive, "conditions cleared")
		}
	}
	m.mu.Unlock()
	return nil
}

// transitionLocked records a state change. Caller holds m.mu.
func (m *Monitor) transitionLocked(to Status, reason string) {
	if m.status == to {
		return
	}
	from := m.status
	m.status = to
	m.reason = reason
	m.since = time.Now().UTC()
	observ.IncCounter("safety_transitions_total", map[string]string{"from": string(from), "to": string(to)})
	observ.Log("safety_transition", map[string]any{"from": string(from), "to": string(to), "reason": reason})
	switch to {
	case StatusEmergencyStopped:
		m.notifier.Notify("emergency_stop", map[string]any{"reason": reason})
	case StatusPaused:
		m.notifier.Notify("trading_paused", map[string]any{"reason": reason})
	case StatusActive:
		m.notifier.Notify("trading_resumed", map[string]any{"reason": reason})
	}
}

func (m *Monitor) closeAll(ctx context.Context, reason string) {
	_, err := gateway.Do(ctx, m.sc, "close_all_positions", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.gw.CloseAllPositions(ctx)
	})
	if err != nil {
		observ.Warn("close_all_failed", map[string]any{"reason": reason, "error": err.Error()})
		return
	}
	observ.Log("close_all_issued", map[string]any{"reason": reason})
}

// TriggerEmergencyStop forces the emergency state from outside the sampling
// loop (operator action) and issues close-all.
func (m *Monitor) TriggerEmergencyStop(ctx context.Context, reason string) {
	m.mu.Lock()
	m.transitionLocked(StatusEmergencyStopped, reason)
	m.mu.Unlock()
	m.closeAll(ctx, reason)
}

// ForceResume is the only way out of EMERGENCY_STOPPED. It also clears a
// PAUSED state early. The operator identity lands in the audit log.
func (m *Monitor) ForceResume(operator, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusActive {
		return fmt.Errorf("already active")
	}
	observ.Log("forced_resume", map[string]any{"operator": operator, "reason": reason, "was": string(m.status)})
	m.transitionLocked(StatusActive, fmt.Sprintf("forced resume by %s: %s", operator, reason))
	return nil
}

// Status returns the current state and the reason it was entered.
func (m *Monitor) Status() (Status, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.reason
}

// Account returns a point-in-time copy of the last sampled snapshot.
func (m *Monitor) Account() gateway.AccountSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.account
}
