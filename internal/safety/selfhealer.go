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

// ConnState is the gateway connection state, owned exclusively by the
// self-healer. Other components only read it.
type ConnState string

const (
	ConnDisconnected ConnState = "DISCONNECTED"
	ConnConnecting   ConnState = "CONNECTING"
	ConnConnected    ConnState = "CONNECTED"
	ConnDegraded     ConnState = "DEGRADED"
)

// HealerConfig controls probe and reconnect cadence.
type HealerConfig struct {
	ProbeIntervalSec     int `yaml:"probe_interval_sec"`
	ReconnectDelaySec    int `yaml:"reconnect_delay_sec"`
	MaxAttempts          int `yaml:"max_attempts"`
	EscalatedIntervalSec int `yaml:"escalated_interval_sec"`
}

func (c HealerConfig) withDefaults() HealerConfig {
	if c.ProbeIntervalSec <= 0 {
		c.ProbeIntervalSec = 60
	}
	if c.ReconnectDelaySec <= 0 {
		c.ReconnectDelaySec = 30
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.EscalatedIntervalSec <= 0 {
		c.EscalatedIntervalSec = 300
	}
	return c
}

// SelfHealer probes connection health and drives reconnection with a fixed
// delay. After MaxAttempts consecutive failures it raises an operator alert
// and keeps retrying at a reduced cadence.
type SelfHealer struct {
	cfg      HealerConfig
	gw       gateway.Gateway
	notifier alerts.Notifier
	sc       gateway.SafeCall

	mu        sync.RWMutex
	state     ConnState
	failures  int
	escalated bool
	downSince time.Time
}

func NewSelfHealer(cfg HealerConfig, gw gateway.Gateway, notifier alerts.Notifier) *SelfHealer {
	if notifier == nil {
		notifier = alerts.Nop{}
	}
	return &SelfHealer{
		cfg:      cfg.withDefaults(),
		gw:       gw,
		notifier: notifier,
		sc:       gateway.SafeCall{Timeout: 10 * time.Second, Retries: 1},
		state:    ConnDisconnected,
	}
}

// Run probes until ctx is cancelled. Like the safety monitor, the loop logs
// and continues through its own failures.
func (h *SelfHealer) Run(ctx context.Context) {
	observ.Log("self_healer_started", map[string]any{
		"probe_interval_sec":  h.cfg.ProbeIntervalSec,
		"reconnect_delay_sec": h.cfg.ReconnectDelaySec,
		"max_attempts":        h.cfg.MaxAttempts,
	})
	// Probe immediately so the state leaves DISCONNECTED on startup.
	h.safeProbe(ctx)
	for {
		interval := time.Duration(h.cfg.ProbeIntervalSec) * time.Second
		if h.isEscalated() {
			interval = time.Duration(h.cfg.EscalatedIntervalSec) * time.Second
		}
		select {
		case <-ctx.Done():
			observ.Log("self_healer_stopped", nil)
			return
		case <-time.After(interval):
			h.safeProbe(ctx)
		}
	}
}

func (h *SelfHealer) safeProbe(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			observ.Warn("self_healer_panic", map[string]any{"panic": fmt.Sprint(r)})
		}
	}()
	h.Probe(ctx)
}

// Probe performs one health check / reconnect cycle. Exported for tests.
func (h *SelfHealer) Probe(ctx context.Context) {
	ok, _ := gateway.Do(ctx, h.sc, "check_connection", func(ctx context.Context) (bool, error) {
		return h.gw.CheckConnection(ctx), nil
	})
	if ok {
		h.markHealthy()
		return
	}

	h.mu.Lock()
	h.failures++
	failures := h.failures
	if h.state == ConnConnected {
		h.downSince = time.Now().UTC()
	}
	h.setStateLocked(ConnDegraded)
	h.mu.Unlock()

	observ.Warn("connection_unhealthy", map[string]any{"failures": failures})

	// Fixed delay before the reconnect attempt; cancellable.
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Duration(h.cfg.ReconnectDelaySec) * time.Second):
	}

	h.setState(ConnConnecting)
	_, err := gateway.Do(ctx, h.sc, "reconnect", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.gw.Reconnect(ctx)
	})
	if err == nil {
		h.markHealthy()
		return
	}
	observ.Warn("reconnect_failed", map[string]any{"failures": failures, "error": err.Error()})

	h.mu.Lock()
	h.setStateLocked(ConnDisconnected)
	shouldEscalate := h.failures > h.cfg.MaxAttempts && !h.escalated
	if shouldEscalate {
		h.escalated = true
	}
	h.mu.Unlock()

	if shouldEscalate {
		observ.Warn("connection_escalation", map[string]any{"failures": failures})
		h.notifier.Notify("connection_escalation", map[string]any{
			"failures":     failures,
			"max_attempts": h.cfg.MaxAttempts,
		})
	}
}

func (h *SelfHealer) markHealthy() {
	h.mu.Lock()
	wasDown := h.state != ConnConnected
	downSince := h.downSince
	h.setStateLocked(ConnConnected)
	h.failures = 0
	h.escalated = false
	h.downSince = time.Time{}
	h.mu.Unlock()

	if wasDown && !downSince.IsZero() {
		latency := time.Since(downSince)
		observ.RecordDuration("recovery_latency", latency, nil)
		observ.Log("connection_recovered", map[string]any{"downtime_ms": latency.Milliseconds()})
		h.notifier.Notify("connection_recovered", map[string]any{"downtime_ms": latency.Milliseconds()})
	}
}

func (h *SelfHealer) setState(s ConnState) {
	h.mu.Lock()
	h.setStateLocked(s)
	h.mu.Unlock()
}

// setStateLocked records a connection state change. Caller holds h.mu.
func (h *SelfHealer) setStateLocked(s ConnState) {
	if h.state == s {
		return
	}
	observ.IncCounter("connection_transitions_total", map[string]string{"from": string(h.state), "to": string(s)})
	observ.Log("connection_transition", map[string]any{"from": string(h.state), "to": string(s)})
	h.state = s
}

// State returns the current connection state.
func (h *SelfHealer) State() ConnState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// isEscalated reports whether the healer is in the escalated state.
func (h *SelfHealer) isEscalated() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.escalated
}

// Failures returns the consecutive failure count.
func (h *SelfHealer) Failures() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.failures
}
