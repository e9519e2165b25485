package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
strategy: hft
queue_size: 100
fetcher:
  symbols: [EURUSD, GBPUSD]
  timeframe: M5
  bar_count: 200
  fetch_interval_ms: 250
processor:
  workers: 4
  base_lot: 0.2
  base_tp: 0.0100
  base_sl: 0.0050
feed:
  mode: ws
  ws_url: ws://localhost:8765/candles
gateway:
  rate_per_minute: 120
  cooldown_sec: 5
  journal_path: /tmp/j.db
dedup:
  retention_sec: 600
  max_per_minute: 10
safety:
  max_drawdown_pct: 8
  max_daily_loss: 1000
healer:
  probe_interval_sec: 30
slack:
  channel: "#alerts"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hft", cfg.Strategy)
	assert.Equal(t, 100, cfg.QueueSize)
	assert.Equal(t, []string{"EURUSD", "GBPUSD"}, cfg.Fetcher.Symbols)
	assert.Equal(t, "M5", cfg.Fetcher.Timeframe)
	assert.Equal(t, 250, cfg.Fetcher.FetchIntervalMs)
	assert.Equal(t, 4, cfg.Processor.Workers)
	assert.Equal(t, "ws", cfg.Feed.Mode)
	assert.Equal(t, 120, cfg.Gateway.RatePerMinute)
	assert.Equal(t, 5, cfg.Gateway.CooldownSec)
	assert.Equal(t, 8.0, cfg.Safety.MaxDrawdownPct)
	assert.Equal(t, 30, cfg.Healer.ProbeIntervalSec)
	assert.Equal(t, "#alerts", cfg.Slack.Channel)

	d := cfg.Dedup.Normalize()
	assert.Equal(t, 600*time.Second, d.Retention)
	assert.Equal(t, 10, d.MaxPerMinute)
}

func TestLoad_MinimalConfigGetsDefaults(t *testing.T) {
	path := writeConfig(t, "strategy: scalping\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "scalping", cfg.Strategy)
	assert.Equal(t, 200, cfg.QueueSize)
	assert.Equal(t, []string{"EURUSD"}, cfg.Fetcher.Symbols)
	assert.Equal(t, "sim", cfg.Feed.Mode)
	assert.Equal(t, "sim", cfg.Gateway.Mode)
	assert.Equal(t, 60, cfg.Gateway.RatePerMinute)
	assert.Equal(t, 3, cfg.Gateway.CooldownSec)
	assert.Equal(t, "data/journal.db", cfg.Gateway.JournalPath)
}

func TestLoad_EmptyStrategyDefaults(t *testing.T) {
	path := writeConfig(t, "queue_size: 50\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "scalping", cfg.Strategy)
}

func TestLoad_WSModeRequiresURL(t *testing.T) {
	path := writeConfig(t, "feed:\n  mode: ws\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws_url")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYaml(t *testing.T) {
	path := writeConfig(t, "strategy: [unterminated\n")
	_, err := Load(path)
	assert.Error(t, err)
}
