package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trademaestro/trading-agent/internal/alerts"
	"github.com/trademaestro/trading-agent/internal/dedup"
	"github.com/trademaestro/trading-agent/internal/engine"
	"github.com/trademaestro/trading-agent/internal/observ"
	"github.com/trademaestro/trading-agent/internal/safety"
)

// Feed selects the market-data source.
type Feed struct {
	Mode    string `yaml:"mode"` // sim | ws
	WSURL   string `yaml:"ws_url"`
	MaxBars int    `yaml:"max_bars"`
}

// Gateway configures the broker side.
type Gateway struct {
	Mode           string  `yaml:"mode"` // sim
	RatePerMinute  int     `yaml:"rate_per_minute"`
	Digits         int     `yaml:"digits"`
	LotStep        float64 `yaml:"lot_step"`
	MinLot         float64 `yaml:"min_lot"`
	MaxLot         float64 `yaml:"max_lot"`
	CooldownSec    int     `yaml:"cooldown_sec"`
	JournalPath    string  `yaml:"journal_path"`
	HealthEverySec int     `yaml:"health_every_sec"`
}

// Root is the full agent configuration.
type Root struct {
	Strategy  string                 `yaml:"strategy"` // hft | scalping | intraday | arbitrage
	QueueSize int                    `yaml:"queue_size"`
	Fetcher   engine.FetcherConfig   `yaml:"fetcher"`
	Processor engine.ProcessorConfig `yaml:"processor"`
	Feed      Feed                   `yaml:"feed"`
	Gateway   Gateway                `yaml:"gateway"`
	Dedup     dedup.Config           `yaml:"dedup"`
	Safety    safety.MonitorConfig   `yaml:"safety"`
	Healer    safety.HealerConfig    `yaml:"healer"`
	Slack     alerts.SlackConfig     `yaml:"slack"`
	LogFile   observ.LogFileConfig   `yaml:"log_file"`
}

// Load reads and validates the yaml config, filling defaults for anything
// unset. Component-level defaults (intervals, limits) live with their
// components; only cross-cutting fields default here.
func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if c.Strategy == "" {
		c.Strategy = "scalping"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 200
	}
	if len(c.Fetcher.Symbols) == 0 {
		c.Fetcher.Symbols = []string{"EURUSD"}
	}
	if c.Feed.Mode == "" {
		c.Feed.Mode = "sim"
	}
	if c.Feed.Mode == "ws" && c.Feed.WSURL == "" {
		return c, fmt.Errorf("config: feed.ws_url required when feed.mode is ws")
	}
	if c.Gateway.Mode == "" {
		c.Gateway.Mode = "sim"
	}
	if c.Gateway.RatePerMinute <= 0 {
		c.Gateway.RatePerMinute = 60
	}
	if c.Gateway.CooldownSec <= 0 {
		c.Gateway.CooldownSec = 3
	}
	if c.Gateway.JournalPath == "" {
		c.Gateway.JournalPath = "data/journal.db"
	}
	return c, nil
}
