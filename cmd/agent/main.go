package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/trademaestro/trading-agent/internal/alerts"
	"github.com/trademaestro/trading-agent/internal/config"
	"github.com/trademaestro/trading-agent/internal/dedup"
	"github.com/trademaestro/trading-agent/internal/engine"
	"github.com/trademaestro/trading-agent/internal/gateway"
	"github.com/trademaestro/trading-agent/internal/journal"
	"github.com/trademaestro/trading-agent/internal/market"
	"github.com/trademaestro/trading-agent/internal/observ"
	"github.com/trademaestro/trading-agent/internal/risk"
	"github.com/trademaestro/trading-agent/internal/safety"
	"github.com/trademaestro/trading-agent/internal/strategy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to yaml config")
	balance := flag.Float64("balance", 10000, "starting balance for the sim gateway")
	flag.Parse()

	// Secrets (webhook URL and the like) come from the environment; .env is
	// optional and local-dev only.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	observ.InitLogFile(cfg.LogFile)
	if url := os.Getenv("SLACK_WEBHOOK_URL"); url != "" {
		cfg.Slack.WebhookURL = url
	}

	strat, err := strategy.New(cfg.Strategy)
	if err != nil {
		return err
	}

	var feed market.Feed
	switch cfg.Feed.Mode {
	case "ws":
		ws := market.NewWSFeed(cfg.Feed.WSURL, cfg.Feed.MaxBars)
		defer ws.Close()
		feed = ws
	default:
		feed = market.NewSimFeed(time.Now().UnixNano(), nil)
	}

	gw := gateway.NewSimGateway(*balance, cfg.Gateway.RatePerMinute)

	jrnl, err := journal.Open(cfg.Gateway.JournalPath)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	slack := alerts.NewSlackClient(cfg.Slack)
	defer slack.Close()

	spec := gateway.DefaultSpec
	if cfg.Gateway.Digits > 0 {
		spec.Digits = int32(cfg.Gateway.Digits)
	}
	if cfg.Gateway.LotStep > 0 {
		spec.LotStep = cfg.Gateway.LotStep
	}
	if cfg.Gateway.MinLot > 0 {
		spec.MinLot = cfg.Gateway.MinLot
	}
	if cfg.Gateway.MaxLot > 0 {
		spec.MaxLot = cfg.Gateway.MaxLot
	}

	dd := dedup.New(cfg.Dedup)
	outliers := dedup.NewOutlierFilter()
	sizer := risk.NewAdaptiveEngine(risk.AdaptiveConfig{MinLot: spec.MinLot})
	limiter := risk.NewRateLimiter(time.Duration(cfg.Gateway.CooldownSec) * time.Second)
	monitor := safety.NewMonitor(cfg.Safety, gw, slack)
	healer := safety.NewSelfHealer(cfg.Healer, gw, slack)

	candleQ := engine.NewQueue("candles", cfg.QueueSize, engine.SameSymbolOldest)
	executeQ := engine.NewQueue[engine.ExecutionRequest]("execute", cfg.QueueSize, nil)

	core := engine.NewCore(engine.CoreDeps{
		Fetcher:        engine.NewFetcher(cfg.Fetcher, feed, candleQ),
		Pool:           engine.NewProcessorPool(cfg.Processor, strat, dd, outliers, sizer, candleQ, executeQ),
		Executor:       engine.NewExecutor(gw, monitor, limiter, dd, jrnl, spec, cfg.Safety.MaxPositions, executeQ),
		Monitor:        monitor,
		Healer:         healer,
		Dedup:          dd,
		Sizer:          sizer,
		Symbols:        cfg.Fetcher.Symbols,
		CandleQueue:    candleQ,
		ExecuteQueue:   executeQ,
		HealthEverySec: cfg.Gateway.HealthEverySec,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observ.Log("agent_starting", map[string]any{
		"strategy": cfg.Strategy,
		"symbols":  cfg.Fetcher.Symbols,
		"feed":     cfg.Feed.Mode,
	})
	core.Start(ctx)
	<-ctx.Done()
	observ.Log("agent_stopping", nil)
	core.Stop()
	return nil
}
