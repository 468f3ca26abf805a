// Package main is the entry point for the bullet-trade runtime.
//
// The runtime:
//  1. Loads configuration (file + environment overrides)
//  2. Resolves the strategy and data provider
//  3. Runs the backtest or live driver
//  4. Propagates engine failure through the exit code
//
// Modes:
//   - "backtest": deterministic historical simulation
//   - "live":     wall-clock trading against a broker adapter
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parachutel/bullet-trade/internal/analytics"
	"github.com/parachutel/bullet-trade/internal/broker"
	"github.com/parachutel/bullet-trade/internal/config"
	"github.com/parachutel/bullet-trade/internal/data"
	"github.com/parachutel/bullet-trade/internal/engine"
	"github.com/parachutel/bullet-trade/internal/market"
	"github.com/parachutel/bullet-trade/internal/risk"
	"github.com/parachutel/bullet-trade/internal/storage"
	"github.com/parachutel/bullet-trade/internal/strategy"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config/config.json", "path to configuration file")
	strategyFile := flag.String("strategy-file", "", "strategy name (overrides config)")
	brokerName := flag.String("broker", "", "broker adapter: simulator, qmt, ... (overrides config)")
	runtimeDir := flag.String("runtime-dir", "", "live runtime state directory (overrides config)")
	logDir := flag.String("log-dir", "", "log directory (overrides config)")
	confirmLive := flag.Bool("confirm-live", false, "required safety flag to run in live mode")
	flag.Parse()

	logger := log.New(os.Stdout, "[bullet] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Printf("failed to load config: %v", err)
		return 1
	}

	// CLI flags override file and environment.
	if *strategyFile != "" {
		cfg.StrategyFile = *strategyFile
	}
	if *brokerName != "" {
		cfg.Broker = *brokerName
	}
	if *runtimeDir != "" {
		cfg.RuntimeDir = *runtimeDir
	}
	if *logDir != "" {
		cfg.LogDir = *logDir
	}

	if cfg.LogDir != "" {
		if f, err := os.OpenFile(
			fmt.Sprintf("%s/bullet-%s.log", cfg.LogDir, time.Now().Format("20060102")),
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644,
		); err == nil {
			defer f.Close()
			logger.SetOutput(f)
		} else {
			logger.Printf("WARNING: log dir unusable, staying on stdout: %v", err)
		}
	}

	logger.Printf("config loaded: mode=%s strategy=%s broker=%s", cfg.Mode, cfg.StrategyFile, cfg.Broker)

	strat, err := strategy.New(cfg.StrategyFile)
	if err != nil {
		logger.Printf("failed to resolve strategy: %v", err)
		return 1
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		logger.Printf("failed to build data provider: %v", err)
		return 1
	}

	var store storage.Store
	if cfg.DatabaseURL != "" {
		ps, err := storage.NewPostgresStore(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Printf("WARNING: database not available: %v — record persistence disabled", err)
		} else {
			store = ps
			defer ps.Close()
			logger.Println("database connected — record persistence enabled")
		}
	}

	limits := risk.Limits{
		MaxOrderValue:    cfg.Risk.MaxOrderValue,
		MaxDayOrders:     cfg.Risk.MaxDayOrders,
		MaxDayValue:      cfg.Risk.MaxDayValue,
		MaxHoldings:      cfg.Risk.MaxHoldings,
		MaxPositionRatio: cfg.Risk.MaxPositionRatio,
	}

	switch cfg.Mode {
	case config.ModeBacktest:
		return runBacktest(cfg, limits, provider, strat, store, logger)
	case config.ModeLive:
		return runLive(cfg, limits, provider, strat, store, *confirmLive, logger)
	default:
		logger.Printf("unknown mode: %s", cfg.Mode)
		return 1
	}
}

// buildProvider loads the CSV-backed provider for the configured
// universe.
func buildProvider(cfg *config.Config) (data.Provider, error) {
	secs := make([]market.Security, 0, len(cfg.Securities))
	for _, s := range cfg.Securities {
		sec, err := market.ParseSecurity(s)
		if err != nil {
			return nil, err
		}
		secs = append(secs, sec)
	}
	return data.NewCSVProvider(cfg.DataDir, secs)
}

func runBacktest(
	cfg *config.Config,
	limits risk.Limits,
	provider data.Provider,
	strat engine.Strategy,
	store storage.Store,
	logger *log.Logger,
) int {
	start, _ := cfg.Backtest.StartDate()
	end, _ := cfg.Backtest.EndDate()

	params := engine.BacktestParams{
		Start:       start,
		End:         end,
		CapitalBase: cfg.Backtest.CapitalBase,
		Frequency:   market.Frequency(cfg.Backtest.Frequency),
		RiskLimits:  limits,
	}
	if cfg.Backtest.Benchmark != "" {
		if sec, err := market.ParseSecurity(cfg.Backtest.Benchmark); err == nil {
			params.Benchmark = sec
		}
	}

	bt := engine.NewBacktest(params, provider, strat, store, logger)
	result, err := bt.Run(context.Background())
	if err != nil {
		logger.Printf("backtest failed: %v", err)
		return 1
	}

	logger.Printf("backtest complete: run=%s days=%d trades=%d final=%.2f returns=%.4f",
		result.RunID, len(result.Records), len(result.Trades), result.FinalValue, result.Returns)

	report := analytics.Analyze(result.Records, result.Trades, cfg.Backtest.CapitalBase)
	fmt.Println(analytics.FormatReport(report))
	return 0
}

func runLive(
	cfg *config.Config,
	limits risk.Limits,
	provider data.Provider,
	strat engine.Strategy,
	store storage.Store,
	confirmLive bool,
	logger *log.Logger,
) int {
	// ── Live safety gate ──
	// Both --confirm-live AND BULLET_LIVE_CONFIRMED=true are required
	// for any non-simulator broker. This prevents accidental live
	// trading.
	if cfg.Broker != "simulator" {
		envConfirmed := os.Getenv("BULLET_LIVE_CONFIRMED") == "true"
		if !confirmLive || !envConfirmed {
			fmt.Fprintln(os.Stderr, "LIVE MODE BLOCKED: real orders require two confirmations:")
			fmt.Fprintln(os.Stderr, "  1. CLI flag:  --confirm-live")
			fmt.Fprintln(os.Stderr, "  2. Env var:   BULLET_LIVE_CONFIRMED=true")
			if !confirmLive {
				fmt.Fprintln(os.Stderr, "  MISSING: --confirm-live flag")
			}
			if !envConfirmed {
				fmt.Fprintln(os.Stderr, "  MISSING: BULLET_LIVE_CONFIRMED=true environment variable")
			}
			return 1
		}
		logger.Println("LIVE MODE ACTIVE — real orders will be placed on the exchange")
	} else {
		logger.Println("SIMULATOR MODE — no real money at risk")
	}

	adapter, err := broker.New(cfg.Broker, cfg.BrokerConfig[cfg.Broker])
	if err != nil {
		logger.Printf("failed to initialize broker %q: %v", cfg.Broker, err)
		return 1
	}

	routerCfg := broker.DefaultRouterConfig()
	routerCfg.OrderMaxVolume = cfg.Trade.OrderMaxVolume
	routerCfg.TradeMaxWait = time.Duration(cfg.Trade.TradeMaxWaitSec) * time.Second

	params := engine.LiveParams{
		Adapter:     adapter,
		Router:      routerCfg,
		RuntimeDir:  cfg.RuntimeDir,
		StreamURL:   cfg.StreamURL,
		MetricsAddr: cfg.MetricsAddr,
		RiskLimits:  limits,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Database order events trigger immediate reconciliation instead of
	// waiting for the next sync tick.
	if cfg.DatabaseURL != "" {
		syncNow := make(chan struct{}, 1)
		params.SyncNotify = syncNow
		listener := storage.NewEventListener(cfg.DatabaseURL, func(channel, payload string) {
			logger.Printf("order event on %s: %s", channel, payload)
			select {
			case syncNow <- struct{}{}:
			default:
			}
		}, logger)
		listener.Start(ctx)
		defer listener.Stop()
	}

	live := engine.NewLive(params, provider, strat, store, logger)

	// Config hot-reload: risk limits apply without a restart.
	watcher := config.NewWatcher(flag.Lookup("config").Value.String(), cfg, logger)
	watcher.OnChange(func(_, newCfg *config.Config) {
		live.UpdateRiskLimits(risk.Limits{
			MaxOrderValue:    newCfg.Risk.MaxOrderValue,
			MaxDayOrders:     newCfg.Risk.MaxDayOrders,
			MaxDayValue:      newCfg.Risk.MaxDayValue,
			MaxHoldings:      newCfg.Risk.MaxHoldings,
			MaxPositionRatio: newCfg.Risk.MaxPositionRatio,
		})
	})
	if err := watcher.Start(); err != nil {
		logger.Printf("WARNING: config watcher failed to start: %v", err)
	}
	defer watcher.Stop()

	if err := live.Run(ctx); err != nil {
		logger.Printf("live driver failed: %v", err)
		return 1
	}
	logger.Println("live driver stopped")
	return 0
}
