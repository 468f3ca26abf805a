// Package config provides application-wide configuration management.
// All configuration is loaded from files and environment variables.
// No configuration is hardcoded in strategy or broker logic.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parachutel/bullet-trade/internal/market"
)

// Mode selects the driver.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
)

// Config holds all runtime configuration.
// Loaded once at startup and passed as read-only to all components.
type Config struct {
	// Mode selects the backtest or live driver.
	Mode Mode `json:"mode"`

	// StrategyFile names the strategy to run (resolved by the CLI).
	StrategyFile string `json:"strategy_file"`

	// Broker selects the live broker adapter (e.g. "simulator", "qmt").
	Broker string `json:"broker"`

	// RuntimeDir holds persisted live state (g.gob). Overridden by
	// RUNTIME_DIR.
	RuntimeDir string `json:"runtime_dir"`

	// LogDir is where logs are written. Overridden by LOG_DIR.
	LogDir string `json:"log_dir"`

	// Backtest window and parameters.
	Backtest BacktestConfig `json:"backtest"`

	// Risk limits enforced on every order.
	Risk RiskConfig `json:"risk"`

	// Trade routing parameters for live mode.
	Trade TradeConfig `json:"trade"`

	// Broker-specific configuration (API keys, endpoints, etc.).
	BrokerConfig map[string]json.RawMessage `json:"broker_config"`

	// DataDir holds per-security CSV bar files for the data provider.
	DataDir string `json:"data_dir"`

	// Securities is the universe loaded from DataDir.
	Securities []string `json:"securities"`

	// DatabaseURL enables the Postgres record store when set.
	DatabaseURL string `json:"database_url"`

	// StreamURL is the live quote push endpoint.
	StreamURL string `json:"stream_url"`

	// MetricsAddr serves Prometheus metrics in live mode when set,
	// e.g. ":9301".
	MetricsAddr string `json:"metrics_addr"`
}

// BacktestConfig bounds a historical simulation.
type BacktestConfig struct {
	Start       string  `json:"start"` // YYYY-MM-DD
	End         string  `json:"end"`
	CapitalBase float64 `json:"capital_base"`
	// Frequency is "daily" or "minute".
	Frequency string `json:"frequency"`
	Benchmark string `json:"benchmark"`
}

// StartDate parses the window start in exchange time.
func (b BacktestConfig) StartDate() (time.Time, error) {
	return time.ParseInLocation("2006-01-02", b.Start, market.CST)
}

// EndDate parses the window end in exchange time.
func (b BacktestConfig) EndDate() (time.Time, error) {
	return time.ParseInLocation("2006-01-02", b.End, market.CST)
}

// RiskConfig defines the hard order guardrails.
// These limits are enforced by the risk module and cannot be overridden
// by strategies. Zero disables a check.
type RiskConfig struct {
	MaxOrderValue    float64 `json:"max_order_value"`
	MaxDayOrders     int     `json:"max_day_orders"`
	MaxDayValue      float64 `json:"max_day_value"`
	MaxHoldings      int     `json:"max_holdings"`
	MaxPositionRatio float64 `json:"max_position_ratio"`
}

// TradeConfig parameterizes live order routing.
type TradeConfig struct {
	// OrderMaxVolume splits larger orders into children of this size.
	OrderMaxVolume int64 `json:"order_max_volume"`

	// TradeMaxWaitSec bounds the post-submission status poll; 0 means
	// fire-and-forget.
	TradeMaxWaitSec int `json:"trade_max_wait_time"`
}

// Load reads configuration from a JSON file.
// Environment variables override file values where applicable.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", absPath, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse json: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

// applyEnv applies the supported environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("RUNTIME_DIR"); v != "" {
		c.RuntimeDir = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		c.LogDir = v
	}
	if v := os.Getenv("BULLET_BROKER"); v != "" {
		c.Broker = v
	}
	if v := os.Getenv("BULLET_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
}

// Validate checks that all required configuration is present and sane.
func (c *Config) Validate() error {
	if c.Mode != ModeBacktest && c.Mode != ModeLive {
		return fmt.Errorf("mode must be 'backtest' or 'live', got %q", c.Mode)
	}

	switch c.Mode {
	case ModeBacktest:
		if c.Backtest.CapitalBase <= 0 {
			return fmt.Errorf("backtest.capital_base must be positive, got %f", c.Backtest.CapitalBase)
		}
		if _, err := c.Backtest.StartDate(); err != nil {
			return fmt.Errorf("backtest.start: %w", err)
		}
		if _, err := c.Backtest.EndDate(); err != nil {
			return fmt.Errorf("backtest.end: %w", err)
		}
		switch market.Frequency(c.Backtest.Frequency) {
		case market.FrequencyDaily, market.FrequencyMinute:
		default:
			return fmt.Errorf("backtest.frequency must be 'daily' or 'minute', got %q", c.Backtest.Frequency)
		}

	case ModeLive:
		if err := c.validateLiveMode(); err != nil {
			return fmt.Errorf("live mode: %w", err)
		}
	}

	if c.Risk.MaxPositionRatio < 0 || c.Risk.MaxPositionRatio > 1 {
		return fmt.Errorf("risk.max_position_ratio must be in [0, 1], got %f", c.Risk.MaxPositionRatio)
	}
	return nil
}

// validateLiveMode enforces extra safety checks when live orders can be
// placed.
func (c *Config) validateLiveMode() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required for live trading")
	}
	if c.RuntimeDir == "" {
		return fmt.Errorf("runtime_dir is required for live trading")
	}
	// Non-simulator brokers need explicit credentials.
	if c.Broker != "simulator" {
		if c.BrokerConfig == nil {
			return fmt.Errorf("broker_config is required for live trading")
		}
		if _, ok := c.BrokerConfig[c.Broker]; !ok {
			return fmt.Errorf("broker_config[%q] is required for live trading", c.Broker)
		}
	}
	if c.Trade.TradeMaxWaitSec < 0 {
		return fmt.Errorf("trade.trade_max_wait_time cannot be negative")
	}
	return nil
}
