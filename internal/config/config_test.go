package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validBacktest = `{
	"mode": "backtest",
	"backtest": {
		"start": "2024-01-02",
		"end": "2024-06-28",
		"capital_base": 100000,
		"frequency": "daily"
	}
}`

func TestLoad_ValidBacktest(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, validBacktest))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Mode != ModeBacktest {
		t.Errorf("expected backtest mode, got %s", cfg.Mode)
	}
	if cfg.Backtest.CapitalBase != 100000 {
		t.Errorf("expected capital 100000, got %v", cfg.Backtest.CapitalBase)
	}
	if _, err := cfg.Backtest.StartDate(); err != nil {
		t.Errorf("start date should parse: %v", err)
	}
}

func TestLoad_RejectsBadFrequency(t *testing.T) {
	bad := `{
		"mode": "backtest",
		"backtest": {"start": "2024-01-02", "end": "2024-06-28", "capital_base": 100000, "frequency": "hourly"}
	}`
	if _, err := Load(writeTestConfig(t, bad)); err == nil {
		t.Error("expected bad frequency to fail validation")
	}
}

func TestLoad_RejectsZeroCapital(t *testing.T) {
	bad := `{
		"mode": "backtest",
		"backtest": {"start": "2024-01-02", "end": "2024-06-28", "capital_base": 0, "frequency": "daily"}
	}`
	if _, err := Load(writeTestConfig(t, bad)); err == nil {
		t.Error("expected zero capital to fail validation")
	}
}

func TestLoad_LiveRequiresRuntimeDir(t *testing.T) {
	bad := `{"mode": "live", "broker": "simulator"}`
	if _, err := Load(writeTestConfig(t, bad)); err == nil {
		t.Error("expected live mode without runtime_dir to fail")
	}
}

func TestLoad_LiveNonSimulatorRequiresBrokerConfig(t *testing.T) {
	bad := `{"mode": "live", "broker": "qmt", "runtime_dir": "/tmp/rt"}`
	if _, err := Load(writeTestConfig(t, bad)); err == nil {
		t.Error("expected live qmt without broker_config to fail")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RUNTIME_DIR", "/var/bullet")
	t.Setenv("BULLET_BROKER", "simulator")

	live := `{"mode": "live", "broker": "qmt", "runtime_dir": "/tmp/rt"}`
	cfg, err := Load(writeTestConfig(t, live))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.RuntimeDir != "/var/bullet" {
		t.Errorf("expected RUNTIME_DIR override, got %s", cfg.RuntimeDir)
	}
	if cfg.Broker != "simulator" {
		t.Errorf("expected BULLET_BROKER override, got %s", cfg.Broker)
	}
}
