package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithFlags(t *testing.T) {
	cfg, err := Load([]string{"-mode", "backtest", "-csv", "BTCUSDT=testdata/btc.csv"})
	require.NoError(t, err)
	assert.Equal(t, ModeBacktest, cfg.Mode)
	assert.Equal(t, map[string]string{"BTCUSDT": "testdata/btc.csv"}, cfg.Backtest.CandlesCSV)
	assert.InDelta(t, 1000, cfg.Account.StartingBalance, 1e-9)
	assert.InDelta(t, 0.02, cfg.Risk.RiskPerTrade, 1e-9)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.InDelta(t, 0.25, cfg.Consensus.Weights["15m"], 1e-9)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
mode: scan
account:
  starting_balance: 2500
risk:
  max_leverage: 5
scan:
  symbols: [BTCUSDT, ETHUSDT]
  cron_spec: "*/1 * * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load([]string{"-config", path})
	require.NoError(t, err)
	assert.Equal(t, ModeScan, cfg.Mode)
	assert.InDelta(t, 2500, cfg.Account.StartingBalance, 1e-9)
	assert.InDelta(t, 5, cfg.Risk.MaxLeverage, 1e-9)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Scan.Symbols)
	// Untouched sections keep their defaults.
	assert.InDelta(t, 0.05, cfg.Risk.DailyLossLimit, 1e-9)
	assert.Equal(t, 12, cfg.Backtest.SignalCooldown)
}

func TestLoadFlagOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: backtest\nbacktest:\n  candles_csv:\n    BTCUSDT: a.csv\n"), 0o644))

	cfg, err := Load([]string{"-config", path, "-mode", "scan", "-symbols", "SOLUSDT", "-cron", "*/3 * * * *"})
	require.NoError(t, err)
	assert.Equal(t, ModeScan, cfg.Mode)
	assert.Equal(t, []string{"SOLUSDT"}, cfg.Scan.Symbols)
	assert.Equal(t, "*/3 * * * *", cfg.Scan.CronSpec)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown mode", []string{"-mode", "paper"}},
		{"backtest without csv", []string{"-mode", "backtest"}},
		{"scan without symbols", []string{"-mode", "scan"}},
		{"malformed csv pair", []string{"-mode", "backtest", "-csv", "BTCUSDT"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestValidateBounds(t *testing.T) {
	base := func() Config {
		cfg := Default()
		cfg.Backtest.CandlesCSV = map[string]string{"BTCUSDT": "x.csv"}
		return cfg
	}

	t.Run("valid default", func(t *testing.T) {
		cfg := base()
		assert.NoError(t, cfg.Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative balance", func(c *Config) { c.Account.StartingBalance = -1 }},
		{"risk out of range", func(c *Config) { c.Risk.RiskPerTrade = 1.5 }},
		{"leverage below one", func(c *Config) { c.Risk.MaxLeverage = 0.5 }},
		{"thresholds out of order", func(c *Config) { c.Consensus.ShortThreshold = 70 }},
		{"confidence out of range", func(c *Config) { c.Consensus.MinConfidence = 1.2 }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }},
		{"notifier missing token", func(c *Config) { c.Notifier.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
