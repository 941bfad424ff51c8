// Package config loads the application configuration from flags and an
// optional YAML file. Flags select the run mode and point at inputs; the YAML
// file overrides the tuned defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Run modes.
const (
	ModeBacktest = "backtest"
	ModeScan     = "scan"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Account struct {
	StartingBalance float64 `yaml:"starting_balance"`
}

type Risk struct {
	RiskPerTrade   float64 `yaml:"risk_per_trade"`
	MaxLeverage    float64 `yaml:"max_leverage"`
	MaxPositions   int     `yaml:"max_positions"`
	DailyLossLimit float64 `yaml:"daily_loss_limit"`
	MinBalance     float64 `yaml:"min_balance"`
	TakerFee       float64 `yaml:"taker_fee"`
}

type Consensus struct {
	LongThreshold      float64            `yaml:"long_threshold"`
	ShortThreshold     float64            `yaml:"short_threshold"`
	ConsensusLong      float64            `yaml:"consensus_long"`
	ConsensusShort     float64            `yaml:"consensus_short"`
	MinAgreement       float64            `yaml:"min_agreement"`
	MinConfluence      float64            `yaml:"min_confluence"`
	MinConfidence      float64            `yaml:"min_confidence"`
	MaxStopDistancePct float64            `yaml:"max_stop_distance_pct"`
	EntryTimeframe     string             `yaml:"entry_timeframe"`
	Weights            map[string]float64 `yaml:"weights"`
}

type Backtest struct {
	Lookback            int `yaml:"lookback"`
	MinBars             int `yaml:"min_bars"`
	SignalCooldown      int `yaml:"signal_cooldown"`
	LossStreakThreshold int `yaml:"loss_streak_threshold"`
	LossStreakCooldown  int `yaml:"loss_streak_cooldown"`
	SymbolCooldown      int `yaml:"symbol_cooldown"`
	// CandlesCSV maps symbol to the CSV file holding its candle history.
	CandlesCSV map[string]string `yaml:"candles_csv"`
	Timeframe  string            `yaml:"timeframe"`
	ReportCSV  string            `yaml:"report_csv"`
}

type Scan struct {
	Symbols     []string `yaml:"symbols"`
	Timeframes  []string `yaml:"timeframes"`
	CronSpec    string   `yaml:"cron_spec"`
	CandleLimit int      `yaml:"candle_limit"`
	ProxyURL    string   `yaml:"proxy_url"`
}

type Storage struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Notifier struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type Config struct {
	Mode      string    `yaml:"mode"`
	Account   Account   `yaml:"account"`
	Risk      Risk      `yaml:"risk"`
	Consensus Consensus `yaml:"consensus"`
	Backtest  Backtest  `yaml:"backtest"`
	Scan      Scan      `yaml:"scan"`
	Storage   Storage   `yaml:"storage"`
	Notifier  Notifier  `yaml:"notifier"`
}

// Default returns the tuned production configuration.
func Default() Config {
	return Config{
		Mode:    ModeBacktest,
		Account: Account{StartingBalance: 1000},
		Risk: Risk{
			RiskPerTrade:   0.02,
			MaxLeverage:    10,
			MaxPositions:   3,
			DailyLossLimit: 0.05,
			MinBalance:     10,
			TakerFee:       0.0004,
		},
		Consensus: Consensus{
			LongThreshold:      65,
			ShortThreshold:     35,
			ConsensusLong:      60,
			ConsensusShort:     40,
			MinAgreement:       0.4,
			MinConfluence:      68,
			MinConfidence:      0.68,
			MaxStopDistancePct: 4.0,
			EntryTimeframe:     "15m",
			Weights: map[string]float64{
				"1m":  0.05,
				"5m":  0.15,
				"15m": 0.25,
				"1h":  0.30,
				"4h":  0.25,
			},
		},
		Backtest: Backtest{
			Lookback:            55,
			MinBars:             60,
			SignalCooldown:      12,
			LossStreakThreshold: 3,
			LossStreakCooldown:  30,
			SymbolCooldown:      5,
			Timeframe:           "15m",
			ReportCSV:           "backtest_trades.csv",
		},
		Scan: Scan{
			Timeframes:  []string{"5m", "15m", "1h", "4h"},
			CronSpec:    "*/5 * * * *",
			CandleLimit: 100,
		},
		Storage: Storage{Driver: DriverMemory},
	}
}

// Load builds the configuration from command-line args. A -config YAML file
// overlays the defaults; the remaining flags override both.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("perp-paper-trader", flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to YAML config file")
	mode := fs.String("mode", "", "Mode: backtest or scan")
	csvs := fs.String("csv", "", "Comma-separated symbol=path candle CSV pairs for backtest")
	symbols := fs.String("symbols", "", "Comma-separated symbols to scan")
	cronSpec := fs.String("cron", "", "Cron spec for the live scan")
	dsn := fs.String("dsn", "", "Postgres DSN (switches storage driver to postgres)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return Config{}, fmt.Errorf("Load | read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("Load | parse config file: %w", err)
		}
	}

	if *mode != "" {
		cfg.Mode = *mode
	}
	if *csvs != "" {
		pairs, err := parseCSVPairs(*csvs)
		if err != nil {
			return Config{}, err
		}
		cfg.Backtest.CandlesCSV = pairs
	}
	if *symbols != "" {
		cfg.Scan.Symbols = strings.Split(*symbols, ",")
	}
	if *cronSpec != "" {
		cfg.Scan.CronSpec = *cronSpec
	}
	if *dsn != "" {
		cfg.Storage.Driver = DriverPostgres
		cfg.Storage.DSN = *dsn
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = os.Getenv("DB_CONN_STR")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parseCSVPairs parses "BTCUSDT=data/btc.csv,ETHUSDT=data/eth.csv".
func parseCSVPairs(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("parseCSVPairs | invalid pair %q, want symbol=path", pair)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}

// Validate rejects configurations the engines cannot run with.
func (c *Config) Validate() error {
	if c.Mode != ModeBacktest && c.Mode != ModeScan {
		return fmt.Errorf("Validate | unknown mode %q", c.Mode)
	}
	if c.Account.StartingBalance <= 0 {
		return fmt.Errorf("Validate | starting balance must be positive")
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade >= 1 {
		return fmt.Errorf("Validate | risk_per_trade must be in (0,1)")
	}
	if c.Risk.MaxLeverage < 1 {
		return fmt.Errorf("Validate | max_leverage must be at least 1")
	}
	if c.Risk.MaxPositions < 1 {
		return fmt.Errorf("Validate | max_positions must be at least 1")
	}
	if c.Consensus.ShortThreshold >= c.Consensus.LongThreshold {
		return fmt.Errorf("Validate | short_threshold must sit below long_threshold")
	}
	if c.Consensus.ConsensusShort >= c.Consensus.ConsensusLong {
		return fmt.Errorf("Validate | consensus_short must sit below consensus_long")
	}
	if c.Consensus.MinConfidence < 0 || c.Consensus.MinConfidence > 1 {
		return fmt.Errorf("Validate | min_confidence must be in [0,1]")
	}
	if c.Consensus.MinAgreement < 0 || c.Consensus.MinAgreement > 1 {
		return fmt.Errorf("Validate | min_agreement must be in [0,1]")
	}
	if c.Storage.Driver != DriverMemory && c.Storage.Driver != DriverPostgres {
		return fmt.Errorf("Validate | unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == DriverPostgres && c.Storage.DSN == "" {
		return fmt.Errorf("Validate | postgres driver requires a DSN")
	}
	if c.Mode == ModeBacktest && len(c.Backtest.CandlesCSV) == 0 {
		return fmt.Errorf("Validate | backtest mode requires candle CSV inputs")
	}
	if c.Mode == ModeScan {
		if len(c.Scan.Symbols) == 0 {
			return fmt.Errorf("Validate | scan mode requires symbols")
		}
		if c.Scan.CronSpec == "" {
			return fmt.Errorf("Validate | scan mode requires a cron spec")
		}
	}
	if c.Notifier.Enabled && (c.Notifier.Token == "" || c.Notifier.ChatID == "") {
		return fmt.Errorf("Validate | notifier requires token and chat_id")
	}
	return nil
}
