package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/perp-paper-trader/internal/backtest"
	"github.com/amirphl/perp-paper-trader/internal/candle"
	"github.com/amirphl/perp-paper-trader/internal/config"
	"github.com/amirphl/perp-paper-trader/internal/consensus"
	"github.com/amirphl/perp-paper-trader/internal/db"
	"github.com/amirphl/perp-paper-trader/internal/ledger"
	"github.com/amirphl/perp-paper-trader/internal/notifier"
	"github.com/amirphl/perp-paper-trader/internal/risk"
	"github.com/amirphl/perp-paper-trader/internal/scanner"
	"github.com/amirphl/perp-paper-trader/internal/utils"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	audit := utils.GetLogger()
	audit.Printf("starting in %s mode", cfg.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down", sig)
		cancel()
	}()

	switch cfg.Mode {
	case config.ModeBacktest:
		if err := runBacktest(ctx, cfg); err != nil {
			log.Fatalf("Backtest failed: %v", err)
		}
	case config.ModeScan:
		if err := runScan(ctx, cfg); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
	default:
		log.Fatalf("Unsupported mode: %s", cfg.Mode)
	}
	audit.Printf("%s run finished", cfg.Mode)
}

func runBacktest(ctx context.Context, cfg config.Config) error {
	candlesBySymbol := make(map[string][]candle.Candle, len(cfg.Backtest.CandlesCSV))
	for symbol, path := range cfg.Backtest.CandlesCSV {
		series, err := candle.LoadCSV(path, symbol, cfg.Backtest.Timeframe)
		if err != nil {
			return fmt.Errorf("load %s: %w", symbol, err)
		}
		log.Printf("Loaded %d %s candles for %s from %s", len(series), cfg.Backtest.Timeframe, symbol, path)
		candlesBySymbol[symbol] = series
	}

	engine := backtest.New(backtestConfig(cfg), consensusConfig(cfg), riskParams(cfg))

	var report *backtest.Report
	var err error
	if len(candlesBySymbol) == 1 {
		for symbol, series := range candlesBySymbol {
			report, err = engine.Run(ctx, series, symbol)
		}
	} else {
		report, err = engine.RunMulti(ctx, candlesBySymbol)
	}
	if err != nil {
		return err
	}

	report.LogSummary()
	if cfg.Backtest.ReportCSV != "" {
		if err := report.SaveCSV(cfg.Backtest.ReportCSV); err != nil {
			return err
		}
		log.Printf("Saved trade report to %s", cfg.Backtest.ReportCSV)
	}
	return nil
}

func runScan(ctx context.Context, cfg config.Config) error {
	storage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	led, err := ledger.New(ctx, storage, cfg.Account.StartingBalance, cfg.Risk.TakerFee)
	if err != nil {
		return err
	}
	log.Printf("Ledger ready: balance %.2f, equity %.2f", led.Balance(), mustEquity(ctx, led))

	source, err := scanner.NewBinanceSource(cfg.Scan.ProxyURL)
	if err != nil {
		return err
	}

	var notify notifier.Notifier = notifier.NewNoop()
	if cfg.Notifier.Enabled {
		notify = notifier.NewTelegram(cfg.Notifier.Token, cfg.Notifier.ChatID)
	}

	scanCfg := scanner.Config{
		Symbols:     cfg.Scan.Symbols,
		Timeframes:  cfg.Scan.Timeframes,
		CandleLimit: cfg.Scan.CandleLimit,
	}
	sc := scanner.New(scanCfg, source, consensus.New(consensusConfig(cfg)), risk.New(riskParams(cfg)), led, notify)

	sched := scanner.NewScheduler()
	if err := sched.RegisterScan(ctx, cfg.Scan.CronSpec, sc); err != nil {
		return err
	}
	if cfg.Notifier.Enabled {
		// Daily account summary at UTC midnight.
		err := sched.RegisterJob("0 0 * * *", func() {
			stats, err := led.GetStats(ctx)
			if err != nil {
				log.Printf("Daily stats: %v", err)
				return
			}
			msg := fmt.Sprintf("Daily stats: balance %.2f, equity %.2f, trades %d, win rate %.1f%%, ROI %.2f%%",
				stats.Balance, stats.Equity, stats.TotalTrades, stats.WinRate, stats.ROI)
			if err := notify.SendWithRetry(ctx, msg); err != nil {
				log.Printf("Daily stats push: %v", err)
			}
		})
		if err != nil {
			return err
		}
	}

	sched.Start()
	log.Printf("Scanning %v on %q", cfg.Scan.Symbols, cfg.Scan.CronSpec)

	<-ctx.Done()
	stopCh := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopCh)
	}()
	select {
	case <-stopCh:
	case <-time.After(30 * time.Second):
		log.Println("Timed out waiting for running jobs")
	}
	log.Println("Scanner stopped")
	return nil
}

func openStorage(ctx context.Context, cfg config.Config) (db.Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		return db.NewPostgres(ctx, cfg.Storage.DSN)
	default:
		return db.NewMemory(), nil
	}
}

func mustEquity(ctx context.Context, led *ledger.Ledger) float64 {
	equity, err := led.GetEquity(ctx)
	if err != nil {
		return led.Balance()
	}
	return equity
}

func consensusConfig(cfg config.Config) consensus.Config {
	c := consensus.DefaultConfig()
	c.LongThreshold = cfg.Consensus.LongThreshold
	c.ShortThreshold = cfg.Consensus.ShortThreshold
	c.ConsensusLong = cfg.Consensus.ConsensusLong
	c.ConsensusShort = cfg.Consensus.ConsensusShort
	c.MinAgreement = cfg.Consensus.MinAgreement
	c.MinConfluence = cfg.Consensus.MinConfluence
	c.MinConfidence = cfg.Consensus.MinConfidence
	c.MaxStopDistancePct = cfg.Consensus.MaxStopDistancePct
	c.EntryTimeframe = cfg.Consensus.EntryTimeframe
	if len(cfg.Consensus.Weights) > 0 {
		c.Weights = cfg.Consensus.Weights
	}
	return c
}

func riskParams(cfg config.Config) risk.Params {
	p := risk.DefaultParams()
	p.RiskPerTrade = cfg.Risk.RiskPerTrade
	p.MaxLeverage = cfg.Risk.MaxLeverage
	p.MaxPositions = cfg.Risk.MaxPositions
	p.DailyLossLimit = cfg.Risk.DailyLossLimit
	p.MinBalance = cfg.Risk.MinBalance
	return p
}

func backtestConfig(cfg config.Config) backtest.Config {
	return backtest.Config{
		StartingBalance:     cfg.Account.StartingBalance,
		TakerFee:            cfg.Risk.TakerFee,
		Lookback:            cfg.Backtest.Lookback,
		MinBars:             cfg.Backtest.MinBars,
		SignalCooldown:      cfg.Backtest.SignalCooldown,
		LossStreakThreshold: cfg.Backtest.LossStreakThreshold,
		LossStreakCooldown:  cfg.Backtest.LossStreakCooldown,
		SymbolCooldown:      cfg.Backtest.SymbolCooldown,
	}
}
