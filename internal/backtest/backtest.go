// Package backtest replays historical candles through the same consensus,
// risk and ledger code paths the live scanner uses. A run over a given candle
// history and configuration is deterministic: it produces the same trade
// sequence every time, which makes the replay the acceptance test for the
// whole core.
package backtest

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/amirphl/perp-paper-trader/internal/candle"
	"github.com/amirphl/perp-paper-trader/internal/consensus"
	"github.com/amirphl/perp-paper-trader/internal/db"
	"github.com/amirphl/perp-paper-trader/internal/indicator"
	"github.com/amirphl/perp-paper-trader/internal/ledger"
	"github.com/amirphl/perp-paper-trader/internal/risk"
)

// Config holds the replay parameters.
type Config struct {
	StartingBalance float64
	TakerFee        float64 // exit fee rate, matches the live ledger's
	Lookback        int     // trailing window fed to the consensus engine
	MinBars         int     // minimum series length to run at all
	SignalCooldown  int     // bars between opened signals per symbol
	// After LossStreakThreshold consecutive losses, entries pause for
	// LossStreakCooldown steps.
	LossStreakThreshold int
	LossStreakCooldown  int
	SymbolCooldown      int // bars after a close before a symbol may re-enter (multi-symbol runs)
}

// DefaultConfig returns the production replay parameters.
func DefaultConfig() Config {
	return Config{
		StartingBalance:     1000,
		TakerFee:            ledger.DefaultTakerFee,
		Lookback:            55,
		MinBars:             60,
		SignalCooldown:      12,
		LossStreakThreshold: 3,
		LossStreakCooldown:  30,
		SymbolCooldown:      5,
	}
}

// Engine replays candles through the core pipeline. Each Run owns a fresh
// in-memory ledger, so engines are reusable and runs are independent.
type Engine struct {
	cfg        Config
	consCfg    consensus.Config
	riskParams risk.Params
}

func New(cfg Config, consCfg consensus.Config, riskParams risk.Params) *Engine {
	if cfg.Lookback <= 0 {
		cfg = DefaultConfig()
	}
	if consCfg.MinCandles <= 0 {
		consCfg = consensus.DefaultConfig()
	}
	if riskParams.MaxLeverage <= 0 {
		riskParams = risk.DefaultParams()
	}
	return &Engine{cfg: cfg, consCfg: consCfg, riskParams: riskParams}
}

// Run replays a single symbol's series.
func (e *Engine) Run(ctx context.Context, candles []candle.Candle, symbol string) (*Report, error) {
	return e.run(ctx, map[string][]candle.Candle{symbol: candles}, false)
}

// RunMulti replays several symbols against one shared account on a merged
// timeline. The position limit applies globally and each symbol observes an
// extra entry cooldown after a close.
func (e *Engine) RunMulti(ctx context.Context, candlesBySymbol map[string][]candle.Candle) (*Report, error) {
	return e.run(ctx, candlesBySymbol, true)
}

const farPast = -1 << 30

// symbolState tracks per-symbol replay progress. Bar-denominated cooldowns
// count that symbol's own bars.
type symbolState struct {
	symbol        string
	candles       []candle.Candle
	cons          *consensus.Engine
	idx           int // next bar to process
	lastSignalBar int
	lastCloseBar  int
}

func (e *Engine) run(ctx context.Context, candlesBySymbol map[string][]candle.Candle, multi bool) (*Report, error) {
	if len(candlesBySymbol) == 0 {
		return nil, fmt.Errorf("run | no candle series given")
	}

	states := make(map[string]*symbolState, len(candlesBySymbol))
	symbols := make([]string, 0, len(candlesBySymbol))
	for symbol, series := range candlesBySymbol {
		if len(series) < e.cfg.MinBars {
			return nil, fmt.Errorf("run | %s: need at least %d candles, got %d", symbol, e.cfg.MinBars, len(series))
		}
		if err := candle.ValidateSeries(series); err != nil {
			return nil, fmt.Errorf("run | %s: replay integrity: %w", symbol, err)
		}
		// The consensus engine enters on the timeframe of the series
		// being replayed.
		consCfg := e.consCfg
		consCfg.EntryTimeframe = series[0].Timeframe
		states[symbol] = &symbolState{
			symbol:        symbol,
			candles:       series,
			cons:          consensus.New(consCfg),
			lastSignalBar: farPast,
			lastCloseBar:  farPast,
		}
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	storage := db.NewMemory()
	defer storage.Close()
	led, err := ledger.New(ctx, storage, e.cfg.StartingBalance, e.cfg.TakerFee)
	if err != nil {
		return nil, fmt.Errorf("run | ledger: %w", err)
	}

	r := &run{
		engine:         e,
		led:            led,
		riskEng:        risk.New(e.riskParams),
		report:         newReport(symbols, e.cfg.StartingBalance),
		states:         states,
		multi:          multi,
		lossStreakStep: farPast,
		peak:           e.cfg.StartingBalance,
	}

	timeline := mergedTimeline(candlesBySymbol)
	for _, ts := range timeline {
		for _, symbol := range symbols {
			st := states[symbol]
			if st.idx >= len(st.candles) || !st.candles[st.idx].Timestamp.Equal(ts) {
				continue
			}
			bar := st.candles[st.idx]
			if err := r.processBar(ctx, st, bar); err != nil {
				return nil, err
			}
			st.idx++
		}
		// One equity sample per shared timestamp, after every symbol's
		// exits and entries at that timestamp settled.
		if err := r.recordEquity(ctx, ts); err != nil {
			return nil, err
		}
		r.step++
	}

	if err := r.closeRemaining(ctx); err != nil {
		return nil, err
	}
	if err := r.finalize(ctx); err != nil {
		return nil, err
	}
	return r.report, nil
}

// mergedTimeline returns the sorted union of all series' timestamps.
func mergedTimeline(candlesBySymbol map[string][]candle.Candle) []time.Time {
	seen := make(map[int64]time.Time)
	for _, series := range candlesBySymbol {
		for _, c := range series {
			seen[c.Timestamp.UnixNano()] = c.Timestamp
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, ts := range seen {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// run carries the mutable state of one replay.
type run struct {
	engine  *Engine
	led     *ledger.Ledger
	riskEng *risk.Engine
	report  *Report
	states  map[string]*symbolState
	multi   bool

	step int // merged-timeline step counter

	consecWins     int
	consecLosses   int
	lossStreakStep int // step at which the streak crossed the threshold

	peak float64
}

func (r *run) processBar(ctx context.Context, st *symbolState, bar candle.Candle) error {
	// Exits always run before entries so a stopped-out symbol frees its
	// position slot within the same bar.
	if err := r.processExits(ctx, st, bar); err != nil {
		return err
	}
	if st.idx < r.engine.cfg.Lookback {
		return nil
	}
	return r.tryEnter(ctx, st, bar)
}

func (r *run) processExits(ctx context.Context, st *symbolState, bar candle.Candle) error {
	open, err := r.led.GetOpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("processExits | %w", err)
	}
	for i := range open {
		if open[i].Symbol != st.symbol {
			continue
		}
		decision := ledger.CheckExit(open[i], bar.High, bar.Low, bar.Close)
		switch {
		case decision.MoveStop:
			if err := r.led.UpdateStopLoss(ctx, open[i].ID, decision.NewStop); err != nil {
				return fmt.Errorf("processExits | trade %d: %w", open[i].ID, err)
			}
		case decision.Close:
			if err := r.closeTrade(ctx, st, open[i].ID, decision.Price, decision.Reason, bar.Timestamp); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) closeTrade(ctx context.Context, st *symbolState, id int64, price float64, reason string, at time.Time) error {
	res, err := r.led.CloseTrade(ctx, id, price, reason, at)
	if err != nil {
		return fmt.Errorf("closeTrade | trade %d: %w", id, err)
	}
	st.lastCloseBar = st.idx
	r.report.recordClose(res, reason)
	r.recordStreak(res.NetProfit)
	return nil
}

// recordStreak updates the win/loss streaks. Every loss at or past the
// threshold refreshes the pause window, so a streak that keeps losing keeps
// the account paused.
func (r *run) recordStreak(netProfit float64) {
	if netProfit > 0 {
		r.consecWins++
		r.consecLosses = 0
	} else {
		r.consecLosses++
		r.consecWins = 0
		if r.consecLosses >= r.engine.cfg.LossStreakThreshold {
			r.lossStreakStep = r.step
		}
	}
	if r.consecWins > r.report.MaxConsecWins {
		r.report.MaxConsecWins = r.consecWins
	}
	if r.consecLosses > r.report.MaxConsecLosses {
		r.report.MaxConsecLosses = r.consecLosses
	}
}

func (r *run) recordEquity(ctx context.Context, at time.Time) error {
	equity, err := r.led.GetEquity(ctx)
	if err != nil {
		return fmt.Errorf("recordEquity | %w", err)
	}
	if equity > r.peak {
		r.peak = equity
	}
	if r.peak > 0 {
		dd := (r.peak - equity) / r.peak * 100
		if dd > r.report.MaxDrawdownPct {
			r.report.MaxDrawdownPct = dd
		}
	}
	r.report.EquityCurve = append(r.report.EquityCurve, EquityPoint{Time: at, Equity: equity})
	return nil
}

func (r *run) tryEnter(ctx context.Context, st *symbolState, bar candle.Candle) error {
	cfg := r.engine.cfg

	if st.idx-st.lastSignalBar < cfg.SignalCooldown {
		return nil
	}
	if r.consecLosses >= cfg.LossStreakThreshold && r.step-r.lossStreakStep < cfg.LossStreakCooldown {
		return nil
	}
	if r.multi && st.idx-st.lastCloseBar < cfg.SymbolCooldown {
		return nil
	}

	symbolOpen, err := r.led.IsSymbolOpen(ctx, st.symbol)
	if err != nil {
		return fmt.Errorf("tryEnter | %w", err)
	}
	if symbolOpen {
		return nil
	}

	open, err := r.led.GetOpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("tryEnter | %w", err)
	}
	balance := r.led.Balance()
	if adm := r.riskEng.CheckCanTrade(balance, len(open), r.led.DailyPnL(bar.Timestamp)); !adm.CanTrade {
		return nil
	}

	window := st.candles[st.idx+1-cfg.Lookback : st.idx+1]
	setup := st.cons.EvaluateSetup(map[string][]candle.Candle{bar.Timeframe: window}, st.symbol, nil)
	if setup == nil {
		return nil
	}
	if entryVolumeClass(setup, bar.Timeframe) == indicator.VolumeLow {
		return nil
	}

	sizing := r.riskEng.CalculatePosition(balance, setup.Levels.Entry, setup.Levels.StopDistancePct, r.engine.riskParams.MaxLeverage, setup.Confidence)
	// Sizing sanity: a margin that dwarfs the account or rounds to dust
	// is not a tradeable position.
	if sizing.MarginRequired > balance*0.5 || sizing.MarginRequired < 1 {
		return nil
	}

	id, err := r.led.OpenTrade(ctx, ledger.OpenRequest{
		Symbol:        st.symbol,
		Side:          setup.Side,
		EntryPrice:    setup.Levels.Entry,
		Quantity:      sizing.Quantity,
		Leverage:      sizing.Leverage,
		Margin:        sizing.MarginRequired,
		PositionValue: sizing.PositionValue,
		StopLoss:      setup.Levels.StopLoss,
		TP1:           setup.Levels.TP1,
		TP2:           setup.Levels.TP2,
		TP3:           setup.Levels.TP3,
		Confidence:    setup.Confidence,
		Confluence:    setup.Confluence,
		StopMethod:    setup.Levels.Method,
		OpenedAt:      bar.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("tryEnter | open %s: %w", st.symbol, err)
	}
	st.lastSignalBar = st.idx
	log.Printf("tryEnter | opened trade %d: %s %s @ %.4f (conf %.2f, confluence %.1f)",
		id, setup.Side, st.symbol, setup.Levels.Entry, setup.Confidence, setup.Confluence)
	return nil
}

// entryVolumeClass pulls the volume classification of the entry timeframe out
// of an evaluated setup.
func entryVolumeClass(setup *consensus.Setup, tf string) string {
	for i := range setup.Consensus.Results {
		if setup.Consensus.Results[i].Timeframe == tf {
			return setup.Consensus.Results[i].VolumeClass
		}
	}
	return indicator.VolumeNormal
}

// closeRemaining force-closes whatever is still open at each symbol's final
// bar close.
func (r *run) closeRemaining(ctx context.Context) error {
	open, err := r.led.GetOpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("closeRemaining | %w", err)
	}
	for i := range open {
		st := r.states[open[i].Symbol]
		last := st.candles[len(st.candles)-1]
		if err := r.closeTrade(ctx, st, open[i].ID, last.Close, ledger.ExitEndOfData, last.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) finalize(ctx context.Context) error {
	stats, err := r.led.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("finalize | %w", err)
	}
	closed, err := r.led.GetClosedTrades(ctx, 0)
	if err != nil {
		return fmt.Errorf("finalize | %w", err)
	}
	r.report.finalize(stats, closed)
	return nil
}
