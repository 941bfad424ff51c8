// Package scanner runs the live paper-trading loop: monitor open trades
// against current prices, then evaluate every configured symbol through the
// consensus, confluence and risk pipeline and open admissible trades.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/perp-paper-trader/internal/candle"
	"github.com/amirphl/perp-paper-trader/internal/consensus"
	"github.com/amirphl/perp-paper-trader/internal/db"
	"github.com/amirphl/perp-paper-trader/internal/indicator"
	"github.com/amirphl/perp-paper-trader/internal/ledger"
	"github.com/amirphl/perp-paper-trader/internal/notifier"
	"github.com/amirphl/perp-paper-trader/internal/risk"
)

// Action types reported by a tick.
const (
	ActionOpen     = "OPEN"
	ActionClose    = "CLOSE"
	ActionMoveStop = "MOVE_STOP"
)

// Action is one ledger mutation taken during a tick.
type Action struct {
	Type    string
	Symbol  string
	TradeID int64
	Detail  string
}

// Config selects what the scanner watches.
type Config struct {
	Symbols     []string
	Timeframes  []string // analysis timeframes fetched per symbol
	CandleLimit int      // candles fetched per timeframe
}

// DefaultScanConfig watches the consensus timeframes with enough history for
// every indicator.
func DefaultScanConfig(symbols []string) Config {
	return Config{
		Symbols:     symbols,
		Timeframes:  []string{"5m", "15m", "1h", "4h"},
		CandleLimit: 100,
	}
}

// Scanner wires the market data source to the core pipeline. All ledger
// mutation goes through the shared Ledger, which serializes it.
type Scanner struct {
	cfg       Config
	source    CandleSource
	cons      *consensus.Engine
	riskEng   *risk.Engine
	led       *ledger.Ledger
	notify    notifier.Notifier
	sentiment SentimentSource
	confirm   func(ctx context.Context, setup *consensus.Setup) (*Confirmation, error)
}

func New(cfg Config, source CandleSource, cons *consensus.Engine, riskEng *risk.Engine, led *ledger.Ledger, notify notifier.Notifier) *Scanner {
	if notify == nil {
		notify = notifier.NewNoop()
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 100
	}
	return &Scanner{
		cfg:     cfg,
		source:  source,
		cons:    cons,
		riskEng: riskEng,
		led:     led,
		notify:  notify,
	}
}

// WithSentiment attaches an optional fear/greed source.
func (s *Scanner) WithSentiment(src SentimentSource) *Scanner {
	s.sentiment = src
	return s
}

// WithConfirmation attaches an optional external setup reviewer. A SKIP
// verdict vetoes the entry; otherwise the lower of the two confidences feeds
// position sizing.
func (s *Scanner) WithConfirmation(fn func(ctx context.Context, setup *consensus.Setup) (*Confirmation, error)) *Scanner {
	s.confirm = fn
	return s
}

// Tick executes one scan step at the given time and returns the actions
// taken. It is a pure function of the market data and ledger state, so the
// scheduler, tests and manual invocation all share it.
func (s *Scanner) Tick(ctx context.Context, now time.Time) ([]Action, error) {
	var actions []Action

	monitored, err := s.monitorOpenTrades(ctx, now)
	if err != nil {
		return actions, err
	}
	actions = append(actions, monitored...)

	for _, symbol := range s.cfg.Symbols {
		act, err := s.evaluateSymbol(ctx, symbol, now)
		if err != nil {
			log.Printf("Tick | %s: %v", symbol, err)
			continue
		}
		if act != nil {
			actions = append(actions, *act)
		}
	}
	return actions, nil
}

// monitorOpenTrades checks every open trade against the current price.
func (s *Scanner) monitorOpenTrades(ctx context.Context, now time.Time) ([]Action, error) {
	open, err := s.led.GetOpenTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("monitorOpenTrades | %w", err)
	}

	var actions []Action
	for i := range open {
		trade := open[i]
		price, ok, err := s.source.GetCurrentPrice(ctx, trade.Symbol)
		if err != nil || !ok {
			continue
		}

		decision := ledger.CheckExit(trade, price, price, price)
		switch {
		case decision.Close:
			res, err := s.led.CloseTrade(ctx, trade.ID, decision.Price, decision.Reason, now)
			if err != nil {
				log.Printf("monitorOpenTrades | close trade %d: %v", trade.ID, err)
				continue
			}
			actions = append(actions, Action{
				Type:    ActionClose,
				Symbol:  trade.Symbol,
				TradeID: trade.ID,
				Detail:  fmt.Sprintf("%s @ %.4f net %.4f", decision.Reason, decision.Price, res.NetProfit),
			})
			s.push(ctx, fmt.Sprintf("Closed %s %s (%s): net %.2f, balance %.2f",
				trade.Side, trade.Symbol, decision.Reason, res.NetProfit, res.Balance))
		case decision.MoveStop:
			if err := s.led.UpdateStopLoss(ctx, trade.ID, decision.NewStop); err != nil {
				log.Printf("monitorOpenTrades | ratchet trade %d: %v", trade.ID, err)
				continue
			}
			actions = append(actions, Action{
				Type:    ActionMoveStop,
				Symbol:  trade.Symbol,
				TradeID: trade.ID,
				Detail:  fmt.Sprintf("stop -> %.4f", decision.NewStop),
			})
		default:
			if act := s.trailWinner(ctx, trade, price); act != nil {
				actions = append(actions, *act)
			}
		}
	}
	return actions, nil
}

// trailWinner tightens the stop on a position whose unleveraged gain has run
// well past its original risk.
func (s *Scanner) trailWinner(ctx context.Context, trade db.Trade, price float64) *Action {
	stopDist := stopDistancePct(trade)
	if stopDist <= 0 {
		return nil
	}
	early := s.riskEng.ShouldCloseEarly(trade.EntryPrice, price, trade.Side, stopDist)
	if !early.TrailStop {
		return nil
	}

	var newStop float64
	if trade.Side == db.SideLong {
		newStop = price * (1 - early.NewStopDist/100)
	} else {
		newStop = price * (1 + early.NewStopDist/100)
	}
	if err := s.led.UpdateStopLoss(ctx, trade.ID, newStop); err != nil {
		// The ratchet rejects moves that would loosen the stop.
		if !errors.Is(err, ledger.ErrAdverseStop) {
			log.Printf("trailWinner | trade %d: %v", trade.ID, err)
		}
		return nil
	}
	return &Action{
		Type:    ActionMoveStop,
		Symbol:  trade.Symbol,
		TradeID: trade.ID,
		Detail:  fmt.Sprintf("trail stop -> %.4f", newStop),
	}
}

// stopDistancePct derives the live stop distance from the trade itself.
func stopDistancePct(trade db.Trade) float64 {
	if trade.EntryPrice <= 0 || trade.StopLoss <= 0 {
		return 0
	}
	if trade.Side == db.SideLong {
		return (trade.EntryPrice - trade.StopLoss) / trade.EntryPrice * 100
	}
	return (trade.StopLoss - trade.EntryPrice) / trade.EntryPrice * 100
}

func (s *Scanner) evaluateSymbol(ctx context.Context, symbol string, now time.Time) (*Action, error) {
	symbolOpen, err := s.led.IsSymbolOpen(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if symbolOpen {
		return nil, nil
	}

	open, err := s.led.GetOpenTrades(ctx)
	if err != nil {
		return nil, err
	}
	balance := s.led.Balance()
	if adm := s.riskEng.CheckCanTrade(balance, len(open), s.led.DailyPnL(now)); !adm.CanTrade {
		return nil, nil
	}

	byTF := make(map[string][]candle.Candle, len(s.cfg.Timeframes))
	for _, tf := range s.cfg.Timeframes {
		candles, err := s.source.GetCandles(ctx, symbol, tf, s.cfg.CandleLimit)
		if err != nil {
			return nil, fmt.Errorf("get candles %s: %w", tf, err)
		}
		if len(candles) > 0 {
			byTF[tf] = candles
		}
	}
	if len(byTF) == 0 {
		return nil, nil
	}

	var fearGreed *int
	if s.sentiment != nil {
		if v, ok := s.sentiment(ctx); ok {
			fearGreed = &v
		}
	}

	setup := s.cons.EvaluateSetup(byTF, symbol, fearGreed)
	if setup == nil {
		return nil, nil
	}
	if volumeClassFor(setup, s.cons.Config().EntryTimeframe) == indicator.VolumeLow {
		return nil, nil
	}

	confidence := setup.Confidence
	if s.confirm != nil {
		conf, err := s.confirm(ctx, setup)
		if err != nil {
			return nil, fmt.Errorf("confirmation: %w", err)
		}
		if conf.Action == consensus.SignalSkip || conf.Action != setup.Side {
			return nil, nil
		}
		if conf.Confidence < confidence {
			confidence = conf.Confidence
		}
	}

	sizing := s.riskEng.CalculatePosition(balance, setup.Levels.Entry, setup.Levels.StopDistancePct, s.riskEng.Params().MaxLeverage, confidence)
	if sizing.MarginRequired > balance*0.5 || sizing.MarginRequired < 1 {
		return nil, nil
	}

	id, err := s.led.OpenTrade(ctx, ledger.OpenRequest{
		Symbol:        symbol,
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
		Confidence:    confidence,
		Confluence:    setup.Confluence,
		StopMethod:    setup.Levels.Method,
		OpenedAt:      now,
	})
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	s.push(ctx, fmt.Sprintf("Opened %s %s @ %.4f (lev %.0fx, margin %.2f, confluence %.1f)",
		setup.Side, symbol, setup.Levels.Entry, sizing.Leverage, sizing.MarginRequired, setup.Confluence))
	return &Action{
		Type:    ActionOpen,
		Symbol:  symbol,
		TradeID: id,
		Detail:  fmt.Sprintf("%s @ %.4f", setup.Side, setup.Levels.Entry),
	}, nil
}

func volumeClassFor(setup *consensus.Setup, tf string) string {
	for i := range setup.Consensus.Results {
		if setup.Consensus.Results[i].Timeframe == tf {
			return setup.Consensus.Results[i].VolumeClass
		}
	}
	return indicator.VolumeNormal
}

func (s *Scanner) push(ctx context.Context, msg string) {
	if err := s.notify.SendWithRetry(ctx, msg); err != nil {
		log.Printf("push | %v", err)
	}
}
