// Package ledger is the authoritative record of trades and account balance.
//
// The balance invariant: realized balance moves only when a trade closes, and
// only by the trade's net realized profit. Opening a trade locks margin but
// never deducts it, so equity = realized balance + sum of open margins holds
// at every point in time.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/perp-paper-trader/internal/db"
	"github.com/amirphl/perp-paper-trader/internal/journal"
)

var (
	// ErrTradeNotFound mirrors the storage sentinel for unknown ids.
	ErrTradeNotFound = db.ErrTradeNotFound
	// ErrTradeClosed rejects operations on already-closed trades.
	ErrTradeClosed = errors.New("trade already closed")
	// ErrAdverseStop rejects trailing-stop moves against the trade.
	ErrAdverseStop = errors.New("stop loss move is adverse")
)

// DefaultTakerFee is the exit fee rate applied to position value (0.04%).
const DefaultTakerFee = 0.0004

// Ledger serializes all trade and balance mutation behind one mutex. A live
// scanner and a position monitor can share an instance; a backtest owns its
// own instance per run.
type Ledger struct {
	mu      sync.Mutex
	storage db.Storage

	startingBalance float64
	takerFee        float64

	balance   float64
	totalPnL  float64
	dailyPnL  float64
	dailyDate string
}

// New creates a ledger over the given storage. Persisted agent state takes
// precedence over startingBalance, so a restarted process resumes where it
// left off.
func New(ctx context.Context, storage db.Storage, startingBalance, takerFee float64) (*Ledger, error) {
	if startingBalance <= 0 {
		return nil, fmt.Errorf("New | starting balance must be positive, got %f", startingBalance)
	}
	if takerFee <= 0 {
		takerFee = DefaultTakerFee
	}
	l := &Ledger{
		storage:         storage,
		startingBalance: startingBalance,
		takerFee:        takerFee,
	}

	state, err := storage.LoadAgentState(ctx)
	if err != nil {
		return nil, fmt.Errorf("New | load agent state: %w", err)
	}
	if state != nil {
		l.balance = state.Balance
		l.totalPnL = state.TotalPnL
		l.dailyPnL = state.DailyPnL
		l.dailyDate = state.DailyDate
		return l, nil
	}

	l.balance = startingBalance
	l.dailyDate = time.Now().UTC().Format("2006-01-02")
	if err := l.persistState(ctx); err != nil {
		return nil, err
	}
	if err := storage.AppendBalanceHistory(ctx, db.BalanceEntry{
		Timestamp:   time.Now().UTC(),
		Balance:     l.balance,
		Delta:       0,
		Description: "initial balance",
	}); err != nil {
		return nil, fmt.Errorf("New | append balance history: %w", err)
	}
	return l, nil
}

// OpenRequest carries an already-sized trade into the ledger. The caller
// supplies the open timestamp so replays stay deterministic.
type OpenRequest struct {
	Symbol        string
	Side          string
	EntryPrice    float64
	Quantity      float64
	Leverage      float64
	Margin        float64
	PositionValue float64
	StopLoss      float64
	TP1           float64
	TP2           float64
	TP3           float64
	Confidence    float64
	Confluence    float64
	StopMethod    string
	OpenedAt      time.Time
}

func (r *OpenRequest) validate() error {
	if r.Symbol == "" {
		return errors.New("symbol is empty")
	}
	if r.Side != db.SideLong && r.Side != db.SideShort {
		return fmt.Errorf("invalid side %q", r.Side)
	}
	if r.EntryPrice <= 0 || r.Quantity <= 0 || r.Margin <= 0 || r.PositionValue <= 0 {
		return errors.New("sizing fields must be positive")
	}
	if r.Leverage < 1 {
		return fmt.Errorf("leverage %f below 1", r.Leverage)
	}
	if r.Side == db.SideLong && r.StopLoss >= r.EntryPrice {
		return errors.New("long stop loss must sit below entry")
	}
	if r.Side == db.SideShort && r.StopLoss <= r.EntryPrice {
		return errors.New("short stop loss must sit above entry")
	}
	return nil
}

// OpenTrade records a new OPEN trade. The margin is locked, not deducted:
// realized balance is untouched.
func (l *Ledger) OpenTrade(ctx context.Context, req OpenRequest) (int64, error) {
	if err := req.validate(); err != nil {
		return 0, fmt.Errorf("OpenTrade | invalid request: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	openedAt := req.OpenedAt
	if openedAt.IsZero() {
		openedAt = time.Now().UTC()
	}
	trade := db.Trade{
		Symbol:        req.Symbol,
		Side:          req.Side,
		EntryPrice:    req.EntryPrice,
		Quantity:      req.Quantity,
		Leverage:      req.Leverage,
		Margin:        req.Margin,
		PositionValue: req.PositionValue,
		StopLoss:      req.StopLoss,
		TP1:           req.TP1,
		TP2:           req.TP2,
		TP3:           req.TP3,
		Status:        db.StatusOpen,
		OpenedAt:      openedAt,
		Confidence:    req.Confidence,
		Confluence:    req.Confluence,
		StopMethod:    req.StopMethod,
	}
	id, err := l.storage.SaveTrade(ctx, &trade)
	if err != nil {
		return 0, fmt.Errorf("OpenTrade | save: %w", err)
	}

	if err := l.storage.AppendBalanceHistory(ctx, db.BalanceEntry{
		Timestamp:   openedAt,
		Balance:     l.balance,
		Delta:       0,
		Description: fmt.Sprintf("open trade %d %s %s, margin %.2f locked", id, req.Side, req.Symbol, req.Margin),
	}); err != nil {
		return 0, fmt.Errorf("OpenTrade | append balance history: %w", err)
	}
	if err := l.storage.LogEvent(ctx, journal.Event{
		Time:        openedAt,
		Type:        "trade_open",
		Description: fmt.Sprintf("%s %s @ %.4f", req.Side, req.Symbol, req.EntryPrice),
		Data: map[string]any{
			"trade_id": id,
			"margin":   req.Margin,
			"leverage": req.Leverage,
			"stop":     req.StopLoss,
		},
	}); err != nil {
		return 0, fmt.Errorf("OpenTrade | log event: %w", err)
	}
	return id, nil
}

// UpdateStopLoss moves the stop of an OPEN trade. The move must be in the
// trade's favor (up for LONG, down for SHORT); adverse moves are rejected so
// the trailing stop stays a ratchet.
func (l *Ledger) UpdateStopLoss(ctx context.Context, id int64, newStop float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	trade, err := l.storage.GetTrade(ctx, id)
	if err != nil {
		return err
	}
	if !trade.IsOpen() {
		return ErrTradeClosed
	}
	if trade.Side == db.SideLong && newStop <= trade.StopLoss {
		return fmt.Errorf("UpdateStopLoss | trade %d: %.4f -> %.4f: %w", id, trade.StopLoss, newStop, ErrAdverseStop)
	}
	if trade.Side == db.SideShort && newStop >= trade.StopLoss {
		return fmt.Errorf("UpdateStopLoss | trade %d: %.4f -> %.4f: %w", id, trade.StopLoss, newStop, ErrAdverseStop)
	}

	old := trade.StopLoss
	trade.StopLoss = newStop
	if err := l.storage.UpdateTrade(ctx, *trade); err != nil {
		return fmt.Errorf("UpdateStopLoss | update trade %d: %w", id, err)
	}
	return l.storage.LogEvent(ctx, journal.Event{
		Time:        time.Now().UTC(),
		Type:        "stop_update",
		Description: fmt.Sprintf("trade %d stop %.4f -> %.4f", id, old, newStop),
		Data:        map[string]any{"trade_id": id},
	})
}

// CloseResult reports the realized outcome of a close.
type CloseResult struct {
	Trade     db.Trade
	PnLPct    float64 // unleveraged, side-aware
	Profit    float64 // leveraged, before fee
	ExitFee   float64
	NetProfit float64
	Balance   float64 // realized balance after close
}

// CloseTrade realizes a trade at exitPrice. The net profit (leveraged P&L
// minus exit fee) is the only amount applied to the realized balance; the
// locked margin simply stops counting toward equity because the trade is no
// longer open.
func (l *Ledger) CloseTrade(ctx context.Context, id int64, exitPrice float64, reason string, at time.Time) (*CloseResult, error) {
	if exitPrice <= 0 {
		return nil, fmt.Errorf("CloseTrade | exit price must be positive, got %f", exitPrice)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	trade, err := l.storage.GetTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	if !trade.IsOpen() {
		return nil, fmt.Errorf("CloseTrade | trade %d: %w", id, ErrTradeClosed)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	pnlPct := (exitPrice - trade.EntryPrice) / trade.EntryPrice * 100
	if trade.Side == db.SideShort {
		pnlPct = -pnlPct
	}
	profit := trade.Margin * (pnlPct / 100) * trade.Leverage
	exitFee := trade.PositionValue * l.takerFee
	net := profit - exitFee

	trade.Status = db.StatusLoss
	if net > 0 {
		trade.Status = db.StatusWin
	}
	trade.ClosedAt = at
	trade.ExitPrice = exitPrice
	trade.ExitReason = reason
	trade.ExitFee = exitFee
	trade.RealizedProfit = net
	if err := l.storage.UpdateTrade(ctx, *trade); err != nil {
		return nil, fmt.Errorf("CloseTrade | update trade %d: %w", id, err)
	}

	l.rollDailyLocked(at)
	l.balance += net
	l.totalPnL += net
	l.dailyPnL += net
	if err := l.persistState(ctx); err != nil {
		return nil, err
	}
	if err := l.storage.AppendBalanceHistory(ctx, db.BalanceEntry{
		Timestamp:   at,
		Balance:     l.balance,
		Delta:       net,
		Description: fmt.Sprintf("close trade %d %s %s: %s, net %.4f", id, trade.Side, trade.Symbol, reason, net),
	}); err != nil {
		return nil, fmt.Errorf("CloseTrade | append balance history: %w", err)
	}
	if err := l.storage.LogEvent(ctx, journal.Event{
		Time:        at,
		Type:        "trade_close",
		Description: fmt.Sprintf("trade %d %s @ %.4f (%s)", id, trade.Status, exitPrice, reason),
		Data: map[string]any{
			"trade_id": id,
			"net":      net,
			"fee":      exitFee,
			"pnl_pct":  pnlPct,
		},
	}); err != nil {
		return nil, fmt.Errorf("CloseTrade | log event: %w", err)
	}

	return &CloseResult{
		Trade:     *trade,
		PnLPct:    pnlPct,
		Profit:    profit,
		ExitFee:   exitFee,
		NetProfit: net,
		Balance:   l.balance,
	}, nil
}

// rollDailyLocked resets the daily P&L when the UTC date changes.
func (l *Ledger) rollDailyLocked(at time.Time) {
	date := at.UTC().Format("2006-01-02")
	if date != l.dailyDate {
		l.dailyDate = date
		l.dailyPnL = 0
	}
}

func (l *Ledger) persistState(ctx context.Context) error {
	err := l.storage.SaveAgentState(ctx, db.AgentState{
		Balance:   l.balance,
		TotalPnL:  l.totalPnL,
		DailyPnL:  l.dailyPnL,
		DailyDate: l.dailyDate,
	})
	if err != nil {
		return fmt.Errorf("persistState | save agent state: %w", err)
	}
	return nil
}

// Balance returns the realized balance (excludes locked margin).
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// StartingBalance returns the configured starting balance.
func (l *Ledger) StartingBalance() float64 { return l.startingBalance }

// DailyPnL returns the realized P&L for the UTC date of at; zero when the
// stored daily window belongs to an earlier date.
func (l *Ledger) DailyPnL(at time.Time) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if at.UTC().Format("2006-01-02") != l.dailyDate {
		return 0
	}
	return l.dailyPnL
}

// GetOpenTrades returns snapshots of all OPEN trades.
func (l *Ledger) GetOpenTrades(ctx context.Context) ([]db.Trade, error) {
	return l.storage.GetOpenTrades(ctx)
}

// GetClosedTrades returns closed trades, newest first.
func (l *Ledger) GetClosedTrades(ctx context.Context, limit int) ([]db.Trade, error) {
	return l.storage.GetClosedTrades(ctx, limit)
}

// IsSymbolOpen reports whether any OPEN trade exists for the symbol.
func (l *Ledger) IsSymbolOpen(ctx context.Context, symbol string) (bool, error) {
	open, err := l.storage.GetOpenTrades(ctx)
	if err != nil {
		return false, err
	}
	for i := range open {
		if open[i].Symbol == symbol {
			return true, nil
		}
	}
	return false, nil
}

// GetEquity returns realized balance plus the margin locked in open trades.
func (l *Ledger) GetEquity(ctx context.Context) (float64, error) {
	open, err := l.storage.GetOpenTrades(ctx)
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	equity := l.balance
	for i := range open {
		equity += open[i].Margin
	}
	return equity, nil
}

// Stats aggregates the account's closed-trade performance.
type Stats struct {
	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64
	TotalPnL    float64
	TotalFees   float64
	ROI         float64 // percent vs starting balance
	Balance     float64
	Equity      float64
}

// GetStats derives aggregate statistics from closed trades.
func (l *Ledger) GetStats(ctx context.Context) (*Stats, error) {
	closed, err := l.storage.GetClosedTrades(ctx, 0)
	if err != nil {
		return nil, err
	}
	equity, err := l.GetEquity(ctx)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	s := &Stats{Balance: l.balance, Equity: equity, TotalPnL: l.totalPnL}
	for i := range closed {
		s.TotalTrades++
		s.TotalFees += closed[i].ExitFee
		if closed[i].Status == db.StatusWin {
			s.Wins++
		} else {
			s.Losses++
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades) * 100
	}
	if l.startingBalance > 0 {
		s.ROI = (l.balance - l.startingBalance) / l.startingBalance * 100
	}
	return s, nil
}
