package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/perp-paper-trader/internal/db"
)

func newTestLedger(t *testing.T) (*Ledger, *db.MemoryStorage) {
	t.Helper()
	storage := db.NewMemory()
	l, err := New(context.Background(), storage, 1000, 0)
	require.NoError(t, err)
	return l, storage
}

// btcLong is the reference position used across tests: $1000 account, 2%
// risk on a 2% stop at 5x gives a $1000 position on $200 margin.
func btcLong(at time.Time) OpenRequest {
	return OpenRequest{
		Symbol:        "BTCUSDT",
		Side:          db.SideLong,
		EntryPrice:    50000,
		Quantity:      0.02,
		Leverage:      5,
		Margin:        200,
		PositionValue: 1000,
		StopLoss:      49000,
		TP1:           50600,
		TP2:           51000,
		TP3:           51750,
		Confidence:    0.75,
		Confluence:    70,
		StopMethod:    "atr",
		OpenedAt:      at,
	}
}

func TestNewSeedsAndResumes(t *testing.T) {
	ctx := context.Background()
	storage := db.NewMemory()

	l, err := New(ctx, storage, 1000, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1000, l.Balance(), 1e-9)

	hist, err := storage.GetBalanceHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "initial balance", hist[0].Description)

	// A fresh ledger over the same storage resumes from persisted state,
	// not from the starting balance argument.
	id, err := l.OpenTrade(ctx, btcLong(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	_, err = l.CloseTrade(ctx, id, 51000, ExitTP2, time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	l2, err := New(ctx, storage, 5000, 0)
	require.NoError(t, err)
	assert.InDelta(t, l.Balance(), l2.Balance(), 1e-9)
}

func TestNewRejectsNonPositiveBalance(t *testing.T) {
	_, err := New(context.Background(), db.NewMemory(), 0, 0)
	assert.Error(t, err)
}

func TestOpenTradeValidation(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*OpenRequest)
	}{
		{"empty symbol", func(r *OpenRequest) { r.Symbol = "" }},
		{"bad side", func(r *OpenRequest) { r.Side = "FLAT" }},
		{"zero margin", func(r *OpenRequest) { r.Margin = 0 }},
		{"negative entry", func(r *OpenRequest) { r.EntryPrice = -1 }},
		{"leverage below one", func(r *OpenRequest) { r.Leverage = 0.5 }},
		{"long stop above entry", func(r *OpenRequest) { r.StopLoss = 50500 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := btcLong(at)
			tt.mutate(&req)
			_, err := l.OpenTrade(ctx, req)
			assert.Error(t, err)
		})
	}

	t.Run("short stop below entry", func(t *testing.T) {
		req := btcLong(at)
		req.Side = db.SideShort
		// StopLoss 49000 is below entry, invalid for a short.
		_, err := l.OpenTrade(ctx, req)
		assert.Error(t, err)
	})
}

func TestOpenDoesNotTouchBalance(t *testing.T) {
	l, storage := newTestLedger(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	id, err := l.OpenTrade(ctx, btcLong(at))
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	assert.InDelta(t, 1000, l.Balance(), 1e-9)

	equity, err := l.GetEquity(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1200, equity, 1e-9)

	open, err := l.IsSymbolOpen(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, open)
	open, err = l.IsSymbolOpen(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.False(t, open)

	hist, err := storage.GetBalanceHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.InDelta(t, 0, hist[1].Delta, 1e-9)
}

func TestCloseTradeWin(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	opened := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	id, err := l.OpenTrade(ctx, btcLong(opened))
	require.NoError(t, err)

	// TP1 moves the stop to breakeven, the trade stays open.
	require.NoError(t, l.UpdateStopLoss(ctx, id, 50000))

	// +2% move at 5x on $200 margin is $20, minus the 0.04% exit fee on
	// the $1000 position value.
	res, err := l.CloseTrade(ctx, id, 51000, ExitTP2, opened.Add(4*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.PnLPct, 1e-9)
	assert.InDelta(t, 20.0, res.Profit, 1e-9)
	assert.InDelta(t, 0.4, res.ExitFee, 1e-9)
	assert.InDelta(t, 19.6, res.NetProfit, 1e-9)
	assert.Equal(t, db.StatusWin, res.Trade.Status)
	assert.Equal(t, ExitTP2, res.Trade.ExitReason)

	assert.InDelta(t, 1019.6, l.Balance(), 1e-9)
	equity, err := l.GetEquity(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1019.6, equity, 1e-9)
}

func TestCloseTradeShortLoss(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	opened := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	req := btcLong(opened)
	req.Side = db.SideShort
	req.StopLoss = 51000
	req.TP1, req.TP2, req.TP3 = 49400, 49000, 48250
	id, err := l.OpenTrade(ctx, req)
	require.NoError(t, err)

	// Price rises 2% against the short.
	res, err := l.CloseTrade(ctx, id, 51000, ExitStopLoss, opened.Add(time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, -2.0, res.PnLPct, 1e-9)
	assert.InDelta(t, -20.4, res.NetProfit, 1e-9)
	assert.Equal(t, db.StatusLoss, res.Trade.Status)
	assert.InDelta(t, 979.6, l.Balance(), 1e-9)
}

func TestFeeCanTurnTinyGainIntoLoss(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	opened := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	id, err := l.OpenTrade(ctx, btcLong(opened))
	require.NoError(t, err)

	// +0.01% gross at 5x on $200 margin is $0.10; the $0.40 fee dominates.
	res, err := l.CloseTrade(ctx, id, 50005, ExitManual, opened.Add(time.Hour))
	require.NoError(t, err)
	assert.Negative(t, res.NetProfit)
	assert.Equal(t, db.StatusLoss, res.Trade.Status)
}

func TestCloseTwiceFails(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	opened := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	id, err := l.OpenTrade(ctx, btcLong(opened))
	require.NoError(t, err)
	_, err = l.CloseTrade(ctx, id, 51000, ExitTP2, opened.Add(time.Hour))
	require.NoError(t, err)

	_, err = l.CloseTrade(ctx, id, 51000, ExitTP2, opened.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrTradeClosed)

	_, err = l.CloseTrade(ctx, 99, 51000, ExitTP2, opened)
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestUpdateStopLossRatchet(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	opened := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	id, err := l.OpenTrade(ctx, btcLong(opened))
	require.NoError(t, err)

	require.NoError(t, l.UpdateStopLoss(ctx, id, 49500))
	require.NoError(t, l.UpdateStopLoss(ctx, id, 50000))

	err = l.UpdateStopLoss(ctx, id, 49800)
	assert.ErrorIs(t, err, ErrAdverseStop)
	err = l.UpdateStopLoss(ctx, id, 50000)
	assert.ErrorIs(t, err, ErrAdverseStop)

	_, err = l.CloseTrade(ctx, id, 51000, ExitTP2, opened.Add(time.Hour))
	require.NoError(t, err)
	err = l.UpdateStopLoss(ctx, id, 50500)
	assert.ErrorIs(t, err, ErrTradeClosed)

	err = l.UpdateStopLoss(ctx, 99, 50500)
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestUpdateStopLossShortRatchet(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	opened := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	req := btcLong(opened)
	req.Side = db.SideShort
	req.StopLoss = 51000
	req.TP1, req.TP2, req.TP3 = 49400, 49000, 48250
	id, err := l.OpenTrade(ctx, req)
	require.NoError(t, err)

	require.NoError(t, l.UpdateStopLoss(ctx, id, 50500))
	err = l.UpdateStopLoss(ctx, id, 50800)
	assert.ErrorIs(t, err, ErrAdverseStop)
}

// Balance changes only on close, by the trade's net profit, so equity
// (balance plus open margins) always equals starting balance plus realized
// profits plus open margins.
func TestEquityInvariant(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var realized float64
	openMargins := map[int64]float64{}

	check := func() {
		t.Helper()
		var locked float64
		for _, m := range openMargins {
			locked += m
		}
		equity, err := l.GetEquity(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 1000+realized+locked, equity, 1e-9)
	}

	check()
	id1, err := l.OpenTrade(ctx, btcLong(at))
	require.NoError(t, err)
	openMargins[id1] = 200
	check()

	req := btcLong(at.Add(time.Hour))
	req.Symbol = "ETHUSDT"
	req.Margin = 150
	req.PositionValue = 750
	id2, err := l.OpenTrade(ctx, req)
	require.NoError(t, err)
	openMargins[id2] = 150
	check()

	res, err := l.CloseTrade(ctx, id1, 51000, ExitTP2, at.Add(2*time.Hour))
	require.NoError(t, err)
	realized += res.NetProfit
	delete(openMargins, id1)
	check()

	res, err = l.CloseTrade(ctx, id2, 49000, ExitStopLoss, at.Add(3*time.Hour))
	require.NoError(t, err)
	realized += res.NetProfit
	delete(openMargins, id2)
	check()
}

func TestDailyPnLRollsOverOnUTCDate(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	day1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC)

	id1, err := l.OpenTrade(ctx, btcLong(day1))
	require.NoError(t, err)
	res1, err := l.CloseTrade(ctx, id1, 51000, ExitTP2, day1.Add(time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, res1.NetProfit, l.DailyPnL(day1), 1e-9)

	// A later date sees a fresh daily window even before any close.
	assert.InDelta(t, 0, l.DailyPnL(day2), 1e-9)

	id2, err := l.OpenTrade(ctx, btcLong(day1.Add(2*time.Hour)))
	require.NoError(t, err)
	res2, err := l.CloseTrade(ctx, id2, 49000, ExitStopLoss, day2)
	require.NoError(t, err)
	assert.InDelta(t, res2.NetProfit, l.DailyPnL(day2), 1e-9)
	assert.InDelta(t, 0, l.DailyPnL(day2.Add(24*time.Hour)), 1e-9)
}

func TestGetStats(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	id1, err := l.OpenTrade(ctx, btcLong(at))
	require.NoError(t, err)
	res1, err := l.CloseTrade(ctx, id1, 51000, ExitTP2, at.Add(time.Hour))
	require.NoError(t, err)

	id2, err := l.OpenTrade(ctx, btcLong(at.Add(2*time.Hour)))
	require.NoError(t, err)
	res2, err := l.CloseTrade(ctx, id2, 49000, ExitStopLoss, at.Add(3*time.Hour))
	require.NoError(t, err)

	s, err := l.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalTrades)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 50, s.WinRate, 1e-9)
	assert.InDelta(t, 0.8, s.TotalFees, 1e-9)
	net := res1.NetProfit + res2.NetProfit
	assert.InDelta(t, net, s.TotalPnL, 1e-9)
	assert.InDelta(t, net/1000*100, s.ROI, 1e-9)
	assert.InDelta(t, 1000+net, s.Balance, 1e-9)
}
