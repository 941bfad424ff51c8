package db

import (
	"context"
	"testing"
	"time"

	"github.com/amirphl/perp-paper-trader/internal/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageTrades(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	opened := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("save assigns sequential ids", func(t *testing.T) {
		a := &Trade{Symbol: "BTCUSDT", Side: SideLong, Status: StatusOpen, OpenedAt: opened}
		b := &Trade{Symbol: "ETHUSDT", Side: SideShort, Status: StatusOpen, OpenedAt: opened}
		id1, err := m.SaveTrade(ctx, a)
		require.NoError(t, err)
		id2, err := m.SaveTrade(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, int64(1), id1)
		assert.Equal(t, int64(2), id2)
	})

	t.Run("get returns a copy", func(t *testing.T) {
		got, err := m.GetTrade(ctx, 1)
		require.NoError(t, err)
		got.Symbol = "mutated"
		again, err := m.GetTrade(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "BTCUSDT", again.Symbol)
	})

	t.Run("unknown id fails", func(t *testing.T) {
		_, err := m.GetTrade(ctx, 99)
		assert.ErrorIs(t, err, ErrTradeNotFound)
		err = m.UpdateTrade(ctx, Trade{ID: 99})
		assert.ErrorIs(t, err, ErrTradeNotFound)
	})

	t.Run("open and closed views", func(t *testing.T) {
		open, err := m.GetOpenTrades(ctx)
		require.NoError(t, err)
		assert.Len(t, open, 2)

		tr, err := m.GetTrade(ctx, 1)
		require.NoError(t, err)
		tr.Status = StatusWin
		tr.ClosedAt = opened.Add(time.Hour)
		require.NoError(t, m.UpdateTrade(ctx, *tr))

		open, err = m.GetOpenTrades(ctx)
		require.NoError(t, err)
		assert.Len(t, open, 1)

		closed, err := m.GetClosedTrades(ctx, 10)
		require.NoError(t, err)
		require.Len(t, closed, 1)
		assert.Equal(t, int64(1), closed[0].ID)
	})
}

func TestMemoryStorageAgentState(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	s, err := m.LoadAgentState(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	require.NoError(t, m.SaveAgentState(ctx, AgentState{
		Balance: 1234.5, TotalPnL: 234.5, DailyPnL: -10, DailyDate: "2024-01-01",
	}))
	s, err = m.LoadAgentState(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.InDelta(t, 1234.5, s.Balance, 1e-9)
	assert.Equal(t, "2024-01-01", s.DailyDate)
}

func TestMemoryStorageBalanceHistory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.AppendBalanceHistory(ctx, BalanceEntry{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Balance:   1000 + float64(i),
			Delta:     1,
		}))
	}
	all, err := m.GetBalanceHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	limited, err := m.GetBalanceHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.InDelta(t, 1004, limited[1].Balance, 1e-9)
}

func TestMemoryStorageEvents(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.LogEvent(ctx, journal.Event{Time: base, Type: "trade_open", Description: "a"}))
	require.NoError(t, m.LogEvent(ctx, journal.Event{Time: base.Add(time.Hour), Type: "trade_close", Description: "b"}))

	opens, err := m.GetEvents(ctx, "trade_open", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, opens, 1)
	assert.Equal(t, "a", opens[0].Description)

	ranged, err := m.GetEvents(ctx, "", base.Add(30*time.Minute), time.Time{})
	require.NoError(t, err)
	assert.Len(t, ranged, 1)
}
