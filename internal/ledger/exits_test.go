package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amirphl/perp-paper-trader/internal/db"
)

func openLong() db.Trade {
	return db.Trade{
		Side:       db.SideLong,
		Status:     db.StatusOpen,
		EntryPrice: 50000,
		Leverage:   5,
		StopLoss:   49000,
		TP1:        50600,
		TP2:        51000,
		TP3:        51750,
	}
}

func openShort() db.Trade {
	return db.Trade{
		Side:       db.SideShort,
		Status:     db.StatusOpen,
		EntryPrice: 50000,
		Leverage:   5,
		StopLoss:   51000,
		TP1:        49400,
		TP2:        49000,
		TP3:        48250,
	}
}

func TestCheckExitLong(t *testing.T) {
	tests := []struct {
		name             string
		high, low, close float64
		want             ExitDecision
	}{
		{"no touch", 50400, 49500, 50200, ExitDecision{}},
		{"stop hit", 50100, 48900, 49100, ExitDecision{Close: true, Reason: ExitStopLoss, Price: 49000}},
		{"tp3 hit", 51800, 51200, 51600, ExitDecision{Close: true, Reason: ExitTP3, Price: 51750}},
		{"tp2 hit", 51200, 50700, 51100, ExitDecision{Close: true, Reason: ExitTP2, Price: 51000}},
		{"tp1 moves stop to breakeven", 50700, 50100, 50650, ExitDecision{MoveStop: true, NewStop: 50000}},
		// A bar spanning both stop and TP3 resolves to the stop.
		{"stop beats tp3 on wide bar", 51800, 48900, 50000, ExitDecision{Close: true, Reason: ExitStopLoss, Price: 49000}},
		{"tp3 beats tp2", 51800, 50700, 51600, ExitDecision{Close: true, Reason: ExitTP3, Price: 51750}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckExit(openLong(), tt.high, tt.low, tt.close)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckExitShort(t *testing.T) {
	tests := []struct {
		name             string
		high, low, close float64
		want             ExitDecision
	}{
		{"no touch", 50400, 49500, 49800, ExitDecision{}},
		{"stop hit", 51100, 50200, 50800, ExitDecision{Close: true, Reason: ExitStopLoss, Price: 51000}},
		{"tp3 hit", 48800, 48200, 48400, ExitDecision{Close: true, Reason: ExitTP3, Price: 48250}},
		{"tp2 hit", 49300, 48900, 49100, ExitDecision{Close: true, Reason: ExitTP2, Price: 49000}},
		{"tp1 moves stop to breakeven", 49900, 49300, 49500, ExitDecision{MoveStop: true, NewStop: 50000}},
		{"stop beats tp3 on wide bar", 51100, 48200, 49500, ExitDecision{Close: true, Reason: ExitStopLoss, Price: 51000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckExit(openShort(), tt.high, tt.low, tt.close)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckExitTP1OnlyRatchetsOnce(t *testing.T) {
	tr := openLong()
	got := CheckExit(tr, 50700, 50100, 50650)
	assert.True(t, got.MoveStop)
	assert.InDelta(t, 50000, got.NewStop, 1e-9)

	// Once the stop sits at breakeven, revisiting TP1 does nothing.
	tr.StopLoss = 50000
	got = CheckExit(tr, 50700, 50100, 50650)
	assert.Equal(t, ExitDecision{}, got)
}

func TestCheckExitEmergencyBounds(t *testing.T) {
	t.Run("long leveraged loss past floor", func(t *testing.T) {
		tr := openLong()
		tr.StopLoss = 0 // no stop set, emergency is the backstop
		// close at 47500 is -5% spot, -25% at 5x
		got := CheckExit(tr, 49500, 47400, 47500)
		assert.Equal(t, ExitDecision{Close: true, Reason: ExitEmergencyStop, Price: 47500}, got)
	})

	t.Run("long leveraged gain past ceiling", func(t *testing.T) {
		tr := openLong()
		tr.TP1, tr.TP2, tr.TP3 = 0, 0, 0
		// close at 53500 is +7% spot, +35% at 5x
		got := CheckExit(tr, 53600, 52000, 53500)
		assert.Equal(t, ExitDecision{Close: true, Reason: ExitEmergencyTake, Price: 53500}, got)
	})

	t.Run("short leveraged loss past floor", func(t *testing.T) {
		tr := openShort()
		tr.StopLoss = 0
		got := CheckExit(tr, 52600, 51800, 52500)
		assert.Equal(t, ExitDecision{Close: true, Reason: ExitEmergencyStop, Price: 52500}, got)
	})

	t.Run("inside bounds holds", func(t *testing.T) {
		tr := openLong()
		tr.StopLoss = 0
		tr.TP1, tr.TP2, tr.TP3 = 0, 0, 0
		got := CheckExit(tr, 50500, 49500, 50200)
		assert.Equal(t, ExitDecision{}, got)
	})
}

func TestCheckExitClosedTradeIsInert(t *testing.T) {
	tr := openLong()
	tr.Status = db.StatusWin
	got := CheckExit(tr, 40000, 39000, 39500)
	assert.Equal(t, ExitDecision{}, got)
}
