package consensus

import (
	"testing"
	"time"

	"github.com/amirphl/perp-paper-trader/internal/candle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindPivots(t *testing.T) {
	lows := []float64{99, 99.2, 99.1, 97, 99.3, 99.4, 99.2, 99.5, 99.6, 99.5}

	t.Run("pivot low found", func(t *testing.T) {
		pivots := FindPivotLows(lows, 3, 3)
		require.Len(t, pivots, 1)
		assert.Equal(t, 3, pivots[0].Index)
		assert.InDelta(t, 97.0, pivots[0].Price, 1e-9)
	})

	t.Run("monotonic series has no pivot lows", func(t *testing.T) {
		assert.Empty(t, FindPivotLows([]float64{1, 2, 3, 4, 5, 6, 7, 8}, 3, 3))
	})

	t.Run("pivot high found", func(t *testing.T) {
		highs := []float64{101, 101.2, 101.1, 103, 101.3, 101.4, 101.2, 101.5}
		pivots := FindPivotHighs(highs, 3, 3)
		require.Len(t, pivots, 1)
		assert.Equal(t, 3, pivots[0].Index)
		assert.InDelta(t, 103.0, pivots[0].Price, 1e-9)
	})

	t.Run("edges are never pivots", func(t *testing.T) {
		pivots := FindPivotLows([]float64{90, 99, 99, 99, 99, 99, 91}, 3, 3)
		assert.Empty(t, pivots)
	})
}

func candlesWithLows(lows []float64) []candle.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]candle.Candle, len(lows))
	for i, lo := range lows {
		out[i] = candle.Candle{
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			Open:      lo + 0.5, High: lo + 1.0, Low: lo, Close: lo + 0.8,
			Volume: 1000, Symbol: "BTCUSDT", Timeframe: "15m",
		}
	}
	return out
}

func candlesWithHighs(highs []float64) []candle.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]candle.Candle, len(highs))
	for i, hi := range highs {
		out[i] = candle.Candle{
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			Open:      hi - 0.5, High: hi, Low: hi - 1.0, Close: hi - 0.8,
			Volume: 1000, Symbol: "BTCUSDT", Timeframe: "15m",
		}
	}
	return out
}

func TestStructuralStop(t *testing.T) {
	e := New(DefaultConfig())

	t.Run("long anchors to swing low with buffer", func(t *testing.T) {
		candles := candlesWithLows([]float64{99, 99.2, 99.1, 97, 99.3, 99.4, 99.2, 99.5, 99.6, 99.5})
		lv := e.StructuralStop(candles, SignalLong, 100, 0.5)
		assert.Equal(t, "structure", lv.Method)
		assert.InDelta(t, 97*0.998, lv.StopLoss, 1e-9)
		dist := 100 - 97*0.998
		assert.InDelta(t, 100+1.5*dist, lv.TP1, 1e-9)
		assert.InDelta(t, 100+2.5*dist, lv.TP2, 1e-9)
		assert.InDelta(t, 100+4.0*dist, lv.TP3, 1e-9)
		assert.LessOrEqual(t, lv.StopDistancePct, e.Config().MaxStopDistancePct)
	})

	t.Run("short anchors to swing high with buffer", func(t *testing.T) {
		candles := candlesWithHighs([]float64{101, 101.2, 101.1, 103, 101.3, 101.4, 101.2, 101.5})
		lv := e.StructuralStop(candles, SignalShort, 100, 0.5)
		assert.Equal(t, "structure", lv.Method)
		assert.InDelta(t, 103*1.002, lv.StopLoss, 1e-9)
		assert.Greater(t, lv.StopLoss, 100.0)
		assert.Less(t, lv.TP1, 100.0)
	})

	t.Run("swing beyond cap falls back to ATR", func(t *testing.T) {
		// Swing low at 94 sits 6% below entry, past the 4% cap.
		candles := candlesWithLows([]float64{99, 99.2, 99.1, 94, 99.3, 99.4, 99.2, 99.5})
		lv := e.StructuralStop(candles, SignalLong, 100, 0.5)
		assert.Equal(t, "atr", lv.Method)
		assert.InDelta(t, 100-1.5*0.5, lv.StopLoss, 1e-9)
	})

	t.Run("no swing uses ATR fallback with cap", func(t *testing.T) {
		candles := candlesWithLows([]float64{99, 99.1, 99.2, 99.3, 99.4, 99.5, 99.6, 99.7})
		lv := e.StructuralStop(candles, SignalLong, 100, 5.0)
		assert.Equal(t, "atr", lv.Method)
		// 1.5x ATR would be 7.5, capped at 4% of entry.
		assert.InDelta(t, 96.0, lv.StopLoss, 1e-9)
		assert.InDelta(t, 4.0, lv.StopDistancePct, 1e-9)
	})

	t.Run("zero ATR fallback uses 2 percent", func(t *testing.T) {
		candles := candlesWithLows([]float64{99, 99.1, 99.2, 99.3, 99.4, 99.5, 99.6, 99.7})
		lv := e.StructuralStop(candles, SignalShort, 100, 0)
		assert.Equal(t, "atr", lv.Method)
		assert.InDelta(t, 102.0, lv.StopLoss, 1e-9)
	})
}
