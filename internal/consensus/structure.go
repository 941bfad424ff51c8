package consensus

import (
	"math"

	"github.com/amirphl/perp-paper-trader/internal/candle"
)

// Swing detection and structural-stop parameters.
const (
	pivotWindow        = 3     // symmetric bars on each side confirming a swing
	stopBuffer         = 0.002 // 0.2% placed beyond the swing level
	structStopMultiple = 1.5   // ATR multiple for the structural fallback
	structTP1Multiple  = 1.5
	structTP2Multiple  = 2.5
	structTP3Multiple  = 4.0
)

// Pivot is a confirmed local extreme in the price series.
type Pivot struct {
	Index int
	Price float64
}

// FindPivotLows identifies pivot lows: bars strictly lower than every bar in
// the symmetric window around them.
func FindPivotLows(lows []float64, leftBars, rightBars int) []Pivot {
	var pivots []Pivot
	for i := leftBars; i < len(lows)-rightBars; i++ {
		current := lows[i]
		isPivot := true
		for j := 1; j <= leftBars && isPivot; j++ {
			if lows[i-j] <= current {
				isPivot = false
			}
		}
		for j := 1; j <= rightBars && isPivot; j++ {
			if lows[i+j] <= current {
				isPivot = false
			}
		}
		if isPivot {
			pivots = append(pivots, Pivot{Index: i, Price: current})
		}
	}
	return pivots
}

// FindPivotHighs identifies pivot highs symmetrically.
func FindPivotHighs(highs []float64, leftBars, rightBars int) []Pivot {
	var pivots []Pivot
	for i := leftBars; i < len(highs)-rightBars; i++ {
		current := highs[i]
		isPivot := true
		for j := 1; j <= leftBars && isPivot; j++ {
			if highs[i-j] >= current {
				isPivot = false
			}
		}
		for j := 1; j <= rightBars && isPivot; j++ {
			if highs[i+j] >= current {
				isPivot = false
			}
		}
		if isPivot {
			pivots = append(pivots, Pivot{Index: i, Price: current})
		}
	}
	return pivots
}

// StructuralStop anchors the stop to the most recent eligible swing level:
// for LONG the nearest swing low strictly below entry (with a 0.2% buffer
// beyond it), for SHORT the nearest swing high above entry. The stop distance
// is always capped at MaxStopDistancePct of entry; when no swing qualifies the
// ATR fallback (1.5x ATR, same cap) is used. Structural-path take profits sit
// at 1.5x, 2.5x and 4.0x the stop distance.
func (e *Engine) StructuralStop(candles []candle.Candle, side string, entry, atr float64) StructuralLevels {
	maxDist := entry * e.cfg.MaxStopDistancePct / 100

	var stop float64
	method := "atr"

	if side == SignalLong {
		pivots := FindPivotLows(candle.Lows(candles), pivotWindow, pivotWindow)
		for i := len(pivots) - 1; i >= 0; i-- {
			level := pivots[i].Price
			if level >= entry*(1-stopBuffer) {
				continue
			}
			candidate := level * (1 - stopBuffer)
			if entry-candidate <= maxDist {
				stop = candidate
				method = "structure"
				break
			}
		}
	} else {
		pivots := FindPivotHighs(candle.Highs(candles), pivotWindow, pivotWindow)
		for i := len(pivots) - 1; i >= 0; i-- {
			level := pivots[i].Price
			if level <= entry*(1+stopBuffer) {
				continue
			}
			candidate := level * (1 + stopBuffer)
			if candidate-entry <= maxDist {
				stop = candidate
				method = "structure"
				break
			}
		}
	}

	if method == "atr" {
		dist := structStopMultiple * atr
		if math.IsNaN(atr) || atr <= 0 {
			dist = entry * 0.02
		}
		if dist > maxDist {
			dist = maxDist
		}
		if side == SignalLong {
			stop = entry - dist
		} else {
			stop = entry + dist
		}
	}

	dist := math.Abs(entry - stop)
	levels := StructuralLevels{
		Entry:           entry,
		StopLoss:        stop,
		Method:          method,
		StopDistancePct: dist / entry * 100,
	}
	if side == SignalLong {
		levels.TP1 = entry + structTP1Multiple*dist
		levels.TP2 = entry + structTP2Multiple*dist
		levels.TP3 = entry + structTP3Multiple*dist
	} else {
		levels.TP1 = entry - structTP1Multiple*dist
		levels.TP2 = entry - structTP2Multiple*dist
		levels.TP3 = entry - structTP3Multiple*dist
	}
	return levels
}
