package consensus

import "math"

// Take-profit distance multiples of the stop distance.
const (
	atrStopMultiple = 2.0
	tp1Multiple     = 1.2
	tp2Multiple     = 2.0
	tp3Multiple     = 3.5
)

// CalculateSLTP computes the ATR-fallback stop and take-profit levels: stop
// distance 2x ATR, take profits at 1.2x, 2.0x and 3.5x the stop distance on
// the favorable side. When ATR is unavailable the stop distance defaults to
// 2% of price.
func (e *Engine) CalculateSLTP(price float64, side string, atr float64) StructuralLevels {
	dist := atrStopMultiple * atr
	if math.IsNaN(atr) || atr <= 0 {
		dist = price * 0.02
	}
	maxDist := price * e.cfg.MaxStopDistancePct / 100
	if dist > maxDist {
		dist = maxDist
	}

	levels := StructuralLevels{Entry: price, Method: "atr"}
	if side == SignalLong {
		levels.StopLoss = price - dist
		levels.TP1 = price + tp1Multiple*dist
		levels.TP2 = price + tp2Multiple*dist
		levels.TP3 = price + tp3Multiple*dist
	} else {
		levels.StopLoss = price + dist
		levels.TP1 = price - tp1Multiple*dist
		levels.TP2 = price - tp2Multiple*dist
		levels.TP3 = price - tp3Multiple*dist
	}
	levels.StopDistancePct = dist / price * 100
	return levels
}
