package consensus

import (
	"math"

	"github.com/amirphl/perp-paper-trader/internal/candle"
	"github.com/amirphl/perp-paper-trader/internal/indicator"
)

// Market regime labels, derived from the 4h timeframe.
const (
	RegimeTrendingUp   = "TRENDING_UP"
	RegimeTrendingDown = "TRENDING_DOWN"
	RegimeRanging      = "RANGING"
)

// DetectRegime classifies the higher-timeframe trend: price stacked above
// EMA21 above EMA50 is an uptrend, the mirror is a downtrend, anything else is
// ranging. Insufficient history classifies as ranging.
func DetectRegime(candles []candle.Candle) string {
	if len(candles) < emaLongPeriod {
		return RegimeRanging
	}
	closes := candle.Closes(candles)
	price := closes[len(closes)-1]
	ema21 := indicator.Last(indicator.CalculateEMA(closes, emaSlowPeriod))
	ema50 := indicator.Last(indicator.CalculateEMA(closes, emaLongPeriod))
	if math.IsNaN(ema21) || math.IsNaN(ema50) {
		return RegimeRanging
	}
	switch {
	case price > ema21 && ema21 > ema50:
		return RegimeTrendingUp
	case price < ema21 && ema21 < ema50:
		return RegimeTrendingDown
	default:
		return RegimeRanging
	}
}

// VolatilityCheck is the tradability verdict for a market.
type VolatilityCheck struct {
	Tradable bool
	Reason   string
}

// CheckVolatility rejects dead and chaotic markets. A market is tradable when
// it shows movement (Bollinger bands expanding beyond 1.1x their recent
// average width, or EMA21 sloping more than 0.3% over the last 5 bars) and
// its ATR sits within 0.7x-3.0x of its own recent mean.
func CheckVolatility(candles []candle.Candle) VolatilityCheck {
	if len(candles) < emaLongPeriod {
		return VolatilityCheck{Tradable: false, Reason: "insufficient history"}
	}
	closes := candle.Closes(candles)
	highs := candle.Highs(candles)
	lows := candle.Lows(candles)
	n := len(closes)

	bb := indicator.CalculateBollingerBands(closes, bbPeriod, bbStdDev)
	width := bb.BandWidth(n - 1)
	avgWidth, widthCount := 0.0, 0
	for i := n - bbPeriod; i < n; i++ {
		w := bb.BandWidth(i)
		if !math.IsNaN(w) {
			avgWidth += w
			widthCount++
		}
	}
	expanding := false
	if widthCount > 0 && !math.IsNaN(width) {
		avgWidth /= float64(widthCount)
		expanding = width > avgWidth*1.1
	}

	ema21 := indicator.CalculateEMA(closes, emaSlowPeriod)
	sloping := false
	if n >= 6 && !math.IsNaN(ema21[n-1]) && !math.IsNaN(ema21[n-6]) && ema21[n-6] != 0 {
		slope := math.Abs(ema21[n-1]-ema21[n-6]) / ema21[n-6]
		sloping = slope > 0.003
	}

	if !expanding && !sloping {
		return VolatilityCheck{Tradable: false, Reason: "market too quiet"}
	}

	atr := indicator.CalculateATR(highs, lows, closes, atrPeriod)
	current := indicator.Last(atr)
	avgATR, atrCount := 0.0, 0
	for i := n - bbPeriod; i < n; i++ {
		if !math.IsNaN(atr[i]) {
			avgATR += atr[i]
			atrCount++
		}
	}
	if atrCount > 0 && !math.IsNaN(current) {
		avgATR /= float64(atrCount)
		if avgATR > 0 {
			ratio := current / avgATR
			if ratio < 0.7 {
				return VolatilityCheck{Tradable: false, Reason: "volatility collapsing"}
			}
			if ratio > 3.0 {
				return VolatilityCheck{Tradable: false, Reason: "volatility spike"}
			}
		}
	}
	return VolatilityCheck{Tradable: true}
}
