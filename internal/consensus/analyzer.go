package consensus

import (
	"math"

	"github.com/amirphl/perp-paper-trader/internal/candle"
	"github.com/amirphl/perp-paper-trader/internal/indicator"
)

// Indicator periods used by the analyzer. These are part of the scoring
// contract and must not drift independently of the weight table below.
const (
	emaFastPeriod  = 9
	emaSlowPeriod  = 21
	emaLongPeriod  = 50
	rsiPeriod      = 14
	macdFast       = 12
	macdSlow       = 26
	macdSignal     = 9
	bbPeriod       = 20
	bbStdDev       = 2.0
	atrPeriod      = 14
	volumePeriod   = 20
	stochRSIPeriod = 14
	stochRSISmooth = 3
)

// Analyze scores a single timeframe. The score starts neutral at 50 and each
// indicator moves it by a fixed weight:
//
//	EMA9/EMA21 cross        +-10
//	close vs EMA50          +-5
//	RSI <30/+10 >70/-10 <45/+3 >55/-3
//	MACD line vs signal     +-8
//	MACD histogram sign     +-5
//	close outside BB        +7 oversold / -7 overbought
//	HIGH volume with trend  +-5
//	last 3 candle bias      +-5
//
// Clamped to [0,100]. LONG at >= LongThreshold, SHORT at <= ShortThreshold.
// Fewer than MinCandles candles yields the neutral result, never an error.
func (e *Engine) Analyze(candles []candle.Candle, timeframe string) TimeframeResult {
	res := TimeframeResult{
		Timeframe:   timeframe,
		Score:       50,
		Signal:      SignalSkip,
		VolumeClass: indicator.VolumeNormal,
	}
	if len(candles) < e.cfg.MinCandles {
		return res
	}

	closes := candle.Closes(candles)
	highs := candle.Highs(candles)
	lows := candle.Lows(candles)
	volumes := candle.Volumes(candles)

	res.Close = closes[len(closes)-1]
	res.EMAFast = indicator.Last(indicator.CalculateEMA(closes, emaFastPeriod))
	res.EMASlow = indicator.Last(indicator.CalculateEMA(closes, emaSlowPeriod))
	res.EMALong = indicator.Last(indicator.CalculateEMA(closes, emaLongPeriod))
	res.RSI = indicator.Last(indicator.CalculateRSI(closes, rsiPeriod))

	macd := indicator.CalculateMACD(closes, macdFast, macdSlow, macdSignal)
	res.MACDLine = indicator.Last(macd.Line)
	res.MACDSignal = indicator.Last(macd.Signal)
	res.MACDHist = indicator.Last(macd.Histogram)

	bb := indicator.CalculateBollingerBands(closes, bbPeriod, bbStdDev)
	res.BBUpper = indicator.Last(bb.Upper)
	res.BBMiddle = indicator.Last(bb.Middle)
	res.BBLower = indicator.Last(bb.Lower)

	res.ATR = indicator.Last(indicator.CalculateATR(highs, lows, closes, atrPeriod))
	res.StochRSI = indicator.Last(indicator.CalculateStochRSI(closes, stochRSIPeriod, stochRSISmooth))
	res.VolumeRatio = indicator.VolumeRatio(volumes, volumePeriod)
	res.VolumeClass = indicator.ClassifyVolume(res.VolumeRatio)

	score := 50.0
	trendUp := res.EMAFast > res.EMASlow

	if !math.IsNaN(res.EMAFast) && !math.IsNaN(res.EMASlow) {
		if trendUp {
			score += 10
		} else {
			score -= 10
		}
	}
	if !math.IsNaN(res.EMALong) {
		if res.Close > res.EMALong {
			score += 5
		} else {
			score -= 5
		}
	}
	if !math.IsNaN(res.RSI) {
		switch {
		case res.RSI < 30:
			score += 10
		case res.RSI > 70:
			score -= 10
		case res.RSI < 45:
			score += 3
		case res.RSI > 55:
			score -= 3
		}
	}
	if !math.IsNaN(res.MACDLine) && !math.IsNaN(res.MACDSignal) {
		if res.MACDLine > res.MACDSignal {
			score += 8
		} else {
			score -= 8
		}
	}
	if !math.IsNaN(res.MACDHist) {
		if res.MACDHist > 0 {
			score += 5
		} else if res.MACDHist < 0 {
			score -= 5
		}
	}
	if !math.IsNaN(res.BBUpper) && !math.IsNaN(res.BBLower) {
		if res.Close < res.BBLower {
			score += 7
		} else if res.Close > res.BBUpper {
			score -= 7
		}
	}
	if res.VolumeClass == indicator.VolumeHigh {
		if trendUp {
			score += 5
		} else {
			score -= 5
		}
	}

	bullish, bearish := recentBias(candles, 3)
	if bullish >= 2 {
		score += 5
	} else if bearish >= 2 {
		score -= 5
	}

	res.Score = clampScore(score)
	switch {
	case res.Score >= e.cfg.LongThreshold:
		res.Signal = SignalLong
	case res.Score <= e.cfg.ShortThreshold:
		res.Signal = SignalShort
	}
	return res
}

// recentBias counts bullish and bearish candles among the last n.
func recentBias(candles []candle.Candle, n int) (bullish, bearish int) {
	start := len(candles) - n
	if start < 0 {
		start = 0
	}
	for i := start; i < len(candles); i++ {
		if candles[i].IsBullish() {
			bullish++
		} else if candles[i].IsBearish() {
			bearish++
		}
	}
	return bullish, bearish
}
