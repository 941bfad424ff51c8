package pattern

import "github.com/amirphl/perp-paper-trader/internal/candle"

const engulfingStrength = 80

// Engulfing detects bullish and bearish engulfing patterns where one candle's
// body completely engulfs the previous candle's body.
type Engulfing struct{}

func NewEngulfing() *Engulfing { return &Engulfing{} }

func (e *Engulfing) Name() string { return "Engulfing" }

func (e *Engulfing) Detect(candles []candle.Candle) []Match {
	var matches []Match
	for i := 1; i < len(candles); i++ {
		curr := candles[i]
		prev := candles[i-1]

		currHigh, currLow := bodyBounds(curr)
		prevHigh, prevLow := bodyBounds(prev)
		engulfs := currHigh >= prevHigh && currLow <= prevLow

		if curr.IsBullish() && prev.IsBearish() && engulfs {
			matches = append(matches, Match{
				Index:     i,
				Name:      "Bullish Engulfing",
				Direction: Bullish,
				Strength:  engulfingStrength,
				Timestamp: curr.Timestamp,
			})
		}
		if curr.IsBearish() && prev.IsBullish() && engulfs {
			matches = append(matches, Match{
				Index:     i,
				Name:      "Bearish Engulfing",
				Direction: Bearish,
				Strength:  engulfingStrength,
				Timestamp: curr.Timestamp,
			})
		}
	}
	return matches
}

func bodyBounds(c candle.Candle) (high, low float64) {
	if c.Close > c.Open {
		return c.Close, c.Open
	}
	return c.Open, c.Close
}
