package pattern

import "github.com/amirphl/perp-paper-trader/internal/candle"

const hammerStrength = 70

// Hammer detects hammers (long lower wick, bullish reversal) and shooting
// stars (long upper wick, bearish reversal).
type Hammer struct{}

func NewHammer() *Hammer { return &Hammer{} }

func (h *Hammer) Name() string { return "Hammer" }

func (h *Hammer) Detect(candles []candle.Candle) []Match {
	var matches []Match
	for i := range candles {
		c := candles[i]
		body := c.BodySize()
		if c.TotalRange() == 0 || body == 0 {
			continue
		}
		if c.LowerShadow() >= 2*body && c.UpperShadow() < body {
			matches = append(matches, Match{
				Index:     i,
				Name:      "Hammer",
				Direction: Bullish,
				Strength:  hammerStrength,
				Timestamp: c.Timestamp,
			})
		}
		if c.UpperShadow() >= 2*body && c.LowerShadow() < body {
			matches = append(matches, Match{
				Index:     i,
				Name:      "Shooting Star",
				Direction: Bearish,
				Strength:  hammerStrength,
				Timestamp: c.Timestamp,
			})
		}
	}
	return matches
}
