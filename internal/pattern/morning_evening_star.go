package pattern

import "github.com/amirphl/perp-paper-trader/internal/candle"

const starStrength = 85

// Star detects three-candle morning star (bullish) and evening star (bearish)
// reversals: a strong directional candle, an indecision candle, then a strong
// candle the other way closing beyond the midpoint of the first body.
type Star struct{}

func NewStar() *Star { return &Star{} }

func (s *Star) Name() string { return "Star" }

func (s *Star) Detect(candles []candle.Candle) []Match {
	var matches []Match
	for i := 2; i < len(candles); i++ {
		first := candles[i-2]
		middle := candles[i-1]
		last := candles[i]

		if !isSmallBody(middle) && middle.BodySize() >= first.BodySize()*0.5 {
			continue
		}
		firstMid := (first.Open + first.Close) / 2

		if first.IsBearish() && last.IsBullish() && last.Close > firstMid {
			matches = append(matches, Match{
				Index:     i,
				Name:      "Morning Star",
				Direction: Bullish,
				Strength:  starStrength,
				Timestamp: last.Timestamp,
			})
		}
		if first.IsBullish() && last.IsBearish() && last.Close < firstMid {
			matches = append(matches, Match{
				Index:     i,
				Name:      "Evening Star",
				Direction: Bearish,
				Strength:  starStrength,
				Timestamp: last.Timestamp,
			})
		}
	}
	return matches
}
