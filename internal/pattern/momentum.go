package pattern

import "github.com/amirphl/perp-paper-trader/internal/candle"

const momentumStrength = 65

// Momentum detects three consecutive same-direction candles with expanding
// bodies and above-average volume on the last bar (surge up or dump down).
type Momentum struct{}

func NewMomentum() *Momentum { return &Momentum{} }

func (m *Momentum) Name() string { return "Momentum" }

func (m *Momentum) Detect(candles []candle.Candle) []Match {
	var matches []Match
	for i := 2; i < len(candles); i++ {
		a, b, c := candles[i-2], candles[i-1], candles[i]

		expanding := b.BodySize() > a.BodySize() && c.BodySize() > b.BodySize()
		if !expanding || !volumeConfirmed(candles, i) {
			continue
		}
		if a.IsBullish() && b.IsBullish() && c.IsBullish() {
			matches = append(matches, Match{
				Index:     i,
				Name:      "Momentum Surge",
				Direction: Bullish,
				Strength:  momentumStrength,
				Timestamp: c.Timestamp,
			})
		}
		if a.IsBearish() && b.IsBearish() && c.IsBearish() {
			matches = append(matches, Match{
				Index:     i,
				Name:      "Momentum Dump",
				Direction: Bearish,
				Strength:  momentumStrength,
				Timestamp: c.Timestamp,
			})
		}
	}
	return matches
}

// volumeConfirmed checks the bar's volume against the mean of up to the last
// 20 bars before it.
func volumeConfirmed(candles []candle.Candle, i int) bool {
	start := i - 20
	if start < 0 {
		start = 0
	}
	if start == i {
		return false
	}
	sum := 0.0
	for j := start; j < i; j++ {
		sum += candles[j].Volume
	}
	avg := sum / float64(i-start)
	return avg > 0 && candles[i].Volume > avg*1.2
}
