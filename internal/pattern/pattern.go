// Package pattern detects candlestick reversal and continuation patterns.
package pattern

import (
	"time"

	"github.com/amirphl/perp-paper-trader/internal/candle"
)

// Direction of a detected pattern.
const (
	Bullish = "bullish"
	Bearish = "bearish"
)

// Match represents a detected pattern occurrence.
type Match struct {
	Index     int
	Name      string
	Direction string
	Strength  float64 // 0..100
	Timestamp time.Time
}

// Detector is the interface for all candlestick pattern detectors.
type Detector interface {
	Name() string
	Detect(candles []candle.Candle) []Match
}

// DefaultDetectors returns the full detector set in evaluation order.
func DefaultDetectors() []Detector {
	return []Detector{
		NewEngulfing(),
		NewHammer(),
		NewStar(),
		NewMomentum(),
	}
}

// Scan runs all default detectors over the series and returns the strongest
// match whose index falls within the last lastN bars, or nil when nothing
// recent was found.
func Scan(candles []candle.Candle, lastN int) *Match {
	if len(candles) == 0 || lastN <= 0 {
		return nil
	}
	cutoff := len(candles) - lastN
	var best *Match
	for _, d := range DefaultDetectors() {
		for _, m := range d.Detect(candles) {
			if m.Index < cutoff {
				continue
			}
			if best == nil || m.Strength > best.Strength {
				mm := m
				best = &mm
			}
		}
	}
	return best
}

// isSmallBody reports whether the candle body is under 10% of its range,
// the doji shape the star patterns look for in their middle candle.
func isSmallBody(c candle.Candle) bool {
	r := c.TotalRange()
	if r == 0 {
		return false
	}
	return c.BodySize()/r < 0.1
}
