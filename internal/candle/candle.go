// Package candle
package candle

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/amirphl/perp-paper-trader/internal/tfutils"
)

type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Source    string    `json:"source"`
}

// IsComplete checks if a candle is complete (not the currently forming bar)
func (c *Candle) IsComplete() bool {
	now := time.Now().UTC()
	candleEnd := c.Timestamp.Add(tfutils.GetTimeframeDuration(c.Timeframe))
	return now.After(candleEnd)
}

// IsBullish returns true if the candle closed above its open
func (c *Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish returns true if the candle closed below its open
func (c *Candle) IsBearish() bool {
	return c.Close < c.Open
}

// BodySize returns the absolute size of the candle body
func (c *Candle) BodySize() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// UpperShadow returns the size of the upper wick
func (c *Candle) UpperShadow() float64 {
	body := c.Open
	if c.Close > c.Open {
		body = c.Close
	}
	return c.High - body
}

// LowerShadow returns the size of the lower wick
func (c *Candle) LowerShadow() float64 {
	body := c.Open
	if c.Close < c.Open {
		body = c.Close
	}
	return body - c.Low
}

// TotalRange returns the high-low range of the candle
func (c *Candle) TotalRange() float64 {
	return c.High - c.Low
}

// Validate checks if a candle has valid data
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return errors.New("candle timestamp is zero")
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return errors.New("candle prices must be positive")
	}
	if c.High < c.Low {
		return errors.New("candle high cannot be less than low")
	}
	if c.Open < c.Low || c.Open > c.High {
		return errors.New("candle open price must be between high and low")
	}
	if c.Close < c.Low || c.Close > c.High {
		return errors.New("candle close price must be between high and low")
	}
	if c.Volume < 0 {
		return errors.New("candle volume cannot be negative")
	}
	if c.Symbol == "" {
		return errors.New("candle symbol cannot be empty")
	}
	if c.Timeframe == "" {
		return errors.New("candle timeframe cannot be empty")
	}
	return nil
}

// ValidateSeries checks every candle in the slice and enforces strictly
// increasing timestamps. A replay over a series that fails this check must
// abort rather than reorder data.
func ValidateSeries(candles []Candle) error {
	for i := range candles {
		if err := candles[i].Validate(); err != nil {
			return fmt.Errorf("invalid candle at index %d: %w", i, err)
		}
		if i > 0 && !candles[i].Timestamp.After(candles[i-1].Timestamp) {
			return fmt.Errorf("non-monotonic timestamp at index %d: %s does not follow %s",
				i, candles[i].Timestamp, candles[i-1].Timestamp)
		}
	}
	return nil
}

// SortByTimestamp sorts candles in place by ascending timestamp.
func SortByTimestamp(candles []Candle) {
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
}

// Closes extracts the close series.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}

// Highs extracts the high series.
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].High
	}
	return out
}

// Lows extracts the low series.
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Low
	}
	return out
}

// Volumes extracts the volume series.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Volume
	}
	return out
}
