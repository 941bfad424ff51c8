package scanner

import (
	"context"

	"github.com/amirphl/perp-paper-trader/internal/candle"
)

// CandleSource supplies market data to the scanner. Implementations talk to
// an exchange or a local cache; transient unavailability is reported as an
// empty result, not an error.
type CandleSource interface {
	// GetCandles returns up to limit most recent completed candles,
	// oldest first.
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]candle.Candle, error)
	// GetCurrentPrice returns the latest trade price. ok is false when the
	// price is momentarily unavailable.
	GetCurrentPrice(ctx context.Context, symbol string) (price float64, ok bool, err error)
}

// SentimentSource optionally supplies a fear/greed index reading (0..100).
type SentimentSource func(ctx context.Context) (value int, ok bool)
