package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/perp-paper-trader/internal/candle"
	"github.com/amirphl/perp-paper-trader/internal/tfutils"
)

const (
	binanceAPIBase     = "https://api.binance.com"
	binanceMaxAttempts = 3
	binanceBaseDelay   = 2 * time.Second
	binanceMaxDelay    = 30 * time.Second
)

// BinanceSource fetches candles and last prices from the Binance public REST
// API. It implements CandleSource for the live scanner. Requests retry on
// transient failures with exponential backoff and jitter.
type BinanceSource struct {
	base   string
	client *http.Client
}

// NewBinanceSource builds a source with an optional HTTP proxy.
func NewBinanceSource(proxyURL string) (*BinanceSource, error) {
	transport := &http.Transport{}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("NewBinanceSource | invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(parsed)
	}
	return &BinanceSource{
		base: binanceAPIBase,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}, nil
}

// GetCandles fetches the most recent completed klines for the symbol.
func (b *BinanceSource) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]candle.Candle, error) {
	if !tfutils.IsValidTimeframe(timeframe) {
		return nil, fmt.Errorf("GetCandles | unsupported timeframe %q", timeframe)
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	apiURL := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d",
		b.base, apiSymbol(symbol), timeframe, limit)

	body, err := b.getWithRetry(ctx, apiURL)
	if err != nil {
		return nil, fmt.Errorf("GetCandles | %s %s: %w", symbol, timeframe, err)
	}

	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("GetCandles | decode klines: %w", err)
	}

	candles := make([]candle.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		ts, ok := parseKlineTimestamp(row[0])
		if !ok {
			continue
		}
		candles = append(candles, candle.Candle{
			Timestamp: ts,
			Open:      parseKlineNumber(row[1]),
			High:      parseKlineNumber(row[2]),
			Low:       parseKlineNumber(row[3]),
			Close:     parseKlineNumber(row[4]),
			Volume:    parseKlineNumber(row[5]),
			Symbol:    symbol,
			Timeframe: timeframe,
			Source:    "binance",
		})
	}
	return candles, nil
}

// GetCurrentPrice fetches the last traded price. A failed lookup is reported
// as absent rather than an error so open trades are simply held until the
// next tick.
func (b *BinanceSource) GetCurrentPrice(ctx context.Context, symbol string) (float64, bool, error) {
	apiURL := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", b.base, apiSymbol(symbol))

	body, err := b.getWithRetry(ctx, apiURL)
	if err != nil {
		log.Printf("GetCurrentPrice | %s: %v", symbol, err)
		return 0, false, nil
	}

	var ticker struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, false, fmt.Errorf("GetCurrentPrice | decode ticker: %w", err)
	}
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil || price <= 0 {
		return 0, false, nil
	}
	return price, true, nil
}

func (b *BinanceSource) getWithRetry(ctx context.Context, apiURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < binanceMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(attempt - 1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := b.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("network error on attempt %d: %w", attempt+1, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("API status %d on attempt %d: %s", resp.StatusCode, attempt+1, string(body))
			if !retryableStatus(resp.StatusCode) {
				return nil, lastErr
			}
			continue
		}
		if readErr != nil {
			lastErr = fmt.Errorf("read body on attempt %d: %w", attempt+1, readErr)
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("all %d attempts failed, last: %w", binanceMaxAttempts, lastErr)
}

// retryDelay doubles the base delay per attempt with +-25% jitter, capped.
func retryDelay(attempt int) time.Duration {
	delay := float64(binanceBaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(binanceMaxDelay) {
		delay = float64(binanceMaxDelay)
	}
	delay += delay * 0.25 * (2*rand.Float64() - 1)
	if delay < 0 {
		delay = float64(binanceBaseDelay)
	}
	return time.Duration(delay)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// parseKlineTimestamp reads the millisecond epoch in a kline row's open-time
// slot, which arrives as a JSON number.
func parseKlineTimestamp(v any) (time.Time, bool) {
	n, ok := v.(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(n)).UTC(), true
}

// parseKlineNumber reads a kline price/volume field, which arrives as a
// decimal string; malformed values become zero.
func parseKlineNumber(v any) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func apiSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "-", ""))
}
