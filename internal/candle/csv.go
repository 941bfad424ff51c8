package candle

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadCSV reads candles from a CSV file with header
// timestamp,open,high,low,close,volume. Timestamps are RFC3339 or unix
// milliseconds. The returned series is sorted and validated.
func LoadCSV(path, symbol, timeframe string) ([]Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadCSV | open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("LoadCSV | read %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("LoadCSV | %s has no data rows", path)
	}

	candles := make([]Candle, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) < 6 {
			return nil, fmt.Errorf("LoadCSV | row %d has %d columns, want 6", i+2, len(rec))
		}
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			return nil, fmt.Errorf("LoadCSV | row %d timestamp: %w", i+2, err)
		}
		vals := make([]float64, 5)
		for j := 0; j < 5; j++ {
			v, err := strconv.ParseFloat(rec[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("LoadCSV | row %d column %d: %w", i+2, j+2, err)
			}
			vals[j] = v
		}
		candles = append(candles, Candle{
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
			Symbol:    symbol,
			Timeframe: timeframe,
			Source:    "csv",
		})
	}

	SortByTimestamp(candles)
	if err := ValidateSeries(candles); err != nil {
		return nil, fmt.Errorf("LoadCSV | %s: %w", path, err)
	}
	return candles, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms > 1e12 {
			return time.UnixMilli(ms).UTC(), nil
		}
		return time.Unix(ms, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
