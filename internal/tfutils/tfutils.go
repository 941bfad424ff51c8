// Package tfutils maps timeframe labels to durations and orders them.
package tfutils

import (
	"sort"
	"time"
)

var durations = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// GetTimeframeDuration returns the bar duration for a label, 0 if unknown.
func GetTimeframeDuration(timeframe string) time.Duration {
	return durations[timeframe]
}

// IsValidTimeframe reports whether the label is supported.
func IsValidTimeframe(timeframe string) bool {
	return durations[timeframe] > 0
}

// SortByDuration returns the given timeframes ordered shortest first.
// Unknown timeframes sort last, alphabetically, so iteration order stays stable.
func SortByDuration(timeframes []string) []string {
	sorted := make([]string, len(timeframes))
	copy(sorted, timeframes)
	sort.Slice(sorted, func(i, j int) bool {
		di, dj := durations[sorted[i]], durations[sorted[j]]
		if di == 0 && dj == 0 {
			return sorted[i] < sorted[j]
		}
		if di == 0 {
			return false
		}
		if dj == 0 {
			return true
		}
		return di < dj
	})
	return sorted
}
