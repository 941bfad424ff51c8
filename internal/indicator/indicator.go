// Package indicator provides technical analysis indicators for financial markets.
//
// Every function operates on a plain ordered series and returns a slice of the
// same length, with math.NaN() marking entries that do not have enough history
// yet. Callers are expected to treat NaN as "not available" rather than an
// error; insufficient data never panics.
package indicator

import "math"

// nanSlice returns a slice of n NaN values.
func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// CalculateSMA computes a simple moving average.
func CalculateSMA(values []float64, period int) []float64 {
	if period <= 0 {
		return nil
	}
	if len(values) < period {
		return nanSlice(len(values))
	}
	sma := make([]float64, len(values))
	for i := 0; i < period-1; i++ {
		sma[i] = math.NaN()
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	sma[period-1] = sum / float64(period)
	for i := period; i < len(values); i++ {
		sum += values[i] - values[i-period]
		sma[i] = sum / float64(period)
	}
	return sma
}

// CalculateEMA computes an exponential moving average with smoothing factor
// 2/(period+1), seeded with the SMA of the first period values.
func CalculateEMA(values []float64, period int) []float64 {
	if period <= 0 {
		return nil
	}
	if len(values) < period {
		return nanSlice(len(values))
	}
	ema := make([]float64, len(values))
	for i := 0; i < period-1; i++ {
		ema[i] = math.NaN()
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema[period-1] = sum / float64(period)
	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema[i] = values[i]*k + ema[i-1]*(1-k)
	}
	return ema
}

// Last returns the final value of a series, or NaN when the series is empty.
func Last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}
