package indicator

import "math"

// CalculateATR computes the Wilder-smoothed Average True Range.
// True range = max(high-low, |high-prevClose|, |low-prevClose|).
func CalculateATR(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	if period <= 0 || len(highs) != n || len(lows) != n {
		return nil
	}
	if n < period+1 {
		return nanSlice(n)
	}
	tr := make([]float64, n)
	tr[0] = highs[0] - lows[0]
	for i := 1; i < n; i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	atr := nanSlice(n)
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	atr[period] = sum / float64(period)
	for i := period + 1; i < n; i++ {
		atr[i] = (atr[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return atr
}
