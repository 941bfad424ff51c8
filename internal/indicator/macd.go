package indicator

import "math"

// MACDResult holds the MACD line, its signal line, and the histogram.
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// CalculateMACD computes MACD as the difference of a fast and slow EMA, the
// signal line as an EMA of that difference, and the histogram as line minus
// signal.
func CalculateMACD(prices []float64, fast, slow, signal int) *MACDResult {
	n := len(prices)
	res := &MACDResult{
		Line:      nanSlice(n),
		Signal:    nanSlice(n),
		Histogram: nanSlice(n),
	}
	if fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow || n < slow {
		return res
	}

	fastEMA := CalculateEMA(prices, fast)
	slowEMA := CalculateEMA(prices, slow)
	for i := slow - 1; i < n; i++ {
		res.Line[i] = fastEMA[i] - slowEMA[i]
	}

	// Signal line is an EMA over the valid portion of the MACD line.
	valid := res.Line[slow-1:]
	sigEMA := CalculateEMA(valid, signal)
	for i, v := range sigEMA {
		res.Signal[slow-1+i] = v
	}
	for i := 0; i < n; i++ {
		if !math.IsNaN(res.Line[i]) && !math.IsNaN(res.Signal[i]) {
			res.Histogram[i] = res.Line[i] - res.Signal[i]
		}
	}
	return res
}
