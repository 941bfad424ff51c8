package indicator

import "math"

// CalculateStochRSI renormalizes RSI against its own rolling min/max over the
// same period and smooths the result with an SMA. Values are in [0,1]. A flat
// RSI window (no range) maps to the neutral 0.5.
func CalculateStochRSI(prices []float64, period, smooth int) []float64 {
	n := len(prices)
	if period <= 0 || smooth <= 0 {
		return nil
	}
	rsi := CalculateRSI(prices, period)
	if rsi == nil || n < 2*period {
		return nanSlice(n)
	}

	raw := nanSlice(n)
	for i := 2*period - 2; i < n; i++ {
		lowest := math.Inf(1)
		highest := math.Inf(-1)
		ok := true
		for j := i - period + 1; j <= i; j++ {
			v := rsi[j]
			if math.IsNaN(v) {
				ok = false
				break
			}
			if v < lowest {
				lowest = v
			}
			if v > highest {
				highest = v
			}
		}
		if !ok {
			continue
		}
		if highest == lowest {
			raw[i] = 0.5
		} else {
			raw[i] = (rsi[i] - lowest) / (highest - lowest)
		}
	}

	if smooth == 1 {
		return raw
	}
	out := nanSlice(n)
	for i := range raw {
		sum := 0.0
		count := 0
		for j := i - smooth + 1; j <= i; j++ {
			if j < 0 || math.IsNaN(raw[j]) {
				count = 0
				break
			}
			sum += raw[j]
			count++
		}
		if count == smooth {
			out[i] = sum / float64(smooth)
		}
	}
	return out
}
