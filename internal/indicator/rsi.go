package indicator

import "math"

// CalculateRSI computes the Wilder-smoothed Relative Strength Index.
// A window with zero average loss and positive average gain yields 100; a
// completely flat window (no gains and no losses) yields the neutral 50
// instead of dividing by zero.
func CalculateRSI(prices []float64, period int) []float64 {
	if period <= 0 {
		return nil
	}
	if len(prices) < period {
		return nanSlice(len(prices))
	}
	rsi := make([]float64, len(prices))
	for i := 0; i < period-1; i++ {
		rsi[i] = math.NaN()
	}
	var gain, loss float64
	for i := 1; i < period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain += change
		} else {
			loss += -change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	rsi[period-1] = rsiValue(avgGain, avgLoss)
	for i := period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain = change
			loss = 0
		} else {
			gain = 0
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		rsi[i] = rsiValue(avgGain, avgLoss)
	}
	return rsi
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
