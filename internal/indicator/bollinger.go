package indicator

import "math"

// BollingerResult holds the three Bollinger band series.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// CalculateBollingerBands computes a rolling mean band with upper and lower
// bands at k population standard deviations.
func CalculateBollingerBands(prices []float64, period int, k float64) *BollingerResult {
	n := len(prices)
	res := &BollingerResult{
		Upper:  nanSlice(n),
		Middle: nanSlice(n),
		Lower:  nanSlice(n),
	}
	if period <= 0 || n < period {
		return res
	}
	res.Middle = CalculateSMA(prices, period)
	for i := period - 1; i < n; i++ {
		mean := res.Middle[i]
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := prices[j] - mean
			variance += d * d
		}
		std := math.Sqrt(variance / float64(period))
		res.Upper[i] = mean + k*std
		res.Lower[i] = mean - k*std
	}
	return res
}

// BandWidth returns the normalized band width (upper-lower)/middle at index i,
// or NaN when the bands are not available there.
func (b *BollingerResult) BandWidth(i int) float64 {
	if i < 0 || i >= len(b.Middle) {
		return math.NaN()
	}
	mid := b.Middle[i]
	if math.IsNaN(mid) || mid == 0 {
		return math.NaN()
	}
	return (b.Upper[i] - b.Lower[i]) / mid
}
