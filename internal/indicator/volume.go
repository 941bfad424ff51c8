package indicator

import "math"

// Volume classification relative to the rolling mean.
const (
	VolumeHigh   = "HIGH"
	VolumeNormal = "NORMAL"
	VolumeLow    = "LOW"
)

// VolumeRatio returns the last volume divided by the simple moving average of
// volume over the period. NaN when there is not enough history or the rolling
// mean is zero.
func VolumeRatio(volumes []float64, period int) float64 {
	if period <= 0 || len(volumes) < period {
		return math.NaN()
	}
	avg := Last(CalculateSMA(volumes, period))
	if math.IsNaN(avg) || avg == 0 {
		return math.NaN()
	}
	return volumes[len(volumes)-1] / avg
}

// ClassifyVolume maps a volume ratio to HIGH (>1.5), LOW (<0.5) or NORMAL.
// NaN classifies as NORMAL so missing volume history never blocks a signal.
func ClassifyVolume(ratio float64) string {
	switch {
	case math.IsNaN(ratio):
		return VolumeNormal
	case ratio > 1.5:
		return VolumeHigh
	case ratio < 0.5:
		return VolumeLow
	default:
		return VolumeNormal
	}
}
