package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateRSI(t *testing.T) {
	t.Run("warm-up entries are NaN", func(t *testing.T) {
		prices := []float64{44, 44.5, 43.8, 44.2, 44.9, 45.1, 44.7, 45.3, 45.8, 45.5,
			46.0, 46.3, 45.9, 46.5, 46.8, 47.1}
		rsi := CalculateRSI(prices, 14)
		require.Len(t, rsi, len(prices))
		for i := 0; i < 13; i++ {
			assert.True(t, math.IsNaN(rsi[i]), "index %d should be NaN", i)
		}
		for i := 13; i < len(rsi); i++ {
			assert.False(t, math.IsNaN(rsi[i]), "index %d should be computed", i)
			assert.GreaterOrEqual(t, rsi[i], 0.0)
			assert.LessOrEqual(t, rsi[i], 100.0)
		}
	})

	t.Run("monotonic rise yields 100", func(t *testing.T) {
		prices := make([]float64, 20)
		for i := range prices {
			prices[i] = 100 + float64(i)
		}
		rsi := CalculateRSI(prices, 14)
		assert.InDelta(t, 100.0, rsi[len(rsi)-1], 1e-9)
	})

	t.Run("monotonic fall yields 0", func(t *testing.T) {
		prices := make([]float64, 20)
		for i := range prices {
			prices[i] = 100 - float64(i)
		}
		rsi := CalculateRSI(prices, 14)
		assert.InDelta(t, 0.0, rsi[len(rsi)-1], 1e-9)
	})

	t.Run("flat series defaults to neutral 50", func(t *testing.T) {
		prices := make([]float64, 30)
		for i := range prices {
			prices[i] = 100
		}
		rsi := CalculateRSI(prices, 14)
		for i := 13; i < len(rsi); i++ {
			assert.InDelta(t, 50.0, rsi[i], 1e-9, "index %d", i)
		}
	})

	t.Run("insufficient history fails closed", func(t *testing.T) {
		rsi := CalculateRSI([]float64{1, 2, 3}, 14)
		require.Len(t, rsi, 3)
		for _, v := range rsi {
			assert.True(t, math.IsNaN(v))
		}
	})

	t.Run("invalid period", func(t *testing.T) {
		assert.Nil(t, CalculateRSI([]float64{1, 2, 3}, 0))
	})
}
