package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSMA(t *testing.T) {
	assert.Equal(t, []float64{2, 3, 4}, SMA([]float64{1, 2, 3, 4, 5}, 3))
	assert.Nil(t, SMA([]float64{1, 2}, 3))
}

func TestEMA(t *testing.T) {
	ema := EMA([]float64{10, 10, 10, 20}, 3)

	assert.Len(t, ema, 4)
	assert.Equal(t, 10.0, ema[2])
	assert.InDelta(t, 15.0, ema[3], 1e-9) // alpha = 0.5
}

func TestRSI(t *testing.T) {
	t.Run("OnlyGains", func(t *testing.T) {
		rsi := RSI([]float64{1, 2, 3, 4, 5, 6}, 3)
		assert.Len(t, rsi, 3)
		for _, v := range rsi {
			assert.Equal(t, 100.0, v)
		}
	})

	t.Run("OnlyLosses", func(t *testing.T) {
		rsi := RSI([]float64{6, 5, 4, 3, 2}, 3)
		assert.Equal(t, []float64{0, 0}, rsi)
	})

	t.Run("Flat", func(t *testing.T) {
		assert.Equal(t, []float64{50}, RSI([]float64{1, 1, 1}, 2))
	})

	t.Run("Mixed", func(t *testing.T) {
		// changes +2, -1 -> avg gain 1, avg loss 0.5 -> rs 2
		rsi := RSI([]float64{10, 12, 11}, 2)
		assert.InDelta(t, 66.666, rsi[0], 0.01)
	})

	t.Run("Insufficient", func(t *testing.T) {
		assert.Nil(t, RSI([]float64{1, 2}, 2))
	})
}

func TestMACD(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = float64(100 + i)
	}

	res := MACD(values, 12, 26, 9)

	assert.Len(t, res.MACD, 60-(26+9-2))
	assert.Len(t, res.Signal, len(res.MACD))
	assert.Len(t, res.Histogram, len(res.MACD))
	// a steady uptrend keeps the fast average above the slow one
	assert.Greater(t, res.MACD[len(res.MACD)-1], 0.0)

	assert.Empty(t, MACD(values[:10], 12, 26, 9).MACD)
}

func TestTail(t *testing.T) {
	assert.Equal(t, []float64{3, 4}, Tail([]float64{1, 2, 3, 4}, 2))
	assert.Equal(t, []float64{1}, Tail([]float64{1}, 3))
	assert.Nil(t, Tail([]float64{1}, 0))
}
