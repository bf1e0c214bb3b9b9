package strategy

import (
	"testing"
	"time"

	"kraken-auto-trader-go/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candles(closes ...float64) market.Candles {
	out := make(market.Candles, len(closes))
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = market.Candle{Time: start.Add(time.Duration(i) * time.Hour), Open: c, High: c, Low: c, Close: c}
	}
	return out
}

func ramp(from float64, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	return out
}

func testConfig(key string, params map[string]any) Config {
	return Config{Key: key, Name: key, Type: key, Parameters: params, Risk: map[string]any{}, Timeframe: "1h", Enabled: true}
}

func TestConfigLookup(t *testing.T) {
	cfg := Config{
		Parameters: map[string]any{"rsi_period": "21", "shared": 1},
		Risk:       map[string]any{"shared": 2, "stop_loss_pct": 0.05},
	}

	period, err := cfg.Int("rsi_period", 14)
	require.NoError(t, err)
	assert.Equal(t, 21, period)

	shared, _ := cfg.Int("shared", 0)
	assert.Equal(t, 1, shared, "parameters take precedence over risk")

	stop, _ := cfg.Float("stop_loss_pct", 0)
	assert.Equal(t, 0.05, stop)

	def, _ := cfg.Float("absent", 7)
	assert.Equal(t, 7.0, def)

	_, err = Config{Parameters: map[string]any{"rsi_period": "abc"}}.Int("rsi_period", 14)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigPairs(t *testing.T) {
	assert.Equal(t, []string{"ETHUSD"}, Config{Parameters: map[string]any{"symbols": []any{"ethusd"}}}.Pairs())
	assert.Nil(t, Config{Parameters: map[string]any{"pairs": ""}}.Pairs())
	assert.Nil(t, Config{}.Pairs())
}

func TestRSIStrategy(t *testing.T) {
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	s := NewRSIStrategy(testConfig("rsi", map[string]any{"rsi_period": 5}))
	require.NoError(t, s.Validate())

	t.Run("OversoldBuys", func(t *testing.T) {
		signals, err := s.GenerateSignals(Context{Pair: "ETHUSD", Candles: candles(ramp(100, -1, 20)...), Now: now})
		require.NoError(t, err)
		require.Len(t, signals, 1)
		assert.Equal(t, ActionBuy, signals[0].Action)
		assert.InDelta(t, 0.7, signals[0].Confidence, 1e-9)
		assert.Equal(t, "rsi", signals[0].Strategy)
		assert.Equal(t, now, signals[0].Timestamp)
	})

	t.Run("OverboughtSells", func(t *testing.T) {
		signals, err := s.GenerateSignals(Context{Candles: candles(ramp(100, 1, 20)...), Now: now})
		require.NoError(t, err)
		require.Len(t, signals, 1)
		assert.Equal(t, ActionSell, signals[0].Action)
	})

	t.Run("NeutralOrShortSeries", func(t *testing.T) {
		signals, err := s.GenerateSignals(Context{Candles: candles(1, 1, 1, 1, 1, 1, 1, 1)})
		require.NoError(t, err)
		assert.Empty(t, signals)

		signals, err = s.GenerateSignals(Context{Candles: candles(1, 2)})
		require.NoError(t, err)
		assert.Empty(t, signals)
	})

	t.Run("InvertedLevels", func(t *testing.T) {
		bad := NewRSIStrategy(testConfig("rsi", map[string]any{"oversold": 80, "overbought": 20}))
		assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
	})

	t.Run("UnparsableParameter", func(t *testing.T) {
		bad := NewRSIStrategy(testConfig("rsi", map[string]any{"rsi_period": "fourteen"}))
		assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
	})
}

func TestMACrossoverStrategy(t *testing.T) {
	s := NewMACrossoverStrategy(testConfig("ma_crossover", map[string]any{
		"fast_period": 2, "slow_period": 4, "ma_type": "SMA", "cooldown_bars": 1,
	}))
	require.NoError(t, s.Validate())

	t.Run("BullishCross", func(t *testing.T) {
		signals, err := s.GenerateSignals(Context{Candles: candles(10, 9, 8, 7, 6, 5, 4, 20)})
		require.NoError(t, err)
		require.Len(t, signals, 1)
		assert.Equal(t, ActionBuy, signals[0].Action)
		assert.Equal(t, "sma_crossover", signals[0].Metadata["indicator"])
		assert.GreaterOrEqual(t, signals[0].Confidence, 0.5)
	})

	t.Run("BearishCross", func(t *testing.T) {
		signals, err := s.GenerateSignals(Context{Candles: candles(1, 2, 3, 4, 5, 6, 7, 0)})
		require.NoError(t, err)
		require.Len(t, signals, 1)
		assert.Equal(t, ActionSell, signals[0].Action)
	})

	t.Run("NoCross", func(t *testing.T) {
		signals, err := s.GenerateSignals(Context{Candles: candles(ramp(1, 1, 10)...)})
		require.NoError(t, err)
		assert.Empty(t, signals)
	})

	t.Run("Validation", func(t *testing.T) {
		assert.ErrorIs(t, NewMACrossoverStrategy(testConfig("m", map[string]any{"ma_type": "wma"})).Validate(), ErrInvalidConfig)
		assert.ErrorIs(t, NewMACrossoverStrategy(testConfig("m", map[string]any{"fast_period": 60})).Validate(), ErrInvalidConfig)
	})
}

func TestMACDStrategy(t *testing.T) {
	s := NewMACDStrategy(testConfig("macd", nil))
	require.NoError(t, s.Validate())

	signals, err := s.GenerateSignals(Context{Candles: candles(ramp(100, 1, 40)...)})
	require.NoError(t, err)
	assert.Empty(t, signals, "series shorter than three slow periods is skipped")

	assert.ErrorIs(t, NewMACDStrategy(testConfig("macd", map[string]any{"fast_period": 30})).Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, NewMACDStrategy(testConfig("macd", map[string]any{"signal_period": 0})).Validate(), ErrInvalidConfig)
}

func TestCrossed(t *testing.T) {
	assert.True(t, crossed([]float64{1, 1, 3}, []float64{2, 2, 2}, 2, true))
	assert.False(t, crossed([]float64{3, 1, 3}, []float64{2, 2, 2}, 2, true))
	assert.True(t, crossed([]float64{3, 1, 3}, []float64{2, 2, 2}, 1, true))
	assert.True(t, crossed([]float64{3, 3, 1}, []float64{2, 2, 2}, 2, false))
	assert.False(t, crossed([]float64{1}, []float64{2}, 1, true))
}

func TestSupportsPair(t *testing.T) {
	s := NewRSIStrategy(testConfig("rsi", nil))
	assert.True(t, SupportsPair(s, "ETHUSD"))
	assert.False(t, SupportsPair(s, "UNKNOWN"))
}
