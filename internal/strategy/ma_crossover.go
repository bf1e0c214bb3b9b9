package strategy

import (
	"fmt"
	"math"
	"strings"

	"kraken-auto-trader-go/internal/indicators"
)

// MACrossoverStrategy follows trends using fast/slow moving average crossovers.
type MACrossoverStrategy struct {
	base
	fastPeriod   int
	slowPeriod   int
	maType       string
	cooldownBars int
	threshold    float64
}

// NewMACrossoverStrategy builds a moving average crossover strategy from cfg.
func NewMACrossoverStrategy(cfg Config) Strategy {
	s := &MACrossoverStrategy{base: base{cfg: cfg}}
	s.fastPeriod = s.intParam("fast_period", 20)
	s.slowPeriod = s.intParam("slow_period", 50)
	s.maType = strings.ToLower(cfg.String("ma_type", "ema"))
	s.cooldownBars = s.intParam("cooldown_bars", 2)
	s.threshold = s.floatParam("signal_threshold", 0.5)
	return s
}

func (s *MACrossoverStrategy) Validate() error {
	if err := s.validate(); err != nil {
		return err
	}
	if s.fastPeriod <= 0 || s.slowPeriod <= 0 {
		return fmt.Errorf("%w: moving average periods must be positive", ErrInvalidConfig)
	}
	if s.fastPeriod >= s.slowPeriod {
		return fmt.Errorf("%w: fast period must be less than slow period", ErrInvalidConfig)
	}
	if s.maType != "sma" && s.maType != "ema" {
		return fmt.Errorf("%w: ma_type must be 'sma' or 'ema'", ErrInvalidConfig)
	}
	return nil
}

func (s *MACrossoverStrategy) average(values []float64, period int) []float64 {
	if s.maType == "sma" {
		return indicators.SMA(values, period)
	}
	return indicators.EMA(values, period)
}

func (s *MACrossoverStrategy) GenerateSignals(ctx Context) ([]Signal, error) {
	closes := ctx.Candles.Closes()
	if len(closes) < max(s.fastPeriod, s.slowPeriod)*2 {
		return nil, nil
	}

	fast := s.average(closes, s.fastPeriod)
	slow := s.average(closes, s.slowPeriod)
	if len(fast) == 0 || len(slow) == 0 {
		return nil, nil
	}

	latestFast, latestSlow := fast[len(fast)-1], slow[len(slow)-1]
	ratio := 0.0
	if latestSlow != 0 {
		ratio = latestFast / latestSlow
	}
	confidence := math.Max(s.threshold, clamp01(math.Abs(ratio)-1+s.threshold))
	metadata := map[string]any{
		"indicator": s.maType + "_crossover",
		"fast_ma":   latestFast,
		"slow_ma":   latestSlow,
	}
	label := strings.ToUpper(s.maType)

	var signals []Signal
	if crossed(fast, slow, s.cooldownBars, true) {
		reason := fmt.Sprintf("%s crossover bullish (%.4f)", label, ratio)
		signals = append(signals, s.signal(ctx, ActionBuy, confidence, reason, metadata))
	}
	if crossed(fast, slow, s.cooldownBars, false) {
		reason := fmt.Sprintf("%s crossover bearish (%.4f)", label, ratio)
		signals = append(signals, s.signal(ctx, ActionSell, confidence, reason, metadata))
	}
	return signals, nil
}
