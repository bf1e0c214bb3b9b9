package strategy

import (
	"fmt"
	"math"

	"kraken-auto-trader-go/internal/indicators"
)

// MACDStrategy trades crossovers of the MACD line and its signal line.
type MACDStrategy struct {
	base
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
	cooldownBars int
	threshold    float64
}

// NewMACDStrategy builds a MACD momentum strategy from cfg.
func NewMACDStrategy(cfg Config) Strategy {
	s := &MACDStrategy{base: base{cfg: cfg}}
	s.fastPeriod = s.intParam("fast_period", 12)
	s.slowPeriod = s.intParam("slow_period", 26)
	s.signalPeriod = s.intParam("signal_period", 9)
	s.cooldownBars = s.intParam("cooldown_bars", 2)
	s.threshold = s.floatParam("signal_threshold", 0.55)
	return s
}

func (s *MACDStrategy) Validate() error {
	if err := s.validate(); err != nil {
		return err
	}
	if s.fastPeriod <= 0 || s.slowPeriod <= 0 || s.signalPeriod <= 0 {
		return fmt.Errorf("%w: MACD periods must be positive", ErrInvalidConfig)
	}
	if s.fastPeriod >= s.slowPeriod {
		return fmt.Errorf("%w: MACD fast period must be less than slow period", ErrInvalidConfig)
	}
	return nil
}

func (s *MACDStrategy) GenerateSignals(ctx Context) ([]Signal, error) {
	closes := ctx.Candles.Closes()
	minLen := max(s.fastPeriod, s.slowPeriod, s.signalPeriod) * 3
	if len(closes) < minLen {
		return nil, nil
	}

	res := indicators.MACD(closes, s.fastPeriod, s.slowPeriod, s.signalPeriod)
	if len(res.MACD) == 0 {
		return nil, nil
	}

	last := len(res.MACD) - 1
	macd, sig, hist := res.MACD[last], res.Signal[last], res.Histogram[last]
	delta := macd - sig
	confidence := math.Max(s.threshold, clamp01(math.Abs(delta)))
	metadata := map[string]any{
		"indicator": "macd",
		"macd":      macd,
		"signal":    sig,
		"hist":      hist,
	}

	var signals []Signal
	if crossed(res.MACD, res.Signal, s.cooldownBars, true) && hist >= 0 {
		reason := fmt.Sprintf("MACD crossover bullish (delta=%.4f)", delta)
		signals = append(signals, s.signal(ctx, ActionBuy, confidence, reason, metadata))
	}
	if crossed(res.MACD, res.Signal, s.cooldownBars, false) && hist <= 0 {
		reason := fmt.Sprintf("MACD crossover bearish (delta=%.4f)", delta)
		signals = append(signals, s.signal(ctx, ActionSell, confidence, reason, metadata))
	}
	return signals, nil
}
