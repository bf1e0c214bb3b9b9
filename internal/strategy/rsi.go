package strategy

import (
	"fmt"

	"kraken-auto-trader-go/internal/indicators"
)

// RSIStrategy buys oversold and sells overbought markets.
type RSIStrategy struct {
	base
	period       int
	oversold     float64
	overbought   float64
	cooldownBars int
	threshold    float64
}

// NewRSIStrategy builds an RSI mean-reversion strategy from cfg.
func NewRSIStrategy(cfg Config) Strategy {
	s := &RSIStrategy{base: base{cfg: cfg}}
	s.period = s.intParam("rsi_period", 14)
	s.oversold = s.floatParam("oversold", 30)
	s.overbought = s.floatParam("overbought", 70)
	s.cooldownBars = s.intParam("cooldown_bars", 3)
	s.threshold = s.floatParam("signal_threshold", 0.55)
	return s
}

func (s *RSIStrategy) Validate() error {
	if err := s.validate(); err != nil {
		return err
	}
	if s.period <= 0 {
		return fmt.Errorf("%w: RSI period must be positive", ErrInvalidConfig)
	}
	if !(0 <= s.oversold && s.oversold < s.overbought && s.overbought <= 100) {
		return fmt.Errorf("%w: RSI levels must be within 0-100 with oversold < overbought", ErrInvalidConfig)
	}
	return nil
}

func (s *RSIStrategy) GenerateSignals(ctx Context) ([]Signal, error) {
	rsi := indicators.RSI(ctx.Candles.Closes(), s.period)
	if len(rsi) == 0 {
		return nil, nil
	}

	latest := rsi[len(rsi)-1]
	recent := indicators.Tail(rsi, s.cooldownBars)
	confidence := func(target float64) float64 {
		d := target - latest
		if d < 0 {
			d = -d
		}
		return clamp01(1 - d/100)
	}
	metadata := func(threshold float64) map[string]any {
		return map[string]any{
			"indicator": "rsi",
			"value":     latest,
			"threshold": threshold,
			"timeframe": ctx.Timeframe,
		}
	}

	switch {
	case latest <= s.oversold:
		c := confidence(s.oversold)
		if c >= s.threshold && all(recent, func(v float64) bool { return v <= s.oversold }) {
			reason := fmt.Sprintf("RSI %.2f below oversold %g", latest, s.oversold)
			return []Signal{s.signal(ctx, ActionBuy, c, reason, metadata(s.oversold))}, nil
		}
	case latest >= s.overbought:
		c := confidence(s.overbought)
		if c >= s.threshold && all(recent, func(v float64) bool { return v >= s.overbought }) {
			reason := fmt.Sprintf("RSI %.2f above overbought %g", latest, s.overbought)
			return []Signal{s.signal(ctx, ActionSell, c, reason, metadata(s.overbought))}, nil
		}
	}
	return nil, nil
}

func all(values []float64, pred func(float64) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}
