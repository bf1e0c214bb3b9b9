package risk

import (
	"errors"
	"fmt"

	"github.com/spf13/cast"
)

// ErrInvalidLimits is returned when risk parameters are outside their bounds.
var ErrInvalidLimits = errors.New("invalid risk limits")

// Limits are the risk parameters applied to one signal.
type Limits struct {
	PositionSize       float64 `json:"position_size"`
	StopLoss           float64 `json:"stop_loss"`
	TakeProfit         float64 `json:"take_profit"`
	MaxDailyLoss       float64 `json:"max_daily_loss"`
	MaxDailyTrades     int     `json:"max_daily_trades"`
	MinTradeGapMinutes int     `json:"min_trade_gap_minutes"`
	MaxPositions       int     `json:"max_positions"`
}

// DefaultLimits returns the limits used when a strategy sets no overrides.
func DefaultLimits() Limits {
	return Limits{
		PositionSize:       0.02,
		StopLoss:           0.02,
		TakeProfit:         0.04,
		MaxDailyLoss:       0.02,
		MaxDailyTrades:     5,
		MinTradeGapMinutes: 60,
		MaxPositions:       3,
	}
}

// limitKeys maps accepted override keys, including *_pct aliases, to setters.
var limitKeys = map[string]func(*Limits, any) error{
	"position_size":         setFloat(func(l *Limits) *float64 { return &l.PositionSize }),
	"position_size_pct":     setFloat(func(l *Limits) *float64 { return &l.PositionSize }),
	"stop_loss":             setFloat(func(l *Limits) *float64 { return &l.StopLoss }),
	"stop_loss_pct":         setFloat(func(l *Limits) *float64 { return &l.StopLoss }),
	"take_profit":           setFloat(func(l *Limits) *float64 { return &l.TakeProfit }),
	"take_profit_pct":       setFloat(func(l *Limits) *float64 { return &l.TakeProfit }),
	"max_daily_loss":        setFloat(func(l *Limits) *float64 { return &l.MaxDailyLoss }),
	"max_daily_loss_pct":    setFloat(func(l *Limits) *float64 { return &l.MaxDailyLoss }),
	"max_daily_trades":      setInt(func(l *Limits) *int { return &l.MaxDailyTrades }),
	"min_trade_gap_minutes": setInt(func(l *Limits) *int { return &l.MinTradeGapMinutes }),
	"max_positions":         setInt(func(l *Limits) *int { return &l.MaxPositions }),
}

func setFloat(field func(*Limits) *float64) func(*Limits, any) error {
	return func(l *Limits, v any) error {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return err
		}
		*field(l) = f
		return nil
	}
}

func setInt(field func(*Limits) *int) func(*Limits, any) error {
	return func(l *Limits, v any) error {
		i, err := cast.ToIntE(v)
		if err != nil {
			return err
		}
		*field(l) = i
		return nil
	}
}

// MergeLimits layers overrides over defaults and validates the result.
// Unknown keys and nil values are ignored. The inputs are not modified.
func MergeLimits(defaults Limits, overrides map[string]any) (Limits, error) {
	merged := defaults
	for key, value := range overrides {
		set, ok := limitKeys[key]
		if !ok || value == nil {
			continue
		}
		if err := set(&merged, value); err != nil {
			return defaults, fmt.Errorf("%w: %s: %v", ErrInvalidLimits, key, err)
		}
	}
	if err := merged.Validate(); err != nil {
		return defaults, err
	}
	return merged, nil
}

// Validate checks that every limit is within its bounds.
func (l Limits) Validate() error {
	switch {
	case l.PositionSize <= 0 || l.PositionSize > 1:
		return fmt.Errorf("%w: position_size %v must be in (0, 1]", ErrInvalidLimits, l.PositionSize)
	case l.StopLoss < 0 || l.StopLoss >= 1:
		return fmt.Errorf("%w: stop_loss %v must be in [0, 1)", ErrInvalidLimits, l.StopLoss)
	case l.TakeProfit < 0:
		return fmt.Errorf("%w: take_profit %v must not be negative", ErrInvalidLimits, l.TakeProfit)
	case l.MaxDailyLoss <= 0 || l.MaxDailyLoss > 1:
		return fmt.Errorf("%w: max_daily_loss %v must be in (0, 1]", ErrInvalidLimits, l.MaxDailyLoss)
	case l.MaxDailyTrades < 0:
		return fmt.Errorf("%w: max_daily_trades %d must not be negative", ErrInvalidLimits, l.MaxDailyTrades)
	case l.MinTradeGapMinutes < 0:
		return fmt.Errorf("%w: min_trade_gap_minutes %d must not be negative", ErrInvalidLimits, l.MinTradeGapMinutes)
	case l.MaxPositions < 1:
		return fmt.Errorf("%w: max_positions %d must be at least 1", ErrInvalidLimits, l.MaxPositions)
	}
	return nil
}
