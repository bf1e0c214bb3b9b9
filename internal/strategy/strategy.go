package strategy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"kraken-auto-trader-go/internal/market"

	"github.com/spf13/cast"
)

var (
	// ErrNotFound is returned for unknown strategy keys or a missing strategy document.
	ErrNotFound = errors.New("strategy not found")
	// ErrInvalidConfig is returned when a strategy document or its parameters are malformed.
	ErrInvalidConfig = errors.New("invalid strategy configuration")
	// ErrUnknownType is returned when no factory is registered for a strategy type.
	ErrUnknownType = errors.New("unknown strategy type")
)

// Action is the intended trade direction of a signal.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Side converts the action to an order side.
func (a Action) Side() market.Side {
	if a == ActionSell {
		return market.SideSell
	}
	return market.SideBuy
}

// Signal is a strategy's proposed action before risk adjustment.
type Signal struct {
	Action     Action         `json:"action"`
	Confidence float64        `json:"confidence"`
	Reason     string         `json:"reason"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	// Strategy is the key of the strategy that produced the signal.
	Strategy string `json:"strategy"`
}

// Config is a named strategy configuration bundle loaded from the strategy document.
type Config struct {
	Key        string         `json:"key"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters"`
	Risk       map[string]any `json:"risk"`
	Timeframe  string         `json:"timeframe"`
	Enabled    bool           `json:"enabled"`
}

// Get looks key up in the parameters first and the risk map second.
func (c Config) Get(key string) (any, bool) {
	if v, ok := c.Parameters[key]; ok {
		return v, true
	}
	v, ok := c.Risk[key]
	return v, ok
}

// Float returns a numeric setting or def when the key is absent.
func (c Config) Float(key string, def float64) (float64, error) {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return def, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return f, nil
}

// Int returns an integer setting or def when the key is absent.
func (c Config) Int(key string, def int) (int, error) {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return def, nil
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return def, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return i, nil
}

// String returns a string setting or def when the key is absent.
func (c Config) String(key, def string) string {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return def
	}
	return cast.ToString(v)
}

// Pairs returns the configured trading pairs from the "pairs" or "symbols"
// parameter. Both YAML lists and comma separated strings are accepted.
func (c Config) Pairs() []string {
	for _, key := range []string{"pairs", "symbols"} {
		raw, ok := c.Parameters[key]
		if !ok || raw == nil {
			continue
		}

		var items []string
		if s, isString := raw.(string); isString {
			items = strings.Split(s, ",")
		} else {
			items = cast.ToStringSlice(raw)
		}

		pairs := make([]string, 0, len(items))
		for _, item := range items {
			if item = strings.ToUpper(strings.TrimSpace(item)); item != "" {
				pairs = append(pairs, item)
			}
		}
		if len(pairs) > 0 {
			return pairs
		}
	}
	return nil
}

// Context is the read-only bundle handed to a strategy for one pair.
type Context struct {
	Pair      string
	Timeframe string
	Candles   market.Candles
	Balances  market.Balances
	Positions map[string]market.Position
	Config    Config
	Now       time.Time
}

// Strategy produces trade signals for a market context.
type Strategy interface {
	Name() string
	Config() Config
	// Validate fails with ErrInvalidConfig when the configuration is unusable.
	Validate() error
	GenerateSignals(ctx Context) ([]Signal, error)
}

// PairFilter is implemented by strategies that only trade some pairs.
type PairFilter interface {
	SupportsPair(pair string) bool
}

// SupportsPair reports whether s accepts pair.
func SupportsPair(s Strategy, pair string) bool {
	if f, ok := s.(PairFilter); ok {
		return f.SupportsPair(pair)
	}
	return true
}

// base carries the configuration shared by the built-in strategies.
type base struct {
	cfg Config
	// errs collects parameter decoding failures, reported by Validate.
	errs []error
}

func (b *base) Name() string   { return b.cfg.Name }
func (b *base) Config() Config { return b.cfg }

// SupportsPair accepts pairs whose base and quote assets can be resolved.
func (b *base) SupportsPair(pair string) bool {
	_, _, ok := market.SplitPair(pair)
	return ok
}

func (b *base) floatParam(key string, def float64) float64 {
	v, err := b.cfg.Float(key, def)
	if err != nil {
		b.errs = append(b.errs, err)
	}
	return v
}

func (b *base) intParam(key string, def int) int {
	v, err := b.cfg.Int(key, def)
	if err != nil {
		b.errs = append(b.errs, err)
	}
	return v
}

func (b *base) validate() error {
	if !b.cfg.Enabled {
		return fmt.Errorf("%w: strategy %s is disabled", ErrInvalidConfig, b.cfg.Name)
	}
	return errors.Join(b.errs...)
}

func (b *base) signal(ctx Context, action Action, confidence float64, reason string, metadata map[string]any) Signal {
	return Signal{
		Action:     action,
		Confidence: confidence,
		Reason:     reason,
		Metadata:   metadata,
		Timestamp:  ctx.Now,
		Strategy:   b.cfg.Key,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// crossed reports whether a moved to the given side of b on the latest bar
// after staying on the other side (or level) for the preceding lookback bars.
func crossed(a, b []float64, lookback int, above bool) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return false
	}
	a, b = a[len(a)-n:], b[len(b)-n:]

	last := n - 1
	if above && a[last] <= b[last] || !above && a[last] >= b[last] {
		return false
	}

	start := last - lookback
	if lookback <= 0 {
		start = last - 1
	}
	if start < 0 {
		start = 0
	}
	for i := start; i < last; i++ {
		if above && a[i] > b[i] || !above && a[i] < b[i] {
			return false
		}
	}
	return true
}
