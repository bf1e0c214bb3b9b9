package strategy

import (
	"fmt"
	"sort"
)

// Factory builds a strategy for a configuration entry.
type Factory func(cfg Config) Strategy

// Registry maps strategy type names to factories. It is filled at startup
// and read afterwards.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("rsi", NewRSIStrategy)
	r.Register("macd", NewMACDStrategy)
	r.Register("ma_crossover", NewMACrossoverStrategy)
	return r
}

// Register adds or replaces the factory for a strategy type.
func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// New instantiates the strategy named by cfg.Type.
func (r *Registry) New(cfg Config) (Strategy, error) {
	factory, ok := r.factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q (strategy %s)", ErrUnknownType, cfg.Type, cfg.Key)
	}
	return factory(cfg), nil
}

// Types lists the registered strategy types.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.factories))
	for name := range r.factories {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
