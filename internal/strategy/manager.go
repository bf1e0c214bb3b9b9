package strategy

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultTimeframe is used for entries that do not name one.
const DefaultTimeframe = "1h"

type document struct {
	Strategies map[string]*entry `yaml:"strategies"`
}

type entry struct {
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	Parameters map[string]any `yaml:"parameters"`
	Risk       map[string]any `yaml:"risk"`
	Timeframe  string         `yaml:"timeframe"`
	Enabled    *bool          `yaml:"enabled"`
}

// Manager loads the strategy document and hands out strategy instances.
// It is used from the engine loop only and is not safe for concurrent use.
type Manager struct {
	path     string
	registry *Registry
	logger   *zap.Logger
	configs  map[string]Config
	cache    map[string]Strategy
}

// NewManager loads the strategy document at path.
func NewManager(path string, registry *Registry, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		path:     path,
		registry: registry,
		logger:   logger.Named("strategy"),
	}
	if err := m.Refresh(); err != nil {
		return nil, err
	}
	return m, nil
}

// Refresh re-reads the strategy document and drops cached instances.
// On failure the previously loaded configuration stays in place.
func (m *Manager) Refresh() error {
	configs, err := LoadConfigs(m.path)
	if err != nil {
		return err
	}
	m.configs = configs
	m.cache = make(map[string]Strategy)
	m.logger.Info("Loaded strategy configuration", zap.String("path", m.path), zap.Int("count", len(configs)))
	return nil
}

// LoadConfigs parses the strategy document at path.
func LoadConfigs(path string) (map[string]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: strategy file %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read strategy file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	if doc.Strategies == nil {
		return nil, fmt.Errorf("%w: %s has no strategies mapping", ErrInvalidConfig, path)
	}

	configs := make(map[string]Config, len(doc.Strategies))
	for key, e := range doc.Strategies {
		if e == nil {
			e = &entry{}
		}
		cfg := Config{
			Key:        key,
			Name:       e.Name,
			Type:       e.Type,
			Parameters: e.Parameters,
			Risk:       e.Risk,
			Timeframe:  e.Timeframe,
			Enabled:    e.Enabled == nil || *e.Enabled,
		}
		if cfg.Name == "" {
			cfg.Name = key
		}
		if cfg.Type == "" {
			cfg.Type = key
		}
		if cfg.Timeframe == "" {
			cfg.Timeframe = DefaultTimeframe
		}
		if cfg.Parameters == nil {
			cfg.Parameters = map[string]any{}
		}
		if cfg.Risk == nil {
			cfg.Risk = map[string]any{}
		}
		configs[key] = cfg
	}
	return configs, nil
}

// Available returns the configured strategy keys in sorted order.
func (m *Manager) Available() []string {
	keys := make([]string, 0, len(m.configs))
	for key := range m.configs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Config returns the configuration for key.
func (m *Manager) Config(key string) (Config, error) {
	cfg, ok := m.configs[key]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return cfg, nil
}

// Strategy returns the cached strategy for key, building it on first use.
func (m *Manager) Strategy(key string) (Strategy, error) {
	if s, ok := m.cache[key]; ok {
		return s, nil
	}
	cfg, err := m.Config(key)
	if err != nil {
		return nil, err
	}
	s, err := m.registry.New(cfg)
	if err != nil {
		return nil, err
	}
	m.cache[key] = s
	return s, nil
}

// ActiveStrategies returns every enabled strategy that validates.
// Strategies that cannot be built or fail validation are logged and skipped.
func (m *Manager) ActiveStrategies() []Strategy {
	var active []Strategy
	for _, key := range m.Available() {
		if !m.configs[key].Enabled {
			continue
		}
		s, err := m.Strategy(key)
		if err == nil {
			err = s.Validate()
		}
		if err != nil {
			fields := []zap.Field{zap.String("strategy", key), zap.Error(err)}
			if errors.Is(err, ErrUnknownType) {
				fields = append(fields, zap.Strings("known_types", m.registry.Types()))
			}
			m.logger.Warn("Skipping strategy", fields...)
			continue
		}
		active = append(active, s)
	}
	return active
}
