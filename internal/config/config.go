package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Kraken   Kraken   `mapstructure:"kraken"`
	Engine   Engine   `mapstructure:"engine"`
	Risk     Risk     `mapstructure:"risk"`
	Alerts   Alerts   `mapstructure:"alerts"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Kraken holds the configuration for the Kraken REST API.
type Kraken struct {
	ApiKey         string        `mapstructure:"api_key"`
	ApiSecret      string        `mapstructure:"api_secret"`
	BaseURL        string        `mapstructure:"base_url"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Engine holds the configuration for the trading loop.
type Engine struct {
	ControlDir     string        `mapstructure:"control_dir"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RequestRate    float64       `mapstructure:"request_rate"`
	DefaultPair    string        `mapstructure:"default_pair"`
	DryRun         bool          `mapstructure:"dry_run"`
	StrategiesFile string        `mapstructure:"strategies_file"`
	MaxCycles      int           `mapstructure:"max_cycles"`
	HistoryBars    int           `mapstructure:"history_bars"`
}

// Risk holds the location of the persisted risk state and account-wide
// limit overrides that strategy risk settings are layered on.
type Risk struct {
	StateFile string         `mapstructure:"state_file"`
	Limits    map[string]any `mapstructure:"limits"`
}

// Alerts holds alert routing configuration.
type Alerts struct {
	Enabled        bool          `mapstructure:"enabled"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	TelegramToken  string        `mapstructure:"telegram_token"`
	TelegramChatID int64         `mapstructure:"telegram_chat_id"`
}

// Server holds the configuration for the web servers.
type Server struct {
	Port   int `mapstructure:"port"`
	UIPort int `mapstructure:"ui_port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// RequestDelay is the pause the engine keeps between exchange requests.
func (e Engine) RequestDelay() time.Duration {
	rate := e.RequestRate
	if rate < 0.1 {
		rate = 0.1
	}
	return time.Duration(float64(time.Second) / rate)
}

// StatusFile is where the engine publishes its status snapshot.
func (e Engine) StatusFile() string {
	return filepath.Join(e.ControlDir, "status.json")
}

// StopFile is the marker an operator creates to stop the engine after the current cycle.
func (e Engine) StopFile() string {
	return filepath.Join(e.ControlDir, "stop.flag")
}

func setDefaults(v *viper.Viper) {
	// Empty secrets are registered so AutomaticEnv can bind them on Unmarshal.
	v.SetDefault("kraken.api_key", "")
	v.SetDefault("kraken.api_secret", "")
	v.SetDefault("alerts.webhook_url", "")
	v.SetDefault("alerts.telegram_token", "")
	v.SetDefault("alerts.telegram_chat_id", 0)

	v.SetDefault("kraken.base_url", "https://api.kraken.com")
	v.SetDefault("kraken.rate_limit", 1) // requests per second
	v.SetDefault("kraken.rate_limit_burst", 3)
	v.SetDefault("kraken.timeout", 15*time.Second)

	v.SetDefault("engine.control_dir", "data/control")
	v.SetDefault("engine.poll_interval", time.Minute)
	v.SetDefault("engine.request_rate", 1.0)
	v.SetDefault("engine.default_pair", "ETHUSD")
	v.SetDefault("engine.dry_run", true)
	v.SetDefault("engine.strategies_file", "configs/strategies.yml")
	v.SetDefault("engine.max_cycles", 0)
	v.SetDefault("engine.history_bars", 200)

	v.SetDefault("risk.state_file", "data/risk_state.json")

	v.SetDefault("alerts.enabled", false)
	v.SetDefault("alerts.cooldown", time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.ui_port", 8080)

	v.SetDefault("database.dsn", "data/trader.db")
}

// LoadConfig reads configuration from file, .env and environment variables.
// A missing config.yml is not an error; defaults and environment still apply.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	// .env is optional
	if err := godotenv.Load(filepath.Join(path, "..", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Allow environment variables to override config file, e.g. KRAKEN_API_KEY.
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
