package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	defaultAgentURL         = "ws://127.0.0.1:8910"
	defaultReconnectWait    = time.Second
	defaultResubscribeDelay = time.Second
	defaultRetryAttempts    = 5
	defaultRetryDelay       = 500 * time.Millisecond
	defaultStatus           = "trading"
)

// Load loads configuration from YAML file and environment variables.
func Load(path string) (*Config, error) {
	// Validate and sanitize path
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML after expanding ${VAR} references from the environment.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Symbols = normalizeSymbols(cfg.Symbols)
	applyDefaults(&cfg)

	return &cfg, nil
}

// LoadEnv loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. A missing file is an error
// only when required.
func LoadEnv(path string, required bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// normalizeSymbols accepts "Crypto=BTC/USD" for "Crypto.BTC/USD".
func normalizeSymbols(in map[string]map[string]decimal.Decimal) map[string]map[string]decimal.Decimal {
	if in == nil {
		return nil
	}
	out := make(map[string]map[string]decimal.Decimal, len(in))
	for symbol, weights := range in {
		out[strings.Replace(symbol, "=", ".", 1)] = weights
	}
	return out
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	if cfg.Agent.URL == "" {
		cfg.Agent.URL = defaultAgentURL
	}
	if cfg.Agent.ReconnectWait == 0 {
		cfg.Agent.ReconnectWait = Duration(defaultReconnectWait)
	}

	if cfg.Publisher.Status == "" {
		cfg.Publisher.Status = defaultStatus
	}
	if cfg.Publisher.ResubscribeDelay == 0 {
		cfg.Publisher.ResubscribeDelay = Duration(defaultResubscribeDelay)
	}
	if cfg.Publisher.RetryAttempts == 0 {
		cfg.Publisher.RetryAttempts = defaultRetryAttempts
	}
	if cfg.Publisher.RetryDelay == 0 {
		cfg.Publisher.RetryDelay = Duration(defaultRetryDelay)
	}

	if cfg.API.Enabled && cfg.API.Addr == "" {
		cfg.API.Addr = ":8080"
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// EnabledSources returns the enabled source entries in file order.
func (c *Config) EnabledSources() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
