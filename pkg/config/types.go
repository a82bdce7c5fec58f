package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Publisher PublisherConfig `yaml:"publisher"`
	// Symbols maps a product symbol to source name to weight.
	Symbols map[string]map[string]decimal.Decimal `yaml:"symbols"`
	Sources []SourceConfig                        `yaml:"sources"`
	API     APIConfig                             `yaml:"api"`
	Metrics MetricsConfig                         `yaml:"metrics"`
	Logging LoggingConfig                         `yaml:"logging"`
}

// AgentConfig configures the JSON-RPC session with the Pyth agent
type AgentConfig struct {
	URL           string   `yaml:"url"`
	ReconnectWait Duration `yaml:"reconnect_wait"`
	// RequestTimeout of zero leaves requests unbounded
	RequestTimeout Duration `yaml:"request_timeout"`
}

// PublisherConfig configures price mixing and publishing
type PublisherConfig struct {
	ConfidenceRatioBps decimal.Decimal `yaml:"confidence_ratio_bps"`
	Status             string          `yaml:"status"`
	ResubscribeDelay   Duration        `yaml:"resubscribe_delay"`
	RetryAttempts      int             `yaml:"retry_attempts"`
	RetryDelay         Duration        `yaml:"retry_delay"`
}

// SourceConfig configures a price source
type SourceConfig struct {
	Type    string                 `yaml:"type"`
	Name    string                 `yaml:"name"`
	Enabled bool                   `yaml:"enabled"`
	Config  map[string]interface{} `yaml:"config"`
}

// APIConfig configures the HTTP status API
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
