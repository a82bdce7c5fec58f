package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/pyth-publisher/pkg/sources"
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validateAgentConfig(&cfg.Agent); err != nil {
		return fmt.Errorf("agent config: %w", err)
	}

	if err := validatePublisherConfig(&cfg.Publisher); err != nil {
		return fmt.Errorf("publisher config: %w", err)
	}

	enabled, err := validateSources(cfg.Sources)
	if err != nil {
		return err
	}

	if err := validateSymbols(cfg.Symbols, enabled); err != nil {
		return err
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateAgentConfig(cfg *AgentConfig) error {
	if cfg.URL == "" {
		return ErrAgentURLRequired
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidAgentURL, cfg.URL)
	}
	return nil
}

func validatePublisherConfig(cfg *PublisherConfig) error {
	if cfg.ConfidenceRatioBps.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidConfidenceRatio, cfg.ConfidenceRatioBps)
	}
	if cfg.RetryAttempts < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRetryAttempts, cfg.RetryAttempts)
	}
	if cfg.RetryDelay < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRetryDelay, cfg.RetryDelay.ToDuration())
	}
	return nil
}

// validateSources returns the enablement of every configured source by name.
func validateSources(list []SourceConfig) (map[string]bool, error) {
	if len(list) == 0 {
		return nil, ErrNoSourcesConfigured
	}

	enabled := make(map[string]bool, len(list))
	anyEnabled := false
	for i, source := range list {
		if err := validateSourceConfig(&source); err != nil {
			return nil, fmt.Errorf("source %d (%s.%s): %w", i, source.Type, source.Name, err)
		}
		if _, dup := enabled[source.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, source.Name)
		}
		enabled[source.Name] = source.Enabled
		anyEnabled = anyEnabled || source.Enabled
	}
	if !anyEnabled {
		return nil, ErrNoSourcesEnabled
	}
	return enabled, nil
}

func validateSourceConfig(cfg *SourceConfig) error {
	if cfg.Type == "" {
		return ErrSourceTypeRequired
	}
	if cfg.Name == "" {
		return ErrSourceNameRequired
	}
	if !sources.IsRegistered(cfg.Type, cfg.Name) {
		return fmt.Errorf("%w: %s.%s (registered: %s)", ErrUnknownSourceType, cfg.Type, cfg.Name, strings.Join(sources.List(), ", "))
	}
	return nil
}

func validateSymbols(symbols map[string]map[string]decimal.Decimal, enabled map[string]bool) error {
	if len(symbols) == 0 {
		return ErrNoSymbolsConfigured
	}

	names := make([]string, 0, len(symbols))
	for symbol := range symbols {
		names = append(names, symbol)
	}
	sort.Strings(names)

	for _, symbol := range names {
		sum := decimal.Zero
		for source, weight := range symbols[symbol] {
			on, ok := enabled[source]
			if !ok {
				return fmt.Errorf("symbol %s: %w: %s", symbol, ErrUnknownWeightedSource, source)
			}
			if !on {
				return fmt.Errorf("symbol %s: %w: %s", symbol, ErrWeightedSourceDisabled, source)
			}
			if weight.IsNegative() {
				return fmt.Errorf("symbol %s: source %s: %w", symbol, source, ErrSourceWeightMustBeNonNegative)
			}
			sum = sum.Add(weight)
		}
		if !sum.IsPositive() {
			return fmt.Errorf("symbol %s: %w", symbol, ErrZeroWeightSum)
		}
	}
	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	// Validate level
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	// Validate format
	formatValid := strings.ToLower(cfg.Format) == "json" || strings.ToLower(cfg.Format) == "text"
	if !formatValid {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}
