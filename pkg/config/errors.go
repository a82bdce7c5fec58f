// Package config provides configuration loading and validation for pyth-publisher.
package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig matches every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrAgentURLRequired indicates that agent.url is missing.
	ErrAgentURLRequired = fmt.Errorf("%w: agent.url must be specified", ErrInvalidConfig)
	// ErrInvalidAgentURL indicates an agent.url that is not a ws:// or wss:// URL.
	ErrInvalidAgentURL = fmt.Errorf("%w: agent.url must be a ws:// or wss:// URL", ErrInvalidConfig)
	// ErrInvalidConfidenceRatio indicates a negative publisher.confidence_ratio_bps.
	ErrInvalidConfidenceRatio = fmt.Errorf("%w: confidence_ratio_bps must be >= 0", ErrInvalidConfig)
	// ErrInvalidRetryAttempts indicates a negative publisher.retry_attempts.
	ErrInvalidRetryAttempts = fmt.Errorf("%w: retry_attempts must be >= 0", ErrInvalidConfig)
	// ErrInvalidRetryDelay indicates a negative publisher.retry_delay.
	ErrInvalidRetryDelay = fmt.Errorf("%w: retry_delay must be >= 0", ErrInvalidConfig)
	// ErrNoSourcesConfigured indicates that no price sources are configured.
	ErrNoSourcesConfigured = fmt.Errorf("%w: at least one price source must be configured", ErrInvalidConfig)
	// ErrNoSourcesEnabled indicates that every configured source is disabled.
	ErrNoSourcesEnabled = fmt.Errorf("%w: no sources enabled", ErrInvalidConfig)
	// ErrSourceTypeRequired indicates that source type is required.
	ErrSourceTypeRequired = fmt.Errorf("%w: source type is required", ErrInvalidConfig)
	// ErrSourceNameRequired indicates that source name is required.
	ErrSourceNameRequired = fmt.Errorf("%w: source name is required", ErrInvalidConfig)
	// ErrUnknownSourceType indicates a type/name pair with no registered factory.
	ErrUnknownSourceType = fmt.Errorf("%w: unknown source type", ErrInvalidConfig)
	// ErrDuplicateSource indicates two sources sharing a name.
	ErrDuplicateSource = fmt.Errorf("%w: duplicate source name", ErrInvalidConfig)
	// ErrNoSymbolsConfigured indicates an empty symbols section.
	ErrNoSymbolsConfigured = fmt.Errorf("%w: at least one symbol must be configured", ErrInvalidConfig)
	// ErrSourceWeightMustBeNonNegative indicates that source weight must be >= 0.
	ErrSourceWeightMustBeNonNegative = fmt.Errorf("%w: weight must be >= 0", ErrInvalidConfig)
	// ErrZeroWeightSum indicates a symbol whose weights do not sum to a positive value.
	ErrZeroWeightSum = fmt.Errorf("%w: weights must sum to a positive value", ErrInvalidConfig)
	// ErrUnknownWeightedSource indicates a weighting that names an unconfigured source.
	ErrUnknownWeightedSource = fmt.Errorf("%w: weighted source is not configured", ErrInvalidConfig)
	// ErrWeightedSourceDisabled indicates a weighting that names a disabled source.
	ErrWeightedSourceDisabled = fmt.Errorf("%w: weighted source is disabled", ErrInvalidConfig)
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = fmt.Errorf("%w: invalid log level", ErrInvalidConfig)
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = fmt.Errorf("%w: invalid log format", ErrInvalidConfig)
)
