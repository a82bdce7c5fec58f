// Package sources provides the price source capability, a shared snapshot cache and the factory registry.
package sources

import "errors"

var (
	// ErrFetch indicates that a poll failed. Causes are wrapped.
	ErrFetch = errors.New("price fetch failed")
	// ErrUnexpectedStatus indicates an unexpected HTTP status code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status code")
	// ErrRateLimitExceeded indicates that a rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidResponse indicates an invalid response from the source.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrInvalidConfig indicates that the source configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoSymbolsConfigured indicates that no symbols are configured for the source.
	ErrNoSymbolsConfigured = errors.New("no symbols configured")
	// ErrNoPricesExtracted indicates that no prices are extracted from response.
	ErrNoPricesExtracted = errors.New("no prices extracted from response")
	// ErrAPIKeyRequired indicates that an API key is required.
	ErrAPIKeyRequired = errors.New("API key is required")
	// ErrUnknownSource indicates that no factory is registered for a type and name.
	ErrUnknownSource = errors.New("unknown source")
	// ErrSourceStopped indicates that the source has been stopped.
	ErrSourceStopped = errors.New("source stopped")
)
