package sources

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/pyth-publisher/pkg/logging"
)

// SourceType represents the type of price source
type SourceType string

const (
	SourceTypeCEX SourceType = "cex"
	SourceTypeEVM SourceType = "evm"
)

// Price represents a price for a symbol at a specific time
type Price struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
}

// Source defines the interface that all price sources must implement
type Source interface {
	// Name returns the unique name of this source
	Name() string

	// Type returns the type of this source
	Type() SourceType

	// Symbols returns the list of symbols this source provides
	Symbols() []string

	// UpdateInterval returns the polling period
	UpdateInterval() time.Duration

	// UpdatePrice performs one poll and replaces the cached prices it covers
	UpdatePrice(ctx context.Context) error

	// LatestPrice returns the cached price for a symbol, if one has been read
	LatestPrice(symbol string) (decimal.Decimal, bool)

	// Initialize performs the first blocking fetch
	Initialize(ctx context.Context) error

	// Start begins scheduled updates
	Start(ctx context.Context) error

	// Stop halts scheduled updates and waits for an in-flight update to finish
	Stop() error

	// IsHealthy returns whether the last poll succeeded
	IsHealthy() bool

	// LastUpdate returns the timestamp of the last successful update
	LastUpdate() time.Time
}

// Conversion names the price that re-denominates a source's reading. A pool
// quoting in WETH, for example, converts through another source's WETH/USD.
type Conversion struct {
	Source string `json:"source"`
	Symbol string `json:"symbol"`
}

// Converter is implemented by sources whose readings need re-denomination.
type Converter interface {
	Conversion(symbol string) (Conversion, bool)
}

// SourceFactory creates a new Source instance from its raw config block
type SourceFactory func(name string, config map[string]interface{}, logger *logging.Logger) (Source, error)
