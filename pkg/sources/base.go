package sources

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/pyth-publisher/pkg/logging"
	"github.com/StrathCole/pyth-publisher/pkg/metrics"
	"github.com/StrathCole/pyth-publisher/pkg/scheduler"
)

const (
	defaultRetryAttempts = 5
	defaultRetryDelay    = 500 * time.Millisecond
)

// BaseSource provides common functionality for all price sources.
//
// Prices live in an immutable map behind an atomic pointer. Writers copy,
// merge and swap under writeMu, so every symbol of one poll becomes visible
// in the same instant and readers never block.
type BaseSource struct {
	name           string
	sourcetype     SourceType
	symbols        []string
	updateInterval time.Duration

	prices  atomic.Pointer[map[string]Price]
	writeMu sync.Mutex

	lastUpdate atomic.Int64
	healthy    atomic.Bool

	retryAttempts int
	retryDelay    time.Duration

	sched  *scheduler.Scheduler
	logger *logging.Logger
}

// NewBaseSource creates a new base source
func NewBaseSource(name string, sourcetype SourceType, symbols []string, updateInterval time.Duration, logger *logging.Logger) *BaseSource {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	b := &BaseSource{
		name:           name,
		sourcetype:     sourcetype,
		symbols:        append([]string(nil), symbols...),
		updateInterval: updateInterval,
		retryAttempts:  defaultRetryAttempts,
		retryDelay:     defaultRetryDelay,
		sched:          scheduler.New(logger),
		logger:         logger,
	}
	empty := make(map[string]Price)
	b.prices.Store(&empty)
	return b
}

// Name returns the source name
func (b *BaseSource) Name() string {
	return b.name
}

// Type returns the source type
func (b *BaseSource) Type() SourceType {
	return b.sourcetype
}

// Symbols returns the symbols this source provides
func (b *BaseSource) Symbols() []string {
	return b.symbols
}

// UpdateInterval returns the polling period
func (b *BaseSource) UpdateInterval() time.Duration {
	return b.updateInterval
}

// SetRetry overrides the bounded retry policy
func (b *BaseSource) SetRetry(attempts int, delay time.Duration) {
	if attempts > 0 {
		b.retryAttempts = attempts
	}
	if delay >= 0 {
		b.retryDelay = delay
	}
}

// IsHealthy returns the health status
func (b *BaseSource) IsHealthy() bool {
	return b.healthy.Load()
}

// SetHealthy sets the health status
func (b *BaseSource) SetHealthy(healthy bool) {
	b.healthy.Store(healthy)
	metrics.RecordSourceHealth(b.name, string(b.sourcetype), healthy)
}

// LastUpdate returns the time of the last successful price update
func (b *BaseSource) LastUpdate() time.Time {
	ns := b.lastUpdate.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// LatestPrice returns the cached price for a symbol
func (b *BaseSource) LatestPrice(symbol string) (decimal.Decimal, bool) {
	p, ok := (*b.prices.Load())[symbol]
	if !ok {
		return decimal.Decimal{}, false
	}
	return p.Price, true
}

// GetPrice returns the cached price record for a symbol
func (b *BaseSource) GetPrice(symbol string) (Price, bool) {
	p, ok := (*b.prices.Load())[symbol]
	return p, ok
}

// GetAllPrices returns the current snapshot. The map must not be modified.
func (b *BaseSource) GetAllPrices() map[string]Price {
	return *b.prices.Load()
}

// SetPrice sets a price for a single symbol
func (b *BaseSource) SetPrice(symbol string, price decimal.Decimal, timestamp time.Time) {
	b.SetPrices(map[string]decimal.Decimal{symbol: price}, timestamp)
}

// SetPrices publishes a batch of prices atomically. Symbols not in the batch
// keep their previous reading.
func (b *BaseSource) SetPrices(batch map[string]decimal.Decimal, timestamp time.Time) {
	if len(batch) == 0 {
		return
	}

	b.writeMu.Lock()
	current := *b.prices.Load()
	next := make(map[string]Price, len(current)+len(batch))
	for k, v := range current {
		next[k] = v
	}
	for symbol, price := range batch {
		next[symbol] = Price{
			Symbol:    symbol,
			Price:     price,
			Timestamp: timestamp,
			Source:    b.name,
		}
	}
	b.prices.Store(&next)
	b.lastUpdate.Store(timestamp.UnixNano())
	b.writeMu.Unlock()

	for symbol := range batch {
		metrics.RecordSourceUpdate(b.name, symbol)
	}
}

// Logger returns the logger
func (b *BaseSource) Logger() *logging.Logger {
	return b.logger
}

// Schedule starts an interval-aligned loop owned by this source. The loop
// retries fn with the source's retry policy and updates health after each run.
func (b *BaseSource) Schedule(task string, interval time.Duration, fn func(ctx context.Context) error) error {
	return b.sched.Go(b.name+"/"+task, interval, func(ctx context.Context) error {
		err := b.RetryWithBackoff(ctx, task, func() error {
			return fn(ctx)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.SetHealthy(false)
			metrics.RecordFetchError(b.name)
			return err
		}
		b.SetHealthy(true)
		return nil
	})
}

// StopSchedules wakes and awaits every loop started with Schedule
func (b *BaseSource) StopSchedules() {
	b.sched.Stop()
}

// InitialFetch runs fn under the retry policy once, used by Initialize.
func (b *BaseSource) InitialFetch(ctx context.Context, fn func(ctx context.Context) error) error {
	err := b.RetryWithBackoff(ctx, "initial_fetch", func() error {
		return fn(ctx)
	})
	if err != nil {
		b.SetHealthy(false)
		metrics.RecordFetchError(b.name)
		return fmt.Errorf("%s: %w", b.name, err)
	}
	b.SetHealthy(true)
	return nil
}
