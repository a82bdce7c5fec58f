package sources

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBase() *BaseSource {
	b := NewBaseSource("test", SourceTypeCEX, []string{"BTC/USD", "ETH/USD"}, time.Minute, nil)
	b.SetRetry(3, time.Millisecond)
	return b
}

func TestBaseSource_LatestPrice(t *testing.T) {
	b := newTestBase()

	_, ok := b.LatestPrice("BTC/USD")
	assert.False(t, ok, "no reading before the first poll")

	now := time.Now()
	b.SetPrice("BTC/USD", decimal.RequireFromString("65000.123456789012345678"), now)

	price, ok := b.LatestPrice("BTC/USD")
	require.True(t, ok)
	assert.Equal(t, "65000.123456789012345678", price.String())
	assert.True(t, now.Equal(b.LastUpdate()))

	p, ok := b.GetPrice("BTC/USD")
	require.True(t, ok)
	assert.Equal(t, "test", p.Source)
}

func TestBaseSource_SetPricesKeepsOtherSymbols(t *testing.T) {
	b := newTestBase()
	b.SetPrices(map[string]decimal.Decimal{
		"BTC/USD": decimal.NewFromInt(1),
		"ETH/USD": decimal.NewFromInt(2),
	}, time.Now())
	b.SetPrices(map[string]decimal.Decimal{"BTC/USD": decimal.NewFromInt(3)}, time.Now())

	btc, _ := b.LatestPrice("BTC/USD")
	eth, _ := b.LatestPrice("ETH/USD")
	assert.True(t, btc.Equal(decimal.NewFromInt(3)))
	assert.True(t, eth.Equal(decimal.NewFromInt(2)))
}

func TestBaseSource_SnapshotIsImmutable(t *testing.T) {
	b := newTestBase()
	b.SetPrice("BTC/USD", decimal.NewFromInt(1), time.Now())

	snapshot := b.GetAllPrices()
	b.SetPrice("BTC/USD", decimal.NewFromInt(2), time.Now())

	assert.True(t, snapshot["BTC/USD"].Price.Equal(decimal.NewFromInt(1)))
}

// Readers must never observe half of a batch.
func TestBaseSource_BatchVisibleTogether(t *testing.T) {
	b := newTestBase()
	b.SetPrices(map[string]decimal.Decimal{
		"BTC/USD": decimal.NewFromInt(0),
		"ETH/USD": decimal.NewFromInt(0),
	}, time.Now())

	var stop atomic.Bool
	var torn atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				snap := b.GetAllPrices()
				if !snap["BTC/USD"].Price.Equal(snap["ETH/USD"].Price) {
					torn.Add(1)
				}
			}
		}()
	}

	for i := int64(1); i <= 2000; i++ {
		v := decimal.NewFromInt(i)
		b.SetPrices(map[string]decimal.Decimal{"BTC/USD": v, "ETH/USD": v}, time.Now())
	}
	stop.Store(true)
	wg.Wait()

	assert.Zero(t, torn.Load())
}

func TestBaseSource_ScheduleUpdatesHealth(t *testing.T) {
	b := newTestBase()

	var calls atomic.Int32
	require.NoError(t, b.Schedule("poll", time.Hour, func(context.Context) error {
		calls.Add(1)
		return nil
	}))
	require.Eventually(t, b.IsHealthy, time.Second, time.Millisecond)
	b.StopSchedules()
	assert.Equal(t, int32(1), calls.Load())
}

func TestBaseSource_ScheduleFailureKeepsStalePrice(t *testing.T) {
	b := newTestBase()
	b.SetPrice("BTC/USD", decimal.NewFromInt(42), time.Now())
	b.SetHealthy(true)

	var calls atomic.Int32
	require.NoError(t, b.Schedule("poll", time.Hour, func(context.Context) error {
		calls.Add(1)
		return errors.New("connection refused")
	}))
	require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !b.IsHealthy() }, time.Second, time.Millisecond)
	b.StopSchedules()

	price, ok := b.LatestPrice("BTC/USD")
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(42)))
}

func TestBaseSource_InitialFetch(t *testing.T) {
	b := newTestBase()

	attempts := 0
	err := b.InitialFetch(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("temporary")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.True(t, b.IsHealthy())

	err = b.InitialFetch(context.Background(), func(context.Context) error {
		return errors.New("down")
	})
	assert.ErrorIs(t, err, ErrFetch)
	assert.False(t, b.IsHealthy())
}
