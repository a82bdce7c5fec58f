package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/pyth-publisher/pkg/logging"
)

// Averages is one oracle reading over the configured window.
type Averages struct {
	TWAP        decimal.Decimal
	TWAL        *big.Int
	AverageTick int
	SpotTick    int
	Liquidity   *big.Int
}

// Oracle computes time-weighted averages for one pool. The price is of
// Base in Quote.
type Oracle struct {
	pool         PoolReader
	base         Token
	quote        Token
	timeInterval uint32
	logger       *logging.Logger
}

// NewOracle creates an oracle reading a window of timeInterval seconds.
func NewOracle(pool PoolReader, base, quote Token, timeInterval uint32, logger *logging.Logger) (*Oracle, error) {
	if timeInterval == 0 {
		return nil, ErrInvalidTimeInterval
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Oracle{
		pool:         pool,
		base:         base,
		quote:        quote,
		timeInterval: timeInterval,
		logger:       logger,
	}, nil
}

// Averages reads observations at [0, timeInterval] seconds ago together with
// the pool's spot state and derives TWAP and TWAL.
func (o *Oracle) Averages(ctx context.Context) (Averages, error) {
	obs, err := o.pool.Observe(ctx, []uint32{0, o.timeInterval})
	if err != nil {
		return Averages{}, err
	}
	slot0, err := o.pool.Slot0(ctx)
	if err != nil {
		return Averages{}, err
	}
	liquidity, err := o.pool.Liquidity(ctx)
	if err != nil {
		return Averages{}, err
	}
	if slot0.Tick < MinTick || slot0.Tick > MaxTick {
		return Averages{}, fmt.Errorf("%w: slot0 tick %d", ErrTickOutOfRange, slot0.Tick)
	}

	avgTick, err := AverageTick(obs)
	if err != nil {
		return Averages{}, err
	}
	twal, err := TWAL(obs)
	if err != nil {
		return Averages{}, err
	}
	price, err := TickToPrice(avgTick, o.base, o.quote)
	if err != nil {
		return Averages{}, err
	}

	if spot, err := TickToPrice(slot0.Tick, o.base, o.quote); err == nil {
		o.logger.Debug("Pool oracle reading",
			"base", o.base.Symbol,
			"quote", o.quote.Symbol,
			"average_tick", avgTick,
			"spot_tick", slot0.Tick,
			"spot_price", RoundSignificant(spot, SignificantDigits),
			"liquidity", liquidity.String(),
			"twal", twal.String())
	}

	return Averages{
		TWAP:        RoundSignificant(price, SignificantDigits),
		TWAL:        twal,
		AverageTick: avgTick,
		SpotTick:    slot0.Tick,
		Liquidity:   liquidity,
	}, nil
}
