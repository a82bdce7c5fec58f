package evm

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	// MinTick is the lowest tick a Uniswap V3 pool can reach.
	MinTick = -887272
	// MaxTick is the highest tick a Uniswap V3 pool can reach.
	MaxTick = 887272

	// SignificantDigits is the precision TWAP prices are rounded to before caching.
	SignificantDigits = 6

	divisionPlaces = 80
)

var (
	q128       = new(big.Int).Lsh(big.NewInt(1), 128)
	q192       = new(big.Int).Lsh(big.NewInt(1), 192)
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	mask32     = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 32), big.NewInt(1))

	// sqrt(1.0001^-2^i) in Q128.128 for i = 1..19, from TickMath.sol
	tickRatios = []struct {
		bit   int
		ratio *big.Int
	}{
		{0x2, hexInt("fff97272373d413259a46990580e213a")},
		{0x4, hexInt("fff2e50f5f656932ef12357cf3c7fdcc")},
		{0x8, hexInt("ffe5caca7e10e4e61c3624eaa0941cd0")},
		{0x10, hexInt("ffcb9843d60f6159c9db58835c926644")},
		{0x20, hexInt("ff973b41fa98c081472e6896dfb254c0")},
		{0x40, hexInt("ff2ea16466c96a3843ec78b326b52861")},
		{0x80, hexInt("fe5dee046a99a2a811c461f1969c3053")},
		{0x100, hexInt("fcbe86c7900a88aedcffc83b479aa3a4")},
		{0x200, hexInt("f987a7253ac413176f2b074cf7815e54")},
		{0x400, hexInt("f3392b0822b70005940c7a398e4b70f3")},
		{0x800, hexInt("e7159475a2c29b7443b29c7fa6e889d9")},
		{0x1000, hexInt("d097f3bdfd2022b8845ad8f792aa5825")},
		{0x2000, hexInt("a9f746462d870fdf8a65dc1f90e061e5")},
		{0x4000, hexInt("70d869a156d2a1b890bb3df62baf32f7")},
		{0x8000, hexInt("31be135f97d08fd981231505542fcfa6")},
		{0x10000, hexInt("9aa508b5b7a84e1c677de54f3e99bc9")},
		{0x20000, hexInt("5d6af8dedb81196699c329225ee604")},
		{0x40000, hexInt("2216e584f5fa1ea926041bedfe98")},
		{0x80000, hexInt("48a170391f7dc42444e8fa2")},
	}
	oddTickRatio = hexInt("fffcb933bd6fad37aa2d162d1a594001")
)

func hexInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("invalid hex constant " + s)
	}
	return v
}

// Observation is one cumulative oracle reading taken secondsAgo seconds in the past.
type Observation struct {
	SecondsAgo                        uint32
	TickCumulative                    *big.Int
	SecondsPerLiquidityCumulativeX128 *big.Int
}

// Token identifies one side of a pool.
type Token struct {
	Address  common.Address
	Decimals uint8
	Symbol   string
}

// SortsBefore reports whether t is token0 when paired with other.
func (t Token) SortsBefore(other Token) bool {
	return bytes.Compare(t.Address.Bytes(), other.Address.Bytes()) < 0
}

func span(obs []Observation) (int64, error) {
	if len(obs) < 2 {
		return 0, ErrInsufficientObservations
	}
	if obs[0].TickCumulative == nil || obs[1].TickCumulative == nil ||
		obs[0].SecondsPerLiquidityCumulativeX128 == nil || obs[1].SecondsPerLiquidityCumulativeX128 == nil {
		return 0, fmt.Errorf("%w: missing cumulative value", ErrInvalidPoolResponse)
	}
	seconds := int64(obs[1].SecondsAgo) - int64(obs[0].SecondsAgo)
	if seconds == 0 {
		return 0, ErrZeroTimeSpan
	}
	return seconds, nil
}

// AverageTick returns the arithmetic mean tick between the first two
// observations. The division truncates toward zero.
func AverageTick(obs []Observation) (int, error) {
	seconds, err := span(obs)
	if err != nil {
		return 0, err
	}

	diff := new(big.Int).Sub(obs[0].TickCumulative, obs[1].TickCumulative)
	avg := new(big.Int).Quo(diff, big.NewInt(seconds))
	if !avg.IsInt64() || avg.Int64() < MinTick || avg.Int64() > MaxTick {
		return 0, fmt.Errorf("%w: average tick %s", ErrTickOutOfRange, avg)
	}
	return int(avg.Int64()), nil
}

// TWAL returns the time-weighted harmonic mean liquidity between the first
// two observations: (seconds << 128) / secondsPerLiquidityDelta.
func TWAL(obs []Observation) (*big.Int, error) {
	seconds, err := span(obs)
	if err != nil {
		return nil, err
	}

	delta := new(big.Int).Sub(obs[0].SecondsPerLiquidityCumulativeX128, obs[1].SecondsPerLiquidityCumulativeX128)
	if delta.Sign() == 0 {
		return nil, ErrZeroLiquidityDelta
	}
	secondsX128 := new(big.Int).Lsh(big.NewInt(seconds), 128)
	return secondsX128.Quo(secondsX128, delta), nil
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96 fixed-point number,
// rounded up, exactly as TickMath.getSqrtRatioAtTick.
func SqrtRatioAtTick(tick int) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("%w: %d", ErrTickOutOfRange, tick)
	}

	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}

	ratio := new(big.Int).Set(q128)
	if absTick&1 != 0 {
		ratio.Set(oddTickRatio)
	}
	for _, r := range tickRatios {
		if absTick&r.bit != 0 {
			ratio.Mul(ratio, r.ratio)
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		ratio.Quo(maxUint256, ratio)
	}

	remainder := new(big.Int).And(ratio, mask32)
	sqrtPriceX96 := new(big.Int).Rsh(ratio, 32)
	if remainder.Sign() != 0 {
		sqrtPriceX96.Add(sqrtPriceX96, big.NewInt(1))
	}
	return sqrtPriceX96, nil
}

// TickToPrice returns the price of one whole base token in quote tokens at
// the given tick, with both tokens' decimals applied.
func TickToPrice(tick int, base, quote Token) (decimal.Decimal, error) {
	sqrtRatioX96, err := SqrtRatioAtTick(tick)
	if err != nil {
		return decimal.Decimal{}, err
	}
	ratioX192 := new(big.Int).Mul(sqrtRatioX96, sqrtRatioX96)

	// the pool price is token1 per token0
	var num, den *big.Int
	if base.SortsBefore(quote) {
		num, den = ratioX192, new(big.Int).Set(q192)
	} else {
		num, den = new(big.Int).Set(q192), ratioX192
	}

	shift := int(base.Decimals) - int(quote.Decimals)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs(shift))), nil)
	if shift > 0 {
		num.Mul(num, scale)
	} else if shift < 0 {
		den.Mul(den, scale)
	}

	return decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), divisionPlaces), nil
}

// RoundSignificant rounds d half away from zero to n significant digits.
func RoundSignificant(d decimal.Decimal, n int) decimal.Decimal {
	if d.IsZero() || n <= 0 {
		return d
	}
	digits := len(new(big.Int).Abs(d.Coefficient()).String())
	// position of the most significant digit relative to the decimal point
	magnitude := digits + int(d.Exponent())
	return d.Round(int32(n - magnitude))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
