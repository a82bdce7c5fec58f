package evm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc = Token{Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Decimals: 6, Symbol: "USDC"}
	weth = Token{Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Decimals: 18, Symbol: "WETH"}
	tokA = Token{Address: common.HexToAddress("0x0000000000000000000000000000000000000001"), Decimals: 18, Symbol: "A"}
	tokB = Token{Address: common.HexToAddress("0x0000000000000000000000000000000000000002"), Decimals: 18, Symbol: "B"}
)

func obsPair(tick0, tick1, spl0, spl1 int64, window uint32) []Observation {
	return []Observation{
		{SecondsAgo: 0, TickCumulative: big.NewInt(tick0), SecondsPerLiquidityCumulativeX128: big.NewInt(spl0)},
		{SecondsAgo: window, TickCumulative: big.NewInt(tick1), SecondsPerLiquidityCumulativeX128: big.NewInt(spl1)},
	}
}

func TestAverageTick_Truncates(t *testing.T) {
	tests := []struct {
		name   string
		tick0  int64
		tick1  int64
		window uint32
		want   int
	}{
		{"exact", 60_000_100, 100, 300, 200000},
		{"positive fraction", 100, 40, 300, 0},
		{"positive remainder", 61, 0, 30, 2},
		{"negative remainder rounds toward zero", 0, 61, 30, -2},
		{"negative exact", -30_000, 0, 300, -100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AverageTick(obsPair(tt.tick0, tt.tick1, 1, 0, tt.window))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAverageTick_Errors(t *testing.T) {
	_, err := AverageTick(obsPair(0, 0, 1, 0, 300)[:1])
	assert.ErrorIs(t, err, ErrInsufficientObservations)

	_, err = AverageTick(obsPair(10, 0, 1, 0, 0))
	assert.ErrorIs(t, err, ErrZeroTimeSpan)

	obs := obsPair(0, 0, 1, 0, 300)
	obs[1].TickCumulative = nil
	_, err = AverageTick(obs)
	assert.ErrorIs(t, err, ErrInvalidPoolResponse)

	_, err = AverageTick(obsPair(1_000_000_000, 0, 1, 0, 1))
	assert.ErrorIs(t, err, ErrTickOutOfRange)
}

func TestTWAL(t *testing.T) {
	obs := []Observation{
		{SecondsAgo: 0, TickCumulative: big.NewInt(0), SecondsPerLiquidityCumulativeX128: new(big.Int).Lsh(big.NewInt(3), 128)},
		{SecondsAgo: 300, TickCumulative: big.NewInt(0), SecondsPerLiquidityCumulativeX128: big.NewInt(0)},
	}
	twal, err := TWAL(obs)
	require.NoError(t, err)
	assert.Equal(t, "100", twal.String())

	_, err = TWAL(obsPair(0, 0, 5, 5, 300))
	assert.ErrorIs(t, err, ErrZeroLiquidityDelta)

	_, err = TWAL(obsPair(0, 0, 5, 0, 0))
	assert.ErrorIs(t, err, ErrZeroTimeSpan)
}

func TestSqrtRatioAtTick(t *testing.T) {
	tests := []struct {
		tick int
		want string
	}{
		{0, "79228162514264337593543950336"},
		{1, "79232123823359799118286999568"},
		{-1, "79224201403219477170569942574"},
		{100, "79625275426524748796330556128"},
		{-100, "78833030112140176575862854579"},
		{MinTick, "4295128739"},
		{MaxTick, "1461446703485210103287273052203988822378723970342"},
	}
	for _, tt := range tests {
		got, err := SqrtRatioAtTick(tt.tick)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.String(), "tick %d", tt.tick)
	}

	_, err := SqrtRatioAtTick(MaxTick + 1)
	assert.ErrorIs(t, err, ErrTickOutOfRange)
	_, err = SqrtRatioAtTick(MinTick - 1)
	assert.ErrorIs(t, err, ErrTickOutOfRange)
}

func TestTickToPrice(t *testing.T) {
	tests := []struct {
		name  string
		tick  int
		base  Token
		quote Token
		want  string
	}{
		{"zero tick", 0, tokA, tokB, "1"},
		{"base is token0", 100, tokA, tokB, "1.01005"},
		{"base is token0 negative tick", -100, tokA, tokB, "0.99005"},
		{"base is token1 with decimals", 200000, weth, usdc, "2063.22"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := TickToPrice(tt.tick, tt.base, tt.quote)
			require.NoError(t, err)
			assert.Equal(t, tt.want, RoundSignificant(price, SignificantDigits).String())
		})
	}
}

func TestTickToPrice_Inverse(t *testing.T) {
	forward, err := TickToPrice(100, tokA, tokB)
	require.NoError(t, err)
	backward, err := TickToPrice(100, tokB, tokA)
	require.NoError(t, err)

	product := forward.Mul(backward).Round(20)
	assert.True(t, product.Equal(decimal.NewFromInt(1)), "got %s", product)
}

func TestRoundSignificant(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"123456789", "123457000"},
		{"1.0000049", "1"},
		{"0.000123456789", "0.000123457"},
		{"-98765.4321", "-98765.4"},
		{"0", "0"},
	}
	for _, tt := range tests {
		got := RoundSignificant(decimal.RequireFromString(tt.in), 6)
		assert.Equal(t, tt.want, got.String(), tt.in)
	}
}

func TestTokenSortsBefore(t *testing.T) {
	assert.True(t, usdc.SortsBefore(weth))
	assert.False(t, weth.SortsBefore(usdc))
}
