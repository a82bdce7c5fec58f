package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Uniswap V3 pool ABI (observe, slot0 and liquidity only).
const poolABIJSON = `[
	{
		"inputs": [{"internalType": "uint32[]", "name": "secondsAgos", "type": "uint32[]"}],
		"name": "observe",
		"outputs": [
			{"internalType": "int56[]", "name": "tickCumulatives", "type": "int56[]"},
			{"internalType": "uint160[]", "name": "secondsPerLiquidityCumulativeX128s", "type": "uint160[]"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "slot0",
		"outputs": [
			{"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
			{"internalType": "int24", "name": "tick", "type": "int24"},
			{"internalType": "uint16", "name": "observationIndex", "type": "uint16"},
			{"internalType": "uint16", "name": "observationCardinality", "type": "uint16"},
			{"internalType": "uint16", "name": "observationCardinalityNext", "type": "uint16"},
			{"internalType": "uint8", "name": "feeProtocol", "type": "uint8"},
			{"internalType": "bool", "name": "unlocked", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "liquidity",
		"outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var poolABI = mustParseABI(poolABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("failed to parse pool ABI: %v", err))
	}
	return parsed
}

// Slot0 is the pool's current instantaneous state.
type Slot0 struct {
	SqrtPriceX96           *big.Int
	Tick                   int
	ObservationCardinality uint16
	Unlocked               bool
}

// PoolReader reads the oracle state of one Uniswap V3 pool.
type PoolReader interface {
	Observe(ctx context.Context, secondsAgos []uint32) ([]Observation, error)
	Slot0(ctx context.Context) (Slot0, error)
	Liquidity(ctx context.Context) (*big.Int, error)
}

// PoolContract implements PoolReader with eth_call against a pool contract.
type PoolContract struct {
	address common.Address
	caller  ethereum.ContractCaller
}

// NewPoolContract binds a pool address to a contract caller such as *ethclient.Client.
func NewPoolContract(address common.Address, caller ethereum.ContractCaller) *PoolContract {
	return &PoolContract{address: address, caller: caller}
}

func (p *PoolContract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := poolABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	result, err := p.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &p.address,
		Data: data,
	}, nil) // nil = latest block
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, p.address.Hex(), err)
	}

	out, err := poolABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", ErrInvalidPoolResponse, method, err)
	}
	return out, nil
}

// Observe returns one observation per requested offset.
func (p *PoolContract) Observe(ctx context.Context, secondsAgos []uint32) ([]Observation, error) {
	out, err := p.call(ctx, "observe", secondsAgos)
	if err != nil {
		return nil, err
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("%w: observe returned %d values", ErrInvalidPoolResponse, len(out))
	}

	ticks, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: tickCumulatives is %T", ErrInvalidPoolResponse, out[0])
	}
	liquidity, ok := out[1].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: secondsPerLiquidityCumulativeX128s is %T", ErrInvalidPoolResponse, out[1])
	}
	if len(ticks) != len(secondsAgos) || len(liquidity) != len(secondsAgos) {
		return nil, fmt.Errorf("%w: observe returned %d/%d values for %d offsets",
			ErrInvalidPoolResponse, len(ticks), len(liquidity), len(secondsAgos))
	}

	obs := make([]Observation, len(secondsAgos))
	for i, ago := range secondsAgos {
		obs[i] = Observation{
			SecondsAgo:                        ago,
			TickCumulative:                    ticks[i],
			SecondsPerLiquidityCumulativeX128: liquidity[i],
		}
	}
	return obs, nil
}

// Slot0 returns the current sqrt price and tick.
func (p *PoolContract) Slot0(ctx context.Context) (Slot0, error) {
	out, err := p.call(ctx, "slot0")
	if err != nil {
		return Slot0{}, err
	}
	if len(out) != 7 {
		return Slot0{}, fmt.Errorf("%w: slot0 returned %d values", ErrInvalidPoolResponse, len(out))
	}

	sqrtPrice, ok1 := out[0].(*big.Int)
	tick, ok2 := out[1].(*big.Int)
	cardinality, ok3 := out[3].(uint16)
	unlocked, ok4 := out[6].(bool)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Slot0{}, fmt.Errorf("%w: slot0 types %T %T %T %T", ErrInvalidPoolResponse, out[0], out[1], out[3], out[6])
	}

	return Slot0{
		SqrtPriceX96:           sqrtPrice,
		Tick:                   int(tick.Int64()),
		ObservationCardinality: cardinality,
		Unlocked:               unlocked,
	}, nil
}

// Liquidity returns the pool's in-range liquidity.
func (p *PoolContract) Liquidity(ctx context.Context) (*big.Int, error) {
	out, err := p.call(ctx, "liquidity")
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: liquidity returned %d values", ErrInvalidPoolResponse, len(out))
	}
	liquidity, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: liquidity is %T", ErrInvalidPoolResponse, out[0])
	}
	return liquidity, nil
}
