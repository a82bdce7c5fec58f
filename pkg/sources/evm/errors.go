// Package evm provides on-chain price sources backed by Uniswap V3 pool oracles.
package evm

import "errors"

var (
	// ErrRPCURLRequired indicates that rpc_url configuration is required.
	ErrRPCURLRequired = errors.New("rpc_url is required")
	// ErrPoolsConfigRequired indicates that pools configuration is required.
	ErrPoolsConfigRequired = errors.New("pools configuration is required")
	// ErrInvalidFee indicates a fee tier Uniswap V3 does not deploy.
	ErrInvalidFee = errors.New("invalid pool fee tier")
	// ErrInvalidTimeInterval indicates a non-positive TWAP window.
	ErrInvalidTimeInterval = errors.New("time_interval must be positive")
	// ErrInsufficientObservations indicates fewer than two oracle observations.
	ErrInsufficientObservations = errors.New("at least two observations are required")
	// ErrZeroTimeSpan indicates two observations at the same offset.
	ErrZeroTimeSpan = errors.New("observations span zero seconds")
	// ErrZeroLiquidityDelta indicates that seconds-per-liquidity did not move over the window.
	ErrZeroLiquidityDelta = errors.New("seconds per liquidity did not change")
	// ErrTickOutOfRange indicates a tick outside [MinTick, MaxTick].
	ErrTickOutOfRange = errors.New("tick out of range")
	// ErrInvalidPoolResponse indicates that the pool returned an unexpected shape.
	ErrInvalidPoolResponse = errors.New("invalid pool response")
)
