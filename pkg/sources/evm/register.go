package evm

import "github.com/StrathCole/pyth-publisher/pkg/sources"

func init() {
	// Register all EVM sources
	sources.Register("evm.uniswapv3", NewUniswapV3Source)
	sources.Register("evm.contracts", NewUniswapV3Source)
}
