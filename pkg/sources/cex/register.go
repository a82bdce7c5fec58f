package cex

import "github.com/StrathCole/pyth-publisher/pkg/sources"

func init() {
	// Register all CEX sources
	sources.Register("cex.coingecko", NewCoinGeckoSource)
	sources.Register("cex.coinmarketcap", NewCoinMarketCapSource)
	sources.Register("cex.coinmarket", NewCoinMarketCapSource)
}
