package cex

import (
	"tc.com/token-prices/pkg/sources"
)

func init() {
	// Register all CEX sources
	sources.Register(sources.SourceTypeCEX, "coingecko", NewCoinGeckoSource)
	sources.Register(sources.SourceTypeCEX, "binance", NewBinanceSource)
}
