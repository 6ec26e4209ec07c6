package oracle

import (
	"tc.com/token-prices/pkg/sources"
)

func init() {
	sources.Register(sources.SourceTypeOracle, "chainlink", NewChainlinkSource)
}
