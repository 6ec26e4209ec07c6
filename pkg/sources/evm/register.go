package evm

import (
	"tc.com/token-prices/pkg/sources"
)

func init() {
	sources.Register(sources.SourceTypeEVM, "dex", NewDexSource)
}
