package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"tc.com/token-prices/pkg/sources"
)

// DexSource reads spot prices from Uniswap-V2-style pair contracts on a
// single EVM chain, and token supply data from ERC20 contracts. One
// instance serves one chain; run several for multi-chain setups.
type DexSource struct {
	*sources.BaseSource

	chain  string
	rpcURL string
	client *ethclient.Client

	// pairs is keyed by both the configured subject and the lowercase
	// token contract address.
	pairs map[string]PairConfig

	pairABI  abi.ABI
	erc20ABI abi.ABI
}

// PairConfig holds configuration for a trading pair.
type PairConfig struct {
	Subject      string
	PairAddress  common.Address
	TokenAddress common.Address
	Decimals0    int
	Decimals1    int
	// Invert prices token1 in units of token0 instead of the default
	// token0-in-token1 orientation.
	Invert bool
}

// Uniswap V2 Pair ABI (only getReserves function).
const pairABIJSON = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"internalType": "uint112", "name": "reserve0", "type": "uint112"},
		{"internalType": "uint112", "name": "reserve1", "type": "uint112"},
		{"internalType": "uint32", "name": "blockTimestampLast", "type": "uint32"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// ERC20 ABI (totalSupply and decimals only).
const erc20ABIJSON = `[{
	"constant": true,
	"inputs": [],
	"name": "totalSupply",
	"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "decimals",
	"outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
	"stateMutability": "view",
	"type": "function"
}]`

// NewDexSource creates a new DEX price source for one chain.
func NewDexSource(config map[string]interface{}) (sources.Source, error) {
	chain := sources.NormalizeChain(sources.GetStringFromConfig(config, "chain", ""))
	if chain == "" {
		return nil, fmt.Errorf("%w", ErrChainRequired)
	}

	rpcURL := sources.GetStringFromConfig(config, "rpc_url", "")
	if rpcURL == "" {
		return nil, fmt.Errorf("%w", sources.ErrRPCURLRequired)
	}

	pairsRaw, ok := config["pairs"].([]interface{})
	if !ok || len(pairsRaw) == 0 {
		return nil, fmt.Errorf("%w", ErrPairsConfigRequired)
	}

	pairs := make(map[string]PairConfig, len(pairsRaw))
	for _, pairRaw := range pairsRaw {
		pairMap, ok := pairRaw.(map[string]interface{})
		if !ok {
			continue
		}

		subject := strings.ToLower(sources.GetStringFromConfig(pairMap, "subject", ""))
		pairAddr := sources.GetStringFromConfig(pairMap, "pair_address", "")
		if subject == "" || pairAddr == "" {
			continue
		}

		cfg := PairConfig{
			Subject:     subject,
			PairAddress: common.HexToAddress(pairAddr),
			Decimals0:   sources.GetIntFromConfig(pairMap, "decimals0", 18),
			Decimals1:   sources.GetIntFromConfig(pairMap, "decimals1", 18),
		}
		if inv, ok := pairMap["invert"].(bool); ok {
			cfg.Invert = inv
		}
		if tokenAddr := sources.GetStringFromConfig(pairMap, "token_address", ""); tokenAddr != "" {
			cfg.TokenAddress = common.HexToAddress(tokenAddr)
			pairs[strings.ToLower(cfg.TokenAddress.Hex())] = cfg
		}
		pairs[subject] = cfg
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w", sources.ErrNoPairsConfigured)
	}

	pairABI, err := abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	logger := sources.GetLoggerFromConfig(config)
	base := sources.NewBaseSource("dex_"+chain, sources.SourceTypeEVM, []sources.DataClass{
		sources.DataClassSpotPrice,
		sources.DataClassMetadata,
	}, logger)

	return &DexSource{
		BaseSource: base,
		chain:      chain,
		rpcURL:     rpcURL,
		pairs:      pairs,
		pairABI:    pairABI,
		erc20ABI:   erc20ABI,
	}, nil
}

// Initialize connects to the EVM RPC endpoint.
func (s *DexSource) Initialize(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, s.rpcURL)
	if err != nil {
		return fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}
	s.client = client

	s.Logger().Info("Connected to EVM RPC", "chain", s.chain, "pairs", len(s.pairs))
	return nil
}

// Close releases the RPC connection.
func (s *DexSource) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// Fetch answers a single query.
func (s *DexSource) Fetch(ctx context.Context, query sources.PriceQuery) (sources.PriceResult, error) {
	if s.client == nil {
		return sources.PriceResult{}, fmt.Errorf("%w", sources.ErrClientNotInitialized)
	}
	if query.Chain != "" && query.Chain != s.chain {
		return sources.PriceResult{}, fmt.Errorf("%w: %s serves %s", sources.ErrUnknownChain, s.Name(), s.chain)
	}

	switch query.DataClass {
	case sources.DataClassSpotPrice:
		return s.fetchSpot(ctx, query)
	case sources.DataClassMetadata:
		return s.fetchSupply(ctx, query)
	default:
		return sources.PriceResult{}, fmt.Errorf("%w: data class %q", sources.ErrUnsupported, query.DataClass)
	}
}

// fetchSpot reads pair reserves and derives the price from their ratio.
func (s *DexSource) fetchSpot(ctx context.Context, query sources.PriceQuery) (sources.PriceResult, error) {
	pair, ok := s.pairs[query.Subject]
	if !ok {
		return sources.PriceResult{}, fmt.Errorf("%w: no pair for %s", sources.ErrSubjectNotFound, query.Subject)
	}

	reserves, err := s.getReserves(ctx, pair.PairAddress)
	if err != nil {
		return sources.PriceResult{}, err
	}

	price, err := calculatePrice(reserves.Reserve0, reserves.Reserve1, pair.Decimals0, pair.Decimals1, pair.Invert)
	if err != nil {
		return sources.PriceResult{}, err
	}

	return sources.PriceResult{
		Value:         price,
		QuoteCurrency: query.QuoteCurrency,
		ObservedAt:    time.Now(),
	}, nil
}

// fetchSupply answers a metadata query with the token's scaled total
// supply. The subject must resolve to a configured token contract.
func (s *DexSource) fetchSupply(ctx context.Context, query sources.PriceQuery) (sources.PriceResult, error) {
	var tokenAddr common.Address
	if pair, ok := s.pairs[query.Subject]; ok && pair.TokenAddress != (common.Address{}) {
		tokenAddr = pair.TokenAddress
	} else if sources.IsContractAddress(query.Subject) {
		tokenAddr = common.HexToAddress(query.Subject)
	} else {
		return sources.PriceResult{}, fmt.Errorf("%w: no token contract for %s", sources.ErrSubjectNotFound, query.Subject)
	}

	decimals, err := s.callUint8(ctx, tokenAddr, "decimals")
	if err != nil {
		return sources.PriceResult{}, err
	}
	rawSupply, err := s.callBigInt(ctx, tokenAddr, "totalSupply")
	if err != nil {
		return sources.PriceResult{}, err
	}

	supply := decimal.NewFromBigInt(rawSupply, -int32(decimals))
	return sources.PriceResult{
		Value:         supply,
		QuoteCurrency: query.QuoteCurrency,
		ObservedAt:    time.Now(),
	}, nil
}

// Reserves holds the pair reserves.
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// getReserves calls the getReserves() function on a Uniswap V2 pair contract.
func (s *DexSource) getReserves(ctx context.Context, pairAddr common.Address) (*Reserves, error) {
	data, err := s.pairABI.Pack("getReserves")
	if err != nil {
		return nil, fmt.Errorf("failed to pack getReserves call: %w", err)
	}

	result, err := s.client.CallContract(ctx, ethereum.CallMsg{
		To:   &pairAddr,
		Data: data,
	}, nil) // nil = latest block
	if err != nil {
		return nil, fmt.Errorf("%w: getReserves: %v", sources.ErrUnavailable, err)
	}

	var reserves Reserves
	if err := s.pairABI.UnpackIntoInterface(&reserves, "getReserves", result); err != nil {
		return nil, fmt.Errorf("%w: getReserves: %v", sources.ErrInvalidResponse, err)
	}

	return &reserves, nil
}

// callBigInt calls a no-argument view function returning uint256.
func (s *DexSource) callBigInt(ctx context.Context, addr common.Address, method string) (*big.Int, error) {
	data, err := s.erc20ABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	result, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", sources.ErrUnavailable, method, err)
	}

	out, err := s.erc20ABI.Unpack(method, result)
	if err != nil || len(out) == 0 {
		return nil, fmt.Errorf("%w: %s: %v", sources.ErrInvalidResponse, method, err)
	}

	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %T", sources.ErrInvalidResponse, method, out[0])
	}
	return value, nil
}

// callUint8 calls a no-argument view function returning uint8.
func (s *DexSource) callUint8(ctx context.Context, addr common.Address, method string) (uint8, error) {
	data, err := s.erc20ABI.Pack(method)
	if err != nil {
		return 0, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	result, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", sources.ErrUnavailable, method, err)
	}

	out, err := s.erc20ABI.Unpack(method, result)
	if err != nil || len(out) == 0 {
		return 0, fmt.Errorf("%w: %s: %v", sources.ErrInvalidResponse, method, err)
	}

	value, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: %s returned %T", sources.ErrInvalidResponse, method, out[0])
	}
	return value, nil
}

// calculatePrice derives the spot price from pair reserves.
// Default orientation: price of token0 in units of token1,
// (reserve1 / 10^decimals1) / (reserve0 / 10^decimals0).
func calculatePrice(reserve0, reserve1 *big.Int, decimals0, decimals1 int, invert bool) (decimal.Decimal, error) {
	if reserve0 == nil || reserve1 == nil || reserve0.Sign() == 0 || reserve1.Sign() == 0 {
		return decimal.Zero, fmt.Errorf("%w", sources.ErrZeroLiquidity)
	}

	if decimals0 < 0 || decimals0 > 255 {
		decimals0 = 0
	}
	if decimals1 < 0 || decimals1 > 255 {
		decimals1 = 0
	}

	amount0 := decimal.NewFromBigInt(reserve0, -int32(decimals0)) // #nosec G115 -- bounds checked above
	amount1 := decimal.NewFromBigInt(reserve1, -int32(decimals1)) // #nosec G115

	if invert {
		return amount0.Div(amount1), nil
	}
	return amount1.Div(amount0), nil
}
