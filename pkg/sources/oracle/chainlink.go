package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"tc.com/token-prices/pkg/sources"
)

const chainlinkDefaultMaxAge = time.Hour

// ChainlinkSource reads spot prices from Chainlink aggregator feeds on
// a single EVM chain. Feeds are configured as a subject to aggregator
// address map ("bitcoin" => BTC/USD feed address).
type ChainlinkSource struct {
	*sources.BaseSource

	chain  string
	rpcURL string
	maxAge time.Duration
	client *ethclient.Client

	feeds map[string]common.Address

	aggregatorABI abi.ABI

	// decimals per feed, resolved lazily on first use. Guarded by mu
	// since batch resolution can hit distinct feeds concurrently.
	mu       sync.RWMutex
	decimals map[common.Address]uint8
}

// Chainlink AggregatorV3Interface ABI (latestRoundData and decimals).
const aggregatorABIJSON = `[{
	"inputs": [],
	"name": "latestRoundData",
	"outputs": [
		{"internalType": "uint80", "name": "roundId", "type": "uint80"},
		{"internalType": "int256", "name": "answer", "type": "int256"},
		{"internalType": "uint256", "name": "startedAt", "type": "uint256"},
		{"internalType": "uint256", "name": "updatedAt", "type": "uint256"},
		{"internalType": "uint80", "name": "answeredInRound", "type": "uint80"}
	],
	"stateMutability": "view",
	"type": "function"
}, {
	"inputs": [],
	"name": "decimals",
	"outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
	"stateMutability": "view",
	"type": "function"
}]`

// NewChainlinkSource creates a new Chainlink feed source for one chain.
func NewChainlinkSource(config map[string]interface{}) (sources.Source, error) {
	chain := sources.NormalizeChain(sources.GetStringFromConfig(config, "chain", ""))
	if chain == "" {
		return nil, fmt.Errorf("%w", ErrChainRequired)
	}

	rpcURL := sources.GetStringFromConfig(config, "rpc_url", "")
	if rpcURL == "" {
		return nil, fmt.Errorf("%w", sources.ErrRPCURLRequired)
	}

	feedsRaw := sources.GetStringMapFromConfig(config, "feeds")
	if len(feedsRaw) == 0 {
		return nil, fmt.Errorf("%w", sources.ErrNoFeedsConfigured)
	}

	feeds := make(map[string]common.Address, len(feedsRaw))
	for subject, addr := range feedsRaw {
		feeds[strings.ToLower(subject)] = common.HexToAddress(addr)
	}

	aggregatorABI, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse aggregator ABI: %w", err)
	}

	logger := sources.GetLoggerFromConfig(config)
	base := sources.NewBaseSource("chainlink_"+chain, sources.SourceTypeOracle, []sources.DataClass{
		sources.DataClassSpotPrice,
	}, logger)

	return &ChainlinkSource{
		BaseSource:    base,
		chain:         chain,
		rpcURL:        rpcURL,
		maxAge:        sources.GetDurationFromConfig(config, "max_age", chainlinkDefaultMaxAge),
		feeds:         feeds,
		aggregatorABI: aggregatorABI,
		decimals:      make(map[common.Address]uint8),
	}, nil
}

// Initialize connects to the EVM RPC endpoint.
func (s *ChainlinkSource) Initialize(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, s.rpcURL)
	if err != nil {
		return fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}
	s.client = client

	s.Logger().Info("Connected to Chainlink feeds", "chain", s.chain, "feeds", len(s.feeds))
	return nil
}

// Close releases the RPC connection.
func (s *ChainlinkSource) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// Fetch answers a single query.
func (s *ChainlinkSource) Fetch(ctx context.Context, query sources.PriceQuery) (sources.PriceResult, error) {
	if s.client == nil {
		return sources.PriceResult{}, fmt.Errorf("%w", sources.ErrClientNotInitialized)
	}
	if query.DataClass != sources.DataClassSpotPrice {
		return sources.PriceResult{}, fmt.Errorf("%w: data class %q", sources.ErrUnsupported, query.DataClass)
	}
	if query.Chain != "" && query.Chain != s.chain {
		return sources.PriceResult{}, fmt.Errorf("%w: %s serves %s", sources.ErrUnknownChain, s.Name(), s.chain)
	}

	feed, ok := s.feeds[query.Subject]
	if !ok {
		return sources.PriceResult{}, fmt.Errorf("%w: no feed for %s", sources.ErrSubjectNotFound, query.Subject)
	}

	round, err := s.latestRoundData(ctx, feed)
	if err != nil {
		return sources.PriceResult{}, err
	}
	if round.Answer.Sign() <= 0 {
		return sources.PriceResult{}, fmt.Errorf("%w: answer %s", ErrNegativeAnswer, round.Answer)
	}

	updatedAt := time.Unix(round.UpdatedAt.Int64(), 0)
	if s.maxAge > 0 && time.Since(updatedAt) > s.maxAge {
		return sources.PriceResult{}, fmt.Errorf("%w: updated %s", ErrStaleRound, updatedAt.UTC().Format(time.RFC3339))
	}

	dec, err := s.feedDecimals(ctx, feed)
	if err != nil {
		return sources.PriceResult{}, err
	}

	return sources.PriceResult{
		Value:         decimal.NewFromBigInt(round.Answer, -int32(dec)),
		QuoteCurrency: query.QuoteCurrency,
		ObservedAt:    updatedAt,
	}, nil
}

// roundData mirrors latestRoundData() outputs.
type roundData struct {
	RoundId         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

// latestRoundData calls latestRoundData() on an aggregator contract.
func (s *ChainlinkSource) latestRoundData(ctx context.Context, feed common.Address) (*roundData, error) {
	data, err := s.aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return nil, fmt.Errorf("failed to pack latestRoundData call: %w", err)
	}

	result, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &feed, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: latestRoundData: %v", sources.ErrUnavailable, err)
	}

	var round roundData
	if err := s.aggregatorABI.UnpackIntoInterface(&round, "latestRoundData", result); err != nil {
		return nil, fmt.Errorf("%w: latestRoundData: %v", sources.ErrInvalidResponse, err)
	}
	return &round, nil
}

// feedDecimals resolves and caches the decimals of a feed. Feed
// decimals never change on chain.
func (s *ChainlinkSource) feedDecimals(ctx context.Context, feed common.Address) (uint8, error) {
	s.mu.RLock()
	dec, ok := s.decimals[feed]
	s.mu.RUnlock()
	if ok {
		return dec, nil
	}

	data, err := s.aggregatorABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("failed to pack decimals call: %w", err)
	}

	result, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &feed, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: decimals: %v", sources.ErrUnavailable, err)
	}

	out, err := s.aggregatorABI.Unpack("decimals", result)
	if err != nil || len(out) == 0 {
		return 0, fmt.Errorf("%w: decimals: %v", sources.ErrInvalidResponse, err)
	}
	dec, ok = out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: decimals returned %T", sources.ErrInvalidResponse, out[0])
	}

	s.mu.Lock()
	s.decimals[feed] = dec
	s.mu.Unlock()
	return dec, nil
}
