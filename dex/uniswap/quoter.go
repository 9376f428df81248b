package uniswap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/arbscan/config"
	"github.com/michaelpento.lv/arbscan/dex"
	"github.com/michaelpento.lv/arbscan/utils/metrics"
)

const quoteMethod = "quoteExactInputSingle"

// QuoterV2 ABI, reduced to the single-hop exact input quote
const quoterV2ABIJson = `[{
	"inputs": [{
		"components": [
			{"internalType": "address", "name": "tokenIn", "type": "address"},
			{"internalType": "address", "name": "tokenOut", "type": "address"},
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "uint24", "name": "fee", "type": "uint24"},
			{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
		],
		"internalType": "struct IQuoterV2.QuoteExactInputSingleParams",
		"name": "params",
		"type": "tuple"
	}],
	"name": "quoteExactInputSingle",
	"outputs": [
		{"internalType": "uint256", "name": "amountOut", "type": "uint256"},
		{"internalType": "uint160", "name": "sqrtPriceX96After", "type": "uint160"},
		{"internalType": "uint32", "name": "initializedTicksCrossed", "type": "uint32"},
		{"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
	],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

var quoterABI = mustParseABI(quoterV2ABIJson)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("failed to parse quoter ABI: %v", err))
	}
	return parsed
}

// QuoterABI returns the parsed QuoterV2 ABI
func QuoterABI() abi.ABI {
	return quoterABI
}

// quoteExactInputSingleParams mirrors the QuoterV2 params tuple
type quoteExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Options tunes how a quoter talks to its node
type Options struct {
	Timeout     time.Duration
	RateLimit   config.RateLimitConfig
	MinGasPrice *big.Int
	Logger      *zap.Logger
	Metrics     *metrics.QuoteMetrics
}

// OptionsFromConfig derives quoter options from the application config
func OptionsFromConfig(cfg *config.Config, logger *zap.Logger, m *metrics.QuoteMetrics) Options {
	return Options{
		Timeout:     cfg.RPCTimeout,
		RateLimit:   cfg.RPCRateLimit,
		MinGasPrice: cfg.MinGasPrice(),
		Logger:      logger,
		Metrics:     m,
	}
}

// Quoter implements dex.Quoter against a Uniswap V3 QuoterV2 deployment
type Quoter struct {
	client  dex.ChainClient
	chain   config.ChainConfig
	limiter *rate.Limiter
	opts    Options
	logger  *zap.Logger
	closer  func()
}

var _ dex.Quoter = (*Quoter)(nil)

// NewQuoter creates a quoter for a chain on top of an existing client
func NewQuoter(client dex.ChainClient, chain config.ChainConfig, opts Options) *Quoter {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MinGasPrice == nil {
		opts.MinGasPrice = big.NewInt(1e7) // 0.01 gwei
	}

	limit := rate.Inf
	if opts.RateLimit.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RateLimit.RequestsPerSecond)
	}

	return &Quoter{
		client:  client,
		chain:   chain,
		limiter: rate.NewLimiter(limit, max(opts.RateLimit.BurstSize, 1)),
		opts:    opts,
		logger:  opts.Logger.With(zap.String("chain", chain.ID)),
	}
}

// Dial connects to the chain RPC endpoint and returns a quoter for it
func Dial(ctx context.Context, chain config.ChainConfig, opts Options) (*Quoter, error) {
	client, err := ethclient.DialContext(ctx, chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %v", dex.ErrChainConnection, chain.ID, err)
	}

	q := NewQuoter(client, chain, opts)
	q.closer = client.Close
	return q, nil
}

// Chain returns the chain this quoter serves
func (q *Quoter) Chain() config.ChainConfig {
	return q.chain
}

// Close releases the underlying RPC connection
func (q *Quoter) Close() {
	if q.closer != nil {
		q.closer()
	}
}

// GasPrice returns the suggested gas price or the configured minimum when
// the node cannot provide one
func (q *Quoter) GasPrice(ctx context.Context) (*big.Int, error) {
	if err := q.wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := q.callContext(ctx)
	defer cancel()

	price, err := q.client.SuggestGasPrice(callCtx)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil || price == nil || price.Sign() <= 0 {
		q.logger.Warn("Gas price unavailable, using default",
			zap.Error(err),
			zap.String("default", q.opts.MinGasPrice.String()),
		)
		return new(big.Int).Set(q.opts.MinGasPrice), nil
	}

	return price, nil
}

// QuoteExactInputSingle simulates a single-hop exact input swap with eth_call
func (q *Quoter) QuoteExactInputSingle(ctx context.Context, params dex.QuoteParams) (*dex.Quote, error) {
	if params.AmountIn == nil || params.AmountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount in must be positive", dex.ErrQuoteUnavailable)
	}

	data, err := quoterABI.Pack(quoteMethod, quoteExactInputSingleParams{
		TokenIn:           params.TokenIn,
		TokenOut:          params.TokenOut,
		AmountIn:          params.AmountIn,
		Fee:               new(big.Int).SetUint64(uint64(params.Fee)),
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pack quote call: %w", err)
	}

	if err := q.wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := q.callContext(ctx)
	defer cancel()

	start := time.Now()
	quoter := q.chain.Quoter
	out, err := q.client.CallContract(callCtx, ethereum.CallMsg{
		To:   &quoter,
		Data: data,
	}, nil)
	q.observeLatency(time.Since(start))

	if err != nil {
		err = q.classify(ctx, err, params)
		q.observe(err)
		return nil, err
	}

	quote, err := decodeQuote(out)
	if err != nil {
		err = fmt.Errorf("%w: fee %d: %v", dex.ErrQuoteUnavailable, params.Fee, err)
	}
	q.observe(err)
	return quote, err
}

// BalanceAt returns the native balance of an account at the latest block
func (q *Quoter) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	if err := q.wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := q.callContext(ctx)
	defer cancel()

	balance, err := q.client.BalanceAt(callCtx, account, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: balance of %s: %v", dex.ErrChainConnection, account.Hex(), err)
	}
	return balance, nil
}

func decodeQuote(out []byte) (*dex.Quote, error) {
	if len(out) == 0 {
		return nil, errors.New("empty return data")
	}

	values, err := quoterABI.Unpack(quoteMethod, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack quote: %w", err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected quote output length %d", len(values))
	}

	amountOut, ok := values[0].(*big.Int)
	if !ok || amountOut == nil {
		return nil, errors.New("invalid amountOut")
	}

	quote := &dex.Quote{AmountOut: amountOut}
	if v, ok := values[1].(*big.Int); ok {
		quote.SqrtPriceX96After = v
	}
	if v, ok := values[2].(uint32); ok {
		quote.InitializedTicksCrossed = v
	}
	if v, ok := values[3].(*big.Int); ok {
		quote.GasEstimate = v
	}
	return quote, nil
}

// revertCode is the JSON-RPC error code geth uses for reverted calls
const revertCode = 3

// classify maps a failed call onto the dex error taxonomy. A reverted call
// means the combination cannot be priced. Any other failure, JSON-RPC errors
// such as throttling included, is a chain connection error.
func (q *Quoter) classify(ctx context.Context, err error, params dex.QuoteParams) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if isRevert(err) {
		return fmt.Errorf("%w: fee %d: %v", dex.ErrQuoteUnavailable, params.Fee, err)
	}
	return fmt.Errorf("%w: %s: %v", dex.ErrChainConnection, q.chain.ID, err)
}

// isRevert reports whether the node rejected the call with a revert. Some
// nodes answer reverts with a generic code, so the message is checked too.
func isRevert(err error) bool {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	if rpcErr.ErrorCode() == revertCode {
		return true
	}
	return strings.Contains(strings.ToLower(rpcErr.Error()), "execution reverted")
}

func (q *Quoter) wait(ctx context.Context) error {
	if err := q.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: rate limiter: %v", dex.ErrChainConnection, err)
	}
	return nil
}

func (q *Quoter) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if q.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, q.opts.Timeout)
}

func (q *Quoter) observe(err error) {
	if q.opts.Metrics == nil {
		return
	}

	result := metrics.ResultOK
	switch {
	case err == nil:
	case errors.Is(err, dex.ErrQuoteUnavailable):
		result = metrics.ResultUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result = metrics.ResultCanceled
	default:
		result = metrics.ResultConnection
	}
	q.opts.Metrics.Calls.WithLabelValues(q.chain.ID, result).Inc()
}

func (q *Quoter) observeLatency(d time.Duration) {
	if q.opts.Metrics != nil {
		q.opts.Metrics.Latency.WithLabelValues(q.chain.ID).Observe(d.Seconds())
	}
}
