package testutils

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/arbscan/config"
	"github.com/michaelpento.lv/arbscan/dex"
	fixed "github.com/michaelpento.lv/arbscan/utils/math"
)

var (
	BaseToken  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	QuoteToken = common.HexToAddress("0x00000000000000000000000000000000000000c2")
)

// TestChain returns a complete chain config pointing at a local node
func TestChain(id string) config.ChainConfig {
	return config.ChainConfig{
		ID:            id,
		Name:          "Test " + id,
		ChainID:       31337,
		RPCURL:        "http://127.0.0.1:8545",
		ExplorerURL:   "http://explorer.local",
		NativeSymbol:  "ETH",
		BaseToken:     BaseToken,
		QuoteToken:    QuoteToken,
		BaseDecimals:  18,
		QuoteDecimals: 6,
		Quoter:        common.HexToAddress("0x00000000000000000000000000000000000000d3"),
	}
}

// TestConfig returns a valid config for the given chain ids
func TestConfig(t *testing.T, ids ...string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Chains = nil
	for _, id := range ids {
		cfg.Chains = append(cfg.Chains, TestChain(id))
	}
	require.NoError(t, cfg.ValidateConfig())
	return cfg
}

// Units parses a decimal amount into raw units and fails the test on error
func Units(t *testing.T, amount string, decimals uint8) *big.Int {
	raw, err := fixed.ParseUnits(amount, decimals)
	require.NoError(t, err)
	return raw
}

type quoteResponse struct {
	amountOut *big.Int
	err       error
}

// FakeQuoter implements dex.Quoter with canned responses keyed by
// tokenIn, fee and amountIn
type FakeQuoter struct {
	mu sync.Mutex

	GasPriceWei *big.Int
	GasErr      error
	Balance     *big.Int
	BalanceErr  error

	// Fallback is returned for quotes without a canned response
	Fallback error

	// Block makes every quote wait until it is closed or the context ends
	Block chan struct{}
	// Entered receives one value per quote call when non-nil
	Entered chan struct{}

	quotes map[string]quoteResponse
	calls  []dex.QuoteParams
}

var _ dex.Quoter = (*FakeQuoter)(nil)

// NewFakeQuoter creates a fake quoter with a 0.1 gwei gas price
func NewFakeQuoter() *FakeQuoter {
	return &FakeQuoter{
		GasPriceWei: big.NewInt(100_000_000),
		Balance:     big.NewInt(0),
		Fallback:    fmt.Errorf("%w: pool does not exist", dex.ErrQuoteUnavailable),
		quotes:      make(map[string]quoteResponse),
	}
}

func quoteKey(tokenIn common.Address, fee uint32, amountIn *big.Int) string {
	return fmt.Sprintf("%s/%d/%s", tokenIn.Hex(), fee, amountIn.String())
}

// SetQuote registers the output for a swap
func (f *FakeQuoter) SetQuote(tokenIn common.Address, fee uint32, amountIn, amountOut *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[quoteKey(tokenIn, fee, amountIn)] = quoteResponse{amountOut: amountOut}
}

// SetError registers a failure for a swap
func (f *FakeQuoter) SetError(tokenIn common.Address, fee uint32, amountIn *big.Int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[quoteKey(tokenIn, fee, amountIn)] = quoteResponse{err: err}
}

// Calls returns the quotes requested so far
func (f *FakeQuoter) Calls() []dex.QuoteParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dex.QuoteParams(nil), f.calls...)
}

func (f *FakeQuoter) GasPrice(ctx context.Context) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.GasErr != nil {
		return nil, f.GasErr
	}
	return new(big.Int).Set(f.GasPriceWei), nil
}

func (f *FakeQuoter) QuoteExactInputSingle(ctx context.Context, params dex.QuoteParams) (*dex.Quote, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	resp, ok := f.quotes[quoteKey(params.TokenIn, params.Fee, params.AmountIn)]
	f.mu.Unlock()

	if f.Entered != nil {
		select {
		case f.Entered <- struct{}{}:
		default:
		}
	}
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !ok {
		return nil, f.Fallback
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return &dex.Quote{
		AmountOut:         new(big.Int).Set(resp.amountOut),
		SqrtPriceX96After: new(big.Int),
		GasEstimate:       big.NewInt(90000),
	}, nil
}

func (f *FakeQuoter) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	if f.BalanceErr != nil {
		return nil, f.BalanceErr
	}
	return new(big.Int).Set(f.Balance), nil
}
