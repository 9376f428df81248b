package dex

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrChainConnection is returned when the chain RPC endpoint cannot be reached
	ErrChainConnection = errors.New("chain connection error")

	// ErrQuoteUnavailable is returned when the quoter cannot price a pair/fee combination
	ErrQuoteUnavailable = errors.New("quote unavailable")
)

// Quoter prices single-hop swaps on one chain
type Quoter interface {
	// GasPrice returns the current gas price in wei, falling back to a
	// configured minimum when the node cannot provide one
	GasPrice(ctx context.Context) (*big.Int, error)

	// QuoteExactInputSingle simulates an exact-input swap without changing state
	QuoteExactInputSingle(ctx context.Context, params QuoteParams) (*Quote, error)

	// BalanceAt returns the native balance of an account in wei
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
}

// ChainClient is the subset of ethclient.Client used by quoters
type ChainClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// QuoteParams describes one single-hop swap
type QuoteParams struct {
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *big.Int
	Fee      uint32
}

// Quote is the decoded quoter response. Only AmountOut drives profit math.
type Quote struct {
	AmountOut               *big.Int
	SqrtPriceX96After       *big.Int
	InitializedTicksCrossed uint32
	GasEstimate             *big.Int
}
