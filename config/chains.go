package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultBaseDecimals  uint8 = 18
	DefaultQuoteDecimals uint8 = 6
)

// ChainConfig describes one EVM chain and the token pair probed on it
type ChainConfig struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	ChainID       uint64         `json:"chainId"`
	RPCURL        string         `json:"-"`
	ExplorerURL   string         `json:"explorer"`
	NativeSymbol  string         `json:"nativeSymbol"`
	BaseToken     common.Address `json:"baseToken"`
	QuoteToken    common.Address `json:"quoteToken"`
	BaseDecimals  uint8          `json:"baseDecimals"`
	QuoteDecimals uint8          `json:"quoteDecimals"`
	Quoter        common.Address `json:"quoter"`
}

// Validate checks that the chain has everything the scanner needs
func (c *ChainConfig) Validate() error {
	var missing []string

	if c.ID == "" {
		missing = append(missing, "id")
	}
	if c.RPCURL == "" {
		missing = append(missing, "rpc url")
	}
	if c.Quoter == (common.Address{}) {
		missing = append(missing, "quoter address")
	}
	if c.BaseToken == (common.Address{}) {
		missing = append(missing, "base token")
	}
	if c.QuoteToken == (common.Address{}) {
		missing = append(missing, "quote token")
	}

	if len(missing) > 0 {
		return fmt.Errorf("chain %q missing %s", c.ID, strings.Join(missing, ", "))
	}
	return nil
}

// EnvPrefix returns the prefix used for per-chain environment variables
func (c *ChainConfig) EnvPrefix() string {
	return strings.ToUpper(strings.ReplaceAll(c.ID, "-", "_"))
}

// Registry is an ordered, read-only lookup of chains by id
type Registry struct {
	chains []ChainConfig
	index  map[string]int
}

// NewRegistry validates the chains and builds a registry preserving their order
func NewRegistry(chains []ChainConfig) (*Registry, error) {
	if errs := validateChains(chains); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(errs, "; "))
	}

	r := &Registry{
		chains: append([]ChainConfig(nil), chains...),
		index:  make(map[string]int, len(chains)),
	}
	for i, c := range r.chains {
		r.index[c.ID] = i
	}
	return r, nil
}

func validateChains(chains []ChainConfig) []string {
	if len(chains) == 0 {
		return []string{"no chains configured"}
	}

	var errs []string
	seen := make(map[string]bool, len(chains))
	for _, c := range chains {
		if err := c.Validate(); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if seen[c.ID] {
			errs = append(errs, fmt.Sprintf("duplicate chain id %q", c.ID))
		}
		seen[c.ID] = true
	}
	return errs
}

// Get returns the chain with the given id
func (r *Registry) Get(id string) (ChainConfig, bool) {
	i, ok := r.index[id]
	if !ok {
		return ChainConfig{}, false
	}
	return r.chains[i], true
}

// All returns the chains in configured order
func (r *Registry) All() []ChainConfig {
	return append([]ChainConfig(nil), r.chains...)
}

// IDs returns the chain ids in configured order
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.chains))
	for i, c := range r.chains {
		ids[i] = c.ID
	}
	return ids
}

func (r *Registry) Len() int {
	return len(r.chains)
}

// DefaultChains returns the built-in Arbitrum, Base and Optimism deployments
// of the Uniswap V3 QuoterV2 with their WETH/USDC pairs.
func DefaultChains() []ChainConfig {
	return []ChainConfig{
		{
			ID:            "arbitrum",
			Name:          "Arbitrum One",
			ChainID:       42161,
			RPCURL:        "https://arb1.arbitrum.io/rpc",
			ExplorerURL:   "https://arbiscan.io",
			NativeSymbol:  "ETH",
			BaseToken:     common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
			QuoteToken:    common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
			BaseDecimals:  DefaultBaseDecimals,
			QuoteDecimals: DefaultQuoteDecimals,
			Quoter:        common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e"),
		},
		{
			ID:            "base",
			Name:          "Base",
			ChainID:       8453,
			RPCURL:        "https://mainnet.base.org",
			ExplorerURL:   "https://basescan.org",
			NativeSymbol:  "ETH",
			BaseToken:     common.HexToAddress("0x4200000000000000000000000000000000000006"),
			QuoteToken:    common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
			BaseDecimals:  DefaultBaseDecimals,
			QuoteDecimals: DefaultQuoteDecimals,
			Quoter:        common.HexToAddress("0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a"),
		},
		{
			ID:            "optimism",
			Name:          "Optimism",
			ChainID:       10,
			RPCURL:        "https://mainnet.optimism.io",
			ExplorerURL:   "https://optimistic.etherscan.io",
			NativeSymbol:  "ETH",
			BaseToken:     common.HexToAddress("0x4200000000000000000000000000000000000006"),
			QuoteToken:    common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"),
			BaseDecimals:  DefaultBaseDecimals,
			QuoteDecimals: DefaultQuoteDecimals,
			Quoter:        common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e"),
		},
	}
}

// chainOverride is the YAML form of a chain entry. Empty fields keep the
// values of the default chain with the same id.
type chainOverride struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	ChainID       uint64 `yaml:"chain_id"`
	RPCURL        string `yaml:"rpc_url"`
	ExplorerURL   string `yaml:"explorer_url"`
	NativeSymbol  string `yaml:"native_symbol"`
	BaseToken     string `yaml:"base_token"`
	QuoteToken    string `yaml:"quote_token"`
	BaseDecimals  uint8  `yaml:"base_decimals"`
	QuoteDecimals uint8  `yaml:"quote_decimals"`
	Quoter        string `yaml:"quoter"`
}

func (o chainOverride) apply(chains []ChainConfig) ([]ChainConfig, error) {
	if o.ID == "" {
		return nil, fmt.Errorf("chain entry without id")
	}

	idx := -1
	for i := range chains {
		if chains[i].ID == o.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		chains = append(chains, ChainConfig{
			ID:            o.ID,
			Name:          o.ID,
			NativeSymbol:  "ETH",
			BaseDecimals:  DefaultBaseDecimals,
			QuoteDecimals: DefaultQuoteDecimals,
		})
		idx = len(chains) - 1
	}

	c := &chains[idx]
	if o.Name != "" {
		c.Name = o.Name
	}
	if o.ChainID != 0 {
		c.ChainID = o.ChainID
	}
	if o.RPCURL != "" {
		c.RPCURL = o.RPCURL
	}
	if o.ExplorerURL != "" {
		c.ExplorerURL = o.ExplorerURL
	}
	if o.NativeSymbol != "" {
		c.NativeSymbol = o.NativeSymbol
	}
	if o.BaseDecimals != 0 {
		c.BaseDecimals = o.BaseDecimals
	}
	if o.QuoteDecimals != 0 {
		c.QuoteDecimals = o.QuoteDecimals
	}

	for _, f := range []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"base_token", o.BaseToken, &c.BaseToken},
		{"quote_token", o.QuoteToken, &c.QuoteToken},
		{"quoter", o.Quoter, &c.Quoter},
	} {
		if f.value == "" {
			continue
		}
		if !common.IsHexAddress(f.value) {
			return nil, fmt.Errorf("chain %q: invalid %s %q", o.ID, f.name, f.value)
		}
		*f.dst = common.HexToAddress(f.value)
	}

	return chains, nil
}
