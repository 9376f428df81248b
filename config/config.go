package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	fixed "github.com/michaelpento.lv/arbscan/utils/math"
)

// ErrConfiguration marks a fatal startup configuration problem
var ErrConfiguration = errors.New("configuration validation failed")

var gweiFactor = decimal.New(1, 9)

type Config struct {
	// Scan settings
	ScanInterval     time.Duration `json:"scan_interval" yaml:"scan_interval"`
	TradeAmounts     []string      `json:"trade_amounts" yaml:"trade_amounts"`
	FeeTiers         []uint32      `json:"fee_tiers" yaml:"fee_tiers"`
	ReferenceFeeTier uint32        `json:"reference_fee_tier" yaml:"reference_fee_tier"`

	// Cost projection
	GasUnits         uint64  `json:"gas_units" yaml:"gas_units"`
	MinGasPriceGwei  float64 `json:"min_gas_price_gwei" yaml:"min_gas_price_gwei"`
	DefaultFiatPrice float64 `json:"default_fiat_price" yaml:"default_fiat_price"`

	// Network settings
	RPCTimeout   time.Duration   `json:"rpc_timeout" yaml:"rpc_timeout"`
	RPCRateLimit RateLimitConfig `json:"rpc_rate_limit" yaml:"rpc_rate_limit"`

	API APIConfig `json:"api" yaml:"api"`

	Chains []ChainConfig `json:"chains" yaml:"-"`

	// Internal components
	Logger *zap.Logger `json:"-" yaml:"-"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int     `json:"burst_size" yaml:"burst_size"`
}

type APIConfig struct {
	Port     int    `json:"port" yaml:"port"`
	Identity string `json:"identity" yaml:"identity"`
}

// SecureConfig holds credentials that are validated at startup
type SecureConfig struct {
	WalletAddress common.Address
}

// fileConfig mirrors the YAML layout. Chains are overlaid on the defaults by id.
type fileConfig struct {
	Config `yaml:",inline"`
	Chains []chainOverride `yaml:"chains"`
}

func (c *Config) ValidateConfig() error {
	var errs []string

	// Validate scan settings
	if c.ScanInterval <= 0 {
		errs = append(errs, "scan_interval must be positive")
	}
	if len(c.TradeAmounts) == 0 {
		errs = append(errs, "trade_amounts must not be empty")
	}
	for _, amount := range c.TradeAmounts {
		if err := c.validateAmount(amount); err != nil {
			errs = append(errs, fmt.Sprintf("trade_amounts: %v", err))
		}
	}
	if len(c.FeeTiers) == 0 {
		errs = append(errs, "fee_tiers must not be empty")
	}
	for _, fee := range c.FeeTiers {
		if fee == 0 || fee >= 1<<24 {
			errs = append(errs, fmt.Sprintf("fee tier %d out of uint24 range", fee))
		}
	}
	if c.ReferenceFeeTier == 0 || c.ReferenceFeeTier >= 1<<24 {
		errs = append(errs, "reference_fee_tier out of uint24 range")
	}

	// Validate cost projection
	if c.GasUnits == 0 {
		errs = append(errs, "gas_units must be positive")
	}
	if c.MinGasPriceGwei <= 0 {
		errs = append(errs, "min_gas_price_gwei must be positive")
	}
	if c.DefaultFiatPrice <= 0 {
		errs = append(errs, "default_fiat_price must be positive")
	}

	// Validate network settings
	if c.RPCTimeout <= 0 {
		errs = append(errs, "rpc_timeout must be positive")
	}
	if err := c.RPCRateLimit.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("RPC rate limit error: %v", err))
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, "api port must be between 1 and 65535")
	}

	// Validate chains
	errs = append(errs, validateChains(c.Chains)...)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(errs, "; "))
	}

	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must not be negative")
	}
	if r.RequestsPerSecond > 0 && r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}

	return nil
}

// MinGasPrice returns the fallback gas price in wei
func (c *Config) MinGasPrice() *big.Int {
	return decimal.NewFromFloat(c.MinGasPriceGwei).Mul(gweiFactor).BigInt()
}

// validateAmount checks that an amount is representable on every chain
func (c *Config) validateAmount(amount string) error {
	if len(c.Chains) == 0 {
		_, err := fixed.ParseUnits(amount, DefaultBaseDecimals)
		return err
	}
	for _, chain := range c.Chains {
		if _, err := fixed.ParseUnits(amount, chain.BaseDecimals); err != nil {
			return fmt.Errorf("chain %s: %w", chain.ID, err)
		}
	}
	return nil
}

// TradeAmountsRaw converts the configured trade notionals into fixed-point
// integers for a token with the given number of decimals.
func (c *Config) TradeAmountsRaw(decimals uint8) ([]*big.Int, error) {
	amounts := make([]*big.Int, 0, len(c.TradeAmounts))
	for _, s := range c.TradeAmounts {
		raw, err := fixed.ParseUnits(s, decimals)
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, raw)
	}
	return amounts, nil
}

// Registry builds the chain registry from the configured chains
func (c *Config) Registry() (*Registry, error) {
	return NewRegistry(c.Chains)
}

// Summary is the configuration echo returned by the control API
type Summary struct {
	ScanIntervalMs   int64    `json:"scanIntervalMs"`
	TradeAmounts     []string `json:"tradeAmounts"`
	FeeTiers         []uint32 `json:"feeTiers"`
	ReferenceFeeTier uint32   `json:"referenceFeeTier"`
	GasUnits         uint64   `json:"gasUnits"`
	Chains           []string `json:"chains"`
}

// Summary returns the effective configuration in API form
func (c *Config) Summary() Summary {
	ids := make([]string, 0, len(c.Chains))
	for _, ch := range c.Chains {
		ids = append(ids, ch.ID)
	}
	return Summary{
		ScanIntervalMs:   c.ScanInterval.Milliseconds(),
		TradeAmounts:     append([]string(nil), c.TradeAmounts...),
		FeeTiers:         append([]uint32(nil), c.FeeTiers...),
		ReferenceFeeTier: c.ReferenceFeeTier,
		GasUnits:         c.GasUnits,
		Chains:           ids,
	}
}

// Load builds the configuration from defaults, an optional YAML file, the
// .env file and the process environment, then validates the result.
func Load(cfgFile string) (*Config, error) {
	config := DefaultConfig()

	if cfgFile != "" {
		if err := config.mergeFile(cfgFile); err != nil {
			return nil, err
		}
	}

	if err := LoadEnv(); err != nil {
		config.Logger.Debug("No .env file loaded", zap.Error(err))
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) mergeFile(cfgFile string) error {
	data, err := os.ReadFile(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}

	file := fileConfig{Config: *c}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: failed to decode config file: %v", ErrConfiguration, err)
	}

	chains := c.Chains
	for _, o := range file.Chains {
		chains, err = o.apply(chains)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
	}

	logger := c.Logger
	*c = file.Config
	c.Chains = chains
	c.Logger = logger
	return nil
}

func LoadSecureConfig() (*SecureConfig, error) {
	wallet, err := GetRequiredEnv(EnvWalletAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: wallet address not found: %v", ErrConfiguration, err)
	}

	if !common.IsHexAddress(wallet) {
		return nil, fmt.Errorf("%w: %s is not a valid address", ErrConfiguration, EnvWalletAddress)
	}

	return &SecureConfig{
		WalletAddress: common.HexToAddress(wallet),
	}, nil
}

func DefaultConfig() *Config {
	return &Config{
		Logger:           zap.NewNop(),
		ScanInterval:     2 * time.Second,
		TradeAmounts:     []string{"0.01"},
		FeeTiers:         []uint32{500, 3000},
		ReferenceFeeTier: 500,
		GasUnits:         300000, // Conservative estimate for two swaps
		MinGasPriceGwei:  0.01,
		DefaultFiatPrice: 3000,
		RPCTimeout:       5 * time.Second,
		RPCRateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         20,
		},
		API: APIConfig{
			Port:     3001,
			Identity: "arbscan",
		},
		Chains: DefaultChains(),
	}
}
