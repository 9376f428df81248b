package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvWalletAddress     = "WALLET_ADDRESS"
	EnvScanInterval      = "SCAN_INTERVAL_MS"
	EnvTradeAmounts      = "TRADE_AMOUNTS"
	EnvFeeTiers          = "FEE_TIERS"
	EnvReferenceFeeTier  = "REFERENCE_FEE_TIER"
	EnvGasUnits          = "GAS_UNITS"
	EnvMinGasPriceGwei   = "MIN_GAS_PRICE_GWEI"
	EnvDefaultFiatPrice  = "DEFAULT_FIAT_PRICE"
	EnvRPCTimeout        = "RPC_TIMEOUT_MS"
	EnvRPCRateLimitRPS   = "RPC_RATE_LIMIT_RPS"
	EnvRPCRateLimitBurst = "RPC_RATE_LIMIT_BURST"
	EnvAPIPort           = "API_PORT"
	EnvServiceIdentity   = "SERVICE_IDENTITY"
	EnvChains            = "CHAINS"

	// Per-chain suffixes, prefixed with the upper-cased chain id
	EnvChainRPCURL     = "_RPC_URL"
	EnvChainQuoter     = "_QUOTER_ADDRESS"
	EnvChainBaseToken  = "_BASE_TOKEN"
	EnvChainQuoteToken = "_QUOTE_TOKEN"
)

// LoadEnv loads environment variables from .env file
func LoadEnv() error {
	return godotenv.Load()
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}

func getEnvArray(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ApplyEnv overlays environment variables on the configuration
func (c *Config) ApplyEnv() error {
	var errs []string
	bad := func(key string, err error) {
		errs = append(errs, fmt.Sprintf("%s: %v", key, err))
	}

	if v := os.Getenv(EnvScanInterval); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err != nil {
			bad(EnvScanInterval, err)
		} else {
			c.ScanInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if amounts := getEnvArray(EnvTradeAmounts); len(amounts) > 0 {
		c.TradeAmounts = amounts
	}
	if tiers := getEnvArray(EnvFeeTiers); len(tiers) > 0 {
		parsed := make([]uint32, 0, len(tiers))
		for _, t := range tiers {
			fee, err := strconv.ParseUint(t, 10, 24)
			if err != nil {
				bad(EnvFeeTiers, err)
				continue
			}
			parsed = append(parsed, uint32(fee))
		}
		c.FeeTiers = parsed
	}
	if v := os.Getenv(EnvReferenceFeeTier); v != "" {
		if fee, err := strconv.ParseUint(v, 10, 24); err != nil {
			bad(EnvReferenceFeeTier, err)
		} else {
			c.ReferenceFeeTier = uint32(fee)
		}
	}
	if v := os.Getenv(EnvGasUnits); v != "" {
		if units, err := strconv.ParseUint(v, 10, 64); err != nil {
			bad(EnvGasUnits, err)
		} else {
			c.GasUnits = units
		}
	}
	if v := os.Getenv(EnvMinGasPriceGwei); v != "" {
		if gwei, err := strconv.ParseFloat(v, 64); err != nil {
			bad(EnvMinGasPriceGwei, err)
		} else {
			c.MinGasPriceGwei = gwei
		}
	}
	if v := os.Getenv(EnvDefaultFiatPrice); v != "" {
		if price, err := strconv.ParseFloat(v, 64); err != nil {
			bad(EnvDefaultFiatPrice, err)
		} else {
			c.DefaultFiatPrice = price
		}
	}
	if v := os.Getenv(EnvRPCTimeout); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err != nil {
			bad(EnvRPCTimeout, err)
		} else {
			c.RPCTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv(EnvRPCRateLimitRPS); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err != nil {
			bad(EnvRPCRateLimitRPS, err)
		} else {
			c.RPCRateLimit.RequestsPerSecond = rps
		}
	}
	if v := os.Getenv(EnvRPCRateLimitBurst); v != "" {
		if burst, err := strconv.Atoi(v); err != nil {
			bad(EnvRPCRateLimitBurst, err)
		} else {
			c.RPCRateLimit.BurstSize = burst
		}
	}
	if v := os.Getenv(EnvAPIPort); v != "" {
		if port, err := strconv.Atoi(v); err != nil {
			bad(EnvAPIPort, err)
		} else {
			c.API.Port = port
		}
	}
	c.API.Identity = GetEnvWithDefault(EnvServiceIdentity, c.API.Identity)

	// Per-chain overrides
	for i := range c.Chains {
		if err := applyChainEnv(&c.Chains[i]); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if enabled := getEnvArray(EnvChains); len(enabled) > 0 {
		chains, err := selectChains(c.Chains, enabled)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			c.Chains = chains
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(errs, "; "))
	}
	return nil
}

func applyChainEnv(c *ChainConfig) error {
	prefix := c.EnvPrefix()

	c.RPCURL = GetEnvWithDefault(prefix+EnvChainRPCURL, c.RPCURL)

	for _, f := range []struct {
		key string
		dst *common.Address
	}{
		{prefix + EnvChainQuoter, &c.Quoter},
		{prefix + EnvChainBaseToken, &c.BaseToken},
		{prefix + EnvChainQuoteToken, &c.QuoteToken},
	} {
		v := os.Getenv(f.key)
		if v == "" {
			continue
		}
		if !common.IsHexAddress(v) {
			return fmt.Errorf("%s is not a valid address", f.key)
		}
		*f.dst = common.HexToAddress(v)
	}
	return nil
}

// selectChains keeps the enabled chains in the order they are listed
func selectChains(chains []ChainConfig, enabled []string) ([]ChainConfig, error) {
	out := make([]ChainConfig, 0, len(enabled))
	for _, id := range enabled {
		found := false
		for _, c := range chains {
			if strings.EqualFold(c.ID, id) {
				out = append(out, c)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%s: unknown chain %q", EnvChains, id)
		}
	}
	return out, nil
}
