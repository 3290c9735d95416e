// Package config loads engine configuration from environment variables.
// Configuration errors are the only fatal error class in the engine: a
// missing receiving address or processor credential means the engine
// cannot operate and must refuse to start.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	interrors "github.com/attova/subledger/internal/errors"
	"github.com/attova/subledger/internal/ledger"
)

// TokenContract binds a token symbol to its contract on one network.
type TokenContract struct {
	Token    ledger.Token
	Address  string
	Decimals int
}

// NetworkConfig describes one settlement network.
type NetworkConfig struct {
	Name    string
	ChainID int64
	Testnet bool
	Tokens  []TokenContract
}

// Config holds all engine configuration. It is constructed once and
// injected explicitly; nothing downstream reads the environment.
type Config struct {
	BindAddress string
	Port        int

	ReceivingAddress string
	StripeAPIKey     string

	ExplorerURL    string
	ExplorerAPIKey string

	PriceFeedURL    string
	PriceFeedAPIKey string

	MonthlyPriceUSD decimal.Decimal
	DaysPerPeriod   decimal.Decimal
	MinPaymentUSD   decimal.Decimal

	NetworkTimeout   time.Duration
	ProcessorTimeout time.Duration

	Networks        []string
	IncludeTestnets bool

	LogLevel  string
	LogFormat string
}

// knownNetworks is the built-in network registry: chain ids and token
// contract addresses per network. Enablement is configuration; the
// registry itself is not.
var knownNetworks = map[string]NetworkConfig{
	"ethereum": {
		Name:    "ethereum",
		ChainID: 1,
		Tokens: []TokenContract{
			{Token: ledger.TokenUSDC, Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6},
			{Token: ledger.TokenUSDT, Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6},
			{Token: ledger.TokenDAI, Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18},
			{Token: ledger.TokenWETH, Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Decimals: 18},
		},
	},
	"base": {
		Name:    "base",
		ChainID: 8453,
		Tokens: []TokenContract{
			{Token: ledger.TokenUSDC, Address: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", Decimals: 6},
			{Token: ledger.TokenDAI, Address: "0x50c5725949a6f0c72e6c4a641f24049a917db0cb", Decimals: 18},
			{Token: ledger.TokenWETH, Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
		},
	},
	"polygon": {
		Name:    "polygon",
		ChainID: 137,
		Tokens: []TokenContract{
			{Token: ledger.TokenUSDC, Address: "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359", Decimals: 6},
			{Token: ledger.TokenUSDT, Address: "0xc2132d05d31c914a87c6611c10748aeb04b58e8f", Decimals: 6},
			{Token: ledger.TokenWETH, Address: "0x7ceb23fd6bc0add59e62ac25578270cff1b9f619", Decimals: 18},
		},
	},
	"sepolia": {
		Name:    "sepolia",
		ChainID: 11155111,
		Testnet: true,
		Tokens: []TokenContract{
			{Token: ledger.TokenUSDC, Address: "0x1c7d4b196cb0c7b01d743fbc6116a902379c7238", Decimals: 6},
		},
	},
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Load reads configuration from the environment. A .env file is loaded if
// present but not required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := envOrDefaultInt("SUBLEDGER_PORT", 8799)
	if err != nil {
		return nil, err
	}
	monthlyPrice, err := envOrDefaultDecimal("SUBLEDGER_MONTHLY_PRICE_USD", "4.99")
	if err != nil {
		return nil, err
	}
	daysPerPeriod, err := envOrDefaultDecimal("SUBLEDGER_DAYS_PER_PERIOD", "30")
	if err != nil {
		return nil, err
	}
	minPayment, err := envOrDefaultDecimal("SUBLEDGER_MIN_PAYMENT_USD", "1")
	if err != nil {
		return nil, err
	}
	networkTimeout, err := envOrDefaultDuration("SUBLEDGER_NETWORK_TIMEOUT", 45*time.Second)
	if err != nil {
		return nil, err
	}
	processorTimeout, err := envOrDefaultDuration("SUBLEDGER_PROCESSOR_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BindAddress:      envOrDefault("SUBLEDGER_BIND_ADDRESS", "0.0.0.0"),
		Port:             port,
		ReceivingAddress: strings.ToLower(strings.TrimSpace(os.Getenv("SUBLEDGER_RECEIVING_ADDRESS"))),
		StripeAPIKey:     strings.TrimSpace(os.Getenv("STRIPE_API_KEY")),
		ExplorerURL:      envOrDefault("SUBLEDGER_EXPLORER_URL", "https://api.etherscan.io/v2/api"),
		ExplorerAPIKey:   strings.TrimSpace(os.Getenv("SUBLEDGER_EXPLORER_API_KEY")),
		PriceFeedURL:     envOrDefault("SUBLEDGER_PRICEFEED_URL", "https://api.coingecko.com/api/v3"),
		PriceFeedAPIKey:  strings.TrimSpace(os.Getenv("SUBLEDGER_PRICEFEED_API_KEY")),
		MonthlyPriceUSD:  monthlyPrice,
		DaysPerPeriod:    daysPerPeriod,
		MinPaymentUSD:    minPayment,
		NetworkTimeout:   networkTimeout,
		ProcessorTimeout: processorTimeout,
		Networks:         splitList(envOrDefault("SUBLEDGER_NETWORKS", "ethereum,base,polygon")),
		IncludeTestnets:  envBool("SUBLEDGER_INCLUDE_TESTNETS"),
		LogLevel:         envOrDefault("SUBLEDGER_LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("SUBLEDGER_LOG_FORMAT", "auto"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// EnabledNetworks resolves the configured network names against the
// built-in registry, appending the test networks when enabled.
func (c *Config) EnabledNetworks() []NetworkConfig {
	var networks []NetworkConfig
	for _, name := range c.Networks {
		if nc, ok := knownNetworks[name]; ok && !nc.Testnet {
			networks = append(networks, nc)
		}
	}
	if c.IncludeTestnets {
		for _, nc := range knownNetworks {
			if nc.Testnet {
				networks = append(networks, nc)
			}
		}
	}
	return networks
}

func (c *Config) validate() error {
	var missing []string
	if c.ReceivingAddress == "" {
		missing = append(missing, "SUBLEDGER_RECEIVING_ADDRESS")
	}
	if c.StripeAPIKey == "" {
		missing = append(missing, "STRIPE_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: required environment variables not set: %s", interrors.ErrMissingConfig, strings.Join(missing, ", "))
	}

	if !addressPattern.MatchString(c.ReceivingAddress) {
		return fmt.Errorf("SUBLEDGER_RECEIVING_ADDRESS must be a 0x-prefixed 20-byte hex address, got %q", c.ReceivingAddress)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("SUBLEDGER_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if !c.MonthlyPriceUSD.IsPositive() {
		return fmt.Errorf("SUBLEDGER_MONTHLY_PRICE_USD must be greater than 0, got %s", c.MonthlyPriceUSD)
	}
	if !c.DaysPerPeriod.IsPositive() {
		return fmt.Errorf("SUBLEDGER_DAYS_PER_PERIOD must be greater than 0, got %s", c.DaysPerPeriod)
	}
	if c.MinPaymentUSD.IsNegative() {
		return fmt.Errorf("SUBLEDGER_MIN_PAYMENT_USD must not be negative, got %s", c.MinPaymentUSD)
	}

	for _, name := range c.Networks {
		if _, ok := knownNetworks[name]; !ok {
			return fmt.Errorf("SUBLEDGER_NETWORKS contains unknown network %q", name)
		}
	}
	if len(c.EnabledNetworks()) == 0 {
		return fmt.Errorf("no settlement networks enabled")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, val)
	}
	return parsed, nil
}

func envOrDefaultDecimal(key, fallback string) (decimal.Decimal, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		val = fallback
	}
	parsed, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s must be a decimal number, got %q", key, val)
	}
	return parsed, nil
}

func envOrDefaultDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. 30s), got %q", key, val)
	}
	return parsed, nil
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.ToLower(strings.TrimSpace(part)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
