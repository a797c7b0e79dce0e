package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Network names accepted by SOLANA_NETWORK.
const (
	NetworkMainnet = "mainnet"
	NetworkDevnet  = "devnet"
)

// Default cluster endpoints, used when SOLANA_RPC_URL is not set.
const (
	MainnetRPCURL = "https://api.mainnet-beta.solana.com"
	DevnetRPCURL  = "https://api.devnet.solana.com"
)

// Confirmation backoff policies accepted by CONFIRM_BACKOFF.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
	BackoffJittered    = "jittered"
)

// Generator backends accepted by GENERATOR_BACKEND.
const (
	GeneratorDirect   = "direct"
	GeneratorTemporal = "temporal"
)

var validate = validator.New()

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr    string `validate:"required"`
	LogLevel      string `validate:"oneof=debug info warn error"`
	PublicBaseURL string `validate:"omitempty,url"`
	IconURL       string `validate:"omitempty,url"`

	// Solana configuration
	Network      string `validate:"oneof=mainnet devnet"`
	SolanaRPCURL string `validate:"required,url"`

	// Payment configuration. Prices are in the smallest unit of PaymentMint
	// (or lamports when PaymentMint is empty).
	PaymentRequired          bool
	TreasuryAddress          string `validate:"required_if=PaymentRequired true"`
	PaymentMint              string
	PaymentSymbol            string
	PaymentDecimals          uint8 `validate:"lte=18"`
	PriceStandard            uint64
	PriceUltra               uint64
	PriorityFeeMicroLamports uint64

	// Minting configuration
	MintEnabled    bool
	HeliusRPCURL   string `validate:"required_if=MintEnabled true"`
	CollectionName string

	// Image generation configuration
	FalKey           string `validate:"required_if=GeneratorBackend direct"`
	FalBaseURL       string `validate:"required,url"`
	GeneratorBackend string `validate:"oneof=direct temporal"`

	// Confirmation polling configuration
	ConfirmMaxRetries int           `validate:"gte=1,lte=100"`
	ConfirmDelay      time.Duration `validate:"gt=0"`
	ConfirmBackoff    string        `validate:"oneof=fixed exponential jittered"`

	// Analytics configuration
	AnalyticsIdentity string
	AnalyticsStrict   bool

	// Optional infrastructure
	NATSURL     string
	DatabaseURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.PublicBaseURL = strings.TrimSuffix(os.Getenv("PUBLIC_BASE_URL"), "/")
	cfg.IconURL = os.Getenv("ICON_URL")

	// Solana configuration
	cfg.Network = getEnvOrDefault("SOLANA_NETWORK", NetworkDevnet)
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		cfg.SolanaRPCURL = DefaultRPCURL(cfg.Network)
	}

	// Payment configuration
	paymentRequired, err := parseBool("PAYMENT_REQUIRED", true)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.PaymentRequired = paymentRequired
	cfg.TreasuryAddress = os.Getenv("TREASURY_ADDRESS")
	cfg.PaymentMint = os.Getenv("PAYMENT_MINT")
	cfg.PaymentSymbol = getEnvOrDefault("PAYMENT_SYMBOL", defaultSymbol(cfg.PaymentMint))

	decimals, err := parseInt("PAYMENT_DECIMALS", defaultDecimals(cfg.PaymentMint))
	if err != nil {
		errs = append(errs, err)
	} else if decimals < 0 || decimals > 18 {
		errs = append(errs, fmt.Errorf("PAYMENT_DECIMALS must be between 0 and 18, got %d", decimals))
	} else {
		cfg.PaymentDecimals = uint8(decimals)
	}

	if cfg.PriceStandard, err = parseUint("PRICE_STANDARD", 268970); err != nil {
		errs = append(errs, err)
	}
	if cfg.PriceUltra, err = parseUint("PRICE_ULTRA", 537940); err != nil {
		errs = append(errs, err)
	}
	if cfg.PriorityFeeMicroLamports, err = parseUint("PRIORITY_FEE_MICROLAMPORTS", 1000); err != nil {
		errs = append(errs, err)
	}

	// Minting configuration
	mintEnabled, err := parseBool("MINT_ENABLED", false)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.MintEnabled = mintEnabled
	cfg.HeliusRPCURL = os.Getenv("HELIUS_RPC_URL")
	cfg.CollectionName = getEnvOrDefault("COLLECTION_NAME", "Geneva")

	// Image generation configuration
	cfg.FalKey = os.Getenv("FAL_KEY")
	cfg.FalBaseURL = getEnvOrDefault("FAL_BASE_URL", "https://queue.fal.run")
	cfg.GeneratorBackend = getEnvOrDefault("GENERATOR_BACKEND", GeneratorDirect)

	// Confirmation polling configuration
	if cfg.ConfirmMaxRetries, err = parseInt("CONFIRM_MAX_RETRIES", 10); err != nil {
		errs = append(errs, err)
	}
	if cfg.ConfirmDelay, err = parseDuration("CONFIRM_DELAY", "2s"); err != nil {
		errs = append(errs, err)
	}
	cfg.ConfirmBackoff = getEnvOrDefault("CONFIRM_BACKOFF", BackoffFixed)

	// Analytics configuration
	cfg.AnalyticsIdentity = os.Getenv("ANALYTICS_IDENTITY")
	analyticsStrict, err := parseBool("ANALYTICS_STRICT", false)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.AnalyticsStrict = analyticsStrict

	// Optional infrastructure
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "geneva-generation")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s failed %q validation (value: %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	if c.PaymentRequired {
		if c.PriceStandard == 0 {
			errs = append(errs, fmt.Errorf("PriceStandard must be positive when payment is required"))
		}
		if c.PriceUltra == 0 {
			errs = append(errs, fmt.Errorf("PriceUltra must be positive when payment is required"))
		}
	}

	if c.GeneratorBackend == GeneratorTemporal && (c.TemporalHost == "" || c.TemporalTaskQueue == "") {
		errs = append(errs, fmt.Errorf("TemporalHost and TemporalTaskQueue are required for the temporal generator backend"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// DefaultRPCURL returns the public cluster endpoint for a network.
func DefaultRPCURL(network string) string {
	if network == NetworkMainnet {
		return MainnetRPCURL
	}
	return DevnetRPCURL
}

// BlockchainID returns the CAIP-2 chain id advertised in the X-Blockchain-Ids header.
func (c *Config) BlockchainID() string {
	if c.Network == NetworkMainnet {
		return "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	}
	return "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
}

// defaultSymbol labels payments in SOL when no mint is configured.
func defaultSymbol(mint string) string {
	if mint == "" {
		return "SOL"
	}
	return "SEND"
}

func defaultDecimals(mint string) int {
	if mint == "" {
		return 9
	}
	return 6
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseUint parses an unsigned integer from an environment variable or uses a default.
func parseUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid unsigned integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
