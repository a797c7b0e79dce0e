package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTreasury = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

func TestLoad_ValidConfig(t *testing.T) {
	os.Setenv("TREASURY_ADDRESS", testTreasury)
	os.Setenv("FAL_KEY", "fal-secret")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.ServerAddr) // Default
	assert.Equal(t, "info", cfg.LogLevel)    // Default
	assert.Equal(t, NetworkDevnet, cfg.Network)
	assert.Equal(t, DevnetRPCURL, cfg.SolanaRPCURL)
	assert.True(t, cfg.PaymentRequired)
	assert.False(t, cfg.MintEnabled)
	assert.Equal(t, "SOL", cfg.PaymentSymbol)
	assert.Equal(t, uint8(9), cfg.PaymentDecimals)
	assert.Equal(t, uint64(268970), cfg.PriceStandard)
	assert.Equal(t, uint64(1000), cfg.PriorityFeeMicroLamports)
	assert.Equal(t, 10, cfg.ConfirmMaxRetries)
	assert.Equal(t, 2*time.Second, cfg.ConfirmDelay)
	assert.Equal(t, BackoffFixed, cfg.ConfirmBackoff)
	assert.Equal(t, GeneratorDirect, cfg.GeneratorBackend)
	assert.Equal(t, "geneva-generation", cfg.TemporalTaskQueue)
	assert.Equal(t, "Geneva", cfg.CollectionName)
	assert.Empty(t, cfg.IconURL)
}

func TestLoad_MissingTreasuryWhenPaymentRequired(t *testing.T) {
	os.Setenv("FAL_KEY", "fal-secret")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "TreasuryAddress")
}

func TestLoad_FreeModeNeedsNoTreasury(t *testing.T) {
	os.Setenv("PAYMENT_REQUIRED", "false")
	os.Setenv("FAL_KEY", "fal-secret")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.PaymentRequired)
}

func TestLoad_MintRequiresHelius(t *testing.T) {
	os.Setenv("TREASURY_ADDRESS", testTreasury)
	os.Setenv("FAL_KEY", "fal-secret")
	os.Setenv("MINT_ENABLED", "true")
	defer cleanupEnv()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HeliusRPCURL")

	os.Setenv("HELIUS_RPC_URL", "https://devnet.helius-rpc.com/?api-key=abc")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.MintEnabled)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"bad duration", "CONFIRM_DELAY", "soon", "invalid duration"},
		{"bad retries", "CONFIRM_MAX_RETRIES", "many", "invalid integer"},
		{"bad price", "PRICE_STANDARD", "-5", "invalid unsigned integer"},
		{"bad bool", "PAYMENT_REQUIRED", "perhaps", "invalid boolean"},
		{"decimals out of range", "PAYMENT_DECIMALS", "42", "PAYMENT_DECIMALS must be between"},
		{"unknown backoff", "CONFIRM_BACKOFF", "random", "ConfirmBackoff"},
		{"unknown network", "SOLANA_NETWORK", "testnet", "Network"},
		{"unknown backend", "GENERATOR_BACKEND", "local", "GeneratorBackend"},
		{"bad icon url", "ICON_URL", "not a url", "IconURL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("TREASURY_ADDRESS", testTreasury)
			os.Setenv("FAL_KEY", "fal-secret")
			os.Setenv(tt.key, tt.value)
			defer cleanupEnv()

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("TREASURY_ADDRESS", testTreasury)
	os.Setenv("FAL_KEY", "fal-secret")
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("PUBLIC_BASE_URL", "https://geneva.example.com/")
	os.Setenv("SOLANA_NETWORK", "mainnet")
	os.Setenv("PAYMENT_MINT", "SENDdRQtYMWaQrBroBrJ2Q53fgVuq95CV9UPGEvpCxa")
	os.Setenv("NATS_URL", "nats://nats.example.com:4222")
	os.Setenv("CONFIRM_BACKOFF", "exponential")
	os.Setenv("CONFIRM_DELAY", "500ms")
	os.Setenv("ICON_URL", "https://geneva.example.com/icon.png")
	os.Setenv("COLLECTION_NAME", "Geneva Devnet")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://geneva.example.com", cfg.PublicBaseURL)
	assert.Equal(t, MainnetRPCURL, cfg.SolanaRPCURL)
	assert.Equal(t, "SEND", cfg.PaymentSymbol)
	assert.Equal(t, uint8(6), cfg.PaymentDecimals)
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, BackoffExponential, cfg.ConfirmBackoff)
	assert.Equal(t, 500*time.Millisecond, cfg.ConfirmDelay)
	assert.Equal(t, "https://geneva.example.com/icon.png", cfg.IconURL)
	assert.Equal(t, "Geneva Devnet", cfg.CollectionName)
	assert.Equal(t, "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp", cfg.BlockchainID())
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ZeroPriceWhenPaymentRequired(t *testing.T) {
	cfg := validConfig()
	cfg.PriceUltra = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PriceUltra must be positive")
}

func TestValidate_TemporalBackendSkipsFalKey(t *testing.T) {
	cfg := validConfig()
	cfg.FalKey = ""
	require.Error(t, cfg.Validate())

	cfg.GeneratorBackend = GeneratorTemporal
	assert.NoError(t, cfg.Validate())
}

func TestMustLoad_Panics(t *testing.T) {
	// Don't set required env vars
	defer cleanupEnv()

	assert.Panics(t, func() {
		MustLoad()
	})
}

func validConfig() *Config {
	return &Config{
		ServerAddr:        ":8080",
		LogLevel:          "info",
		Network:           NetworkDevnet,
		SolanaRPCURL:      DevnetRPCURL,
		PaymentRequired:   true,
		TreasuryAddress:   testTreasury,
		PaymentDecimals:   9,
		PriceStandard:     100,
		PriceUltra:        200,
		FalKey:            "fal-secret",
		FalBaseURL:        "https://queue.fal.run",
		GeneratorBackend:  GeneratorDirect,
		ConfirmMaxRetries: 5,
		ConfirmDelay:      time.Second,
		ConfirmBackoff:    BackoffFixed,
		TemporalHost:      "localhost:7233",
		TemporalTaskQueue: "geneva-generation",
	}
}

// cleanupEnv clears all environment variables used in tests
func cleanupEnv() {
	for _, key := range []string{
		"SERVER_ADDR", "LOG_LEVEL", "PUBLIC_BASE_URL", "SOLANA_NETWORK", "SOLANA_RPC_URL",
		"PAYMENT_REQUIRED", "TREASURY_ADDRESS", "PAYMENT_MINT", "PAYMENT_SYMBOL", "PAYMENT_DECIMALS",
		"PRICE_STANDARD", "PRICE_ULTRA", "PRIORITY_FEE_MICROLAMPORTS", "MINT_ENABLED", "HELIUS_RPC_URL",
		"FAL_KEY", "FAL_BASE_URL", "GENERATOR_BACKEND", "CONFIRM_MAX_RETRIES", "CONFIRM_DELAY",
		"CONFIRM_BACKOFF", "ANALYTICS_IDENTITY", "ANALYTICS_STRICT", "NATS_URL", "DATABASE_URL",
		"TEMPORAL_HOST", "TEMPORAL_NAMESPACE", "TEMPORAL_TASK_QUEUE", "ICON_URL", "COLLECTION_NAME",
	} {
		os.Unsetenv(key)
	}
}
