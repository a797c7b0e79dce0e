package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/geneva/service/actions"
	"github.com/brojonat/geneva/service/analytics"
	"github.com/brojonat/geneva/service/config"
	"github.com/brojonat/geneva/service/db"
	"github.com/brojonat/geneva/service/imagegen"
	"github.com/brojonat/geneva/service/metrics"
	natspkg "github.com/brojonat/geneva/service/nats"
	"github.com/brojonat/geneva/service/nft"
	"github.com/brojonat/geneva/service/server"
	"github.com/brojonat/geneva/service/solana"
	"github.com/brojonat/geneva/service/temporal"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"network", cfg.Network,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Initialize Solana RPC client
	// Note: For premium RPC endpoints, include API key in the URL
	solanaClient := solana.NewClient(solana.NewRPCClient(cfg.SolanaRPCURL), metricsCollector, logger)
	logger.Info("initialized solana RPC client", "url", cfg.SolanaRPCURL)

	backoffFactory, err := solana.NewBackOffFactory(cfg.ConfirmBackoff, cfg.ConfirmDelay)
	if err != nil {
		logger.Error("invalid confirmation backoff", "error", err)
		os.Exit(1)
	}
	confirmer := solana.NewConfirmer(solanaClient, cfg.ConfirmMaxRetries, metricsCollector, logger,
		solana.WithBackOff(backoffFactory),
	)
	builder := solana.NewBuilder(solanaClient, logger)

	// Image generation runs in-process or as a Temporal workflow
	var generator actions.ImageGenerator
	switch cfg.GeneratorBackend {
	case config.GeneratorTemporal:
		temporalClient, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
		if err != nil {
			logger.Error("failed to create temporal client", "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()
		generator = temporalClient
		logger.Info("generating images through temporal",
			"host", cfg.TemporalHost,
			"task_queue", cfg.TemporalTaskQueue,
		)
	default:
		generator = imagegen.NewClient(cfg.FalBaseURL, cfg.FalKey, logger)
		logger.Info("generating images directly", "fal_base_url", cfg.FalBaseURL)
	}

	var minter actions.Minter
	if cfg.MintEnabled {
		minter = nft.NewMinter(cfg.HeliusRPCURL, logger)
		logger.Info("compressed NFT minting enabled")
	}

	// NATS is optional; without it action events are only logged
	var publisher analytics.Publisher
	if cfg.NATSURL != "" {
		natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	} else {
		logger.Warn("NATS_URL not set, action events will not be published")
	}

	var identity solanago.PublicKey
	if cfg.AnalyticsIdentity != "" {
		identity, err = solanago.PublicKeyFromBase58(cfg.AnalyticsIdentity)
		if err != nil {
			logger.Error("invalid ANALYTICS_IDENTITY", "error", err)
			os.Exit(1)
		}
	}
	tracker := analytics.NewTracker(identity, publisher, logger)

	// The ledger is optional
	var (
		recorder actions.Recorder
		ledger   server.Ledger
	)
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		store := db.NewStore(dbPool, metricsCollector)
		if err := store.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		recorder = store
		ledger = store
		logger.Info("connected to database")
	}

	actionsCfg, err := actionsConfig(cfg)
	if err != nil {
		logger.Error("invalid action configuration", "error", err)
		os.Exit(1)
	}

	orchestrator, err := actions.NewOrchestrator(actionsCfg, actions.Dependencies{
		Confirmer: confirmer,
		Builder:   builder,
		Payments:  solanaClient,
		Generator: generator,
		Minter:    minter,
		Analytics: tracker,
		Recorder:  recorder,
	}, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, orchestrator, ledger, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"payment_required", cfg.PaymentRequired,
		"mint_enabled", cfg.MintEnabled,
		"generator", cfg.GeneratorBackend,
		"analytics_identity", cfg.AnalyticsIdentity != "",
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// actionsConfig maps environment configuration onto the orchestrator's.
func actionsConfig(cfg *config.Config) (actions.Config, error) {
	out := actions.Config{
		BaseURL:         cfg.PublicBaseURL,
		Icon:            cfg.IconURL,
		PaymentRequired: cfg.PaymentRequired,
		MintEnabled:     cfg.MintEnabled,
		PaymentDecimals: cfg.PaymentDecimals,
		PaymentSymbol:   cfg.PaymentSymbol,
		PriorityFee:     cfg.PriorityFeeMicroLamports,
		Tiers:           actions.DefaultTiers(cfg.PriceStandard, cfg.PriceUltra),
		AnalyticsStrict: cfg.AnalyticsStrict,
		CollectionName:  cfg.CollectionName,
	}

	if cfg.TreasuryAddress != "" {
		treasury, err := solanago.PublicKeyFromBase58(cfg.TreasuryAddress)
		if err != nil {
			return actions.Config{}, err
		}
		out.Treasury = treasury
	}
	if cfg.PaymentMint != "" {
		mint, err := solanago.PublicKeyFromBase58(cfg.PaymentMint)
		if err != nil {
			return actions.Config{}, err
		}
		out.PaymentMint = mint
	}

	return out, nil
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
