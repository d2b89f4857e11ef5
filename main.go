package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"custody-platform/config"
	"custody-platform/internal/accounts"
	"custody-platform/internal/api"
	"custody-platform/internal/auth"
	"custody-platform/internal/cache"
	"custody-platform/internal/commission"
	"custody-platform/internal/database"
	"custody-platform/internal/funds"
	"custody-platform/internal/gift"
	"custody-platform/internal/logging"
	"custody-platform/internal/notification"
	"custody-platform/internal/settlement"
	"custody-platform/internal/vault"

	"github.com/shopspring/decimal"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Initialize structured logging
	logger := logging.New(cfg.LoggingConfig)
	logger.Info().Msg("structured logging initialized")

	ctx := context.Background()

	// Vault holds the database password and JWT secret in production.
	// When disabled, the config values are used directly.
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize vault client")
	}
	if vaultClient.Enabled() {
		logger.Info().Str("address", cfg.VaultConfig.Address).Msg("vault client initialized")
	}

	// Database
	dbConfig := database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: vaultClient.DatabasePassword(ctx, cfg.DatabaseConfig.Password),
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}
	db, err := database.NewDB(dbConfig, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	repo := database.NewRepository(db)

	// Redis cache, used for the commission payout retry queue. The service
	// degrades gracefully when Redis is unreachable.
	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("cache unavailable, continuing without Redis")
		} else {
			defer cacheService.Close()
		}
	}

	// Notifications
	notifyManager := notification.NewManager(logger)
	notifyManager.AddNotifier(notification.NewLogNotifier(logger))

	var hub *notification.Hub
	if cfg.NotificationConfig.Enabled {
		hub = notification.NewHub(logger)
		go hub.Run()
		notifyManager.AddNotifier(hub)
	}

	if cfg.NotificationConfig.Email.Enabled {
		smtpConfig := notification.SMTPConfig{
			Enabled:  true,
			Host:     cfg.NotificationConfig.Email.Host,
			Port:     cfg.NotificationConfig.Email.Port,
			Username: cfg.NotificationConfig.Email.Username,
			Password: cfg.NotificationConfig.Email.Password,
			From:     cfg.NotificationConfig.Email.From,
			FromName: cfg.NotificationConfig.Email.FromName,
		}
		resolveEmail := func(ctx context.Context, accountID string) (string, error) {
			account, err := repo.GetAccountByID(ctx, accountID)
			if err != nil {
				return "", err
			}
			return account.Email, nil
		}
		notifyManager.AddNotifier(notification.NewEmailNotifier(smtpConfig, resolveEmail, logger))
	}

	// Domain services
	giftConfig := gift.Config{
		DefaultGrant: decimal.NewFromFloat(cfg.FeeConfig.GiftGrantAmount),
		LowThreshold: decimal.NewFromFloat(cfg.FeeConfig.GiftLowThreshold),
	}
	giftManager := gift.NewManager(repo, notifyManager, giftConfig, logger)
	fundManager := funds.NewManager(repo, notifyManager, logger)

	jwtManager := auth.NewJWTManager(
		vaultClient.JWTSecret(ctx, cfg.AuthConfig.JWTSecret),
		cfg.AuthConfig.AccessTokenDuration,
	)
	passwordManager := auth.NewPasswordManager(12, cfg.AuthConfig.MinPasswordLength)

	accountService := accounts.NewService(
		repo,
		passwordManager,
		jwtManager,
		giftManager,
		giftConfig.DefaultGrant,
		logger,
	)

	// Settlement engine
	rates := commission.RateTable{
		Platform:      decimal.NewFromFloat(cfg.FeeConfig.PlatformRate),
		Tier1:         decimal.NewFromFloat(cfg.FeeConfig.Tier1Rate),
		Tier2:         decimal.NewFromFloat(cfg.FeeConfig.Tier2Rate),
		UserFloor:     decimal.NewFromFloat(cfg.FeeConfig.UserRetentionFloor),
		FloorPlatform: decimal.NewFromFloat(cfg.FeeConfig.FloorPlatformRate),
	}
	engineConfig := settlement.EngineConfig{
		Rates:               rates,
		PlatformAccount:     cfg.FeeConfig.PlatformAccountID,
		CadencePromotionAge: time.Duration(cfg.FeeConfig.CadencePromotionDays) * 24 * time.Hour,
		GiftLowThreshold:    decimal.NewFromFloat(cfg.FeeConfig.GiftLowThreshold),
	}

	// Failed commission payouts wait in Redis so they survive restarts.
	// Without Redis an in-memory queue covers the process lifetime.
	var payoutQueue settlement.PayoutQueue
	if cacheService != nil && cacheService.IsHealthy() {
		payoutQueue = cache.NewRedisPayoutQueue(cacheService, logger)
		logger.Info().Msg("using Redis payout queue")
	} else {
		payoutQueue = settlement.NewMemoryPayoutQueue()
		logger.Info().Msg("using in-memory payout queue")
	}

	engine := settlement.NewEngine(repo, payoutQueue, notifyManager, engineConfig, logger)

	schedulerConfig := &settlement.SchedulerConfig{
		CheckInterval:     cfg.SchedulerConfig.CheckInterval,
		MaxConcurrent:     cfg.SchedulerConfig.MaxConcurrent,
		SettlementTimeout: cfg.SchedulerConfig.SettlementTimeout,
	}
	scheduler := settlement.NewScheduler(engine, repo, schedulerConfig, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start settlement scheduler")
	}

	reconciler := settlement.NewReconciler(
		repo,
		payoutQueue,
		settlement.DefaultRetryConfig(),
		cfg.SchedulerConfig.ReconcileInterval,
		logger,
	)
	if err := reconciler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start payout reconciler")
	}

	// HTTP API
	serverConfig := api.ServerConfig{
		Port:           cfg.ServerConfig.Port,
		Host:           cfg.ServerConfig.Host,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
		ProductionMode: os.Getenv("PRODUCTION_MODE") == "true",
		ReadTimeout:    time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
	}
	server := api.NewServer(
		serverConfig,
		repo,
		accountService,
		fundManager,
		giftManager,
		engine,
		hub,
		jwtManager,
		logger,
	)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	logger.Info().Int("port", cfg.ServerConfig.Port).Msg("custody platform started")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error shutting down HTTP server")
	}

	if err := scheduler.Stop(); err != nil {
		logger.Error().Err(err).Msg("error stopping settlement scheduler")
	}
	if err := reconciler.Stop(); err != nil {
		logger.Error().Err(err).Msg("error stopping payout reconciler")
	}

	logger.Info().Msg("shutdown complete")
}
