// Command api is the caller-facing HTTP service: payment/refund submission
// and the risk alerts/webhooks surface (§6). Grounded on the teacher's
// api/cmd/main.go — manual constructor wiring and a gin.Engine, rather than
// the worker service's fx composition root, matching the teacher's own
// split between the two binaries.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lexure-intelligence/payment-watchdog/internal/adapters"
	"github.com/lexure-intelligence/payment-watchdog/internal/alerts"
	"github.com/lexure-intelligence/payment-watchdog/internal/breaker"
	"github.com/lexure-intelligence/payment-watchdog/internal/config"
	"github.com/lexure-intelligence/payment-watchdog/internal/eventbus"
	"github.com/lexure-intelligence/payment-watchdog/internal/httpapi"
	"github.com/lexure-intelligence/payment-watchdog/internal/idempotency"
	"github.com/lexure-intelligence/payment-watchdog/internal/metrics"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
	"github.com/lexure-intelligence/payment-watchdog/internal/orchestrator"
	"github.com/lexure-intelligence/payment-watchdog/internal/refund"
	"github.com/lexure-intelligence/payment-watchdog/internal/repository"
	"github.com/lexure-intelligence/payment-watchdog/internal/routing"
	"github.com/lexure-intelligence/payment-watchdog/internal/secrets"
	"github.com/lexure-intelligence/payment-watchdog/internal/velocity"
)

func main() {
	cfg, err := config.Load(os.Getenv("WATCHDOG_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := initLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting payment watchdog api")

	db, err := initDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	if err := db.AutoMigrate(
		&models.Transaction{}, &models.Refund{}, &models.PersistedEvent{},
		&models.PersistedAlert{}, &models.WebhookSubscription{}, &models.WebhookDeadLetter{},
	); err != nil {
		logger.Fatal("failed to run database migrations", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	var vaultClient *secrets.Client
	if cfg.Vault.Address != "" {
		vaultClient, err = secrets.NewClient(cfg.Vault.Address, cfg.Vault.Token, cfg.Vault.MountPath)
		if err != nil {
			logger.Warn("vault client init failed, falling back to config-based adapter credentials", zap.Error(err))
		}
	}

	registry := buildAdapters(cfg, vaultClient, logger)

	txRepo := repository.NewTransactionRepository(db)
	eventRepo := repository.NewEventRepository(db)
	refRepo := repository.NewRefundRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)

	paymentIdempo := idempotency.NewStore[models.PaymentResult, *models.PaymentResult](
		redisClient, "payment", cfg.Idempotency.TTL,
		func(ctx context.Context, key string) (*models.PaymentResult, error) {
			tx, err := txRepo.FindByKey(ctx, key)
			if err != nil || tx == nil {
				return nil, err
			}
			return orchestrator.TransactionToResult(tx), nil
		},
		nil, // durable persistence is owned by the orchestrator's own Upsert call
		logger,
	)
	refundIdempo := idempotency.NewStore[models.RefundResult, *models.RefundResult](
		redisClient, "refund", cfg.Idempotency.TTL,
		func(ctx context.Context, key string) (*models.RefundResult, error) {
			row, err := refRepo.FindByKey(ctx, key)
			if err != nil || row == nil {
				return nil, err
			}
			return refund.RowToResult(row), nil
		},
		nil,
		logger,
	)

	breakerRegistry := breaker.NewRegistry(breaker.Config{
		WindowSize:        cfg.Breaker.WindowSize,
		FailureRateThresh: cfg.Breaker.FailureRateThresh,
		MinCalls:          cfg.Breaker.MinCalls,
		OpenDuration:      cfg.Breaker.OpenDuration,
		HalfOpenSuccesses: cfg.Breaker.HalfOpenSuccesses,
		RetryMaxAttempts:  cfg.Retry.MaxAttempts,
		RetryWaitDuration: cfg.Retry.WaitDuration,
	}, logger)
	metricsRegistry := metrics.NewRegistry()
	strategy := routing.ByName(cfg.Routing.Strategy)

	bus := eventbus.NewRedisBus(redisClient, logger)

	orch := orchestrator.New(
		registry, breakerRegistry, metricsRegistry, strategy,
		paymentIdempo, txRepo, eventRepo, bus, logger,
		cfg.Routing.FailoverMaxAttempts, cfg.Routing.FailoverEnabled,
	)
	refundOrch := refund.New(registry, refundIdempo, txRepo, refRepo, logger)

	alertStore := alerts.NewStore(alertRepo)
	subscriptions := alerts.NewSubscriptions(webhookRepo)
	admission := velocity.NewAdmissionControl(cfg.Velocity.MaxPerEmailPer60s, cfg.Velocity.MaxPerIPPer60s)

	probeCtx, cancelProbe := context.WithCancel(context.Background())
	defer cancelProbe()
	prober := adapters.NewProber(registry, 30*time.Second, logger)
	go prober.Run(probeCtx)

	handlers := httpapi.NewHandlers(orch, refundOrch, alertStore, subscriptions, admission, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "payment-watchdog-api"})
	})
	httpapi.RegisterRoutes(router, handlers)

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("api server forced to shutdown", zap.Error(err))
	}
	_ = bus.Close()
	logger.Info("api server exited")
}

func initLogger(level string) (*zap.Logger, error) {
	var logLevel zap.AtomicLevel
	switch level {
	case "debug":
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		logLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		logLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = logLevel
	zcfg.OutputPaths = []string{"stdout"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}

func initDatabase(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port, cfg.Database.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{DisableForeignKeyConstraintWhenMigrating: true})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping: %w", err)
	}

	logger.Info("database connection established")
	return db, nil
}

// buildAdapters constructs the fixed PSP adapter set, preferring Vault for
// secrets and falling back to configuration when Vault is unavailable
// (local/dev convenience — never the production posture).
func buildAdapters(cfg *config.Config, vaultClient *secrets.Client, logger *zap.Logger) *adapters.Registry {
	stripeKey := cfg.Adapters.StripeSecretKey
	walletClientID := cfg.Adapters.WalletClientID
	walletClientSecret := ""
	bankAPIKey := cfg.Adapters.BankAPIKey
	bnplAPIKey := cfg.Adapters.BNPLAPIKey

	if vaultClient != nil {
		if creds, err := vaultClient.AdapterCredentials("stripe"); err == nil {
			if v, ok := creds["secretKey"]; ok {
				stripeKey = v
			}
		} else {
			logger.Warn("vault: stripe credentials unavailable, using config fallback", zap.Error(err))
		}
		if creds, err := vaultClient.AdapterCredentials("wallet"); err == nil {
			if v, ok := creds["clientId"]; ok {
				walletClientID = v
			}
			if v, ok := creds["clientSecret"]; ok {
				walletClientSecret = v
			}
		} else {
			logger.Warn("vault: wallet credentials unavailable, using config fallback", zap.Error(err))
		}
		if creds, err := vaultClient.AdapterCredentials("bank"); err == nil {
			if v, ok := creds["apiKey"]; ok {
				bankAPIKey = v
			}
		} else {
			logger.Warn("vault: bank credentials unavailable, using config fallback", zap.Error(err))
		}
		if creds, err := vaultClient.AdapterCredentials("bnpl"); err == nil {
			if v, ok := creds["apiKey"]; ok {
				bnplAPIKey = v
			}
		} else {
			logger.Warn("vault: bnpl credentials unavailable, using config fallback", zap.Error(err))
		}
	}

	stripeAdapter := adapters.NewStripeAdapter("stripe-primary", stripeKey, logger)
	walletAdapter := adapters.NewWalletAdapter("wallet-primary", adapters.WalletConfig{
		ClientID:     walletClientID,
		ClientSecret: walletClientSecret,
		TokenURL:     cfg.Adapters.WalletTokenURL,
		BaseURL:      cfg.Adapters.WalletBaseURL,
	})
	bankAdapter := adapters.NewBankAdapter("bank-primary", cfg.Adapters.BankBaseURL, bankAPIKey, logger)
	bnplAdapter := adapters.NewBNPLAdapter("bnpl-primary", cfg.Adapters.BNPLBaseURL, bnplAPIKey)

	return adapters.NewRegistry(stripeAdapter, walletAdapter, bankAdapter, bnplAdapter)
}
