// Package main - точка входа для API-сервера Nivo Hub.
//
// Сервер обслуживает мобильные клиенты Nivo: каталог программ, экран
// "сегодня", уровень доступа, профиль ранга и сводку прогресса. Здесь же
// живут две write-операции - запуск hosted-чекаута и приём вебхуков
// биллинг-провайдера.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: чистая бизнес-логика без внешних зависимостей
// - Application: оркестрация use cases (Commands/Queries)
// - Infrastructure: реализация репозиториев, внешние API
// - Interface: HTTP endpoints и вебхуки
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nivo-app/nivo-hub/config"

	// Application layer
	"github.com/nivo-app/nivo-hub/internal/application/command"
	"github.com/nivo-app/nivo-hub/internal/application/query"

	// Infrastructure layer
	"github.com/nivo-app/nivo-hub/internal/domain/rank"
	"github.com/nivo-app/nivo-hub/internal/domain/subscription"
	"github.com/nivo-app/nivo-hub/internal/infrastructure/external/stripe"
	"github.com/nivo-app/nivo-hub/internal/infrastructure/messaging"
	"github.com/nivo-app/nivo-hub/internal/infrastructure/persistence/postgres"
	"github.com/nivo-app/nivo-hub/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/nivo-app/nivo-hub/internal/interface/http"
	"github.com/nivo-app/nivo-hub/internal/interface/http/handlers"
	"github.com/nivo-app/nivo-hub/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	slogger := setupSlog(cfg)
	appLogger := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})

	slogger.Info("starting Nivo Hub API server",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("connecting to database...")
	dbCfg := postgres.DefaultConfig()
	dbCfg.Host = cfg.Database.Host
	dbCfg.Port = cfg.Database.Port
	dbCfg.Database = cfg.Database.Name
	dbCfg.User = cfg.Database.User
	dbCfg.Password = cfg.Database.Password
	dbCfg.SSLMode = cfg.Database.SSLMode
	dbCfg.MaxConns = cfg.Database.MaxConns
	dbCfg.MinConns = cfg.Database.MinConns
	dbCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	dbCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	dbConn, err := postgres.NewConnection(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		slogger.Info("closing database connection...")
		dbConn.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slogger.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		subscriptionCache subscription.Cache
		webhookDeduper    httpserver.WebhookDeduper
		redisCache        *redis.Cache
	)

	if !cfg.Redis.Disabled {
		slogger.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			slogger.Warn("failed to connect to Redis, caching disabled", "error", err)
		} else {
			defer redisCache.Close()
			subscriptionCache = redis.NewSubscriptionCache(redisCache)
			if cfg.Features.IsEnabled(config.FeatureBillingWebhookDedup, nil) {
				webhookDeduper = redis.NewWebhookDeduper(redisCache)
			}
			slogger.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing repositories...")
	subscriptionRepo := postgres.NewSubscriptionRepository(dbConn)
	progressionRepo := postgres.NewProgressionRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ИНИЦИАЛИЗАЦИЯ EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing event bus...")
	busCfg := messaging.DefaultConfig()
	busCfg.Logger = slogger
	eventBus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		slogger.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ИНИЦИАЛИЗАЦИЯ БИЛЛИНГ-КЛИЕНТА
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing billing client...")
	billingCfg := stripe.DefaultClientConfig()
	billingCfg.BaseURL = cfg.Billing.BaseURL
	billingCfg.APIKey = cfg.Billing.APIKey
	billingCfg.WebhookSecret = cfg.Billing.WebhookSecret
	billingCfg.AllowedRedirectHosts = cfg.Billing.AllowedRedirectHosts
	billingCfg.Timeout = cfg.Billing.RequestTimeout
	billingCfg.RateLimiterConfig.RequestsPerSecond = float64(cfg.Billing.RateLimit)
	billingCfg.RateLimiterConfig.BurstSize = cfg.Billing.RateLimitBurst
	billingCfg.CircuitBreakerConfig.FailureThreshold = cfg.Billing.CircuitBreakerThreshold
	billingCfg.CircuitBreakerConfig.Timeout = cfg.Billing.CircuitBreakerTimeout
	billingCfg.CircuitBreakerConfig.HalfOpenMaxRetries = cfg.Billing.CircuitBreakerHalfOpenMax
	billingCfg.RetryConfig.MaxRetries = cfg.Billing.MaxRetries
	billingCfg.RetryConfig.InitialBackoff = cfg.Billing.RetryBaseDelay
	billingCfg.RetryConfig.MaxBackoff = cfg.Billing.RetryMaxDelay
	billingCfg.Logger = slogger
	billingCfg.Debug = cfg.App.Debug

	billingClient, err := stripe.NewClient(billingCfg)
	if err != nil {
		return fmt.Errorf("failed to create billing client: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. СБОРКА ОБРАБОТЧИКОВ (CQRS)
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("wiring application handlers...")

	deps := httpserver.Dependencies{
		GetCatalogHandler:          query.NewGetCatalogHandler(),
		GetAccessStatusHandler:     query.NewGetAccessStatusHandler(subscriptionRepo, subscriptionCache),
		GetRankProfileHandler:      query.NewGetRankProfileHandler(subscriptionRepo, rank.DefaultTable),
		GetTodaySessionHandler:     query.NewGetTodaySessionHandler(progressionRepo, subscriptionRepo),
		GetProgressOverviewHandler: query.NewGetProgressOverviewHandler(progressionRepo),

		ApplyBillingEventHandler: command.NewApplyBillingEventHandler(
			subscriptionRepo, subscriptionCache, progressionRepo, eventBus),
		RecordDailyCompletionHandler: command.NewRecordDailyCompletionHandler(
			progressionRepo, subscriptionRepo, eventBus),

		WebhookDeduper: webhookDeduper,
		Logger:         appLogger,
	}

	// Чекаут можно отключить флагом, не трогая остальной API.
	if cfg.Features.IsEnabled(config.FeatureBillingCheckout, nil) {
		deps.StartCheckoutHandler = command.NewStartCheckoutHandler(
			billingClient, subscriptionRepo, eventBus)
	} else {
		slogger.Warn("checkout endpoint disabled by feature flag")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("database", handlers.NewPingCheck(dbConn))
	if redisCache != nil {
		healthChecker.AddCheck("redis", handlers.NewPingCheck(redisCache))
	}
	deps.HealthChecker = healthChecker

	// ─────────────────────────────────────────────────────────────────────────
	// 11. ЗАПУСК HTTP-СЕРВЕРА
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpserver.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.EnableCORS = cfg.HTTP.EnableCORS
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverCfg.APIKeyHeader = cfg.HTTP.APIKeyHeader
	serverCfg.APIKeyHashes = cfg.HTTP.APIKeyHashes
	serverCfg.WebhookSecret = cfg.Billing.WebhookSecret
	serverCfg.DefaultPriceID = cfg.Billing.PriceID
	serverCfg.CheckoutSuccessURL = cfg.Billing.CheckoutSuccessURL
	serverCfg.CheckoutCancelURL = cfg.Billing.CheckoutCancelURL

	server := httpserver.NewServer(serverCfg, deps)
	serverErrCh := server.StartAsync()

	slogger.Info("Nivo Hub API server is running", "address", serverCfg.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 12. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		slogger.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErrCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slogger.Info("shutdown completed successfully")
	return nil
}

// setupSlog настраивает структурированное логирование для инфраструктуры.
func setupSlog(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
