// Package main - точка входа для фонового воркера Nivo Hub.
//
// Воркер выполняет периодические задачи по расписанию:
// - Сверка подписок с грейс-периодом (страховка на случай потерянных вебхуков)
// - Ночной пересчёт серий после смены календарного дня
//
// Воркер работает независимо от API-сервера и может быть
// масштабирован отдельно.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nivo-app/nivo-hub/config"
	"github.com/nivo-app/nivo-hub/internal/domain/subscription"
	"github.com/nivo-app/nivo-hub/internal/infrastructure/messaging"
	"github.com/nivo-app/nivo-hub/internal/infrastructure/persistence/postgres"
	"github.com/nivo-app/nivo-hub/internal/infrastructure/persistence/redis"
	"github.com/nivo-app/nivo-hub/internal/infrastructure/scheduler"
	"github.com/nivo-app/nivo-hub/internal/infrastructure/scheduler/jobs"
	"github.com/nivo-app/nivo-hub/internal/domain/shared"
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

	if !cfg.Scheduler.Enabled {
		return fmt.Errorf("scheduler is disabled, nothing to run (set SCHEDULER_ENABLED=true)")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupSlog(cfg)

	log.Info("starting Nivo Hub worker",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"reconcile_interval", cfg.Scheduler.ReconcileInterval.String(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
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
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	// Миграции применяет API-сервер; воркер только проверяет доступность.
	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var subscriptionCache subscription.Cache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns

		redisCache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, cache invalidation disabled", "error", err)
		} else {
			defer redisCache.Close()
			subscriptionCache = redis.NewSubscriptionCache(redisCache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ И EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	subscriptionRepo := postgres.NewSubscriptionRepository(dbConn)
	progressionRepo := postgres.NewProgressionRepository(dbConn)

	busCfg := messaging.DefaultConfig()
	busCfg.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. РЕГИСТРАЦИЯ ЗАДАЧ В ПЛАНИРОВЩИКЕ
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.Config{
		Logger:   log,
		Timezone: time.UTC,
	})

	registered := 0

	if cfg.Features.IsEnabled(config.FeatureBillingReconcile, nil) {
		reconcileJob := jobs.NewReconcileSubscriptionsJob(
			subscriptionRepo,
			progressionRepo,
			subscriptionCache,
			eventBus,
			log,
			jobs.ReconcileConfig{
				GracePeriod: cfg.Scheduler.ReconcileGracePeriod,
				Timeout:     cfg.Scheduler.JobTimeout,
			},
		)
		if err := sched.Register(reconcileJob, scheduler.NewIntervalSchedule(cfg.Scheduler.ReconcileInterval)); err != nil {
			return fmt.Errorf("failed to register reconcile job: %w", err)
		}
		registered++
	} else {
		log.Warn("subscription reconciliation disabled by feature flag")
	}

	if cfg.Features.IsEnabled(config.FeatureStreakSweep, nil) {
		var streakBus shared.EventBus
		if cfg.Features.IsEnabled(config.FeatureStreakEvents, nil) {
			streakBus = eventBus
		}
		streakJob := jobs.NewRefreshStreaksJob(
			progressionRepo,
			streakBus,
			log,
			jobs.RefreshStreaksConfig{
				Timeout: cfg.Scheduler.JobTimeout,
			},
		)
		sweep := scheduler.NewDailySchedule(cfg.Scheduler.StreakSweepHour, cfg.Scheduler.StreakSweepMinute)
		if err := sched.Register(streakJob, sweep); err != nil {
			return fmt.Errorf("failed to register streak job: %w", err)
		}
		registered++
	} else {
		log.Warn("streak sweep disabled by feature flag")
	}

	if registered == 0 {
		return fmt.Errorf("no jobs enabled, worker has nothing to do")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	log.Info("worker is running", "jobs", registered)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	if err := sched.Stop(); err != nil {
		log.Error("scheduler stop failed", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// setupSlog настраивает структурированное логирование.
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
