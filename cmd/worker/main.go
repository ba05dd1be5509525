// Package main is the entry point for the Lumen Adaptive Hub background
// worker.
//
// The worker owns the batch side of the system:
// - Mining outcome logs into emergent curriculum snapshots per course
// - Auditing snapshot freshness so stale collective data is noticed
//
// Sessions keep serving requests while the worker runs; they simply pick up
// the new snapshot version on their next read.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lumen-hub/lumen-adaptive-hub/config"

	// Domain layer
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/collective"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"

	// Infrastructure layer
	"github.com/lumen-hub/lumen-adaptive-hub/internal/infrastructure/messaging"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/infrastructure/persistence/postgres"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/infrastructure/persistence/redis"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/infrastructure/scheduler"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/infrastructure/scheduler/jobs"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

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
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.Scheduler.Enabled {
		return errors.New("scheduler is disabled, nothing for the worker to do (set SCHEDULER_ENABLED=true)")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Lumen Adaptive Hub Worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"aggregate_interval", cfg.Scheduler.AggregateInterval.String(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.URL == "" {
		return errors.New("database configuration is required (set DATABASE_URL or DB_HOST/DB_USER)")
	}

	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, postgres.PoolOptions{
		MaxConns:          int32(cfg.Database.MaxConns),
		MinConns:          int32(cfg.Database.MinConns),
		ConnMaxLifetime:   cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:   cfg.Database.ConnMaxIdleTime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// Worker also needs an up-to-date schema.
	if cfg.Database.RunMigrations {
		log.Info("checking database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional, snapshot cache invalidation)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
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
			log.Warn("failed to connect to Redis, cache invalidation disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	curriculumRepo := postgres.NewCurriculumRepository(dbConn)
	outcomeRepo := postgres.NewOutcomeRepository(dbConn)
	snapshotRepo := postgres.NewSnapshotRepository(dbConn)

	// Publishing a snapshot must also drop the hot cached copy, otherwise
	// sessions keep scoring against the previous version until the TTL runs
	// out.
	var snapshotStore collective.SnapshotStore = snapshotRepo
	if redisCache != nil {
		snapshotStore = &invalidatingSnapshotStore{
			store:  snapshotRepo,
			cache:  redis.NewSnapshotCache(redisCache, snapshotRepo, log),
			logger: log,
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = log

	// With Redis present the aggregated-curriculum events fan out over
	// Pub/Sub, so API servers learn about fresh snapshots immediately.
	var eventBus shared.EventPublisher
	var closeEventBus func() error
	if redisCache != nil {
		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         redisCache.Client(),
			LocalBusConfig: eventBusConfig,
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("failed to create redis event bus: %w", err)
		}
		eventBus = redisBus
		closeEventBus = redisBus.Close
	} else {
		inMemBus := messaging.NewInMemoryEventBus(eventBusConfig)
		eventBus = inMemBus
		closeEventBus = inMemBus.Close
	}
	defer func() {
		log.Info("closing event bus...")
		_ = closeEventBus()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. JOBS & SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing scheduler...")

	aggregatorCfg := collective.DefaultAggregatorConfig()
	aggregatorCfg.MinPopulation = cfg.Adaptive.MinPopulation
	aggregator := collective.NewAggregator(aggregatorCfg)

	aggregateJobCfg := jobs.DefaultAggregateCollectiveConfig()
	aggregateJobCfg.Concurrency = cfg.Scheduler.AggregateConcurrency
	aggregateJobCfg.Timeout = cfg.Scheduler.AggregateTimeout
	aggregateJobCfg.MinNewOutcomes = cfg.Scheduler.MinNewOutcomes

	aggregateJob := jobs.NewAggregateCollectiveJob(
		curriculumRepo,
		outcomeRepo,
		snapshotStore,
		aggregator,
		eventBus,
		log,
		aggregateJobCfg,
	)

	healthJob := jobs.NewSnapshotHealthJob(
		curriculumRepo,
		snapshotRepo,
		eventBus,
		cfg.Adaptive.SnapshotMaxAge,
		log,
	)

	schedulerCfg := scheduler.DefaultSchedulerConfig()
	schedulerCfg.Logger = log
	schedulerCfg.Timezone = cfg.App.Location

	sched := scheduler.NewScheduler(schedulerCfg)
	if err := sched.Register(aggregateJob, scheduler.NewIntervalSchedule(cfg.Scheduler.AggregateInterval)); err != nil {
		return fmt.Errorf("failed to register aggregation job: %w", err)
	}
	healthSchedule, err := snapshotHealthSchedule(cfg)
	if err != nil {
		return fmt.Errorf("invalid snapshot health schedule: %w", err)
	}
	if err := sched.Register(healthJob, healthSchedule); err != nil {
		return fmt.Errorf("failed to register snapshot health job: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// First pass right away so a fresh deployment has snapshots before the
	// first interval elapses.
	if cfg.Scheduler.RunOnStart {
		log.Info("running initial aggregation pass...")
		if _, err := sched.RunNow(ctx, aggregateJob.Name()); err != nil {
			log.Error("initial aggregation pass failed", "error", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("Lumen Adaptive Hub Worker is running",
		"jobs", len(sched.ListJobs()),
		"timezone", cfg.App.Timezone,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler gracefully", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configures structured logging from observability settings.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Observability.LogLevel),
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

// snapshotHealthSchedule builds the health job schedule: a cron expression
// when configured, the plain interval otherwise.
func snapshotHealthSchedule(cfg *config.Config) (scheduler.Schedule, error) {
	if expr := cfg.Scheduler.SnapshotHealthCron; expr != "" {
		ce, err := scheduler.ParseCronExpression(expr)
		if err != nil {
			return nil, err
		}
		return ce, nil
	}
	return scheduler.NewIntervalSchedule(cfg.Scheduler.SnapshotHealthInterval), nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ADAPTERS
// ══════════════════════════════════════════════════════════════════════════════

// invalidatingSnapshotStore decorates the Postgres snapshot store with Redis
// cache invalidation on publish.
type invalidatingSnapshotStore struct {
	store  collective.SnapshotStore
	cache  *redis.SnapshotCache
	logger *slog.Logger
}

// Latest implements collective.SnapshotStore.
func (s *invalidatingSnapshotStore) Latest(ctx context.Context, courseID string) (*collective.EmergentCurriculum, error) {
	return s.store.Latest(ctx, courseID)
}

// Publish implements collective.SnapshotStore. The cached copy is dropped
// after the write lands; an invalidation failure is logged and left to the
// cache TTL.
func (s *invalidatingSnapshotStore) Publish(ctx context.Context, courseID string, cur *collective.EmergentCurriculum) error {
	if err := s.store.Publish(ctx, courseID, cur); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, courseID); err != nil {
		s.logger.Warn("failed to invalidate cached snapshot",
			"course_id", courseID,
			"error", err,
		)
	}
	return nil
}
