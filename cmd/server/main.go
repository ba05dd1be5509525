// Package main is the entry point for the Lumen Adaptive Hub API server.
//
// The server hosts the live learning pipeline: behavior events arrive over
// HTTP, flow through per-learner sessions (profile updates, traversability
// scoring, orchestration decisions) and are served back as adaptive paths,
// insights and decision feeds.
//
// The architecture follows Clean Architecture and DDD:
// - Domain: pure scoring, aggregation and decision logic
// - Application: use case orchestration (Commands/Queries/Sessions)
// - Infrastructure: Postgres, Redis, event bus, scheduler
// - Interface: HTTP endpoints
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumen-hub/lumen-adaptive-hub/config"

	// Application layer
	"github.com/lumen-hub/lumen-adaptive-hub/internal/application/command"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/application/eventhandler"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/application/query"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/application/session"

	// Domain layer
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/collective"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/learner"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/orchestration"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/pathway"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/shared"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/traversal"

	// Infrastructure layer
	"github.com/lumen-hub/lumen-adaptive-hub/internal/infrastructure/messaging"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/infrastructure/persistence/postgres"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/lumen-hub/lumen-adaptive-hub/internal/interface/http"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/interface/http/handlers"
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

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Lumen Adaptive Hub API",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.URL == "" {
		return fmt.Errorf("database configuration is required (set DATABASE_URL or DB_HOST/DB_USER)")
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

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.RunMigrations {
		log.Info("running database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional, hot-path caching)
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
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	aggregateRepo := postgres.NewAggregateRepository(dbConn)
	profileRepo := postgres.NewProfileRepository(dbConn)
	outcomeRepo := postgres.NewOutcomeRepository(dbConn)
	snapshotRepo := postgres.NewSnapshotRepository(dbConn)
	curriculumRepo := postgres.NewCurriculumRepository(dbConn)
	progressRepo := postgres.NewProgressRepository(dbConn)
	decisionRepo := postgres.NewDecisionRepository(dbConn)

	// Cache layers over Postgres. When Redis is absent the providers fall
	// back to store-only reads.
	clock := shared.SystemClock{}

	var profileCache learner.ProfileCache
	var snapshots collective.SnapshotProvider
	var cooldowns orchestration.CooldownTracker
	var celebrations orchestration.CelebrationStore

	if redisCache != nil {
		profileCache = redis.NewProfileCache(redisCache, log)
		snapshots = redis.NewSnapshotCache(redisCache, snapshotRepo, log)
		cooldowns = redis.NewCooldownTracker(redisCache)
		celebrations = redis.NewCelebrationStore(redisCache)
	} else {
		snapshots = &storeSnapshotProvider{store: snapshotRepo, clock: clock}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS & DISPATCHER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = log

	// With Redis present events fan out across hub instances, so the worker's
	// curriculum-aggregated events reach every API server's cache handlers.
	var eventBus shared.EventBus
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

	dispatcherConfig := messaging.DefaultDispatcherConfig(eventBus)
	dispatcherConfig.Logger = log
	dispatcher := messaging.NewDispatcher(dispatcherConfig)

	if cooldowns != nil {
		cooldownHandler := eventhandler.NewOnDecisionProposedHandler(cooldowns, log)
		if err := dispatcher.Register(shared.EventDecisionProposed, "cooldown_tracker", cooldownHandler.Handle); err != nil {
			return fmt.Errorf("failed to register cooldown handler: %w", err)
		}
	}
	if celebrations != nil {
		celebrationHandler := eventhandler.NewOnCelebrationHandler(celebrations, clock, log)
		if err := dispatcher.Register(shared.EventCelebration, "celebration_store", celebrationHandler.Handle); err != nil {
			return fmt.Errorf("failed to register celebration handler: %w", err)
		}
	}
	if profileCache != nil {
		invalidationHandler := eventhandler.NewOnConfidenceShiftedHandler(profileCache, log)
		if err := dispatcher.Register(shared.EventConfidenceShifted, "profile_cache_invalidation", invalidationHandler.Handle); err != nil {
			return fmt.Errorf("failed to register profile invalidation handler: %w", err)
		}
	}

	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	defer func() {
		log.Info("stopping dispatcher...")
		_ = dispatcher.Stop()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. DOMAIN SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing domain services...")

	updater, err := learner.NewUpdater(learner.DefaultUpdaterConfig())
	if err != nil {
		return fmt.Errorf("failed to create profile updater: %w", err)
	}

	scorer, err := traversal.NewScorer(traversal.DefaultScorerConfig(), clock)
	if err != nil {
		return fmt.Errorf("failed to create traversability scorer: %w", err)
	}

	recommender := pathway.NewRecommender(pathway.DefaultRecommenderConfig(), clock)

	engineCfg := orchestration.DefaultEngineConfig()
	engineCfg.Cooldown = cfg.Adaptive.DecisionCooldown
	engineCfg.StruggleThreshold = cfg.Adaptive.StruggleThreshold
	engineCfg.CelebrationTTL = cfg.Adaptive.CelebrationTTL

	// ─────────────────────────────────────────────────────────────────────────
	// 9. SESSION MANAGER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing session manager...")

	sessionCfg := session.DefaultConfig()
	sessionCfg.QueueSize = cfg.Session.QueueSize
	sessionCfg.SnapshotMaxAge = cfg.Session.SnapshotMaxAge
	sessionCfg.WriteTimeout = cfg.Session.WriteTimeout

	sessions := session.NewManager(sessionCfg, engineCfg, session.Deps{
		Aggregates: aggregateRepo,
		Profiles:   profileRepo,
		Updater:    updater,
		Scorer:     scorer,
		Snapshots:  snapshots,
		Catalog:    curriculumRepo,
		Progress:   progressRepo,
		Publisher:  eventBus,
		Clock:      clock,
		Logger:     log,
	}, outcomeRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. APPLICATION LAYER (Commands, Queries)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")

	recordEventCmd := command.NewRecordEventHandler(sessions)
	resolveDecisionCmd := command.NewResolveDecisionHandler(sessions, decisionRepo)
	closeSessionCmd := command.NewCloseSessionHandler(sessions)

	profileQuery := query.NewGetProfileHandler(profileRepo, profileCache)
	pathQuery := query.NewGetAdaptivePathHandler(
		curriculumRepo, progressRepo, profileRepo, snapshots,
		scorer, recommender, eventBus, cfg.Adaptive.SnapshotMaxAge, log,
	)
	traversabilityQuery := query.NewGetTraversabilityHandler(
		curriculumRepo, progressRepo, profileRepo, snapshots,
		scorer, cfg.Adaptive.SnapshotMaxAge,
	)
	insightsQuery := query.NewGetCurriculumInsightsHandler(snapshotRepo, clock)
	decisionHistoryQuery := query.NewGetDecisionHistoryHandler(decisionRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// 11. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("postgres", handlers.NewPingCheck(dbConn))
	if redisCache != nil {
		// Sessions survive a Redis outage, so its failure is informational.
		healthChecker.AddOptionalCheck("redis", handlers.NewPingCheck(redisCache))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server...")

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.Server.Host
	httpConfig.Port = cfg.Server.Port
	httpConfig.ReadTimeout = cfg.Server.ReadTimeout
	httpConfig.WriteTimeout = cfg.Server.WriteTimeout
	httpConfig.IdleTimeout = cfg.Server.IdleTimeout
	httpConfig.RateLimitPerMinute = cfg.Server.RateLimitPerMinute
	httpConfig.EnableCORS = cfg.Server.EnableCORS
	httpConfig.AllowedOrigins = cfg.Server.AllowedOrigins
	httpConfig.APIKeyHeader = cfg.Server.APIKeyHeader
	httpConfig.APIKeyHashes = cfg.Server.APIKeyHashes

	httpServer := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		RecordEventHandler:           recordEventCmd,
		ResolveDecisionHandler:       resolveDecisionCmd,
		CloseSessionHandler:          closeSessionCmd,
		GetProfileHandler:            profileQuery,
		GetAdaptivePathHandler:       pathQuery,
		GetTraversabilityHandler:     traversabilityQuery,
		GetCurriculumInsightsHandler: insightsQuery,
		GetDecisionHistoryHandler:    decisionHistoryQuery,
		Celebrations:                 celebrations,
		Logger:                       log,
		HealthChecker:                healthChecker,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 13. START & GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := httpServer.StartAsync()
	log.Info("Lumen Adaptive Hub API is running",
		"address", httpServer.Address(),
		"auth_enabled", len(cfg.Server.APIKeyHashes) > 0,
		"redis_enabled", redisCache != nil,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Error("http server error", "error", err)
			return err
		}
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	// Stop accepting requests first, then drain sessions so in-flight
	// events finish their persistence writes.
	log.Info("stopping HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		shutdownErr = err
	}

	log.Info("closing live sessions...", "open", sessions.Len())
	sessions.CloseAll(shutdownCtx)

	// Dispatcher, event bus and database close via defers.

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}

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
		// JSON is the default, it plays well with log aggregators.
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
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
// These adapt infrastructure implementations to domain interfaces.
// ══════════════════════════════════════════════════════════════════════════════

// storeSnapshotProvider serves snapshots straight from the Postgres store
// when Redis is disabled.
type storeSnapshotProvider struct {
	store collective.SnapshotStore
	clock shared.Clock
}

// Current implements collective.SnapshotProvider.
func (p *storeSnapshotProvider) Current(ctx context.Context, courseID string, maxAge time.Duration) (*collective.EmergentCurriculum, bool, error) {
	cur, err := p.store.Latest(ctx, courseID)
	if err != nil {
		return nil, false, err
	}
	fresh := maxAge <= 0 || p.clock.Now().Sub(cur.GeneratedAt) <= maxAge
	return cur, fresh, nil
}
