// Package di provides dependency injection wiring and initialization.
package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/aristath/sectorbl/internal/database"
	"github.com/aristath/sectorbl/internal/metrics"
	"github.com/aristath/sectorbl/internal/modules/backtest"
	"github.com/aristath/sectorbl/internal/modules/optimization"
	"github.com/aristath/sectorbl/internal/prices"
	"github.com/aristath/sectorbl/internal/reporting"
	"github.com/aristath/sectorbl/internal/scheduler"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	redisKeyPrefix     = "sectorbl:backtest:"
	cachePruneSchedule = "@hourly"
)

// Container holds all application dependencies
type Container struct {
	EngineConfig config.Engine

	DB       *database.DB
	Store    *prices.SQLiteStore
	Snapshot *prices.Snapshot
	Metrics  *metrics.Prometheus

	Redis    *redis.Client // nil unless REDIS_ADDR is set
	Cache    backtest.ResultCache
	Engine   *backtest.Engine
	Service  *backtest.Service
	Archiver reporting.Archiver // nil when archiving is disabled
	Limiter  *rate.Limiter

	Scheduler *scheduler.Scheduler
	ReloadJob *scheduler.ReloadPricesJob
}

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Engine constants
// 2. Database and price store
// 3. Engine, result cache and service
// 4. Report archive
// 5. Scheduled jobs
// The price snapshot starts empty; callers load it with ReloadJob.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	// Step 1: Engine constants
	engineCfg, err := config.LoadEngine(cfg.EngineConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load engine config: %w", err)
	}

	// Step 2: Database
	db, err := database.New(database.Config{
		Path:    cfg.PricesDB,
		Profile: database.ProfileStandard,
		Name:    "prices",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open prices database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate prices database: %w", err)
	}

	c := &Container{
		EngineConfig: engineCfg,
		DB:           db,
		Store:        prices.NewSQLiteStore(db.Conn(), log),
		Metrics:      metrics.NewPrometheus(),
	}
	c.Snapshot = prices.NewSnapshot(c.Store, engineCfg, log)

	// Step 3: Engine and cache
	solver := optimization.FallbackSolver{
		optimization.NewProjectedGradientSolver(),
		optimization.NewPenaltySolver(),
	}
	c.Engine = backtest.NewEngine(c.Snapshot, engineCfg, solver, c.Metrics, log)

	sqliteCache := initializeCache(c, cfg, log)
	c.Service = backtest.NewService(c.Engine, c.Cache, c.Metrics, log)
	c.Limiter = rate.NewLimiter(rate.Limit(cfg.BacktestRPS), cfg.BacktestBurst)

	// Step 4: Report archive
	if cfg.Reports.Enabled() {
		archiver, err := reporting.NewS3Archiver(context.Background(), cfg.Reports, log)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize report archive: %w", err)
		}
		c.Archiver = archiver
		log.Info().Str("bucket", cfg.Reports.Bucket).Msg("Report archiving enabled")
	}

	// Step 5: Jobs
	c.Scheduler = scheduler.New(log)
	c.ReloadJob = scheduler.NewReloadPricesJob(c.Snapshot, c.Metrics, log)
	if cfg.ReloadSchedule != "" {
		if err := c.Scheduler.AddJob(cfg.ReloadSchedule, c.ReloadJob); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to register price reload job: %w", err)
		}
	}
	if sqliteCache != nil {
		if err := c.Scheduler.AddJob(cachePruneSchedule, scheduler.NewPruneCacheJob(sqliteCache, log)); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to register cache prune job: %w", err)
		}
	}

	log.Info().Msg("Dependency injection wiring completed successfully")
	return c, nil
}

// initializeCache picks Redis when configured, SQLite otherwise. A zero TTL
// disables caching. It returns the SQLite cache so it can be pruned.
func initializeCache(c *Container, cfg *config.Config, log zerolog.Logger) *backtest.SQLiteCache {
	if cfg.ResultCacheTTL == 0 {
		log.Info().Msg("Backtest result cache disabled")
		return nil
	}
	if cfg.RedisAddr != "" {
		c.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		c.Cache = backtest.NewRedisCache(c.Redis, cfg.ResultCacheTTL, redisKeyPrefix)
		log.Info().Str("addr", cfg.RedisAddr).Msg("Backtest results cached in Redis")
		return nil
	}
	cache := backtest.NewSQLiteCache(c.DB.Conn(), cfg.ResultCacheTTL, log)
	c.Cache = cache
	return cache
}

// Close releases the database and Redis connections
func (c *Container) Close() error {
	var errs []error
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}
