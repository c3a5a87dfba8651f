package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm/logger"

	"task-dashboard/backend/internal/cache"
	"task-dashboard/backend/internal/config"
	"task-dashboard/backend/internal/database"
	"task-dashboard/backend/internal/handlers"
	"task-dashboard/backend/internal/middleware"
	"task-dashboard/backend/internal/models"
	"task-dashboard/backend/internal/monitoring"
	"task-dashboard/backend/internal/repositories"
	"task-dashboard/backend/internal/seed"
	"task-dashboard/backend/internal/services"
	"task-dashboard/backend/internal/store"
	"task-dashboard/backend/internal/worker"
)

// app owns every long-lived component of the serve command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.TaskStore
	service *services.CachedTaskService
	cache   *cache.MultiLevelCache
	redis   *cache.RedisCache
	db      *database.DatabasePool
	worker  *worker.Worker
	monitor *monitoring.Monitor
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: log, monitor: monitoring.NewMonitor()}

	tasks, categories, err := a.loadSeed(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = store.New(tasks, categories)
	log.Info("seed loaded", "source", cfg.Seed.Source, "tasks", len(tasks), "categories", len(categories))

	var opts []services.CachedOption
	if cfg.Redis.Enabled {
		a.redis = cache.NewRedisCache(&cache.CacheConfig{
			Addr:         cfg.GetRedisAddr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			KeyPrefix:    cfg.Redis.KeyPrefix,
		})
		if err := a.redis.Health(ctx); err != nil {
			log.Warn("redis unavailable, serving from the local cache", "addr", cfg.GetRedisAddr(), "error", err)
		}

		queues := worker.QueuesFor(cfg.Redis.KeyPrefix)
		a.worker = worker.NewWorker(worker.WorkerConfig{
			RedisClient: a.redis.Client(),
			Queues:      queues,
			PollTimeout: cfg.Worker.PollTimeout,
			JobTimeout:  cfg.Worker.JobTimeout,
			Logger:      log,
		})
		opts = append(opts, services.WithRefreshQueue(worker.NewJobQueue(a.redis.Client(), queues.Main)))
	}

	a.cache = cache.NewMultiLevelCache(a.redis, &cache.CircuitBreakerConfig{
		MaxFailures:      cfg.Cache.BreakerMaxFailures,
		Timeout:          cfg.Cache.BreakerTimeout,
		HalfOpenMaxCalls: 3,
		OnStateChange: func(from, to cache.CircuitBreakerState) {
			log.Warn("redis cache breaker", "from", from.String(), "to", to.String())
		},
	})

	opts = append(opts,
		services.WithLogger(log),
		services.WithTTLs(cfg.Cache.StatsTTL, cfg.Cache.CategoriesTTL),
	)
	a.service = services.NewCachedTaskService(services.NewTaskService(a.store), a.cache, opts...)

	if a.worker != nil {
		a.service.RegisterJobHandlers(a.worker)
	}
	a.registerChecks()
	return a, nil
}

func (a *app) loadSeed(ctx context.Context) ([]models.Task, []models.Category, error) {
	if a.cfg.Seed.Source != config.SeedSourceDatabase {
		return seed.Embedded{}.Load(ctx)
	}

	pool, err := openDatabase(a.cfg)
	if err != nil {
		return nil, nil, err
	}
	a.db = pool

	tasks, categories, err := repositories.NewSeedRepository(pool.DB).Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load seed from database: %w", err)
	}
	if err := seed.Validate(tasks); err != nil {
		return nil, nil, err
	}
	return tasks, categories, nil
}

func openDatabase(cfg *config.Config) (*database.DatabasePool, error) {
	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:          database.Driver(cfg.Database.Driver),
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LogLevel:        logger.Warn,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return pool, nil
}

func (a *app) registerChecks() {
	a.monitor.RegisterHealthCheck("store", true, func(context.Context) error {
		if a.store == nil {
			return errors.New("task store not loaded")
		}
		return nil
	})
	a.monitor.RegisterStats("cache", func() interface{} { return a.service.GetCacheStats() })

	if a.redis != nil {
		a.monitor.RegisterHealthCheck("redis", false, a.redis.Health)
	}
	if a.db != nil {
		a.monitor.RegisterHealthCheck("database", false, a.db.Health)
		a.monitor.RegisterStats("database", func() interface{} { return a.db.Stats() })
	}
}

// start launches the refresh worker and fills the aggregate caches.
func (a *app) start(ctx context.Context) {
	if a.worker != nil {
		a.worker.Start(a.cfg.Worker.Concurrency)
	}
	a.service.WarmUp(ctx)
}

func (a *app) close() {
	if a.worker != nil {
		a.worker.Stop()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("close cache", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", "error", err)
		}
	}
}

func (a *app) router() *gin.Engine {
	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RecoveryWithLog(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(a.logger))
	r.Use(a.monitor.Middleware())
	if a.cfg.RateLimit.Enabled {
		r.Use(middleware.NewRateLimiter(a.cfg.RateLimit.RequestsPerSecond, a.cfg.RateLimit.Burst).Middleware())
	}
	corsConfig := cors.Config{
		AllowOrigins:  a.cfg.Server.CORSOrigins,
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	r.Use(cors.New(corsConfig))

	a.monitor.RegisterRoutes(r)
	handlers.NewTaskHandler(a.service).RegisterRoutes(r.Group("/api"))
	return r
}
