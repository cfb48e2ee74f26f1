// Package control wires the resilience core together and manages its
// lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ratewise/trustcore/internal/abuse"
	"github.com/ratewise/trustcore/internal/business"
	"github.com/ratewise/trustcore/internal/cache"
	"github.com/ratewise/trustcore/internal/core/config"
	"github.com/ratewise/trustcore/internal/guard"
	"github.com/ratewise/trustcore/internal/health"
	redisclient "github.com/ratewise/trustcore/internal/infra/redis"
	"github.com/ratewise/trustcore/internal/infra/storage"
	"github.com/ratewise/trustcore/internal/infra/storage/memory"
	"github.com/ratewise/trustcore/internal/infra/storage/postgres"
	"github.com/ratewise/trustcore/internal/offline"
	"github.com/ratewise/trustcore/internal/ratelimit"
	"github.com/ratewise/trustcore/internal/ratings"
	"github.com/ratewise/trustcore/internal/resilience/breaker"
	"github.com/ratewise/trustcore/internal/resilience/retry"

	"github.com/pressly/goose/v3"
)

// Core is the main application struct that owns every component and its
// lifecycle.
type Core struct {
	cfg config.AppConfig

	limiter  *ratelimit.Limiter
	detector *abuse.Detector
	guard    *guard.Guard
	breakers *breaker.Registry
	executor *retry.Executor
	queue    *offline.Queue
	ratings  *ratings.Service
	caches   *cache.Set

	healthMon    *health.Monitor
	healthServer *health.Server

	db          *postgres.DB
	redisClient *redisclient.Client
	store       *memory.MemoryStorage
	log         *slog.Logger
}

// NewCore creates a Core with all dependencies initialized.
func NewCore(cfg config.AppConfig) (*Core, error) {
	log := slog.Default()

	// 1. Initialize Storage
	var ratingRepo storage.RatingRepository
	var flagRepo storage.FlagRepository
	var store *memory.MemoryStorage
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		// Note: Goose needs the raw *sql.DB which sqlx wraps
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		ratingRepo = postgres.NewRatingRepo(db)
		flagRepo = postgres.NewFlagRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		store = memory.NewMemoryStorage()
		ratingRepo = memory.NewRatingRepo(store)
		flagRepo = memory.NewFlagRepo(store)
		log.Info("Using Memory storage")
	}

	// 2. Initialize the offline queue. Redis gives the pending queue
	// durability across restarts; without it the queue lives in memory.
	var redisClient *redisclient.Client
	var pendingStore offline.Store

	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, pending queue is memory-only", "error", err)
			pendingStore = offline.NewMemoryStore()
		} else {
			pendingStore = redisclient.NewPendingStore(redisClient)
			log.Info("Pending operation queue backed by Redis")
		}
	} else {
		pendingStore = offline.NewMemoryStore()
	}

	var prober offline.Prober
	if cfg.Offline.ProbeURL != "" {
		prober = offline.NewHTTPProber(cfg.Offline.ProbeURL, cfg.Offline.ProbeTimeout)
	}
	queue := offline.New(cfg.Offline, pendingStore, prober, log)

	// 3. Initialize the resilience layer
	breakers := breaker.NewRegistry(cfg.Breaker)
	executor := retry.NewExecutor(cfg.Retry, breakers)

	// 4. Initialize abuse prevention
	limiter := ratelimit.New(cfg.RateLimit)
	detector := abuse.NewDetector(cfg.Abuse, ratingRepo, flagRepo, log)
	g := guard.New(limiter, detector, ratingRepo, log)

	// 5. Initialize services
	ratingService := ratings.NewService(g, limiter, detector, ratingRepo, executor, queue, log)
	caches := cache.NewSet(cfg.Caches)

	// 6. Initialize Health Monitor
	var pinger health.Pinger
	if db != nil {
		pinger = db
	}
	healthMon := health.NewMonitor(pinger, queue, breakers, caches, executor.Metrics())
	healthServer := health.NewServer(healthMon, cfg.Server.Port)

	return &Core{
		cfg:          cfg,
		limiter:      limiter,
		detector:     detector,
		guard:        g,
		breakers:     breakers,
		executor:     executor,
		queue:        queue,
		ratings:      ratingService,
		caches:       caches,
		healthMon:    healthMon,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		store:        store,
		log:          log,
	}, nil
}

// Ratings returns the rating write service.
func (c *Core) Ratings() *ratings.Service {
	return c.ratings
}

// Guard returns the pre-submission permission gate.
func (c *Core) Guard() *guard.Guard {
	return c.guard
}

// Queue returns the offline operation queue.
func (c *Core) Queue() *offline.Queue {
	return c.queue
}

// NewReader builds a cache-first business reader over the shared cache set
// and retry executor. The fetcher is the caller's backend client.
func (c *Core) NewReader(fetcher business.Fetcher) *business.Reader {
	return business.NewReader(c.caches, fetcher, c.executor)
}

// Start starts the core's background loops and HTTP server.
func (c *Core) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := c.healthServer.Start(); err != nil {
			c.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if c.db != nil {
		c.db.StartMetricsCollector(ctx)
	}

	// Start cache sweeps and the rate limiter's idle-entry sweep
	go c.caches.Run(ctx)
	go c.limiter.Run(ctx)

	// Start the connectivity probe loop when a probe target is configured.
	// The loop replays operations that survived a restart on its first
	// probe; without a prober, kick that replay pass directly.
	if c.cfg.Offline.ProbeURL != "" {
		go c.queue.Run(ctx)
	} else {
		go c.queue.SyncPending(ctx)
	}

	return nil
}

// Stop stops the core.
func (c *Core) Stop(ctx context.Context) error {
	c.log.Info("Stopping core...")

	// Close Redis
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			c.log.Warn("Failed to close Redis", "error", err)
		}
	}

	// Close the DB pool
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.log.Warn("Failed to close database", "error", err)
		}
	}

	// Stop Health Server
	return c.healthServer.Stop(ctx)
}
