package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/HanTheDev/content-gateway/internal/cache"
	"github.com/HanTheDev/content-gateway/internal/config"
	"github.com/HanTheDev/content-gateway/internal/db"
	"github.com/HanTheDev/content-gateway/internal/events"
	"github.com/HanTheDev/content-gateway/internal/fallback"
	"github.com/HanTheDev/content-gateway/internal/generation"
	"github.com/HanTheDev/content-gateway/internal/logger"
	"github.com/HanTheDev/content-gateway/internal/models"
	"github.com/HanTheDev/content-gateway/internal/provider"
	"github.com/HanTheDev/content-gateway/internal/quota"
	"github.com/HanTheDev/content-gateway/internal/routing"
)

const failureHistory = 200

// app is every long-lived component, built once per process.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	catalog     *config.Catalog
	providers   *provider.Registry
	ledger      quota.Ledger
	cache       *cache.Cache
	routing     *routing.Policy
	failures    *events.Collector
	db          *db.DB
	coordinator *generation.Coordinator

	closers []func() error
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.ProvidersFile != "" {
		cfg.ProvidersFile = opts.ProvidersFile
	}
	return cfg, nil
}

// newApp wires the components described by cfg. Logs go to logOut.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	a := &app{cfg: cfg, logger: logger.SetupWriter(logOut, cfg.LogLevel)}

	if err := a.init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	catalog, err := config.LoadCatalog(cfg.ProvidersFile)
	if err != nil {
		return err
	}
	a.catalog = catalog

	if a.providers, err = provider.BuildRegistry(ctx, a.logger, catalog); err != nil {
		return fmt.Errorf("build providers: %w", err)
	}

	limits := quota.Limits{Plans: catalog.QuotaLimits(), Default: config.DefaultPlan}
	if cfg.RedisURL != "" {
		rl, err := quota.NewRedisLedger(cfg.RedisURL, limits)
		if err != nil {
			return fmt.Errorf("connect quota ledger: %w", err)
		}
		a.closers = append(a.closers, rl.Close)
		a.ledger = rl
		a.logger.Info("quota ledger ready", "backend", "redis")
	} else {
		a.ledger = quota.NewMemoryLedger(limits)
		a.logger.Warn("REDIS_URL not set, quota is tracked in memory and resets on restart")
	}

	cacheOpts := []cache.Option{cache.WithLogger(a.logger)}
	if cfg.Cache.RedisTier {
		if cfg.RedisURL == "" {
			return errors.New("cache.redis_tier requires REDIS_URL")
		}
		tier, err := cache.NewRedisTier(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect cache tier: %w", err)
		}
		a.closers = append(a.closers, tier.Close)
		cacheOpts = append(cacheOpts, cache.WithTier(tier))
	}
	a.cache = cache.New(cfg.Cache.Capacity, cache.TTLs{
		models.ContentBlog:    cfg.Cache.BlogTTL,
		models.ContentImage:   cfg.Cache.ImageTTL,
		models.ContentVideo:   cfg.Cache.VideoTTL,
		models.ContentPodcast: cfg.Cache.PodcastTTL,
	}, cacheOpts...)

	a.routing = routing.NewPolicy(routing.Settings{
		FailureThreshold:        cfg.Routing.FailureThreshold,
		FailureWindow:           cfg.Routing.FailureWindow,
		Cooldown:                cfg.Routing.Cooldown,
		LatencyPenaltyPerSecond: cfg.Routing.LatencyPenaltyPerSecond,
	}, routing.WithLogger(a.logger))

	emitter := events.NewInMemoryEmitter(a.logger)
	a.failures = events.NewCollector(failureHistory)
	emitter.RegisterHandler(a.failures)

	var recorder generation.Recorder = generation.NopRecorder{}
	if cfg.DatabaseURL != "" {
		database, err := db.NewDB(ctx, cfg.DatabaseURL, db.PoolSettings{
			MaxConns:          cfg.Database.MaxConns,
			MinConns:          cfg.Database.MinConns,
			MaxConnLifetime:   cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
			HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
		})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, func() error { database.Close(); return nil })
		if err := database.Ping(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		if err := database.Migrate(ctx, a.logger); err != nil {
			return err
		}
		a.db = database
		recorder = database
	} else {
		a.logger.Warn("DATABASE_URL not set, generation history is not persisted")
	}

	a.coordinator, err = generation.NewCoordinator(generation.Deps{
		Providers: a.providers,
		Ledger:    a.ledger,
		Cache:     a.cache,
		Routing:   a.routing,
		Fallback:  fallback.NewHandler(emitter, a.logger),
		Catalog:   catalog,
		Recorder:  recorder,
		Logger:    a.logger,
	}, cfg.Generation)
	return err
}

// close waits for pending history writes, then releases connections in reverse order.
func (a *app) close() {
	if a.coordinator != nil {
		a.coordinator.Drain()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("error during shutdown", "error", err)
		}
	}
	a.closers = nil
}
