package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"

	"github.com/jonwraymond/viewcache/cache"
	"github.com/jonwraymond/viewcache/cache/memcache"
	"github.com/jonwraymond/viewcache/cache/sqlstore"
	"github.com/jonwraymond/viewcache/config"
	"github.com/jonwraymond/viewcache/health"
	"github.com/jonwraymond/viewcache/observe"
	"github.com/jonwraymond/viewcache/resilience"
	"github.com/jonwraymond/viewcache/storefront"
)

type store interface {
	cache.Store
	cache.Sweeper
}

type app struct {
	cfg     config.Config
	logger  observe.Logger
	store   store
	closer  func() error
	catalog storefront.Catalog
	db      *sql.DB
	health  *health.Aggregator
	cron    *cron.Cron
	handler http.Handler
}

func newApp(ctx context.Context, cfg config.Config, obs observe.Observer) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: obs.Logger(),
		closer: func() error { return nil },
		health: health.NewAggregator(),
	}

	if err := a.openCatalog(ctx); err != nil {
		return nil, err
	}
	if err := a.openStore(ctx); err != nil {
		_ = a.close()
		return nil, err
	}

	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		_ = a.close()
		return nil, err
	}
	loaderOpts := []cache.LoaderOption{
		cache.WithPolicy(cfg.Cache.Policy()),
		cache.WithMiddleware(mw),
	}
	if cfg.Cache.Singleflight {
		loaderOpts = append(loaderOpts, cache.WithSingleflight())
	}
	loader := cache.NewLoader(a.store, loaderOpts...)

	api := storefront.NewAPI(a.catalog, loader, cache.NewKeyer(cfg.Cache.Namespace), storefront.Config{
		Expiry:                 cfg.Cache.FiltersExpiry,
		ProducerTimeout:        cfg.Cache.ProducerTimeout,
		MaxConcurrentProducers: cfg.Cache.MaxConcurrentProducers,
	}, a.logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	api.Mount(r)
	health.Mount(r, a.health)
	if h := obs.MetricsHandler(); h != nil {
		r.Handle("/metrics", h)
	}
	a.handler = r

	if cfg.Cache.SweepSchedule != "" {
		a.cron = cron.New()
		if err := a.cron.AddFunc(cfg.Cache.SweepSchedule, a.sweep); err != nil {
			_ = a.close()
			return nil, fmt.Errorf("sweep schedule %q: %w", cfg.Cache.SweepSchedule, err)
		}
	}

	return a, nil
}

// openCatalog connects the listing source read on cache misses.
func (a *app) openCatalog(ctx context.Context) error {
	cc := a.cfg.Catalog
	if cc.Driver == config.CatalogMemory {
		a.catalog = storefront.NewMemoryCatalog()
		return nil
	}

	db, err := sql.Open(cc.Driver, cc.DSN)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	a.db = db

	sc := storefront.NewSQLCatalog(db)
	if cc.Migrate {
		if err := sc.Migrate(ctx); err != nil {
			_ = db.Close()
			return err
		}
	}
	a.catalog = sc
	a.health.Register("catalog", health.NewPingChecker("catalog", sc.Ping, time.Second))
	return nil
}

// openStore builds the configured store and registers its health checks.
func (a *app) openStore(ctx context.Context) error {
	cc := a.cfg.Cache

	if cc.Backend == config.BackendMemory {
		mem := cache.NewMemoryStore(cache.WithLogger(a.logger))
		a.store = mem
		a.health.Register("store", health.NewStoreChecker(mem, health.StoreCheckerConfig{}))
		return nil
	}

	var backend cache.Backend
	switch cc.Backend {
	case config.BackendMemcache:
		mc, err := memcache.New(memcache.Config{Servers: cc.MemcacheServers, Timeout: cc.BackendTimeout})
		if err != nil {
			return err
		}
		backend = mc
	case config.BackendSQLite:
		db, err := sqlstore.Open(ctx, cc.SQLitePath)
		if err != nil {
			return err
		}
		backend = db
	default:
		return fmt.Errorf("%w: %q", config.ErrUnknownBackend, cc.Backend)
	}

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         cc.Backend,
		MaxFailures:  cc.BreakerFailures,
		ResetTimeout: cc.BreakerReset,
		OnStateChange: func(name string, from, to resilience.State) {
			a.logger.Warn(context.Background(), "cache backend circuit changed",
				observe.Field{Key: "backend", Value: name},
				observe.Field{Key: "from", Value: from.String()},
				observe.Field{Key: "to", Value: to.String()},
			)
		},
	})
	bs := cache.NewBackendStore(backend,
		cache.WithLogger(a.logger),
		cache.WithExecutor(resilience.NewExecutor(
			resilience.WithCircuitBreaker(cb),
			resilience.WithTimeout(cc.BackendTimeout),
		)),
	)
	a.store = bs
	a.closer = bs.Close

	a.health.Register(cc.Backend, health.NewPingChecker(cc.Backend, bs.Ping, cc.BackendTimeout))
	a.health.Register(cc.Backend+"_breaker", health.NewBreakerChecker(cb))

	// An unreachable backend at startup is logged; requests are served
	// uncached until it answers.
	retry := resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 3})
	if err := retry.Execute(ctx, bs.Ping); err != nil {
		a.logger.Warn(ctx, "cache backend unreachable at startup",
			observe.Field{Key: "backend", Value: cc.Backend},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
	return nil
}

func (a *app) start() {
	if a.cron != nil {
		a.cron.Start()
	}
}

func (a *app) sweep() {
	ctx := context.Background()
	n, err := a.store.Sweep(ctx)
	if err != nil {
		a.logger.Warn(ctx, "sweep failed", observe.Field{Key: "error", Value: err.Error()})
		return
	}
	if n > 0 {
		a.logger.Debug(ctx, "swept stale entries", observe.Field{Key: "removed", Value: n})
	}
}

func (a *app) close() error {
	if a.cron != nil {
		a.cron.Stop()
	}
	err := a.closer()
	if a.db != nil {
		if dberr := a.db.Close(); dberr != nil && err == nil {
			err = dberr
		}
	}
	return err
}
