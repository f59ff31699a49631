package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kjstillabower/hotspot-location-service/internal/cache"
	"github.com/kjstillabower/hotspot-location-service/internal/circuitbreaker"
	"github.com/kjstillabower/hotspot-location-service/internal/client"
	"github.com/kjstillabower/hotspot-location-service/internal/config"
	"github.com/kjstillabower/hotspot-location-service/internal/observability"
	"github.com/kjstillabower/hotspot-location-service/internal/ratelimit"
	"github.com/kjstillabower/hotspot-location-service/internal/retry"
	"github.com/kjstillabower/hotspot-location-service/internal/scheduler"
	"github.com/kjstillabower/hotspot-location-service/internal/service"
	"github.com/kjstillabower/hotspot-location-service/internal/spatial"
)

const providerComponent = "geocoder_api"

// pipeline is the enricher plus the backends it owns.
type pipeline struct {
	enricher    *service.Enricher
	cache       cache.Cache
	cachePing   func(ctx context.Context) error
	spatialPing func(ctx context.Context) error
	closers     []func()
}

// Close releases backend connections in reverse order of opening.
func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

func buildPipeline(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pipeline, error) {
	p := &pipeline{}

	c, err := openCache(cfg, logger)
	if err != nil {
		return nil, err
	}
	p.cache = c.cache
	p.cachePing = c.ping
	if c.close != nil {
		p.closers = append(p.closers, c.close)
	}

	m, err := openMatcher(ctx, cfg, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	if m.close != nil {
		p.closers = append(p.closers, m.close)
	}
	p.spatialPing = m.ping

	geocoder, err := newGeocoder(cfg, logger)
	if err != nil {
		p.Close()
		return nil, err
	}

	enricher, err := service.NewEnricher(service.Deps{
		Cache:    p.cache,
		Matcher:  m.matcher,
		Geocoder: geocoder,
		Limiter: ratelimit.New(ratelimit.Config{
			RequestsPerWindow: cfg.RequestsPerWindow,
			Window:            cfg.WindowDuration,
		}, logger),
		Retry: retry.New(retry.Config{MaxRetries: cfg.MaxRetries, InitialDelay: cfg.InitialDelay}, logger),
		Scheduler: scheduler.New(scheduler.Config{
			BatchSize:            cfg.BatchSize,
			MaxConcurrentBatches: cfg.MaxConcurrentBatches,
		}, logger),
	}, service.Options{
		KeepUnresolved:         !cfg.DropUnresolved,
		EscalateUnresolvedOnly: cfg.EscalateUnresolvedOnly,
		Coalesce:               cfg.Coalesce,
	}, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.enricher = enricher
	return p, nil
}

type openedCache struct {
	cache cache.Cache
	ping  func(ctx context.Context) error
	close func()
}

func openCache(cfg *config.Config, logger *zap.Logger) (openedCache, error) {
	switch cfg.CacheBackend {
	case config.CacheMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.CacheTTL, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return openedCache{}, eris.Wrap(err, "memcached cache")
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return openedCache{cache: mc, ping: mc.Ping, close: closeLogged(logger, "memcached", mc.Close)}, nil
	case config.CacheRedis:
		rc := cache.NewRedisCache(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB}), cfg.CacheTTL)
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr))
		return openedCache{cache: rc, ping: rc.Ping, close: closeLogged(logger, "redis", rc.Close)}, nil
	case config.CacheSQLite:
		sc, err := cache.NewSQLiteCache(cfg.SQLitePath, cfg.CacheTTL)
		if err != nil {
			return openedCache{}, eris.Wrap(err, "sqlite cache")
		}
		logger.Info("cache backend: sqlite", zap.String("path", cfg.SQLitePath))
		return openedCache{cache: sc, ping: sc.Ping, close: closeLogged(logger, "sqlite", sc.Close)}, nil
	default:
		logger.Info("cache backend: in_memory")
		return openedCache{cache: cache.NewInMemoryCache(cfg.CacheTTL)}, nil
	}
}

type openedMatcher struct {
	matcher spatial.Matcher
	ping    func(ctx context.Context) error
	close   func()
}

func openMatcher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (openedMatcher, error) {
	switch cfg.SpatialBackend {
	case config.SpatialMemory:
		start := time.Now()
		boundaries, err := spatial.Load(cfg.BoundariesPath, spatial.LoadOptions{
			NameField:   cfg.NameProperty,
			StateField:  cfg.StateProperty,
			RegionField: cfg.RegionProperty,
			Country:     cfg.Country,
		}, logger)
		if err != nil {
			return openedMatcher{}, err
		}
		logger.Info("spatial backend: memory",
			zap.String("path", cfg.BoundariesPath),
			zap.Int("boundaries", len(boundaries)),
			zap.Duration("load_time", time.Since(start)))
		return openedMatcher{matcher: spatial.NewPolygonMatcher(boundaries, logger)}, nil
	case config.SpatialPostGIS:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return openedMatcher{}, eris.Wrap(err, "postgis pool")
		}
		m := spatial.NewPostGISMatcher(pool, spatial.PostGISConfig{
			Table:        cfg.PostGISTable,
			NameColumn:   cfg.NameProperty,
			StateColumn:  cfg.StateProperty,
			RegionColumn: cfg.RegionProperty,
			Country:      cfg.Country,
		}, logger)
		logger.Info("spatial backend: postgis", zap.String("table", cfg.PostGISTable))
		return openedMatcher{matcher: m, ping: m.Ping, close: m.Close}, nil
	default:
		logger.Info("spatial backend: none; uncached points go to the provider")
		return openedMatcher{}, nil
	}
}

func newGeocoder(cfg *config.Config, logger *zap.Logger) (*client.ReverseGeocoder, error) {
	provider, err := client.NewHTTPProvider(cfg.ProviderURL, cfg.ProviderAccessToken, cfg.ProviderTimeout)
	if err != nil {
		return nil, eris.Wrap(err, "geocoder provider")
	}
	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        providerComponent,
			OnStateChange: func(component string, from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
				logger.Warn("circuit breaker transition",
					zap.String("component", component),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		provider.SetCircuitBreaker(cb)
		observability.CircuitBreakerState.WithLabelValues(providerComponent).Set(0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}
	return client.NewReverseGeocoder(provider, cfg.ProviderPath, cfg.ProviderLanguage)
}

func closeLogged(logger *zap.Logger, name string, closeFn func() error) func() {
	return func() {
		if err := closeFn(); err != nil {
			logger.Error(name+" close", zap.Error(err))
		}
	}
}
