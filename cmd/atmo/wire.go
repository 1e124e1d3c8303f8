package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjstillabower/atmo/internal/cache"
	"github.com/kjstillabower/atmo/internal/circuitbreaker"
	"github.com/kjstillabower/atmo/internal/client"
	"github.com/kjstillabower/atmo/internal/config"
	"github.com/kjstillabower/atmo/internal/generative"
	"github.com/kjstillabower/atmo/internal/locate"
	"github.com/kjstillabower/atmo/internal/observability"
	"github.com/kjstillabower/atmo/internal/service"
	"github.com/kjstillabower/atmo/internal/traffic"
	"github.com/kjstillabower/atmo/internal/weather"
)

// components is everything one process needs, built from config.
type components struct {
	service   *service.ConditionsService
	tracker   *traffic.Tracker
	breaker   *circuitbreaker.CircuitBreaker
	cachePing func(ctx context.Context) error
	closers   []io.Closer
}

func (c *components) Close(logger *zap.Logger) {
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			logger.Error("close", zap.Error(err))
		}
	}
}

// build wires config into a ready service. geolocator may be nil.
func build(ctx context.Context, cfg *config.Config, logger *zap.Logger, geolocator locate.Geolocator) (*components, error) {
	c := &components{tracker: traffic.NewTracker()}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if p, ok := backend.(interface{ Ping(context.Context) error }); ok {
		c.cachePing = p.Ping
	}
	if cl, ok := backend.(io.Closer); ok {
		c.closers = append(c.closers, cl)
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend), zap.Duration("ttl", cfg.CacheTTL))

	gen := generative.NewClient(generative.Config{
		APIKey:           cfg.OpenAIAPIKey,
		BaseURL:          cfg.OpenAIBaseURL,
		Model:            cfg.GenerativeModel,
		WebSearch:        cfg.GenerativeWebSearch,
		StructuredOutput: cfg.GenerativeStructuredOutput,
		Timeout:          cfg.GenerativeTimeout,
	})
	if !gen.Configured() {
		logger.Warn("no OpenAI API key configured; generative features report setup required")
	}

	if cfg.CircuitBreakerEnabled {
		c.breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_source",
			Counts:           circuitbreaker.UpstreamHealth,
			OnStateChange: func(component string, from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
				logger.Warn("circuit breaker transition",
					zap.String("component", component),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout),
		)
	}

	source, err := weather.NewSource(weather.Options{
		Strategy:         cfg.Source,
		OpenMeteo:        client.NewOpenMeteoClient(cfg.WeatherAPIURL, cfg.GeocodingAPIURL, cfg.WeatherAPITimeout),
		Generative:       gen,
		LabelCoordinates: cfg.LabelCoordinates,
		Breaker:          c.breaker,
		Logger:           logger,
	})
	if err != nil {
		c.Close(logger)
		return nil, fmt.Errorf("weather source: %w", err)
	}

	finders, err := placeFinders(cfg, gen)
	if err != nil {
		c.Close(logger)
		return nil, err
	}
	if cfg.FixedLocation != nil {
		geolocator = locate.FixedGeolocator{At: *cfg.FixedLocation}
	}

	c.service = service.NewConditionsService(service.Options{
		Store: cache.NewStore(backend, cfg.CacheTTL),
		Resolver: locate.New(locate.Config{
			Geolocator:         geolocator,
			PlaceFinders:       finders,
			Fallback:           cfg.Fallback,
			GeolocationTimeout: cfg.GeolocationTimeout,
			Logger:             logger,
		}),
		Source:         source,
		Tracker:        c.tracker,
		Logger:         logger,
		RefreshTimeout: cfg.RefreshTimeout,
	})
	logger.Info("weather source ready", zap.String("strategy", cfg.Source), zap.Strings("place_finders", cfg.PlaceFinders))
	return c, nil
}

// openBackend constructs the configured cache backend.
func openBackend(ctx context.Context, cfg *config.Config) (cache.Backend, error) {
	switch cfg.CacheBackend {
	case "memory":
		return cache.NewMemoryBackend(), nil
	case "memcached":
		return cache.NewMemcachedBackend(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns), nil
	case "redis":
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return cache.NewRedisBackend(rdb), nil
	case "sqlite":
		b, err := cache.NewSQLiteBackend(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite cache: %w", err)
		}
		return b, nil
	case "file", "":
		b, err := cache.NewFileBackend(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("file cache: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}

// placeFinders builds the approximate-location chain in configured order.
func placeFinders(cfg *config.Config, gen *generative.Client) ([]locate.PlaceFinder, error) {
	httpClient := &http.Client{Timeout: cfg.WeatherAPITimeout}
	var finders []locate.PlaceFinder
	for _, name := range cfg.PlaceFinders {
		switch name {
		case "ip":
			finders = append(finders, client.NewIPLookup(cfg.IPLookupURL, httpClient))
		case "generative":
			finders = append(finders, generative.NewPlaceFinder(gen))
		default:
			return nil, fmt.Errorf("unknown place finder %q", name)
		}
	}
	return finders, nil
}
