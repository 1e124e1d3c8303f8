//go:build integration
// +build integration

package testhelpers

import (
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/atmo/internal/cache"
	"github.com/kjstillabower/atmo/internal/client"
	"github.com/kjstillabower/atmo/internal/generative"
	"github.com/kjstillabower/atmo/internal/locate"
	"github.com/kjstillabower/atmo/internal/models"
	"github.com/kjstillabower/atmo/internal/observability"
	"github.com/kjstillabower/atmo/internal/service"
	"github.com/kjstillabower/atmo/internal/weather"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	Strategy      string // "api" or "generative"
	OpenAIAPIKey  string
	ForecastURL   string
	GeocodingURL  string
	CacheBackend  string // "memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// The generative strategy is skipped when OPENAI_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	strategy := os.Getenv("INTEGRATION_SOURCE")
	if strategy == "" {
		strategy = weather.StrategyAPI
	}
	apiKey := os.Getenv("OPENAI_API_KEY")
	if strategy == weather.StrategyGenerative && apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping generative integration test")
	}

	forecastURL := os.Getenv("WEATHER_API_URL")
	if forecastURL == "" {
		forecastURL = "https://api.open-meteo.com/v1/forecast"
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		Strategy:      strategy,
		OpenAIAPIKey:  apiKey,
		ForecastURL:   forecastURL,
		GeocodingURL:  "https://geocoding-api.open-meteo.com/v1/search",
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationService creates a fully wired service against live upstreams.
// Location resolution uses the caller's public IP, then London.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.ConditionsService, func()) {
	logger, err := observability.NewConsoleLogger()
	if err != nil {
		t.Fatalf("NewConsoleLogger() error = %v", err)
	}

	var backend cache.Backend = cache.NewMemoryBackend()
	cleanup := func() {}
	if cfg.CacheBackend == "memcached" {
		mc := cache.NewMemcachedBackend(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		backend = mc
		cleanup = func() { mc.Close() }
		t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
	}

	gen := generative.NewClient(generative.Config{APIKey: cfg.OpenAIAPIKey, WebSearch: true})
	source, err := weather.NewSource(weather.Options{
		Strategy:   cfg.Strategy,
		OpenMeteo:  client.NewOpenMeteoClient(cfg.ForecastURL, cfg.GeocodingURL, 10*time.Second),
		Generative: gen,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}

	svc := service.NewConditionsService(service.Options{
		Store: cache.NewStore(backend, 30*time.Minute),
		Resolver: locate.New(locate.Config{
			PlaceFinders: []locate.PlaceFinder{client.NewIPLookup("https://ipapi.co", &http.Client{Timeout: 10 * time.Second})},
			Fallback:     models.NamedPlace("London, United Kingdom"),
			Logger:       logger,
		}),
		Source: source,
		Logger: logger,
	})
	return svc, cleanup
}
