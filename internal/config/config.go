package config

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/atmo/internal/models"
)

// Accepted enum values.
var (
	sources       = []string{"api", "generative"}
	cacheBackends = []string{"file", "memory", "memcached", "redis", "sqlite"}
	placeFinders  = []string{"ip", "generative"}
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort     string
	RequestTimeout time.Duration
	RefreshTimeout time.Duration
	// TrustedProxies are the peers whose X-Forwarded-For header is believed.
	TrustedProxies []netip.Prefix

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	// Source is the weather strategy: "api" (Open-Meteo) or "generative".
	Source string

	WeatherAPIURL     string
	GeocodingAPIURL   string
	WeatherAPITimeout time.Duration
	IPLookupURL       string

	// OpenAIAPIKey may be empty; the generative paths then report setup-required.
	OpenAIAPIKey               string
	OpenAIBaseURL              string
	GenerativeModel            string
	GenerativeWebSearch        bool
	GenerativeStructuredOutput bool
	GenerativeTimeout          time.Duration
	LabelCoordinates           bool

	CacheBackend          string
	CacheTTL              time.Duration
	CacheDir              string
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisURL              string
	SQLitePath            string

	GeolocationTimeout time.Duration
	Fallback           models.Descriptor
	// FixedLocation, when set, replaces client geolocation (terminal and kiosk use).
	FixedLocation *models.Coordinates
	PlaceFinders  []string

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	DegradedWindow     time.Duration
	DegradedErrorPct   int
	DegradedMinSamples int
	OverloadWindow     time.Duration
	OverloadDenials    int
}

type coordinatesYAML struct {
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`
}

func (c coordinatesYAML) value() (*models.Coordinates, error) {
	if c.Latitude == nil && c.Longitude == nil {
		return nil, nil
	}
	if c.Latitude == nil || c.Longitude == nil {
		return nil, fmt.Errorf("latitude and longitude must be set together")
	}
	at := models.Coordinates{Latitude: *c.Latitude, Longitude: *c.Longitude}
	if !at.Valid() {
		return nil, fmt.Errorf("coordinates %s out of range", at)
	}
	return &at, nil
}

type fileConfig struct {
	Server struct {
		Port           string   `yaml:"port"`
		RequestTimeout string   `yaml:"request_timeout"`
		RefreshTimeout string   `yaml:"refresh_timeout"`
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"server"`

	Source string `yaml:"source"`

	WeatherAPI struct {
		URL          string `yaml:"url"`
		GeocodingURL string `yaml:"geocoding_url"`
		Timeout      string `yaml:"timeout"`
	} `yaml:"weather_api"`

	IPLookup struct {
		URL string `yaml:"url"`
	} `yaml:"ip_lookup"`

	Generative struct {
		BaseURL          string `yaml:"base_url"`
		Model            string `yaml:"model"`
		WebSearch        *bool  `yaml:"web_search"`
		StructuredOutput *bool  `yaml:"structured_output"`
		Timeout          string `yaml:"timeout"`
		LabelCoordinates bool   `yaml:"label_coordinates"`
	} `yaml:"generative"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Dir       string `yaml:"dir"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			URL string `yaml:"url"`
		} `yaml:"redis"`
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
	} `yaml:"cache"`

	Location struct {
		GeolocationTimeout string   `yaml:"geolocation_timeout"`
		PlaceFinders       []string `yaml:"place_finders"`
		Fallback           struct {
			Name            string `yaml:"name"`
			coordinatesYAML `yaml:",inline"`
		} `yaml:"fallback"`
		Fixed coordinatesYAML `yaml:"fixed"`
	} `yaml:"location"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow     string `yaml:"degraded_window"`
		DegradedErrorPct   int    `yaml:"degraded_error_pct"`
		DegradedMinSamples int    `yaml:"degraded_min_samples"`
		OverloadWindow     string `yaml:"overload_window"`
		OverloadDenials    int    `yaml:"overload_denials"`
	} `yaml:"health"`
}

type secretsFile struct {
	OpenAIAPIKey string `yaml:"openai_api_key"`
}

// Load reads configuration from ATMO_CONFIG, or config/{ENV_NAME}.yaml (default
// dev) under the working directory, plus config/secrets.yaml next to it.
// The OpenAI key comes from OPENAI_API_KEY or the secrets file.
func Load() (*Config, error) {
	path := strings.TrimSpace(os.Getenv("ATMO_CONFIG"))
	if path == "" {
		env := os.Getenv("ENV_NAME")
		if env == "" {
			env = "dev"
		}
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: get working directory: %w", err)
		}
		path = filepath.Join(cwd, "config", env+".yaml")
	}
	return LoadFile(path)
}

// LoadFile reads the YAML file at path, applies env overrides and validates.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.RequestTimeout = parseDuration(fc.Server.RequestTimeout, 60*time.Second)
	cfg.RefreshTimeout = parseDuration(fc.Server.RefreshTimeout, 45*time.Second)
	if cfg.TrustedProxies, err = parsePrefixes(fc.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("server.trusted_proxies: %w", err)
	}

	cfg.Source = envOr("ATMO_SOURCE", fc.Source)
	if cfg.Source == "" {
		cfg.Source = "api"
	}
	cfg.Source = strings.ToLower(cfg.Source)

	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://api.open-meteo.com/v1/forecast"
	}
	cfg.GeocodingAPIURL = fc.WeatherAPI.GeocodingURL
	if cfg.GeocodingAPIURL == "" {
		cfg.GeocodingAPIURL = "https://geocoding-api.open-meteo.com/v1/search"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.IPLookupURL = fc.IPLookup.URL
	if cfg.IPLookupURL == "" {
		cfg.IPLookupURL = "https://ipapi.co"
	}

	key, err := openAIKey(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	cfg.OpenAIAPIKey = key
	cfg.OpenAIBaseURL = strings.TrimSpace(fc.Generative.BaseURL)
	cfg.GenerativeModel = strings.TrimSpace(fc.Generative.Model)
	cfg.GenerativeWebSearch = boolOr(fc.Generative.WebSearch, true)
	cfg.GenerativeStructuredOutput = boolOr(fc.Generative.StructuredOutput, true)
	cfg.GenerativeTimeout = parseDuration(fc.Generative.Timeout, 45*time.Second)
	cfg.LabelCoordinates = fc.Generative.LabelCoordinates

	cfg.CacheBackend = strings.ToLower(envOr("CACHE_BACKEND", fc.Cache.Backend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "file"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 30*time.Minute)
	cfg.CacheDir = strings.TrimSpace(fc.Cache.Dir)
	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", fc.Cache.Memcached.Addrs)
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisURL = envOr("REDIS_URL", fc.Cache.Redis.URL)
	if cfg.RedisURL == "" {
		cfg.RedisURL = "redis://localhost:6379/0"
	}
	cfg.SQLitePath = strings.TrimSpace(fc.Cache.SQLite.Path)
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "atmo.db"
	}

	cfg.GeolocationTimeout = parseDuration(fc.Location.GeolocationTimeout, 8*time.Second)
	for _, f := range fc.Location.PlaceFinders {
		cfg.PlaceFinders = append(cfg.PlaceFinders, strings.ToLower(strings.TrimSpace(f)))
	}
	if fc.Location.PlaceFinders == nil {
		cfg.PlaceFinders = []string{"ip"}
	}
	fallbackAt, err := fc.Location.Fallback.value()
	if err != nil {
		return nil, fmt.Errorf("location.fallback: %w", err)
	}
	cfg.Fallback = models.Descriptor{Coordinates: fallbackAt, Name: strings.TrimSpace(fc.Location.Fallback.Name)}
	if !cfg.Fallback.Valid() {
		cfg.Fallback = models.NamedPlace("London, United Kingdom")
	}
	if cfg.FixedLocation, err = fc.Location.Fixed.value(); err != nil {
		return nil, fmt.Errorf("location.fixed: %w", err)
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = boolOr(cb.Enabled, true)
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 1
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 5*time.Minute)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.DegradedMinSamples = fc.Health.DegradedMinSamples
	if cfg.DegradedMinSamples <= 0 {
		cfg.DegradedMinSamples = 3
	}
	cfg.OverloadWindow = parseDuration(fc.Health.OverloadWindow, time.Minute)
	cfg.OverloadDenials = fc.Health.OverloadDenials
	if cfg.OverloadDenials <= 0 {
		cfg.OverloadDenials = 100
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openAIKey reads OPENAI_API_KEY, then secrets.yaml in dir. A missing key is not an error.
func openAIKey(dir string) (string, error) {
	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		return key, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, "secrets.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.OpenAIAPIKey), nil
}

func envOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// parsePrefixes accepts CIDRs and bare addresses, which become single-host prefixes.
func parsePrefixes(values []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, err
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// validate checks enums and timeout ordering. RequestTimeout is raised to
// cover a full refresh when it is shorter.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if !oneOf(cfg.Source, sources) {
		return fmt.Errorf("source must be one of %s, got %q", strings.Join(sources, ", "), cfg.Source)
	}
	if !oneOf(cfg.CacheBackend, cacheBackends) {
		return fmt.Errorf("cache.backend must be one of %s, got %q", strings.Join(cacheBackends, ", "), cfg.CacheBackend)
	}
	for _, f := range cfg.PlaceFinders {
		if !oneOf(f, placeFinders) {
			return fmt.Errorf("location.place_finders: unknown finder %q", f)
		}
	}
	if cfg.RequestTimeout <= cfg.RefreshTimeout {
		cfg.RequestTimeout = cfg.RefreshTimeout + 5*time.Second
	}
	return nil
}
