// Package weather turns a location descriptor into a normalized reading.
package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/atmo/internal/circuitbreaker"
	"github.com/kjstillabower/atmo/internal/client"
	"github.com/kjstillabower/atmo/internal/condition"
	"github.com/kjstillabower/atmo/internal/generative"
	"github.com/kjstillabower/atmo/internal/models"
)

// Strategies selectable in configuration.
const (
	StrategyAPI        = "api"
	StrategyGenerative = "generative"
)

// Result is a reading plus optional web citations.
type Result = models.FetchResult

// Source fetches current weather for a descriptor. Implementations never retry.
type Source interface {
	Fetch(ctx context.Context, d models.Descriptor) (Result, error)
}

// Forecaster is the subset of the Open-Meteo client the API source needs.
type Forecaster interface {
	Forecast(ctx context.Context, at models.Coordinates) (client.Forecast, error)
	Geocode(ctx context.Context, name string) (client.Place, error)
}

// Labeler names a coordinate pair.
type Labeler interface {
	Label(ctx context.Context, at models.Coordinates) (string, error)
}

// APISource reads the deterministic forecast API and classifies the result locally.
type APISource struct {
	api     Forecaster
	labeler Labeler
	logger  *zap.Logger
	now     func() time.Time
}

// NewAPISource builds the deterministic source. labeler may be nil, in which case
// coordinate fetches are labelled with the formatted coordinates.
func NewAPISource(api Forecaster, labeler Labeler, logger *zap.Logger) *APISource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APISource{api: api, labeler: labeler, logger: logger, now: time.Now}
}

// Fetch geocodes text-only descriptors, then reads current conditions.
func (s *APISource) Fetch(ctx context.Context, d models.Descriptor) (Result, error) {
	if !d.Valid() {
		return Result{}, fmt.Errorf("%w: empty location descriptor", models.ErrLocationNotFound)
	}

	var at models.Coordinates
	label := strings.TrimSpace(d.Name)
	if d.HasCoordinates() {
		at = *d.Coordinates
	} else {
		place, err := s.api.Geocode(ctx, d.Name)
		if err != nil {
			return Result{}, fmt.Errorf("geocode %q: %w", d.Name, err)
		}
		at = place.Coordinates()
		label = place.Label()
	}

	f, err := s.api.Forecast(ctx, at)
	if err != nil {
		return Result{}, fmt.Errorf("forecast %s: %w", at, err)
	}

	if label == "" {
		if label, err = s.labelFor(ctx, at); err != nil {
			return Result{}, fmt.Errorf("label %s: %w", at, err)
		}
	}

	code := f.WeatherCode
	r := models.WeatherReading{
		Temperature:      f.Temperature,
		LocationLabel:    label,
		WindSpeed:        f.WindSpeed,
		Humidity:         f.Humidity,
		Precipitation:    f.Precipitation,
		Sunrise:          condition.ClockTime(f.Sunrise),
		Sunset:           condition.ClockTime(f.Sunset),
		Timezone:         f.Timezone,
		UTCOffsetSeconds: f.UTCOffsetSeconds,
		WeatherCode:      &code,
		Source:           models.SourceAPI,
		FetchedAt:        s.now(),
	}

	daytime, ok := condition.IsDaytime(r.Sunrise, r.Sunset, r.FetchedAt.In(r.Location()))
	if !ok {
		daytime = f.IsDay == nil || *f.IsDay
	}
	r.Condition = condition.Classify(code, daytime)

	return Result{Reading: r.Normalize()}, nil
}

// labelFor only fails on a missing or rejected credential. Any other labeler
// error degrades to the unresolved sentinel, which keeps the reading out of the cache.
func (s *APISource) labelFor(ctx context.Context, at models.Coordinates) (string, error) {
	if s.labeler == nil {
		return at.Label(), nil
	}
	label, err := s.labeler.Label(ctx, at)
	if errors.Is(err, models.ErrConfigurationMissing) {
		return "", err
	}
	if err != nil {
		s.logger.Warn("reverse geocode failed",
			zap.String("coordinates", at.String()),
			zap.Error(err),
		)
		return models.PlaceholderLabel, nil
	}
	return label, nil
}

// Options selects and assembles the configured source.
type Options struct {
	Strategy string
	// OpenMeteo is required for the api strategy.
	OpenMeteo Forecaster
	// Generative is required for the generative strategy and optional for api,
	// where a configured client names coordinates.
	Generative *generative.Client
	// LabelCoordinates enables model reverse geocoding for the api strategy.
	LabelCoordinates bool
	// Breaker, when set, wraps the source.
	Breaker *circuitbreaker.CircuitBreaker
	Logger  *zap.Logger
}

// NewSource picks the strategy once, at configuration time.
func NewSource(opts Options) (Source, error) {
	var src Source
	switch strings.ToLower(strings.TrimSpace(opts.Strategy)) {
	case StrategyAPI, "":
		if opts.OpenMeteo == nil {
			return nil, fmt.Errorf("api strategy requires a forecast client")
		}
		var labeler Labeler
		if opts.LabelCoordinates && opts.Generative != nil && opts.Generative.Configured() {
			labeler = generative.NewLabeler(opts.Generative)
		}
		src = NewAPISource(opts.OpenMeteo, labeler, opts.Logger)
	case StrategyGenerative:
		if opts.Generative == nil {
			return nil, fmt.Errorf("generative strategy requires a model client")
		}
		src = generative.NewSource(opts.Generative)
	default:
		return nil, fmt.Errorf("unknown weather source strategy %q", opts.Strategy)
	}

	if opts.Breaker != nil {
		src = NewBreaker(src, opts.Breaker)
	}
	return src, nil
}
