// Package locate decides where to fetch weather for.
package locate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/atmo/internal/models"
	"github.com/kjstillabower/atmo/internal/observability"
)

// DefaultGeolocationTimeout bounds a single geolocation attempt.
const DefaultGeolocationTimeout = 8 * time.Second

// Step names the link of the chain that produced a descriptor.
type Step string

const (
	StepGeolocation Step = "geolocation"
	StepPlace       Step = "place"
	StepFallback    Step = "fallback"
)

// Hint is what the caller knows about the user's position. Coordinates and
// GeoError come from the client's own geolocation attempt; at most one is set.
type Hint struct {
	Coordinates *models.Coordinates
	GeoError    error
	ClientIP    string
	Timezone    string
}

// Geolocator produces precise coordinates.
type Geolocator interface {
	Locate(ctx context.Context, hint Hint) (models.Coordinates, error)
}

// PlaceFinder produces an approximate "City, Country".
type PlaceFinder interface {
	FindPlace(ctx context.Context, clientIP, timezone string) (string, error)
}

// Resolution is the chosen descriptor and the errors of every step that failed before it.
type Resolution struct {
	Descriptor models.Descriptor
	Step       Step
	Errors     []error
}

// Fallback reports whether the configured default location was used.
func (r Resolution) Fallback() bool {
	return r.Step == StepFallback
}

// Err joins the per-step errors, nil when the first step succeeded.
func (r Resolution) Err() error {
	return errors.Join(r.Errors...)
}

// Config wires the resolver. Geolocator and PlaceFinders may be nil/empty.
type Config struct {
	Geolocator         Geolocator
	PlaceFinders       []PlaceFinder
	Fallback           models.Descriptor
	GeolocationTimeout time.Duration
	Logger             *zap.Logger
}

// Resolver walks geolocation, then place finders, then the fallback, strictly in order.
type Resolver struct {
	geolocator Geolocator
	finders    []PlaceFinder
	fallback   models.Descriptor
	timeout    time.Duration
	logger     *zap.Logger
}

func New(cfg Config) *Resolver {
	if cfg.GeolocationTimeout <= 0 {
		cfg.GeolocationTimeout = DefaultGeolocationTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Resolver{
		geolocator: cfg.Geolocator,
		finders:    cfg.PlaceFinders,
		fallback:   cfg.Fallback,
		timeout:    cfg.GeolocationTimeout,
		logger:     cfg.Logger,
	}
}

// Resolve always yields a descriptor unless ctx is done or no fallback is configured.
func (r *Resolver) Resolve(ctx context.Context, hint Hint) (Resolution, error) {
	var res Resolution

	if r.geolocator != nil {
		at, err := r.locate(ctx, hint)
		if err == nil {
			return r.done(res, StepGeolocation, models.Descriptor{Coordinates: &at}), nil
		}
		res.Errors = append(res.Errors, fmt.Errorf("geolocation: %w", err))
		r.logger.Debug("geolocation failed", zap.Error(err))
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	for _, f := range r.finders {
		name, err := f.FindPlace(ctx, hint.ClientIP, hint.Timezone)
		if err == nil && strings.TrimSpace(name) != "" {
			return r.done(res, StepPlace, models.NamedPlace(name)), nil
		}
		if err == nil {
			err = models.ErrLocationNotFound
		}
		res.Errors = append(res.Errors, fmt.Errorf("place lookup: %w", err))
		r.logger.Debug("place lookup failed", zap.Error(err))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
	}

	if !r.fallback.Valid() {
		return res, fmt.Errorf("%w: no fallback location configured", models.ErrLocationNotFound)
	}
	r.logger.Info("using fallback location",
		zap.String("location", r.fallback.String()),
		zap.Int("failedSteps", len(res.Errors)),
	)
	return r.done(res, StepFallback, r.fallback), nil
}

func (r *Resolver) done(res Resolution, step Step, d models.Descriptor) Resolution {
	res.Step = step
	res.Descriptor = d
	observability.LocationResolutionsTotal.WithLabelValues(string(step)).Inc()
	return res
}

type locateResult struct {
	at  models.Coordinates
	err error
}

// locate bounds the geolocator even when it ignores its context.
func (r *Resolver) locate(ctx context.Context, hint Hint) (models.Coordinates, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ch := make(chan locateResult, 1)
	go func() {
		at, err := r.geolocator.Locate(ctx, hint)
		ch <- locateResult{at: at, err: err}
	}()

	select {
	case res := <-ch:
		if res.err == nil && !res.at.Valid() {
			return models.Coordinates{}, fmt.Errorf("%w: coordinates out of range", models.ErrLocationUnsupported)
		}
		if errors.Is(res.err, context.DeadlineExceeded) {
			return models.Coordinates{}, fmt.Errorf("%w: %w", models.ErrLocationTimeout, res.err)
		}
		return res.at, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.Coordinates{}, fmt.Errorf("%w after %s", models.ErrLocationTimeout, r.timeout)
		}
		return models.Coordinates{}, ctx.Err()
	}
}
