package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/atmo/internal/cache"
	"github.com/kjstillabower/atmo/internal/client"
	"github.com/kjstillabower/atmo/internal/locate"
	"github.com/kjstillabower/atmo/internal/models"
	"github.com/kjstillabower/atmo/internal/observability"
	"github.com/kjstillabower/atmo/internal/traffic"
	"github.com/kjstillabower/atmo/internal/weather"
)

// DefaultRefreshTimeout bounds one refresh end to end. Generative lookups with
// web search routinely take 10-20s.
const DefaultRefreshTimeout = 45 * time.Second

// Store persists the last good reading.
type Store interface {
	Load(ctx context.Context) (cache.Entry, bool, error)
	Save(ctx context.Context, e cache.Entry) error
}

// Resolver picks the location to fetch weather for.
type Resolver interface {
	Resolve(ctx context.Context, hint locate.Hint) (locate.Resolution, error)
}

// Request describes one acquisition.
type Request struct {
	Hint locate.Hint
	// Query is a manual place search. It skips location resolution and the cache.
	Query string
	// Force skips the cache and re-runs location resolution.
	Force        bool
	HighContrast bool
}

// Options wires a ConditionsService. Tracker and Logger may be nil.
type Options struct {
	Store          Store
	Resolver       Resolver
	Source         weather.Source
	Tracker        *traffic.Tracker
	Logger         *zap.Logger
	RefreshTimeout time.Duration
	// MaxAge is how long Current keeps serving the slot before re-running the
	// startup path. Zero uses the store's TTL.
	MaxAge time.Duration
}

// ConditionsService owns the single current-reading slot and the pipeline that
// fills it: cache, then location resolution, then fetch.
type ConditionsService struct {
	store    Store
	resolver Resolver
	source   weather.Source
	tracker  *traffic.Tracker
	logger   *zap.Logger
	timeout  time.Duration
	maxAge   time.Duration
	now      func() time.Time

	group      singleflight.Group
	generation atomic.Uint64
	started    atomic.Bool

	mu   sync.RWMutex
	slot slot

	// saveMu orders cache writes. savedGen is the newest generation written.
	saveMu   sync.Mutex
	savedGen uint64
}

// slot is the committed state. Guarded by mu.
type slot struct {
	hasReading    bool
	reading       models.WeatherReading
	citations     []models.Citation
	status        string
	kind          client.ErrorKind
	setupRequired bool
	placeholder   bool
	fromCache     bool
	generation    uint64
	updatedAt     time.Time
	// expiresAt is when Current stops trusting the slot.
	expiresAt time.Time
}

func NewConditionsService(opts Options) *ConditionsService {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = cache.DefaultTTL
		if t, ok := opts.Store.(interface{ TTL() time.Duration }); ok && t.TTL() > 0 {
			opts.MaxAge = t.TTL()
		}
	}
	return &ConditionsService{
		store:    opts.Store,
		resolver: opts.Resolver,
		source:   opts.Source,
		tracker:  opts.Tracker,
		logger:   opts.Logger,
		timeout:  opts.RefreshTimeout,
		maxAge:   opts.MaxAge,
		now:      time.Now,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns nil if logger is not found or context is invalid.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

func (s *ConditionsService) loggerFor(ctx context.Context) *zap.Logger {
	if l := loggerFromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Current returns the slot. The first call performs the startup refresh
// (cache first, then the full pipeline). Later calls only repeat it once the
// slot is older than the max age.
func (s *ConditionsService) Current(ctx context.Context, req Request) Snapshot {
	if !s.started.Load() || s.expired() {
		_, _, _ = s.group.Do("startup", func() (any, error) {
			if !s.started.Load() || s.expired() {
				s.refresh(ctx, Request{Hint: req.Hint})
				s.started.Store(true)
			}
			return nil, nil
		})
	}
	return s.View(req.HighContrast)
}

// Refresh runs the pipeline for req and returns the resulting slot. Identical
// concurrent requests share one run. A run that finishes after a newer one has
// started is discarded.
func (s *ConditionsService) Refresh(ctx context.Context, req Request) Snapshot {
	_, _, _ = s.group.Do(requestKey(req), func() (any, error) {
		s.refresh(ctx, req)
		return nil, nil
	})
	s.started.Store(true)
	return s.View(req.HighContrast)
}

func (s *ConditionsService) expired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slot.hasReading && !s.now().Before(s.slot.expiresAt)
}

// Started reports whether the startup refresh has completed.
func (s *ConditionsService) Started() bool {
	return s.started.Load()
}

// SetupRequired reports whether a missing credential is blocking fetches.
func (s *ConditionsService) SetupRequired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slot.setupRequired
}

func (s *ConditionsService) refresh(parent context.Context, req Request) {
	gen := s.generation.Add(1)
	logger := s.loggerFor(parent)

	// Joined callers share this run, so one caller going away must not cancel it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.timeout)
	defer cancel()

	if !req.Force && req.Query == "" {
		entry, ok, err := s.store.Load(ctx)
		if err != nil {
			logger.Warn("cache load failed", zap.Error(err))
		} else if ok {
			s.commitCached(gen, entry, logger)
			return
		}
	}

	var (
		d      models.Descriptor
		note   string
		locErr error
	)
	if q := strings.TrimSpace(req.Query); q != "" {
		d = models.NamedPlace(q)
	} else {
		res, err := s.resolver.Resolve(ctx, req.Hint)
		if err != nil {
			s.fail(gen, fmt.Errorf("resolve location: %w", err), logger)
			return
		}
		d = res.Descriptor
		note = locationNote(res)
		locErr = res.Err()
	}
	// A missing key in the location chain still yields a reading, but retrying cannot fix it.
	setup := errors.Is(locErr, models.ErrConfigurationMissing)

	start := s.now()
	result, err := s.source.Fetch(ctx, d)
	if err != nil {
		s.fail(gen, fmt.Errorf("fetch weather for %s: %w", d, err), logger)
		return
	}

	reading := result.Reading.Normalize()
	if reading.FetchedAt.IsZero() {
		reading.FetchedAt = s.now()
	}
	if s.tracker != nil {
		s.tracker.RecordSuccess()
	}

	committed := s.commit(gen, func(cur *slot) {
		*cur = slot{
			hasReading:    true,
			reading:       reading,
			citations:     result.Citations,
			status:        note,
			setupRequired: setup,
			expiresAt:     s.now().Add(s.maxAge),
		}
		if setup {
			cur.kind = client.KindConfigurationMissing
		}
	})
	if !committed {
		logger.Info("discarding superseded refresh", zap.Uint64("generation", gen), zap.String("location", d.String()))
		return
	}
	s.save(ctx, gen, cache.Entry{Reading: reading, CapturedAt: s.now(), Descriptor: d}, logger)
	if setup {
		observability.SetupRequired.Set(1)
		logger.Warn("location lookup needs an API key", zap.Error(locErr))
	} else {
		observability.SetupRequired.Set(0)
	}
	observability.RefreshesTotal.WithLabelValues("fetched").Inc()
	logger.Debug("weather refreshed",
		zap.String("location", reading.LocationLabel),
		zap.String("condition", string(reading.Condition)),
		zap.String("source", reading.Source),
		zap.Duration("duration", s.now().Sub(start)),
	)
}

func (s *ConditionsService) commitCached(gen uint64, e cache.Entry, logger *zap.Logger) {
	committed := s.commit(gen, func(cur *slot) {
		*cur = slot{
			hasReading:    true,
			reading:       e.Reading,
			fromCache:     true,
			setupRequired: cur.setupRequired,
			expiresAt:     e.CapturedAt.Add(s.maxAge),
		}
	})
	if !committed {
		return
	}
	observability.RefreshesTotal.WithLabelValues("cached").Inc()
	logger.Debug("serving cached reading",
		zap.String("location", e.Reading.LocationLabel),
		zap.Duration("age", e.Age(s.now())),
	)
}

// fail keeps the last reading, or installs the placeholder, and records why.
func (s *ConditionsService) fail(gen uint64, err error, logger *zap.Logger) {
	kind := client.CategorizeError(err)
	observability.FetchFailuresTotal.WithLabelValues(string(kind)).Inc()
	if s.tracker != nil {
		s.tracker.RecordFailure()
	}

	committed := s.commit(gen, func(cur *slot) {
		if !cur.hasReading {
			cur.hasReading = true
			cur.reading = models.Placeholder()
			cur.placeholder = true
			cur.citations = nil
		}
		cur.status = StatusMessage(kind)
		cur.kind = kind
		cur.fromCache = false
		cur.expiresAt = s.now().Add(s.maxAge)
		if kind == client.KindConfigurationMissing {
			cur.setupRequired = true
		}
	})
	if !committed {
		return
	}
	if kind == client.KindConfigurationMissing {
		observability.SetupRequired.Set(1)
	}
	observability.RefreshesTotal.WithLabelValues("failed").Inc()
	logger.Warn("weather refresh failed", zap.String("kind", string(kind)), zap.Error(err))
}

// save writes e unless a newer refresh has already written.
func (s *ConditionsService) save(ctx context.Context, gen uint64, e cache.Entry, logger *zap.Logger) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if gen < s.savedGen {
		logger.Debug("skipping cache save for superseded refresh", zap.Uint64("generation", gen))
		return
	}
	s.savedGen = gen
	if err := s.store.Save(ctx, e); err != nil {
		logger.Warn("cache save failed", zap.Error(err))
	}
}

// commit applies update unless a newer refresh already committed.
func (s *ConditionsService) commit(gen uint64, update func(cur *slot)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen < s.slot.generation {
		observability.RefreshesTotal.WithLabelValues("discarded").Inc()
		return false
	}
	update(&s.slot)
	s.slot.generation = gen
	s.slot.updatedAt = s.now()
	return true
}

// locationNote is the status shown when the chain had to step past geolocation.
func locationNote(res locate.Resolution) string {
	if errors.Is(res.Err(), models.ErrConfigurationMissing) {
		return StatusMessage(client.KindConfigurationMissing)
	}
	if res.Fallback() {
		return "Using default location"
	}
	if res.Step == locate.StepPlace && len(res.Errors) > 0 {
		return StatusMessage(client.CategorizeError(res.Err())) + ", showing approximate location"
	}
	return ""
}

// requestKey groups requests that would do identical work.
func requestKey(req Request) string {
	if q := strings.TrimSpace(req.Query); q != "" {
		return "search:" + strings.ToLower(q)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "locate:%t", req.Force)
	h := req.Hint
	if h.Coordinates != nil {
		b.WriteString("|" + h.Coordinates.String())
	}
	if h.GeoError != nil {
		b.WriteString("|" + h.GeoError.Error())
	}
	b.WriteString("|" + h.ClientIP + "|" + h.Timezone)
	return b.String()
}

// StatusMessage is the short user-visible text for an error kind.
func StatusMessage(kind client.ErrorKind) string {
	switch kind {
	case "":
		return ""
	case client.KindLocationDenied:
		return "Location access denied"
	case client.KindLocationTimeout:
		return "Location request timed out"
	case client.KindLocationNotFound:
		return "Location not found"
	case client.KindNetworkUnavailable:
		return "Weather service unreachable"
	case client.KindUpstreamMalformed:
		return "Weather data could not be read"
	case client.KindUpstreamQuotaExceeded:
		return "Weather service busy, try again later"
	case client.KindConfigurationMissing:
		return "Add an API key to continue"
	default:
		return "Something went wrong"
	}
}
