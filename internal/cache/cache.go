package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kjstillabower/atmo/internal/models"
	"github.com/kjstillabower/atmo/internal/observability"
)

// Key is the single record every backend stores the last reading under.
const Key = "atmo:last_reading"

// DefaultTTL is how long a saved reading stays usable.
const DefaultTTL = 30 * time.Minute

// Backend stores raw bytes under a key. Get returns (nil, false, nil) on miss.
// ttl is advisory; freshness is decided by Store on load.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Entry is the persisted last reading together with when and where it was captured.
type Entry struct {
	Reading    models.WeatherReading `json:"reading"`
	CapturedAt time.Time             `json:"capturedAt"`
	Descriptor models.Descriptor     `json:"descriptor"`
}

// Age returns how old the entry is at now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CapturedAt)
}

// Store owns the freshness and placeholder rules for the last-reading slot.
// Expired and placeholder-labelled entries are treated as absent on load.
type Store struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
}

// NewStore wraps backend. A non-positive ttl uses DefaultTTL.
func NewStore(backend Backend, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{backend: backend, ttl: ttl, now: time.Now}
}

// TTL returns the freshness window.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Load returns the cached entry if one exists, is younger than the TTL and
// does not carry the placeholder label. Returns (zero, false, nil) when absent.
func (s *Store) Load(ctx context.Context) (Entry, bool, error) {
	raw, ok, err := s.backend.Get(ctx, Key)
	if err != nil {
		observability.CacheLoadsTotal.WithLabelValues("error").Inc()
		return Entry{}, false, fmt.Errorf("cache get: %w", err)
	}
	if !ok {
		observability.CacheLoadsTotal.WithLabelValues("miss").Inc()
		return Entry{}, false, nil
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		observability.CacheLoadsTotal.WithLabelValues("error").Inc()
		return Entry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	if e.CapturedAt.IsZero() || e.Age(s.now()) >= s.ttl {
		observability.CacheLoadsTotal.WithLabelValues("expired").Inc()
		return Entry{}, false, nil
	}
	if e.Reading.HasPlaceholderLabel() {
		observability.CacheLoadsTotal.WithLabelValues("placeholder").Inc()
		return Entry{}, false, nil
	}

	observability.CacheLoadsTotal.WithLabelValues("hit").Inc()
	return e, true, nil
}

// Save overwrites the slot. A zero CapturedAt is stamped with the current time.
func (s *Store) Save(ctx context.Context, e Entry) error {
	if e.CapturedAt.IsZero() {
		e.CapturedAt = s.now()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		observability.CacheSavesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := s.backend.Set(ctx, Key, raw, s.ttl); err != nil {
		observability.CacheSavesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("cache set: %w", err)
	}
	observability.CacheSavesTotal.WithLabelValues("success").Inc()
	return nil
}

// MemoryBackend keeps values in process memory. Safe for concurrent use.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.mu.Lock()
	m.data[key] = v
	m.mu.Unlock()
	return nil
}
