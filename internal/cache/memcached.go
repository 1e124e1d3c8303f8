package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days

// MemcachedBackend implements Backend using memcached.
type MemcachedBackend struct {
	client *memcache.Client
}

// NewMemcachedBackend creates a MemcachedBackend. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedBackend(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedBackend {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedBackend{client: client}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// expiration converts ttl to memcached's relative seconds, clamped to the
// protocol's 30-day relative limit.
func expiration(ttl time.Duration) int32 {
	sec := int32(ttl.Seconds())
	if sec <= 0 {
		return 0
	}
	if sec > maxRelativeExp {
		return maxRelativeExp
	}
	return sec
}

func (c *MemcachedBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	item, err := c.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item.Value, true, nil
}

func (c *MemcachedBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: expiration(ttl),
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedBackend) Ping(context.Context) error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedBackend) Close() error {
	return c.client.Close()
}
