package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ratewise/trustcore/internal/metrics"
)

// Cache is a TTL key-value cache with a bounded size. When the bound is
// reached the oldest-inserted key is evicted (insertion order, deliberately
// not LRU: repeated Gets do not refresh a key's position).
//
// Lookups never return an expired entry; expiry is enforced on Get/Has by
// evicting before reporting a miss, and proactively by the Run sweep.
type Cache[T any] struct {
	name       string
	defaultTTL time.Duration
	maxSize    int
	sweepEvery time.Duration

	mu      sync.Mutex
	entries map[string]entry[T]
	order   []string // insertion order, oldest first
	hits    uint64
	misses  uint64

	startOnce sync.Once
}

type entry[T any] struct {
	data   T
	expiry time.Time
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Size    int     `json:"size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// New creates a cache holding at most maxSize entries, each living for
// defaultTTL unless SetTTL overrides it.
func New[T any](name string, defaultTTL time.Duration, maxSize int, sweepEvery time.Duration) *Cache[T] {
	return &Cache[T]{
		name:       name,
		defaultTTL: defaultTTL,
		maxSize:    maxSize,
		sweepEvery: sweepEvery,
		entries:    make(map[string]entry[T]),
	}
}

// Get returns the value for key, or ok=false on a miss. An expired entry is
// evicted here and counted as a miss.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists {
		c.misses++
		metrics.CacheRequests.WithLabelValues(c.name, "miss").Inc()
		var zero T
		return zero, false
	}
	if time.Now().After(e.expiry) {
		c.remove(key)
		c.misses++
		metrics.CacheRequests.WithLabelValues(c.name, "miss").Inc()
		var zero T
		return zero, false
	}

	c.hits++
	metrics.CacheRequests.WithLabelValues(c.name, "hit").Inc()
	return e.data, true
}

// Set stores value under key with the default TTL.
func (c *Cache[T]) Set(key string, value T) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value under key with an explicit TTL, evicting the
// oldest-inserted key first if the cache is full.
func (c *Cache[T]) SetTTL(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		if len(c.entries) >= c.maxSize && len(c.order) > 0 {
			c.remove(c.order[0])
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = entry[T]{data: value, expiry: time.Now().Add(ttl)}
}

// Has reports whether key holds an unexpired entry. Like Get, it evicts an
// expired entry, but it does not count toward hit/miss stats.
func (c *Cache[T]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists {
		return false
	}
	if time.Now().After(e.expiry) {
		c.remove(key)
		return false
	}
	return true
}

// Delete removes key if present.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(key)
}

// InvalidateSuffix removes every key ending in suffix and returns the count
// removed. Used by the score cache, keyed placeID:preferencesHash, so a
// preference change can drop all entries for the stale hash.
func (c *Cache[T]) InvalidateSuffix(suffix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var doomed []string
	for key := range c.entries {
		if strings.HasSuffix(key, suffix) {
			doomed = append(doomed, key)
		}
	}
	for _, key := range doomed {
		c.remove(key)
	}
	return len(doomed)
}

// Cleanup sweeps all expired entries.
func (c *Cache[T]) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var doomed []string
	for key, e := range c.entries {
		if now.After(e.expiry) {
			doomed = append(doomed, key)
		}
	}
	for _, key := range doomed {
		c.remove(key)
	}
}

// Stats returns a snapshot of size and hit/miss counters.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Size: len(c.entries), Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Run starts the periodic cleanup sweep and blocks until ctx is canceled.
// Calling Run more than once is a no-op beyond the first call.
func (c *Cache[T]) Run(ctx context.Context) {
	started := false
	c.startOnce.Do(func() { started = true })
	if !started {
		return
	}

	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

// remove deletes key from both the map and the order slice. Callers hold mu.
func (c *Cache[T]) remove(key string) {
	if _, exists := c.entries[key]; !exists {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
