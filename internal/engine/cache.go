package engine

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bounded TTL LRU cache. One instance per logical purpose (URL parsing,
// channel resolution, playlist pages, transcripts); each instance is
// internally synchronized and never returns an error — absence is a miss.
//
// An optional process-wide Redis L2 tier survives restarts for JSON values
// (see CacheLoadJSON/CacheStoreJSON).

// CacheStats is a point-in-time snapshot of one cache's counters.
type CacheStats struct {
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
	HitRatio    float64 `json:"hit_ratio"`
}

type cacheEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time // zero = no expiry
}

// Cache is a bounded LRU with optional TTL and batch eviction.
type Cache[V any] struct {
	mu          sync.Mutex
	name        string
	maxSize     int
	ttl         time.Duration // 0 disables expiry
	evictPct    int
	ll          *list.List // front = most recently used
	items       map[string]*list.Element
	hits        int64
	misses      int64
	evictions   int64
	expirations int64
}

// NewCache creates a named cache and registers it with the global registry
// so ClearAllCaches and AllCacheStats can reach it.
func NewCache[V any](name string, maxSize int, ttl time.Duration, evictPct int) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 128
	}
	if evictPct <= 0 || evictPct > 100 {
		evictPct = 20
	}
	c := &Cache[V]{
		name:     name,
		maxSize:  maxSize,
		ttl:      ttl,
		evictPct: evictPct,
		ll:       list.New(),
		items:    make(map[string]*list.Element, maxSize),
	}
	registerCache(c)
	return c
}

// Name returns the registry name of the cache.
func (c *Cache[V]) Name() string { return c.name }

// Get returns the value for key, refreshing its recency. An expired entry
// is removed and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	ent := el.Value.(*cacheEntry[V])
	if !ent.expiresAt.IsZero() && time.Now().After(ent.expiresAt) {
		c.removeElement(el)
		c.expirations++
		c.misses++
		return zero, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	return ent.value, true
}

// Put inserts or updates key. The TTL is refreshed on every put. When the
// cache is full and key is new, a batch of least-recently-used entries is
// evicted first — ceil(maxSize*evictPct/100) of them, amortizing eviction
// under sustained pressure.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl)
	}

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*cacheEntry[V])
		ent.value = value
		ent.expiresAt = expires
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.maxSize {
		c.evictBatch()
	}

	el := c.ll.PushFront(&cacheEntry[V]{key: key, value: value, expiresAt: expires})
	c.items[key] = el
}

// Remove deletes key, reporting whether it was present.
func (c *Cache[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// Clear empties the cache and returns how many entries were dropped.
func (c *Cache[V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.ll.Len()
	c.ll.Init()
	c.items = make(map[string]*list.Element, c.maxSize)
	return n
}

// Len returns the current entry count.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	ratio := 0.0
	if total > 0 {
		ratio = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:        c.ll.Len(),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		HitRatio:    ratio,
	}
}

// evictBatch removes expired entries first, then the LRU tail until the
// batch quota is met. Caller holds c.mu.
func (c *Cache[V]) evictBatch() {
	batch := (c.maxSize*c.evictPct + 99) / 100
	if batch < 1 {
		batch = 1
	}

	now := time.Now()
	removed := 0
	for el := c.ll.Back(); el != nil && removed < batch; {
		prev := el.Prev()
		ent := el.Value.(*cacheEntry[V])
		if !ent.expiresAt.IsZero() && now.After(ent.expiresAt) {
			c.removeElement(el)
			c.expirations++
			removed++
		}
		el = prev
	}
	for removed < batch {
		el := c.ll.Back()
		if el == nil {
			break
		}
		c.removeElement(el)
		c.evictions++
		removed++
	}
	if removed > 0 {
		slog.Debug("cache: batch eviction",
			slog.String("cache", c.name), slog.Int("removed", removed))
	}
}

func (c *Cache[V]) removeElement(el *list.Element) {
	ent := el.Value.(*cacheEntry[V])
	c.ll.Remove(el)
	delete(c.items, ent.key)
}

// sweep drops expired entries; called by the registry sweeper.
func (c *Cache[V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		ent := el.Value.(*cacheEntry[V])
		if !ent.expiresAt.IsZero() && now.After(ent.expiresAt) {
			c.removeElement(el)
			c.expirations++
		}
		el = prev
	}
}

// --- registry ---

type registeredCache interface {
	Name() string
	Clear() int
	Stats() CacheStats
	sweep()
}

var cacheRegistry struct {
	mu     sync.Mutex
	caches []registeredCache
}

func registerCache(c registeredCache) {
	cacheRegistry.mu.Lock()
	defer cacheRegistry.mu.Unlock()
	cacheRegistry.caches = append(cacheRegistry.caches, c)
}

// ClearAllCaches empties every registered cache and returns per-cache
// cleared counts.
func ClearAllCaches() map[string]int {
	cacheRegistry.mu.Lock()
	caches := append([]registeredCache(nil), cacheRegistry.caches...)
	cacheRegistry.mu.Unlock()

	counts := make(map[string]int, len(caches))
	for _, c := range caches {
		counts[c.Name()] += c.Clear()
	}
	slog.Info("cache: cleared all", slog.Any("counts", counts))
	return counts
}

// AllCacheStats returns a stats snapshot for every registered cache.
func AllCacheStats() map[string]CacheStats {
	cacheRegistry.mu.Lock()
	caches := append([]registeredCache(nil), cacheRegistry.caches...)
	cacheRegistry.mu.Unlock()

	stats := make(map[string]CacheStats, len(caches))
	for _, c := range caches {
		stats[c.Name()] = c.Stats()
	}
	return stats
}

// CacheStatsTotals sums hits and misses across all registered caches.
func CacheStatsTotals() (hits, misses int64) {
	for _, s := range AllCacheStats() {
		hits += s.Hits
		misses += s.Misses
	}
	return hits, misses
}

// StartCacheSweeper periodically drops expired entries from every
// registered cache until ctx is canceled.
func StartCacheSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cacheRegistry.mu.Lock()
				caches := append([]registeredCache(nil), cacheRegistry.caches...)
				cacheRegistry.mu.Unlock()
				for _, c := range caches {
					c.sweep()
				}
			}
		}
	}()
}

// --- optional Redis L2 tier ---

var l2 struct {
	rdb *redis.Client
	ttl time.Duration
}

// InitCacheL2 connects the optional Redis tier. redisURL can be empty to
// disable L2; an unreachable Redis degrades to L1-only with a warning.
func InitCacheL2(redisURL string, ttl time.Duration) {
	if redisURL == "" {
		return
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		slog.Warn("cache: invalid redis URL, L2 disabled", slog.Any("error", err))
		return
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("cache: redis unreachable, L2 disabled", slog.Any("error", err))
		return
	}
	l2.rdb = rdb
	l2.ttl = ttl
	slog.Info("cache: L2 redis connected", slog.String("addr", opts.Addr), slog.Duration("ttl", ttl))
}

// CacheKey builds a deterministic cache key from parts.
func CacheKey(parts ...string) string {
	joined := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("yi:%x", hash[:12]) // 24-char hex prefix
}

// CacheLoadJSON tries to load a cached value of type T from the L2 tier.
// Returns the zero value and false on miss, decode error, or disabled L2.
func CacheLoadJSON[T any](ctx context.Context, key string) (T, bool) {
	var zero T
	if l2.rdb == nil {
		return zero, false
	}
	data, err := l2.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, false
	}
	slog.Debug("cache: L2 hit", slog.String("key", key))
	return out, true
}

// CacheStoreJSON marshals v and stores it in the L2 tier. Best effort.
func CacheStoreJSON[T any](ctx context.Context, key string, v T) {
	if l2.rdb == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := l2.rdb.Set(ctx, key, data, l2.ttl).Err(); err != nil {
		slog.Debug("cache: L2 set failed", slog.Any("error", err))
	}
}
