package facilitator

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vitaliisemenov/svc-facilitator/internal/infrastructure/cache"
)

// NegativeCache remembers recently-missed keys so that repeated lookups
// of an unknown key don't stampede the loader. It is an accelerator in
// front of the canonical full-mirror lookup, never a replacement for it.
type NegativeCache interface {
	IsNegative(ctx context.Context, key string) bool
	MarkNegative(ctx context.Context, key string, ttl time.Duration)
	Clear(ctx context.Context, key string)
}

// lruNegativeCache is the default, in-process negative cache used when
// no Redis address is configured.
type lruNegativeCache struct {
	mu      sync.Mutex
	expires map[string]time.Time
	cap     int
	order   []string
}

func newLRUNegativeCache(maxEntries int) *lruNegativeCache {
	return &lruNegativeCache{expires: make(map[string]time.Time), cap: maxEntries}
}

func (c *lruNegativeCache) IsNegative(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.expires[key]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(c.expires, key)
		return false
	}
	return true
}

func (c *lruNegativeCache) MarkNegative(_ context.Context, key string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.expires[key]; !exists {
		if len(c.order) >= c.cap && c.cap > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.expires, oldest)
		}
		c.order = append(c.order, key)
	}
	c.expires[key] = time.Now().Add(ttl)
}

func (c *lruNegativeCache) Clear(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.expires, key)
}

// redisNegativeCache backs the negative cache with Redis via the shared
// cache.Cache abstraction, for deployments that want the miss-cache
// shared across facilitator replicas instead of per-process.
type redisNegativeCache struct {
	backing cache.Cache
}

func newRedisNegativeCache(backing cache.Cache) *redisNegativeCache {
	return &redisNegativeCache{backing: backing}
}

// NewRedisBackedNegativeCache builds a NegativeCache backed by Redis,
// for deployments that want the miss-cache shared across facilitator
// replicas instead of kept per-process.
func NewRedisBackedNegativeCache(backing cache.Cache) NegativeCache {
	return newRedisNegativeCache(backing)
}

func (c *redisNegativeCache) IsNegative(ctx context.Context, key string) bool {
	exists, err := c.backing.Exists(ctx, negCacheKey(key))
	return err == nil && exists
}

func (c *redisNegativeCache) MarkNegative(ctx context.Context, key string, ttl time.Duration) {
	_ = c.backing.Set(ctx, negCacheKey(key), []byte{1}, ttl)
}

func (c *redisNegativeCache) Clear(ctx context.Context, key string) {
	_ = c.backing.Delete(ctx, negCacheKey(key))
}

func negCacheKey(key string) string {
	return "facilitator:neg:" + key
}

// keyedLRU is the per-key view accelerator bounded by MAX_ENTRIES, used
// to avoid a full map lookup on every resolve once a key is known-good.
type keyedLRU struct {
	cache *lru.Cache[string, MirrorEntry]
}

func newKeyedLRU(maxEntries int) *keyedLRU {
	c, _ := lru.New[string, MirrorEntry](maxEntries)
	return &keyedLRU{cache: c}
}

func (k *keyedLRU) Get(key string) (MirrorEntry, bool) {
	return k.cache.Get(key)
}

func (k *keyedLRU) Add(key string, entry MirrorEntry) {
	k.cache.Add(key, entry)
}

func (k *keyedLRU) Purge() {
	k.cache.Purge()
}
