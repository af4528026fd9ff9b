package facilitator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/svc-facilitator/internal/infrastructure/cache"
)

// fakeCache is a minimal in-memory cache.Cache used to exercise
// redisNegativeCache without a real Redis connection.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]time.Time)}
}

func (f *fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	return cache.ErrNotFound
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = time.Now().Add(ttl)
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return nil
}

func (f *fakeCache) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exp, ok := f.entries[key]
	if !ok {
		return false, nil
	}
	return time.Now().Before(exp), nil
}

func (f *fakeCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	return 0, nil
}

func (f *fakeCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func (f *fakeCache) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeCache) Ping(ctx context.Context) error         { return nil }
func (f *fakeCache) Flush(ctx context.Context) error        { return nil }

func TestLRUNegativeCache(t *testing.T) {
	ctx := context.Background()
	c := newLRUNegativeCache(2)

	assert.False(t, c.IsNegative(ctx, "a"))

	c.MarkNegative(ctx, "a", time.Minute)
	assert.True(t, c.IsNegative(ctx, "a"))

	c.Clear(ctx, "a")
	assert.False(t, c.IsNegative(ctx, "a"))
}

func TestLRUNegativeCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := newLRUNegativeCache(10)

	c.MarkNegative(ctx, "a", -time.Second)
	assert.False(t, c.IsNegative(ctx, "a"))
}

func TestLRUNegativeCacheEviction(t *testing.T) {
	ctx := context.Background()
	c := newLRUNegativeCache(1)

	c.MarkNegative(ctx, "a", time.Minute)
	c.MarkNegative(ctx, "b", time.Minute)

	assert.False(t, c.IsNegative(ctx, "a"))
	assert.True(t, c.IsNegative(ctx, "b"))
}

func TestRedisBackedNegativeCache(t *testing.T) {
	ctx := context.Background()
	backing := newFakeCache()
	nc := NewRedisBackedNegativeCache(backing)
	require.NotNil(t, nc)

	assert.False(t, nc.IsNegative(ctx, "svc@1"))

	nc.MarkNegative(ctx, "svc@1", time.Minute)
	assert.True(t, nc.IsNegative(ctx, "svc@1"))

	nc.Clear(ctx, "svc@1")
	assert.False(t, nc.IsNegative(ctx, "svc@1"))
}

func TestKeyedLRU(t *testing.T) {
	k := newKeyedLRU(1)

	_, ok := k.Get("billing@2")
	assert.False(t, ok)

	entry := MirrorEntry{ServiceConfig: ServiceConfig{Slug: "billing", Version: 2}}
	k.Add("billing@2", entry)

	got, ok := k.Get("billing@2")
	assert.True(t, ok)
	assert.Equal(t, entry, got)

	k.Purge()
	_, ok = k.Get("billing@2")
	assert.False(t, ok)
}
