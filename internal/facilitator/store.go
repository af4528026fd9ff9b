package facilitator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vitaliisemenov/svc-facilitator/internal/metrics"
)

// Store holds the authoritative in-memory snapshot and coordinates
// refresh, persistence, and fallback. It is the facilitator's single
// piece of shared mutable state (§5): the (snapshot, expiresAt,
// generation) tuple, guarded by mu, plus a lock-free atomic pointer for
// readers that only need the current snapshot.
type Store struct {
	mu         sync.Mutex
	expiresAt  time.Time
	generation uint64

	snapshotPtr atomic.Pointer[Snapshot]

	loader *Loader
	lkg    *LKGStore

	ttl         time.Duration
	negativeTTL time.Duration

	sf singleflight.Group

	negCache NegativeCache
	keyed    *keyedLRU

	logger *slog.Logger
}

// StoreConfig bundles the Mirror Store's tunables.
type StoreConfig struct {
	TTL         time.Duration
	NegativeTTL time.Duration
	MaxEntries  int
}

// NewStore constructs a Mirror Store. negCache may be nil, in which case
// an in-process LRU-backed negative cache bounded by cfg.MaxEntries is
// used.
func NewStore(loader *Loader, lkg *LKGStore, cfg StoreConfig, negCache NegativeCache, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if negCache == nil {
		negCache = newLRUNegativeCache(cfg.MaxEntries)
	}
	return &Store{
		loader:      loader,
		lkg:         lkg,
		ttl:         cfg.TTL,
		negativeTTL: cfg.NegativeTTL,
		negCache:    negCache,
		keyed:       newKeyedLRU(cfg.MaxEntries),
		logger:      logger,
	}
}

// GetWithTTL returns the current snapshot, refreshing it through the
// DB → filesystem LKG → DB LKG → empty fallback chain if the cached copy
// has expired. Concurrent callers crossing the same expiry are coalesced
// into a single refresh via singleflight.
func (s *Store) GetWithTTL(ctx context.Context) (*Snapshot, error) {
	if snap := s.snapshotPtr.Load(); snap != nil {
		s.mu.Lock()
		fresh := time.Now().Before(s.expiresAt)
		s.mu.Unlock()
		if fresh {
			return snap, nil
		}
	}

	v, err, shared := s.sf.Do("refresh", func() (any, error) {
		return s.refresh(ctx)
	})
	if shared {
		metrics.RefreshCoalesced.Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// refresh implements the §4.3 getWithTtl fallback chain. The generation
// captured at the start gates whether this refresh's result is allowed
// to install: a push that completes while this refresh is in flight must
// not be clobbered by a stale result (§4.3 ordering guarantees, §9).
func (s *Store) refresh(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	myGen := s.generation
	s.mu.Unlock()

	result, err := s.loader.Load(ctx)
	if err == nil && len(result.Map) > 0 {
		snap := &Snapshot{Map: result.Map, Source: SourceDB, FetchedAt: time.Now().UTC()}
		s.install(snap, myGen, s.ttl)
		if saveErr := s.lkg.Save(ctx, snap.Map, LKGMeta{Counts: map[string]int{"services": len(snap.Map)}}); saveErr != nil {
			s.logger.Warn("lkg save after db refresh failed", "error", saveErr)
		}
		return snap, nil
	}
	if err != nil {
		s.logger.Warn("db load failed during refresh, falling back to lkg", "error", err)
	}

	if fsSnap := s.lkg.TryLoad(); fsSnap != nil && len(fsSnap.Map) > 0 {
		s.install(fsSnap, myGen, s.ttl)
		return fsSnap, nil
	}

	if dbSnap := s.lkg.TryLoadDB(ctx); dbSnap != nil && len(dbSnap.Map) > 0 {
		s.install(dbSnap, myGen, s.ttl)
		return dbSnap, nil
	}

	s.logger.Warn("no db and no lkg available, serving empty snapshot")
	empty := EmptySnapshot()
	s.install(&empty, myGen, s.ttl)
	return &empty, nil
}

// install swaps in a newly loaded snapshot, but only if no other
// transition (a push, or a concurrent refresh that finished first) has
// bumped the generation since this refresh began.
func (s *Store) install(snap *Snapshot, capturedGen uint64, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != capturedGen {
		return
	}
	s.snapshotPtr.Store(snap)
	s.expiresAt = time.Now().Add(ttl)
	s.generation++
	recordSnapshotMetrics(snap)
}

func recordSnapshotMetrics(snap *Snapshot) {
	metrics.MirrorSize.Set(float64(len(snap.Map)))
	for _, src := range []SnapshotSource{SourceDB, SourceLKG, SourcePush} {
		value := 0.0
		if src == snap.Source {
			value = 1.0
		}
		metrics.MirrorSource.WithLabelValues(string(src)).Set(value)
	}
}

// ReplaceWithPush adopts mirror as the new authoritative snapshot,
// tagged source=push, and persists it to the LKG store (disk primary,
// DB best-effort). It always wins over any in-flight refresh: the
// generation bump here invalidates any refresh that captured an older
// generation, per §4.3's ordering guarantee.
func (s *Store) ReplaceWithPush(ctx context.Context, mirror MirrorMap, requestID string) (*Snapshot, bool) {
	snap := &Snapshot{Map: mirror, Source: SourcePush, FetchedAt: time.Now().UTC()}

	s.mu.Lock()
	s.snapshotPtr.Store(snap)
	s.expiresAt = time.Now().Add(s.ttl)
	s.generation++
	s.mu.Unlock()

	recordSnapshotMetrics(snap)
	s.keyed.Purge()

	err := s.lkg.Save(ctx, mirror, LKGMeta{RequestID: requestID, Counts: map[string]int{"services": len(mirror)}})
	if err != nil {
		s.logger.Warn("lkg save on push failed", "error", err)
		metrics.LKGSaves.WithLabelValues("push", "error").Inc()
	} else {
		metrics.LKGSaves.WithLabelValues("push", "ok").Inc()
	}

	return snap, err == nil
}

// ResolveOne looks up a single key, accelerated by a negative cache for
// known misses and an LRU for known hits, both layered in front of the
// canonical full-mirror lookup — never replacing it (§9 open question).
func (s *Store) ResolveOne(ctx context.Context, key string) (*MirrorEntry, *Error) {
	if s.negCache.IsNegative(ctx, key) {
		metrics.ResolveRequests.WithLabelValues("negative_cache_hit").Inc()
		return nil, newNotFoundError(fmt.Sprintf("key %q not found", key))
	}

	if entry, ok := s.keyed.Get(key); ok {
		metrics.ResolveRequests.WithLabelValues("keyed_cache_hit").Inc()
		e := entry
		return &e, nil
	}

	snap, err := s.GetWithTTL(ctx)
	if err != nil {
		metrics.ResolveRequests.WithLabelValues("internal_error").Inc()
		return nil, newInternalError("failed to load mirror", err)
	}

	entry, ok := snap.Map[key]
	if !ok {
		s.negCache.MarkNegative(ctx, key, s.negativeTTL)
		metrics.ResolveRequests.WithLabelValues("not_found").Inc()
		return nil, newNotFoundError(fmt.Sprintf("key %q not found", key))
	}

	if !entry.ServiceConfig.Enabled || entry.ServiceConfig.InternalOnly {
		metrics.ResolveRequests.WithLabelValues("access_denied").Inc()
		return nil, newAccessDeniedError("service_disabled")
	}

	s.keyed.Add(key, entry)
	metrics.ResolveRequests.WithLabelValues("ok").Inc()
	return &entry, nil
}

// Count reports the size of the current map for diagnostics.
func (s *Store) Count() int {
	snap := s.snapshotPtr.Load()
	if snap == nil {
		return 0
	}
	return len(snap.Map)
}

// Current returns the current snapshot without triggering a refresh, or
// nil if no snapshot has ever been installed.
func (s *Store) Current() *Snapshot {
	return s.snapshotPtr.Load()
}
