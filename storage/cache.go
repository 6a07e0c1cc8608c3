package storage

import (
	"github.com/VictoriaMetrics/fastcache"

	"github.com/young-rocks/aptos-core/core/vm"
)

// loaderCache fronts module reads (SPEC_FULL.md §4.6 "a module loader
// cache"). Store.Apply drops the cached entry of every module key it writes
// (spec.md §4.2 stage 9, §9 "Loader-cache invalidation"); entries for other
// keys stay cached.
type loaderCache struct {
	c *fastcache.Cache
}

func newLoaderCache(maxBytes int) *loaderCache {
	return &loaderCache{c: fastcache.New(maxBytes)}
}

func (l *loaderCache) get(key []byte) (*vm.StateValue, bool) {
	raw, ok := l.c.HasGet(nil, key)
	if !ok {
		return nil, false
	}
	if len(raw) == 0 {
		return nil, true // cached negative lookup
	}
	v, err := decodeValue(raw)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (l *loaderCache) put(key []byte, v *vm.StateValue) {
	if v == nil {
		l.c.Set(key, nil)
		return
	}
	l.c.Set(key, encodeValue(v.Bytes, v.Metadata))
}

// invalidate drops one module's cached entry; called whenever that module's
// key is written (publish or upgrade).
func (l *loaderCache) invalidate(key []byte) { l.c.Del(key) }

// groupCache fronts resource-group member reads (spec.md §4.2 stage 2,
// "gas_feature_version >= 1"). Distinct cache instance from loaderCache per
// SPEC_FULL.md §4.6, since a respawned session's ReleaseResourceGroupCache
// hook only ever needs to drop the group cache, not the loader cache.
type groupCache struct {
	c *fastcache.Cache
}

func newGroupCache(maxBytes int) *groupCache {
	return &groupCache{c: fastcache.New(maxBytes)}
}

func (g *groupCache) get(key []byte) ([]byte, bool) {
	raw, ok := g.c.HasGet(nil, key)
	if !ok {
		return nil, false
	}
	return raw, true
}

func (g *groupCache) put(key []byte, bytes []byte) { g.c.Set(key, bytes) }

func (g *groupCache) invalidate(key []byte) { g.c.Del(key) }

func (g *groupCache) reset() { g.c.Reset() }

// CacheStats reports the usual fastcache counters, exposed for an operator's
// health endpoint (cmd/executorctl serve).
type CacheStats struct {
	LoaderEntries, LoaderBytes uint64
	GroupEntries, GroupBytes   uint64
}

func statsOf(c *fastcache.Cache) (entries, bytes uint64) {
	var s fastcache.Stats
	c.UpdateStats(&s)
	return s.EntriesCount, s.BytesSize
}

// CacheStats reports both caches' occupancy.
func (s *Store) CacheStats() CacheStats {
	le, lb := statsOf(s.loader.c)
	ge, gb := statsOf(s.groups.c)
	return CacheStats{LoaderEntries: le, LoaderBytes: lb, GroupEntries: ge, GroupBytes: gb}
}
