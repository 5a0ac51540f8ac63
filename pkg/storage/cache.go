package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
	"github.com/vjranagit/rangeql/pkg/types"
)

// QueryCache implements a query result cache backed by ristretto's
// sampled-LFU admission policy, replacing a hand-rolled LRU list with
// the same concurrent cache the corpus reaches for.
type QueryCache struct {
	capacity int64
	ttl      time.Duration
	cache    *ristretto.Cache
}

// NewQueryCache creates a new query cache.
func NewQueryCache(capacity int, ttl time.Duration) *QueryCache {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(capacity) * 10,
		MaxCost:     int64(capacity),
		BufferItems: 64,
		// Each entry costs 1, so MaxCost is an entry count, and Size
		// reads the key counters that Metrics maintains.
		Metrics:            true,
		IgnoreInternalCost: true,
	})
	if err != nil {
		// ristretto.NewCache only fails on invalid config constants,
		// which NewQueryCache never produces.
		panic(fmt.Sprintf("storage: invalid query cache config: %v", err))
	}

	return &QueryCache{
		capacity: int64(capacity),
		ttl:      ttl,
		cache:    c,
	}
}

// Get retrieves a cached query result.
func (qc *QueryCache) Get(req *types.QueryRequest) (*types.QueryResult, bool) {
	key := qc.generateKey(req)
	val, ok := qc.cache.Get(key)
	if !ok {
		return nil, false
	}
	return val.(*types.QueryResult), true
}

// Put stores a query result in the cache with the configured TTL.
func (qc *QueryCache) Put(req *types.QueryRequest, result *types.QueryResult) {
	key := qc.generateKey(req)
	qc.cache.SetWithTTL(key, result, 1, qc.ttl)
	qc.cache.Wait()
}

// Clear clears all cache entries.
func (qc *QueryCache) Clear() {
	qc.cache.Clear()
}

// Size returns the current cache entry count as tracked by ristretto's
// internal metrics.
func (qc *QueryCache) Size() int {
	return int(qc.cache.Metrics.KeysAdded() - qc.cache.Metrics.KeysEvicted())
}

// Stats returns cache statistics.
func (qc *QueryCache) Stats() CacheStats {
	return CacheStats{
		Size:     qc.Size(),
		Capacity: int(qc.capacity),
	}
}

// CacheStats contains cache statistics.
type CacheStats struct {
	Size     int
	Capacity int
}

// generateKey generates a deterministic cache key from a query request,
// hashed with xxhash the way the engine hashes RangeVectorKeys.
func (qc *QueryCache) generateKey(req *types.QueryRequest) string {
	var b strings.Builder
	b.WriteString(req.TenantID)
	b.WriteByte('\x00')
	b.WriteString(req.Query)
	b.WriteByte('\x00')
	b.WriteString(strconv.FormatInt(req.StartTime.Unix(), 10))
	b.WriteByte('\x00')
	b.WriteString(strconv.FormatInt(req.EndTime.Unix(), 10))

	return fmt.Sprintf("%x", xxhash.Sum64String(b.String()))
}

// CachedStorage wraps a storage with query caching.
type CachedStorage struct {
	storage Storage
	cache   *QueryCache
	mu      sync.Mutex
	hits    uint64
	misses  uint64
}

// NewCachedStorage creates a cached storage wrapper.
func NewCachedStorage(storage Storage, cacheCapacity int, cacheTTL time.Duration) *CachedStorage {
	return &CachedStorage{
		storage: storage,
		cache:   NewQueryCache(cacheCapacity, cacheTTL),
	}
}

// Write passes through to underlying storage, invalidating the cache.
func (cs *CachedStorage) Write(ctx context.Context, req *types.WriteRequest) error {
	if err := cs.storage.Write(ctx, req); err != nil {
		return err
	}
	cs.cache.Clear()
	return nil
}

// Query checks the cache before querying the underlying storage.
func (cs *CachedStorage) Query(ctx context.Context, req *types.QueryRequest) (*types.QueryResult, error) {
	if result, ok := cs.cache.Get(req); ok {
		cs.mu.Lock()
		cs.hits++
		cs.mu.Unlock()
		return result, nil
	}

	cs.mu.Lock()
	cs.misses++
	cs.mu.Unlock()

	result, err := cs.storage.Query(ctx, req)
	if err != nil {
		return nil, err
	}

	cs.cache.Put(req, result)
	return result, nil
}

// QueryMatchers bypasses the cache and reads straight through, since the
// cache key is keyed off the string-query path only.
func (cs *CachedStorage) QueryMatchers(ctx context.Context, tenantID string, matchers map[string]string, start, end time.Time) (*types.QueryResult, error) {
	return cs.storage.QueryMatchers(ctx, tenantID, matchers, start, end)
}

// Close closes the underlying storage.
func (cs *CachedStorage) Close() error {
	return cs.storage.Close()
}

// CacheStats returns cache statistics along with hit/miss counters.
func (cs *CachedStorage) CacheStats() (CacheStats, uint64, uint64) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.cache.Stats(), cs.hits, cs.misses
}

// CacheHitRate returns the cache hit rate as a percentage.
func (cs *CachedStorage) CacheHitRate() float64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	total := cs.hits + cs.misses
	if total == 0 {
		return 0.0
	}

	return float64(cs.hits) / float64(total) * 100.0
}
