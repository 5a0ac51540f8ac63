package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vjranagit/rangeql/pkg/types"
)

func TestQueryCache(t *testing.T) {
	cache := NewQueryCache(100, 1*time.Minute)

	req := &types.QueryRequest{
		TenantID:  "test",
		Query:     "test_metric",
		StartTime: time.Now().Add(-1 * time.Hour),
		EndTime:   time.Now(),
	}

	_, ok := cache.Get(req)
	if ok {
		t.Error("Expected cache miss, got hit")
	}

	result := &types.QueryResult{
		Series: []types.Series{
			{
				Metric: types.Metric{
					Name: "test_metric",
					Labels: map[string]string{
						"label": "value",
					},
				},
				Samples: []types.Sample{
					{Timestamp: time.Now(), Value: 42.0},
				},
			},
		},
	}

	cache.Put(req, result)
	cache.cache.Wait()

	cachedResult, ok := cache.Get(req)
	if !ok {
		t.Fatal("Expected cache hit, got miss")
	}

	if len(cachedResult.Series) != 1 {
		t.Errorf("Expected 1 series, got %d", len(cachedResult.Series))
	}

	if cachedResult.Series[0].Samples[0].Value != 42.0 {
		t.Errorf("Expected value 42.0, got %f", cachedResult.Series[0].Samples[0].Value)
	}
}

func TestQueryCacheTTL(t *testing.T) {
	cache := NewQueryCache(100, 100*time.Millisecond)

	req := &types.QueryRequest{
		TenantID:  "test",
		Query:     "test_metric",
		StartTime: time.Now().Add(-1 * time.Hour),
		EndTime:   time.Now(),
	}

	result := &types.QueryResult{
		Series: []types.Series{},
	}

	cache.Put(req, result)
	cache.cache.Wait()

	_, ok := cache.Get(req)
	if !ok {
		t.Error("Expected cache hit")
	}

	time.Sleep(150 * time.Millisecond)

	_, ok = cache.Get(req)
	if ok {
		t.Error("Expected cache miss after TTL expiry")
	}
}

func TestCacheStats(t *testing.T) {
	cache := NewQueryCache(100, 1*time.Minute)

	stats := cache.Stats()
	if stats.Size != 0 {
		t.Errorf("Expected initial size 0, got %d", stats.Size)
	}

	result := &types.QueryResult{Series: []types.Series{}}
	for i := 0; i < 10; i++ {
		req := &types.QueryRequest{
			TenantID:  "test",
			Query:     fmt.Sprintf("metric_%d", i),
			StartTime: time.Now().Add(-1 * time.Hour),
			EndTime:   time.Now(),
		}
		cache.Put(req, result)
	}
	cache.cache.Wait()

	stats = cache.Stats()
	if stats.Size != 10 {
		t.Errorf("Expected size 10, got %d", stats.Size)
	}

	if stats.Capacity != 100 {
		t.Errorf("Expected capacity 100, got %d", stats.Capacity)
	}
}

func TestCachedStorageTracksHitsAndMisses(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewStorage(&Config{Path: tmpDir, RetentionDays: 30, CompressionLevel: 3})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer store.Close()

	cached := NewCachedStorage(store, 100, time.Minute)
	defer cached.Close()

	req := &types.QueryRequest{TenantID: "t", Query: "m", StartTime: time.Now().Add(-time.Hour), EndTime: time.Now()}

	if _, err := cached.Query(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cached.Query(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, hits, misses := cached.CacheStats()
	if hits != 1 || misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got hits=%d misses=%d", hits, misses)
	}
}
