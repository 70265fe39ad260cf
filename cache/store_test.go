package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/saiset-co/sai-storefront/logger"
	"github.com/saiset-co/sai-storefront/types"
)

func newTestStore(t *testing.T, maxEntries int, ttl time.Duration) types.CacheStore {
	t.Helper()

	store, err := NewMemoryStore(context.Background(), logger.NewNop(), &types.CacheConfig{
		Type:       "memory",
		DefaultTTL: ttl,
		MaxEntries: maxEntries,
	})
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}
	if err := store.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Stop()
	})

	return store
}

func TestMemoryStore_SetAndGet(t *testing.T) {
	store := newTestStore(t, 0, time.Minute)

	if err := store.Set("key1", "value1", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, ok := store.Get("key1")
	if !ok {
		t.Fatal("expected hit for key1")
	}
	if value != "value1" {
		t.Fatalf("expected 'value1', got %v", value)
	}
}

func TestMemoryStore_EmptyKey(t *testing.T) {
	store := newTestStore(t, 0, time.Minute)

	if err := store.Set("", "value", time.Minute); err != types.ErrCacheKeyEmpty {
		t.Fatalf("expected ErrCacheKeyEmpty, got: %v", err)
	}
}

func TestMemoryStore_ExpiryOnRead(t *testing.T) {
	store := newTestStore(t, 0, time.Minute)

	if err := store.Set("expiring", "value", 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, ok := store.Get("expiring"); !ok {
		t.Fatal("expected hit immediately after set")
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok := store.Get("expiring"); ok {
		t.Fatal("expected miss after TTL elapsed")
	}

	stats := store.Stats()
	if stats.Expired != 1 {
		t.Fatalf("expected 1 expired entry, got %d", stats.Expired)
	}
	if stats.Size != 0 {
		t.Fatalf("expected expired entry removed, size is %d", stats.Size)
	}
}

func TestMemoryStore_OverwriteResetsTTL(t *testing.T) {
	store := newTestStore(t, 0, time.Minute)

	store.Set("key", "old", 10*time.Millisecond)
	store.Set("key", "new", time.Minute)

	time.Sleep(20 * time.Millisecond)

	value, ok := store.Get("key")
	if !ok {
		t.Fatal("expected overwrite to reset the expiry clock")
	}
	if value != "new" {
		t.Fatalf("expected 'new', got %v", value)
	}
}

func TestMemoryStore_DefaultTTLApplied(t *testing.T) {
	store := newTestStore(t, 0, 10*time.Millisecond)

	// Zero TTL falls back to the store default.
	store.Set("key", "value", 0)

	time.Sleep(20 * time.Millisecond)

	if _, ok := store.Get("key"); ok {
		t.Fatal("expected entry to expire at the default TTL")
	}
}

func TestMemoryStore_EvictionBound(t *testing.T) {
	const maxEntries = 10
	store := newTestStore(t, maxEntries, time.Minute)

	for i := 0; i < maxEntries; i++ {
		store.Set(fmt.Sprintf("key-%02d", i), i, time.Minute)
		// CreatedAt ordering must be strict for the write-order check.
		time.Sleep(time.Millisecond)
	}

	if size := store.Stats().Size; size != maxEntries {
		t.Fatalf("expected %d entries, got %d", maxEntries, size)
	}

	// One more insert trips eviction of the oldest ceil(10*0.2)=2 entries.
	store.Set("key-new", "new", time.Minute)

	stats := store.Stats()
	if stats.Size > maxEntries {
		t.Fatalf("store exceeded capacity: %d > %d", stats.Size, maxEntries)
	}
	if stats.Evictions != 2 {
		t.Fatalf("expected 2 evictions, got %d", stats.Evictions)
	}

	for _, key := range []string{"key-00", "key-01"} {
		if _, ok := store.Get(key); ok {
			t.Fatalf("expected oldest-written entry %s to be evicted", key)
		}
	}
	if _, ok := store.Get("key-new"); !ok {
		t.Fatal("expected the triggering entry to be stored")
	}
}

func TestMemoryStore_EvictionPrefersExpired(t *testing.T) {
	const maxEntries = 4
	store := newTestStore(t, maxEntries, time.Minute)

	store.Set("stale-1", 1, 5*time.Millisecond)
	store.Set("stale-2", 2, 5*time.Millisecond)
	store.Set("live-1", 3, time.Minute)
	store.Set("live-2", 4, time.Minute)

	time.Sleep(10 * time.Millisecond)

	// Expired entries satisfy the capacity pass; live ones survive.
	store.Set("live-3", 5, time.Minute)

	for _, key := range []string{"live-1", "live-2", "live-3"} {
		if _, ok := store.Get(key); !ok {
			t.Fatalf("expected live entry %s to survive eviction", key)
		}
	}
	if store.Stats().Evictions != 0 {
		t.Fatal("expected no live evictions when expired entries free space")
	}
}

func TestMemoryStore_Purge(t *testing.T) {
	store := newTestStore(t, 0, time.Minute)

	store.Set("stale-1", 1, 5*time.Millisecond)
	store.Set("stale-2", 2, 5*time.Millisecond)
	store.Set("live", 3, time.Minute)

	time.Sleep(10 * time.Millisecond)

	if removed := store.Purge(); removed != 2 {
		t.Fatalf("expected 2 purged entries, got %d", removed)
	}
	if removed := store.Purge(); removed != 0 {
		t.Fatalf("expected second purge to be a no-op, removed %d", removed)
	}
	if _, ok := store.Get("live"); !ok {
		t.Fatal("expected live entry to survive the purge")
	}
}

func TestMemoryStore_DeleteAndClear(t *testing.T) {
	store := newTestStore(t, 0, time.Minute)

	store.Set("a", 1, time.Minute)
	store.Set("b", 2, time.Minute)

	if err := store.Delete("a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := store.Get("a"); ok {
		t.Fatal("expected miss after delete")
	}
	if err := store.Delete("missing"); err != nil {
		t.Fatalf("Delete of a missing key should not fail: %v", err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if size := store.Stats().Size; size != 0 {
		t.Fatalf("expected empty store after clear, size is %d", size)
	}
}

func TestMemoryStore_Stats(t *testing.T) {
	store := newTestStore(t, 100, time.Minute)

	store.Set("key", "value", time.Minute)
	store.Get("key")
	store.Get("missing")

	stats := store.Stats()
	if stats.Hits != 1 {
		t.Fatalf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Fatalf("expected 1 miss, got %d", stats.Misses)
	}
	if stats.MaxSize != 100 {
		t.Fatalf("expected max size 100, got %d", stats.MaxSize)
	}
	if stats.Usage != 1.0 {
		t.Fatalf("expected 1%% usage, got %f", stats.Usage)
	}
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	store, err := NewMemoryStore(context.Background(), logger.NewNop(), &types.CacheConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}

	if store.IsRunning() {
		t.Fatal("store should not run before Start")
	}
	if err := store.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := store.Start(); err != types.ErrAlreadyRunning {
		t.Fatalf("expected ErrAlreadyRunning on double start, got: %v", err)
	}

	store.Set("key", "value", time.Minute)

	if err := store.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := store.Stop(); err != types.ErrNotRunning {
		t.Fatalf("expected ErrNotRunning on double stop, got: %v", err)
	}
	if size := store.Stats().Size; size != 0 {
		t.Fatalf("expected entries cleared on stop, size is %d", size)
	}
}
