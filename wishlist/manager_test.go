package wishlist

import (
	"context"
	"testing"
	"time"

	"github.com/saiset-co/sai-storefront/bus"
	"github.com/saiset-co/sai-storefront/logger"
	"github.com/saiset-co/sai-storefront/storage"
	"github.com/saiset-co/sai-storefront/types"
)

func newTestDeps(t *testing.T) (types.Storage, types.Bus) {
	t.Helper()

	store, err := storage.NewMemoryStorage(context.Background(), logger.NewNop(), &types.StorageConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("NewMemoryStorage failed: %v", err)
	}
	if err := store.Start(); err != nil {
		t.Fatalf("storage Start failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Stop() })

	changeBus, err := bus.NewMemoryBus(context.Background(), logger.NewNop(), &types.BusConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("NewMemoryBus failed: %v", err)
	}
	if err := changeBus.Start(); err != nil {
		t.Fatalf("bus Start failed: %v", err)
	}
	t.Cleanup(func() { _ = changeBus.Stop() })

	return store, changeBus
}

func newTestWishlist(t *testing.T, store types.Storage, changeBus types.Bus) *Manager {
	t.Helper()

	m, err := NewManager(context.Background(), logger.NewNop(), &types.CollectionConfig{}, store, changeBus)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("wishlist Start failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop() })

	return m
}

func TestWishlist_AddIsIdempotent(t *testing.T) {
	store, changeBus := newTestDeps(t)
	wl := newTestWishlist(t, store, changeBus)

	headphones := types.ProductRef{ID: "p-1", Name: "Headphones", Price: 49.99}

	if err := wl.Add(headphones); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := wl.Add(headphones); err != nil {
		t.Fatalf("repeat Add failed: %v", err)
	}

	if wl.Count() != 1 {
		t.Fatalf("expected 1 item after duplicate add, got %d", wl.Count())
	}
}

func TestWishlist_NewItemsPrepend(t *testing.T) {
	store, changeBus := newTestDeps(t)
	wl := newTestWishlist(t, store, changeBus)

	wl.Add(types.ProductRef{ID: "p-1", Name: "First"})
	wl.Add(types.ProductRef{ID: "p-2", Name: "Second"})

	items := wl.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ProductID != "p-2" {
		t.Fatalf("expected newest item first, got %s", items[0].ProductID)
	}
}

func TestWishlist_AddValidation(t *testing.T) {
	store, changeBus := newTestDeps(t)
	wl := newTestWishlist(t, store, changeBus)

	if err := wl.Add(types.ProductRef{}); err != types.ErrProductIDEmpty {
		t.Fatalf("expected ErrProductIDEmpty, got: %v", err)
	}
}

func TestWishlist_RemoveProduct(t *testing.T) {
	store, changeBus := newTestDeps(t)
	wl := newTestWishlist(t, store, changeBus)

	wl.Add(types.ProductRef{ID: "p-1"})

	if err := wl.RemoveProduct("p-1"); err != nil {
		t.Fatalf("RemoveProduct failed: %v", err)
	}
	if wl.Contains("p-1") {
		t.Fatal("expected p-1 removed")
	}
	if err := wl.RemoveProduct("p-1"); !types.IsError(err, types.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got: %v", err)
	}
}

func TestWishlist_HydratesFromStorage(t *testing.T) {
	store, changeBus := newTestDeps(t)

	first := newTestWishlist(t, store, changeBus)
	first.Add(types.ProductRef{ID: "p-1", Name: "Keeper", Price: 19.99})
	if err := first.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	second, err := NewManager(context.Background(), logger.NewNop(), &types.CollectionConfig{}, store, changeBus)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if second.Initialized() {
		t.Fatal("manager must not report initialized before Start")
	}
	if err := second.Start(); err != nil {
		t.Fatalf("wishlist Start failed: %v", err)
	}
	t.Cleanup(func() { _ = second.Stop() })

	if !second.Initialized() {
		t.Fatal("expected second manager to be initialized after Start")
	}
	if !second.Contains("p-1") {
		t.Fatal("expected hydrated wishlist to contain p-1")
	}
}

func TestWishlist_CorruptStorageStartsEmpty(t *testing.T) {
	store, changeBus := newTestDeps(t)

	if err := store.Write(types.StorageKeyWishlist, []byte("garbage{")); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	wl := newTestWishlist(t, store, changeBus)

	if !wl.Initialized() {
		t.Fatal("expected manager to initialize despite corrupt data")
	}
	if len(wl.Items()) != 0 {
		t.Fatal("expected empty wishlist when storage is unparsable")
	}
}

func TestWishlist_CrossInstanceSync(t *testing.T) {
	store, changeBus := newTestDeps(t)

	first := newTestWishlist(t, store, changeBus)
	second := newTestWishlist(t, store, changeBus)

	first.Add(types.ProductRef{ID: "p-1"})

	deadline := time.Now().Add(time.Second)
	for !second.Contains("p-1") {
		if time.Now().After(deadline) {
			t.Fatal("second instance never adopted the change")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
