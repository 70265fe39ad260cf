package cart

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

func newTestCart(t *testing.T, store types.Storage, changeBus types.Bus) *Manager {
	t.Helper()

	m, err := NewManager(context.Background(), logger.NewNop(), &types.CollectionConfig{}, store, changeBus)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("cart Start failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop() })

	return m
}

func laptop() types.ProductRef {
	return types.ProductRef{ID: "p-1", Name: "Laptop", Price: 29.99}
}

func mouse() types.ProductRef {
	return types.ProductRef{ID: "p-2", Name: "Mouse", Price: 9.99}
}

func TestCart_AddMergesSameProduct(t *testing.T) {
	store, changeBus := newTestDeps(t)
	cart := newTestCart(t, store, changeBus)

	if err := cart.Add(laptop(), 1); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := cart.Add(laptop(), 2); err != nil {
		t.Fatalf("second Add failed: %v", err)
	}

	items := cart.Items()
	if len(items) != 1 {
		t.Fatalf("expected 1 line item after merge, got %d", len(items))
	}
	if items[0].Quantity != 3 {
		t.Fatalf("expected merged quantity 3, got %d", items[0].Quantity)
	}
	if cart.Count() != 3 {
		t.Fatalf("expected count 3, got %d", cart.Count())
	}
}

func TestCart_NewItemsPrepend(t *testing.T) {
	store, changeBus := newTestDeps(t)
	cart := newTestCart(t, store, changeBus)

	cart.Add(laptop(), 1)
	cart.Add(mouse(), 1)

	items := cart.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ProductID != "p-2" {
		t.Fatalf("expected newest item first, got %s", items[0].ProductID)
	}
	if items[1].ProductID != "p-1" {
		t.Fatalf("expected older item second, got %s", items[1].ProductID)
	}
}

func TestCart_AddValidation(t *testing.T) {
	store, changeBus := newTestDeps(t)
	cart := newTestCart(t, store, changeBus)

	if err := cart.Add(types.ProductRef{}, 1); err != types.ErrProductIDEmpty {
		t.Fatalf("expected ErrProductIDEmpty, got: %v", err)
	}

	// Non-positive quantity is clamped to one.
	cart.Add(laptop(), 0)
	if cart.Count() != 1 {
		t.Fatalf("expected clamped quantity 1, got %d", cart.Count())
	}
}

func TestCart_TotalAndUpdateToZero(t *testing.T) {
	store, changeBus := newTestDeps(t)
	cart := newTestCart(t, store, changeBus)

	cart.Add(laptop(), 1)
	cart.Add(laptop(), 1)

	if total := cart.Total(); total < 59.97 || total > 59.99 {
		t.Fatalf("expected total 59.98, got %f", total)
	}

	items := cart.Items()
	if err := cart.Update(items[0].ID, 0); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if len(cart.Items()) != 0 {
		t.Fatal("expected item removed when quantity drops to zero")
	}
	if total := cart.Total(); total != 0 {
		t.Fatalf("expected empty cart total 0, got %f", total)
	}
}

func TestCart_UpdateUnknownItem(t *testing.T) {
	store, changeBus := newTestDeps(t)
	cart := newTestCart(t, store, changeBus)

	if err := cart.Update("no-such-item", 2); !types.IsError(err, types.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got: %v", err)
	}
}

func TestCart_RemoveAndClear(t *testing.T) {
	store, changeBus := newTestDeps(t)
	cart := newTestCart(t, store, changeBus)

	cart.Add(laptop(), 1)
	cart.Add(mouse(), 1)

	if err := cart.RemoveProduct("p-1"); err != nil {
		t.Fatalf("RemoveProduct failed: %v", err)
	}
	if cart.Contains("p-1") {
		t.Fatal("expected p-1 removed")
	}

	if err := cart.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if len(cart.Items()) != 0 {
		t.Fatal("expected empty cart after clear")
	}
}

func TestCart_HydratesFromStorage(t *testing.T) {
	store, changeBus := newTestDeps(t)

	first := newTestCart(t, store, changeBus)
	first.Add(laptop(), 2)
	if err := first.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// A new manager over the same storage sees the persisted cart.
	second, err := NewManager(context.Background(), logger.NewNop(), &types.CollectionConfig{}, store, changeBus)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if second.Initialized() {
		t.Fatal("manager must not report initialized before Start")
	}
	if err := second.Start(); err != nil {
		t.Fatalf("cart Start failed: %v", err)
	}
	t.Cleanup(func() { _ = second.Stop() })
	if !second.Initialized() {
		t.Fatal("expected second manager to be initialized after Start")
	}

	item, ok := second.Item("p-1")
	if !ok {
		t.Fatal("expected hydrated cart to contain p-1")
	}
	if item.Quantity != 2 {
		t.Fatalf("expected hydrated quantity 2, got %d", item.Quantity)
	}
}

func TestCart_CrossInstanceSync(t *testing.T) {
	store, changeBus := newTestDeps(t)

	// Two managers on one bus model two open contexts of the same origin.
	first := newTestCart(t, store, changeBus)
	second := newTestCart(t, store, changeBus)

	first.Add(laptop(), 1)

	deadline := time.Now().Add(time.Second)
	for !second.Contains("p-1") {
		if time.Now().After(deadline) {
			t.Fatal("second instance never adopted the change")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The publisher must not reprocess its own message.
	if first.Count() != 1 {
		t.Fatalf("publisher state changed unexpectedly: count %d", first.Count())
	}
}

func TestCart_CorruptStorageStartsEmpty(t *testing.T) {
	store, changeBus := newTestDeps(t)

	if err := store.Write(types.StorageKeyCart, []byte("garbage{")); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	cart := newTestCart(t, store, changeBus)

	if !cart.Initialized() {
		t.Fatal("expected manager to initialize despite corrupt data")
	}
	if len(cart.Items()) != 0 {
		t.Fatal("expected empty cart when storage is unparsable")
	}
}
