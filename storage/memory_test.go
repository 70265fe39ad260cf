package storage

import (
	"context"
	"testing"

	"github.com/saiset-co/sai-storefront/logger"
	"github.com/saiset-co/sai-storefront/types"
)

func newTestMemoryStorage(t *testing.T) types.Storage {
	t.Helper()

	s, err := NewMemoryStorage(context.Background(), logger.NewNop(), &types.StorageConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("NewMemoryStorage failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Stop()
	})

	return s
}

func TestMemoryStorage_WriteAndRead(t *testing.T) {
	s := newTestMemoryStorage(t)

	if err := s.Write("cart", []byte(`{"items":[]}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := s.Read("cart")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != `{"items":[]}` {
		t.Fatalf("unexpected payload: %s", data)
	}
}

func TestMemoryStorage_ReadMissing(t *testing.T) {
	s := newTestMemoryStorage(t)

	_, err := s.Read("missing")
	if !types.IsError(err, types.ErrStorageKeyNotFound) {
		t.Fatalf("expected ErrStorageKeyNotFound, got: %v", err)
	}
}

func TestMemoryStorage_EmptyKey(t *testing.T) {
	s := newTestMemoryStorage(t)

	if err := s.Write("", []byte("data")); err != types.ErrStorageKeyIsEmpty {
		t.Fatalf("expected ErrStorageKeyIsEmpty, got: %v", err)
	}
}

func TestMemoryStorage_Delete(t *testing.T) {
	s := newTestMemoryStorage(t)

	s.Write("key", []byte("data"))

	if err := s.Delete("key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Read("key"); !types.IsError(err, types.ErrStorageKeyNotFound) {
		t.Fatalf("expected miss after delete, got: %v", err)
	}
	if err := s.Delete("missing"); err != nil {
		t.Fatalf("Delete of missing key should not fail: %v", err)
	}
}

func TestMemoryStorage_KeysSorted(t *testing.T) {
	s := newTestMemoryStorage(t)

	s.Write("wishlist", []byte("w"))
	s.Write("cart", []byte("c"))
	s.Write("history", []byte("h"))

	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}

	expected := []string{"cart", "history", "wishlist"}
	if len(keys) != len(expected) {
		t.Fatalf("expected %d keys, got %d", len(expected), len(keys))
	}
	for i, key := range expected {
		if keys[i] != key {
			t.Fatalf("expected keys[%d]=%s, got %s", i, key, keys[i])
		}
	}
}

func TestMemoryStorage_ValueIsolation(t *testing.T) {
	s := newTestMemoryStorage(t)

	original := []byte("original")
	s.Write("iso", original)

	original[0] = 'X'

	data, _ := s.Read("iso")
	if string(data) != "original" {
		t.Fatal("storage should hold a copy, not the caller's slice")
	}

	data[0] = 'Z'
	again, _ := s.Read("iso")
	if string(again) != "original" {
		t.Fatal("storage should return a copy, not its internal slice")
	}
}
