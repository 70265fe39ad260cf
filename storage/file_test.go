package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/saiset-co/sai-storefront/logger"
	"github.com/saiset-co/sai-storefront/types"
)

func newFileStorageAt(t *testing.T, path string) types.Storage {
	t.Helper()

	s, err := NewFileStorage(context.Background(), logger.NewNop(), &types.StorageConfig{
		Type:   "file",
		Config: map[string]interface{}{"path": path},
	})
	if err != nil {
		t.Fatalf("NewFileStorage failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	return s
}

func TestFileStorage_RequiresPath(t *testing.T) {
	_, err := NewFileStorage(context.Background(), logger.NewNop(), &types.StorageConfig{Type: "file"})
	if err == nil {
		t.Fatal("expected an error for missing path")
	}
}

func TestFileStorage_PersistsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storefront.json")

	s := newFileStorageAt(t, path)
	if err := s.Write("cart", []byte(`{"items":[{"id":"1"}]}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// A fresh instance over the same path sees the previous state.
	reopened := newFileStorageAt(t, path)
	defer reopened.Stop()

	data, err := reopened.Read("cart")
	if err != nil {
		t.Fatalf("Read after restart failed: %v", err)
	}
	if string(data) != `{"items":[{"id":"1"}]}` {
		t.Fatalf("unexpected payload after restart: %s", data)
	}
}

func TestFileStorage_MissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")

	s := newFileStorageAt(t, path)
	defer s.Stop()

	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected empty keyspace, got %v", keys)
	}
}

func TestFileStorage_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.json")
	if err := os.WriteFile(path, []byte("not json at all{"), 0644); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	s, err := NewFileStorage(context.Background(), logger.NewNop(), &types.StorageConfig{
		Type:   "file",
		Config: map[string]interface{}{"path": path},
	})
	if err != nil {
		t.Fatalf("NewFileStorage failed: %v", err)
	}

	if err := s.Start(); !types.IsError(err, types.ErrStorageDataCorrupt) {
		t.Fatalf("expected ErrStorageDataCorrupt, got: %v", err)
	}
}

func TestFileStorage_DeletePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storefront.json")

	s := newFileStorageAt(t, path)
	s.Write("cart", []byte("c"))
	s.Write("wishlist", []byte("w"))
	if err := s.Delete("cart"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	s.Stop()

	reopened := newFileStorageAt(t, path)
	defer reopened.Stop()

	if _, err := reopened.Read("cart"); !types.IsError(err, types.ErrStorageKeyNotFound) {
		t.Fatalf("expected deleted key to stay gone, got: %v", err)
	}
	if _, err := reopened.Read("wishlist"); err != nil {
		t.Fatalf("expected surviving key to load: %v", err)
	}
}
