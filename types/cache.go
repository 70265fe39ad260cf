package types

import (
	"time"
)

// CacheStore is a bounded keyed store with per-entry TTL. Expired entries
// are treated as absent and purged lazily on access. Eviction is by
// insertion time (write-order), not by last read.
type CacheStore interface {
	LifecycleManager
	Set(key string, value interface{}, ttl time.Duration) error
	Get(key string) (interface{}, bool)
	Has(key string) bool
	Delete(key string) error
	Clear() error
	Purge() int
	Stats() CacheStats
}

type CacheStoreCreator func(config interface{}) (CacheStore, error)

type CacheEntry struct {
	Key       string        `json:"key"`
	Value     interface{}   `json:"value"`
	TTL       time.Duration `json:"ttl"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

type CacheStats struct {
	Size       int     `json:"size"`
	MaxSize    int     `json:"max_size"`
	Usage      float64 `json:"usage"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	Evictions  uint64  `json:"evictions"`
	Expired    uint64  `json:"expired"`
	DefaultTTL string  `json:"default_ttl"`
}
