package cache

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/types"
	"github.com/saiset-co/sai-storefront/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	MaxTTL        = 24 * time.Hour
	DefaultTTL    = 10 * time.Minute
	evictFraction = 0.2
)

type MemoryConfig struct {
	MaxEntries int           `json:"max_entries"`
	DefaultTTL time.Duration `json:"default_ttl"`
}

// MemoryStore is the reference CacheStore: a bounded map with per-entry
// TTL, lazy expiry on read and write-order eviction at capacity. Eviction
// removes the oldest-written entries, so a hot but rarely rewritten entry
// can be evicted ahead of a fresh one.
type MemoryStore struct {
	ctx       context.Context
	cancel    context.CancelFunc
	logger    types.Logger
	config    *MemoryConfig
	data      map[string]*types.CacheEntry
	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64
	mu        sync.RWMutex
	state     atomic.Value
}

func NewMemoryStore(ctx context.Context, logger types.Logger, config *types.CacheConfig) (types.CacheStore, error) {
	memConfig := &MemoryConfig{
		MaxEntries: config.MaxEntries,
		DefaultTTL: config.DefaultTTL,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, memConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal memory cache config")
		}
	}

	if memConfig.DefaultTTL <= 0 {
		memConfig.DefaultTTL = DefaultTTL
	}

	storeCtx, cancel := context.WithCancel(ctx)

	store := &MemoryStore{
		ctx:    storeCtx,
		cancel: cancel,
		logger: logger,
		config: memConfig,
		data:   make(map[string]*types.CacheEntry),
	}

	store.state.Store(StateStopped)

	return store, nil
}

func (m *MemoryStore) Set(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		m.logger.Error("Attempted to set cache entry with empty key")
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	now := time.Now()
	entry := &types.CacheEntry{
		Key:       key,
		Value:     value,
		TTL:       ttl,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.MaxEntries > 0 {
		if _, exists := m.data[key]; !exists && len(m.data) >= m.config.MaxEntries {
			m.evictUnsafe(now)
		}
	}

	m.data[key] = entry
	return nil
}

func (m *MemoryStore) Get(key string) (interface{}, bool) {
	now := time.Now()

	m.mu.RLock()
	entry, exists := m.data[key]
	if !exists {
		m.mu.RUnlock()
		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	if now.After(entry.ExpiresAt) {
		m.mu.RUnlock()
		m.mu.Lock()
		if entry, exists := m.data[key]; exists && now.After(entry.ExpiresAt) {
			delete(m.data, key)
			atomic.AddUint64(&m.expired, 1)
		}
		m.mu.Unlock()

		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	value := entry.Value
	m.mu.RUnlock()

	atomic.AddUint64(&m.hits, 1)

	return value, true
}

func (m *MemoryStore) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string]*types.CacheEntry)
	return nil
}

// Purge removes every expired entry and returns the number removed. The
// janitor job calls this on a schedule; reads purge lazily regardless.
func (m *MemoryStore) Purge() int {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.purgeExpiredUnsafe(now)
}

func (m *MemoryStore) Stats() types.CacheStats {
	m.mu.RLock()
	size := len(m.data)
	m.mu.RUnlock()

	usage := 0.0
	if m.config.MaxEntries > 0 {
		usage = float64(size) / float64(m.config.MaxEntries) * 100
	}

	return types.CacheStats{
		Size:       size,
		MaxSize:    m.config.MaxEntries,
		Usage:      usage,
		Hits:       atomic.LoadUint64(&m.hits),
		Misses:     atomic.LoadUint64(&m.misses),
		Evictions:  atomic.LoadUint64(&m.evictions),
		Expired:    atomic.LoadUint64(&m.expired),
		DefaultTTL: m.config.DefaultTTL.String(),
	}
}

func (m *MemoryStore) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		m.logger.Warn("Memory cache is already running")
		return types.ErrAlreadyRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	m.logger.Info("Memory cache started",
		zap.Int("max_entries", m.config.MaxEntries),
		zap.Duration("default_ttl", m.config.DefaultTTL))
	return nil
}

func (m *MemoryStore) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		m.logger.Warn("Memory cache is not running")
		return types.ErrNotRunning
	}

	defer func() {
		m.setState(StateStopped)
	}()

	m.cancel()

	m.mu.Lock()
	entriesCount := len(m.data)
	m.data = make(map[string]*types.CacheEntry)
	m.mu.Unlock()

	m.logger.Info("Memory cache stopped", zap.Int("cleared_entries", entriesCount))
	return nil
}

func (m *MemoryStore) IsRunning() bool {
	return m.getState() == StateRunning
}

// evictUnsafe runs the capacity pass: expired entries go first; if the
// store is still at or over capacity, the oldest-written
// ceil(maxEntries*0.2) entries are removed.
func (m *MemoryStore) evictUnsafe(now time.Time) {
	m.purgeExpiredUnsafe(now)

	if len(m.data) < m.config.MaxEntries {
		return
	}

	entries := make([]*types.CacheEntry, 0, len(m.data))
	for _, entry := range m.data {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	victims := int(math.Ceil(float64(m.config.MaxEntries) * evictFraction))
	if victims > len(entries) {
		victims = len(entries)
	}

	for _, entry := range entries[:victims] {
		delete(m.data, entry.Key)
		atomic.AddUint64(&m.evictions, 1)
	}

	m.logger.Debug("Cache eviction completed", zap.Int("evicted", victims))
}

func (m *MemoryStore) purgeExpiredUnsafe(now time.Time) int {
	removed := 0
	for key, entry := range m.data {
		if now.After(entry.ExpiresAt) {
			delete(m.data, key)
			removed++
		}
	}

	if removed > 0 {
		atomic.AddUint64(&m.expired, uint64(removed))
	}

	return removed
}

func (m *MemoryStore) getState() State {
	return m.state.Load().(State)
}

func (m *MemoryStore) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *MemoryStore) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}
