package storage

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/types"
)

// MemoryStorage keeps values in process memory. Nothing survives a
// restart; it exists for tests and for running without a durable layer.
type MemoryStorage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger types.Logger
	data   map[string][]byte
	mu     sync.RWMutex
	state  atomic.Value
}

func NewMemoryStorage(ctx context.Context, logger types.Logger, config *types.StorageConfig) (types.Storage, error) {
	storageCtx, cancel := context.WithCancel(ctx)

	s := &MemoryStorage{
		ctx:    storageCtx,
		cancel: cancel,
		logger: logger,
		data:   make(map[string][]byte),
	}

	s.state.Store(StateStopped)

	return s, nil
}

func (s *MemoryStorage) Read(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.data[key]
	if !exists {
		return nil, types.Errorf(types.ErrStorageKeyNotFound, "key: %s", key)
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryStorage) Write(key string, data []byte) error {
	if key == "" {
		return types.ErrStorageKeyIsEmpty
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = stored
	return nil
}

func (s *MemoryStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *MemoryStorage) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStorage) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		s.logger.Warn("Memory storage is already running")
		return types.ErrAlreadyRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	s.logger.Info("Memory storage started")
	return nil
}

func (s *MemoryStorage) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		s.logger.Warn("Memory storage is not running")
		return types.ErrNotRunning
	}

	defer func() {
		s.setState(StateStopped)
	}()

	s.cancel()

	s.mu.Lock()
	keysCount := len(s.data)
	s.data = make(map[string][]byte)
	s.mu.Unlock()

	s.logger.Info("Memory storage stopped", zap.Int("cleared_keys", keysCount))
	return nil
}

func (s *MemoryStorage) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *MemoryStorage) getState() State {
	return s.state.Load().(State)
}

func (s *MemoryStorage) setState(newState State) bool {
	return s.state.CompareAndSwap(s.getState(), newState)
}

func (s *MemoryStorage) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
