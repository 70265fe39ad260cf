package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/types"
	"github.com/saiset-co/sai-storefront/utils"
)

type FileConfig struct {
	Path string `json:"path"`
}

// FileStorage persists the whole key space as a single JSON document.
// Every write rewrites the file through a temp-and-rename, so a crash
// mid-write leaves the previous snapshot intact.
type FileStorage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger types.Logger
	config *FileConfig
	data   map[string][]byte
	mu     sync.RWMutex
	state  atomic.Value
}

func NewFileStorage(ctx context.Context, logger types.Logger, config *types.StorageConfig) (types.Storage, error) {
	fileConfig := &FileConfig{}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, fileConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal file storage config")
		}
	}

	if fileConfig.Path == "" {
		return nil, types.NewErrorf("file storage requires a path")
	}

	storageCtx, cancel := context.WithCancel(ctx)

	s := &FileStorage{
		ctx:    storageCtx,
		cancel: cancel,
		logger: logger,
		config: fileConfig,
		data:   make(map[string][]byte),
	}

	s.state.Store(StateStopped)

	return s, nil
}

func (s *FileStorage) Read(key string) ([]byte, error) {
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

func (s *FileStorage) Write(key string, data []byte) error {
	if key == "" {
		return types.ErrStorageKeyIsEmpty
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = stored

	if err := s.flushUnsafe(); err != nil {
		return types.WrapError(err, "failed to flush file storage")
	}

	return nil
}

func (s *FileStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists {
		return nil
	}

	delete(s.data, key)

	if err := s.flushUnsafe(); err != nil {
		return types.WrapError(err, "failed to flush file storage")
	}

	return nil
}

func (s *FileStorage) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *FileStorage) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		s.logger.Warn("File storage is already running")
		return types.ErrAlreadyRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	if err := s.load(); err != nil {
		s.setState(StateStopped)
		return err
	}

	s.mu.RLock()
	keysCount := len(s.data)
	s.mu.RUnlock()

	s.logger.Info("File storage started",
		zap.String("path", s.config.Path),
		zap.Int("keys", keysCount))
	return nil
}

func (s *FileStorage) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		s.logger.Warn("File storage is not running")
		return types.ErrNotRunning
	}

	defer func() {
		s.setState(StateStopped)
	}()

	s.cancel()

	s.mu.Lock()
	err := s.flushUnsafe()
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Failed to flush file storage on stop", zap.Error(err))
		return err
	}

	s.logger.Info("File storage stopped", zap.String("path", s.config.Path))
	return nil
}

func (s *FileStorage) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *FileStorage) load() error {
	raw, err := os.ReadFile(s.config.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return types.WrapError(err, "failed to read storage file")
	}

	if len(raw) == 0 {
		return nil
	}

	data := make(map[string][]byte)
	if err := utils.Unmarshal(raw, &data); err != nil {
		return types.Errorf(types.ErrStorageDataCorrupt, "path: %s", s.config.Path)
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()

	return nil
}

func (s *FileStorage) flushUnsafe() error {
	raw, err := utils.Marshal(s.data)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp := s.config.Path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return err
	}

	return os.Rename(tmp, s.config.Path)
}

func (s *FileStorage) getState() State {
	return s.state.Load().(State)
}

func (s *FileStorage) setState(newState State) bool {
	return s.state.CompareAndSwap(s.getState(), newState)
}

func (s *FileStorage) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
