package storage

import (
	"context"
	"time"

	"github.com/saiset-co/sai-storefront/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var customStorageCreators = make(map[string]types.StorageCreator)

func RegisterStorage(storageType string, creator types.StorageCreator) {
	customStorageCreators[storageType] = creator
}

func NewStorage(ctx context.Context, config *types.StorageConfig, logger types.Logger, metrics types.MetricsManager) (types.Storage, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	var impl types.Storage
	var err error

	switch config.Type {
	case "", "memory":
		impl, err = NewMemoryStorage(ctx, logger, config)
	case "file":
		impl, err = NewFileStorage(ctx, logger, config)
	case "sqlite":
		impl, err = NewSQLiteStorage(ctx, logger, config)
	default:
		if creator, exists := customStorageCreators[config.Type]; exists {
			impl, err = creator(config)
		} else {
			return nil, types.Errorf(types.ErrStorageTypeUnknown, "type: %s", config.Type)
		}
	}

	if err != nil {
		return nil, err
	}

	if metrics == nil {
		return impl, nil
	}

	return newInstrumentedStorage(metrics, impl), nil
}

type instrumentedStorage struct {
	impl    types.Storage
	metrics types.MetricsManager
}

func newInstrumentedStorage(metrics types.MetricsManager, impl types.Storage) types.Storage {
	return &instrumentedStorage{
		impl:    impl,
		metrics: metrics,
	}
}

func (is *instrumentedStorage) Read(key string) ([]byte, error) {
	start := time.Now()
	data, err := is.impl.Read(key)
	is.recordMetric("read", err, time.Since(start))
	return data, err
}

func (is *instrumentedStorage) Write(key string, data []byte) error {
	start := time.Now()
	err := is.impl.Write(key, data)
	is.recordMetric("write", err, time.Since(start))
	return err
}

func (is *instrumentedStorage) Delete(key string) error {
	start := time.Now()
	err := is.impl.Delete(key)
	is.recordMetric("delete", err, time.Since(start))
	return err
}

func (is *instrumentedStorage) Keys() ([]string, error) {
	start := time.Now()
	keys, err := is.impl.Keys()
	is.recordMetric("keys", err, time.Since(start))
	return keys, err
}

func (is *instrumentedStorage) Start() error {
	return is.impl.Start()
}

func (is *instrumentedStorage) Stop() error {
	return is.impl.Stop()
}

func (is *instrumentedStorage) IsRunning() bool {
	return is.impl.IsRunning()
}

func (is *instrumentedStorage) recordMetric(operation string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
		if types.IsError(err, types.ErrStorageKeyNotFound) {
			result = "miss"
		}
	}

	opCounter := is.metrics.Counter("storage_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	})
	opCounter.Inc()

	opDuration := is.metrics.Histogram("storage_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 0.5},
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}
