package cache

import (
	"context"
	"time"

	"github.com/saiset-co/sai-storefront/types"
)

var customStoreCreators = make(map[string]types.CacheStoreCreator)

func RegisterStore(storeType string, creator types.CacheStoreCreator) {
	customStoreCreators[storeType] = creator
}

// NewStore builds one isolated cache instance. The instance name labels
// metrics so the three storefront caches stay distinguishable.
func NewStore(ctx context.Context, instance string, config *types.CacheConfig, logger types.Logger, metrics types.MetricsManager) (types.CacheStore, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	var impl types.CacheStore
	var err error

	switch config.Type {
	case "", "memory":
		impl, err = NewMemoryStore(ctx, logger, config)
	case "redis":
		impl, err = NewRedisStore(ctx, logger, config)
	default:
		if creator, exists := customStoreCreators[config.Type]; exists {
			impl, err = creator(config)
		} else {
			return nil, types.Errorf(types.ErrCacheTypeUnknown, "type: %s", config.Type)
		}
	}

	if err != nil {
		return nil, err
	}

	if metrics == nil {
		return impl, nil
	}

	return newInstrumentedStore(instance, logger, metrics, impl), nil
}

type instrumentedStore struct {
	instance string
	impl     types.CacheStore
	logger   types.Logger
	metrics  types.MetricsManager
}

func newInstrumentedStore(instance string, logger types.Logger, metrics types.MetricsManager, impl types.CacheStore) types.CacheStore {
	return &instrumentedStore{
		instance: instance,
		impl:     impl,
		logger:   logger,
		metrics:  metrics,
	}
}

func (ic *instrumentedStore) Get(key string) (interface{}, bool) {
	start := time.Now()
	value, exists := ic.impl.Get(key)
	duration := time.Since(start)

	result := "miss"
	if exists {
		result = "hit"
	}

	ic.recordMetric("get", result, duration)
	return value, exists
}

func (ic *instrumentedStore) Set(key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := ic.impl.Set(key, value, ttl)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	ic.recordMetric("set", result, duration)
	return err
}

func (ic *instrumentedStore) Has(key string) bool {
	return ic.impl.Has(key)
}

func (ic *instrumentedStore) Delete(key string) error {
	start := time.Now()
	err := ic.impl.Delete(key)
	ic.recordMetric("delete", resultOf(err), time.Since(start))
	return err
}

func (ic *instrumentedStore) Clear() error {
	start := time.Now()
	err := ic.impl.Clear()
	ic.recordMetric("clear", resultOf(err), time.Since(start))
	return err
}

func (ic *instrumentedStore) Purge() int {
	removed := ic.impl.Purge()

	if removed > 0 {
		purged := ic.metrics.Counter("cache_purged_entries_total", map[string]string{
			"instance": ic.instance,
		})
		purged.Add(float64(removed))
	}

	return removed
}

func (ic *instrumentedStore) Stats() types.CacheStats {
	return ic.impl.Stats()
}

func (ic *instrumentedStore) Start() error {
	return ic.impl.Start()
}

func (ic *instrumentedStore) Stop() error {
	return ic.impl.Stop()
}

func (ic *instrumentedStore) IsRunning() bool {
	return ic.impl.IsRunning()
}

func (ic *instrumentedStore) recordMetric(operation, result string, duration time.Duration) {
	opCounter := ic.metrics.Counter("cache_operations_total", map[string]string{
		"instance":  ic.instance,
		"operation": operation,
		"result":    result,
	})
	opCounter.Inc()

	opDuration := ic.metrics.Histogram("cache_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"instance": ic.instance, "operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
