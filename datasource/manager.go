package datasource

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

var customSourceCreators = make(map[string]types.DataSourceCreator)

func RegisterSource(sourceType string, creator types.DataSourceCreator) {
	customSourceCreators[sourceType] = creator
}

func NewSource(ctx context.Context, config *types.DataSourceConfig, logger types.Logger, metrics types.MetricsManager) (types.DataSource, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	var impl types.DataSource
	var err error

	switch config.Type {
	case "", "memory":
		impl, err = NewMemorySource(ctx, logger, config)
	case "clover":
		impl, err = NewCloverSource(ctx, logger, config)
	case "rest":
		impl, err = NewRestSource(ctx, logger, config)
	default:
		if creator, exists := customSourceCreators[config.Type]; exists {
			impl, err = creator(config)
		} else {
			return nil, types.Errorf(types.ErrSourceTypeUnknown, "type: %s", config.Type)
		}
	}

	if err != nil {
		return nil, err
	}

	if metrics == nil {
		return impl, nil
	}

	return newInstrumentedSource(logger, metrics, impl), nil
}

type instrumentedSource struct {
	impl    types.DataSource
	logger  types.Logger
	metrics types.MetricsManager
}

func newInstrumentedSource(logger types.Logger, metrics types.MetricsManager, impl types.DataSource) types.DataSource {
	return &instrumentedSource{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}
}

func (is *instrumentedSource) Fetch(ctx context.Context, query types.Query) (*types.Result, error) {
	start := time.Now()
	result, err := is.impl.Fetch(ctx, query)
	is.recordMetric("fetch", query.Collection, err, time.Since(start))
	return result, err
}

func (is *instrumentedSource) Insert(ctx context.Context, collection string, rows []map[string]interface{}) ([]string, error) {
	start := time.Now()
	ids, err := is.impl.Insert(ctx, collection, rows)
	is.recordMetric("insert", collection, err, time.Since(start))
	return ids, err
}

func (is *instrumentedSource) Update(ctx context.Context, collection string, filters []types.Filter, values map[string]interface{}) (int64, error) {
	start := time.Now()
	count, err := is.impl.Update(ctx, collection, filters, values)
	is.recordMetric("update", collection, err, time.Since(start))
	return count, err
}

func (is *instrumentedSource) Delete(ctx context.Context, collection string, filters []types.Filter) (int64, error) {
	start := time.Now()
	count, err := is.impl.Delete(ctx, collection, filters)
	is.recordMetric("delete", collection, err, time.Since(start))
	return count, err
}

func (is *instrumentedSource) Start() error {
	return is.impl.Start()
}

func (is *instrumentedSource) Stop() error {
	return is.impl.Stop()
}

func (is *instrumentedSource) IsRunning() bool {
	return is.impl.IsRunning()
}

func (is *instrumentedSource) recordMetric(operation, collection string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}

	opCounter := is.metrics.Counter("datasource_operations_total", map[string]string{
		"operation":  operation,
		"collection": collection,
		"result":     result,
	})
	opCounter.Inc()

	opDuration := is.metrics.Histogram("datasource_operation_duration_seconds",
		[]float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0},
		map[string]string{"operation": operation, "collection": collection},
	)
	opDuration.Observe(duration.Seconds())
}
