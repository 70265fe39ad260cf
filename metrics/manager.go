package metrics

import (
	"context"

	"github.com/saiset-co/sai-storefront/types"
)

var customMetricsCreators = make(map[string]types.MetricsManagerCreator)

func RegisterMetrics(metricsType string, creator types.MetricsManagerCreator) {
	customMetricsCreators[metricsType] = creator
}

// NewManager returns nil when metrics are disabled; callers treat a nil
// manager as "no instrumentation".
func NewManager(ctx context.Context, config *types.MetricsConfig, logger types.Logger) (types.MetricsManager, error) {
	if config == nil || !config.Enabled {
		return nil, nil
	}

	switch config.Type {
	case "", "memory":
		return NewMemoryMetrics(ctx, logger, config)
	case "prometheus":
		return NewPrometheusMetrics(ctx, logger, config)
	default:
		if creator, exists := customMetricsCreators[config.Type]; exists {
			return creator(config)
		}
		return nil, types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", config.Type)
	}
}
