package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-storefront/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(configPath string) (config *types.StorefrontConfig, err error) {
	if configPath == "" {
		return config, types.ErrConfigNotFound
	}

	if _, err = os.Stat(configPath); os.IsNotExist(err) {
		return config, types.WrapError(err, "file not found: "+configPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return config, types.WrapError(err, "failed to read config file")
	}

	config = l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, types.WrapError(err, "failed to parse YAML config")
	}

	if err := l.validator.Struct(config); err != nil {
		return config, types.WrapError(err, "config validation failed")
	}

	return config, nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.StorefrontConfig {
	return &types.StorefrontConfig{
		Logger: &types.LoggerConfig{
			Level: "debug",
		},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Type:    "memory",
		},
		Caches: &types.CachesConfig{
			Products: &types.CacheConfig{
				Type:       "memory",
				DefaultTTL: 10 * time.Minute,
				MaxEntries: 200,
			},
			Categories: &types.CacheConfig{
				Type:       "memory",
				DefaultTTL: 30 * time.Minute,
				MaxEntries: 50,
			},
			Search: &types.CacheConfig{
				Type:       "memory",
				DefaultTTL: 5 * time.Minute,
				MaxEntries: 100,
			},
		},
		Batcher: &types.BatcherConfig{
			Window: 50 * time.Millisecond,
		},
		DataSource: &types.DataSourceConfig{
			Type: "memory",
		},
		Storage: &types.StorageConfig{
			Type: "memory",
		},
		Bus: &types.BusConfig{
			Type: "memory",
		},
		Cart: &types.CollectionConfig{
			StorageKey: types.StorageKeyCart,
		},
		Wishlist: &types.CollectionConfig{
			StorageKey: types.StorageKeyWishlist,
		},
		Catalog: &types.CatalogConfig{
			PageSize:       12,
			NavigationTTL:  10 * time.Minute,
			SearchTTL:      2 * time.Minute,
			CategoriesTTL:  30 * time.Minute,
			DebounceWindow: 300 * time.Millisecond,
			Prefetch:       true,
		},
		Search: &types.SearchConfig{
			HistoryKey:     types.StorageKeySearchHistory,
			HistoryLimit:   10,
			SuggestionTTL:  5 * time.Minute,
			MaxSuggestions: 8,
		},
		Profile: &types.ProfileConfig{
			AdminAllowlist: &types.AdminAllowlistConfig{
				MetadataRoleKey: "role",
			},
		},
		Cron: &types.CronConfig{
			Enabled:  false,
			Timezone: "UTC",
		},
	}
}
