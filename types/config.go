package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *StorefrontConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type StorefrontConfig struct {
	Name       string            `yaml:"name" json:"name" validate:"required"`
	Version    string            `yaml:"version" json:"version" validate:"required"`
	Logger     *LoggerConfig     `yaml:"logger" json:"logger"`
	Metrics    *MetricsConfig    `yaml:"metrics" json:"metrics"`
	Caches     *CachesConfig     `yaml:"caches" json:"caches"`
	Batcher    *BatcherConfig    `yaml:"batcher" json:"batcher"`
	DataSource *DataSourceConfig `yaml:"datasource" json:"datasource"`
	Storage    *StorageConfig    `yaml:"storage" json:"storage"`
	Bus        *BusConfig        `yaml:"bus" json:"bus"`
	Cart       *CollectionConfig `yaml:"cart" json:"cart"`
	Wishlist   *CollectionConfig `yaml:"wishlist" json:"wishlist"`
	Catalog    *CatalogConfig    `yaml:"catalog" json:"catalog"`
	Search     *SearchConfig     `yaml:"search" json:"search"`
	Profile    *ProfileConfig    `yaml:"profile" json:"profile"`
	Cron       *CronConfig       `yaml:"cron" json:"cron"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

type MetricsConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{} `yaml:"config" json:"config"`
}

// CachesConfig configures the three isolated cache instances. They share
// no entries; each has its own TTL and capacity.
type CachesConfig struct {
	Products   *CacheConfig `yaml:"products" json:"products"`
	Categories *CacheConfig `yaml:"categories" json:"categories"`
	Search     *CacheConfig `yaml:"search" json:"search"`
}

type CacheConfig struct {
	Type       string        `yaml:"type" json:"type"`
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
	MaxEntries int           `yaml:"max_entries" json:"max_entries" validate:"min=0"`
	Config     interface{}   `yaml:"config" json:"config"`
}

type BatcherConfig struct {
	Window time.Duration `yaml:"window" json:"window" validate:"min=0"`
}

type DataSourceConfig struct {
	Type   string      `yaml:"type" json:"type" validate:"required"`
	Config interface{} `yaml:"config" json:"config"`
}

type StorageConfig struct {
	Type   string      `yaml:"type" json:"type" validate:"required"`
	Config interface{} `yaml:"config" json:"config"`
}

type BusConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Config interface{} `yaml:"config" json:"config"`
}

type CollectionConfig struct {
	StorageKey string        `yaml:"storage_key" json:"storage_key"`
	WriteDelay time.Duration `yaml:"write_delay" json:"write_delay" validate:"min=0"`
}

type CatalogConfig struct {
	PageSize       int           `yaml:"page_size" json:"page_size" validate:"min=1"`
	NavigationTTL  time.Duration `yaml:"navigation_ttl" json:"navigation_ttl"`
	SearchTTL      time.Duration `yaml:"search_ttl" json:"search_ttl"`
	CategoriesTTL  time.Duration `yaml:"categories_ttl" json:"categories_ttl"`
	DebounceWindow time.Duration `yaml:"debounce_window" json:"debounce_window"`
	Prefetch       bool          `yaml:"prefetch" json:"prefetch"`
}

type SearchConfig struct {
	HistoryKey     string        `yaml:"history_key" json:"history_key"`
	HistoryLimit   int           `yaml:"history_limit" json:"history_limit" validate:"min=1"`
	SuggestionTTL  time.Duration `yaml:"suggestion_ttl" json:"suggestion_ttl"`
	PopularTerms   []string      `yaml:"popular_terms" json:"popular_terms"`
	MaxSuggestions int           `yaml:"max_suggestions" json:"max_suggestions" validate:"min=1"`
}

// AdminAllowlistConfig is the audited escape hatch for admin resolution:
// identities listed here resolve as admin whenever the profile row is
// missing or unreadable. Security-relevant; every use is logged.
type AdminAllowlistConfig struct {
	Emails          []string `yaml:"emails" json:"emails"`
	IDs             []string `yaml:"ids" json:"ids"`
	MetadataRoleKey string   `yaml:"metadata_role_key" json:"metadata_role_key"`
}

type ProfileConfig struct {
	AdminAllowlist *AdminAllowlistConfig `yaml:"admin_allowlist" json:"admin_allowlist"`
}

type CronConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	Timezone     string `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
	JanitorSpec  string `yaml:"janitor_spec" json:"janitor_spec"`
	WarmupSpec   string `yaml:"warmup_spec" json:"warmup_spec"`
	WarmupFilter string `yaml:"warmup_filter" json:"warmup_filter"`
}
