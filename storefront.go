package storefront

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/batch"
	"github.com/saiset-co/sai-storefront/bus"
	"github.com/saiset-co/sai-storefront/cache"
	"github.com/saiset-co/sai-storefront/cart"
	"github.com/saiset-co/sai-storefront/catalog"
	"github.com/saiset-co/sai-storefront/config"
	"github.com/saiset-co/sai-storefront/cron"
	"github.com/saiset-co/sai-storefront/datasource"
	"github.com/saiset-co/sai-storefront/health"
	"github.com/saiset-co/sai-storefront/logger"
	"github.com/saiset-co/sai-storefront/metrics"
	"github.com/saiset-co/sai-storefront/profile"
	"github.com/saiset-co/sai-storefront/search"
	"github.com/saiset-co/sai-storefront/storage"
	"github.com/saiset-co/sai-storefront/types"
	"github.com/saiset-co/sai-storefront/wishlist"
)

// Storefront is the composition root. Every component is constructed
// here and injected explicitly; there is no ambient module state, so a
// test can build as many isolated storefronts as it needs.
type Storefront struct {
	ctx    context.Context
	cancel context.CancelFunc

	Config  *config.ConfigurationManager
	Logger  types.Logger
	Metrics types.MetricsManager
	Health  *health.Manager

	ProductsCache   types.CacheStore
	CategoriesCache types.CacheStore
	SearchCache     types.CacheStore

	Batcher *batch.Batcher
	Source  types.DataSource
	Storage types.Storage
	Bus     types.Bus

	Cart     *cart.Manager
	Wishlist *wishlist.Manager
	Search   *search.Manager
	Profile  *profile.Resolver
	Cron     types.CronManager

	started []types.LifecycleManager
}

// New loads configuration from a file and assembles the storefront.
func New(ctx context.Context, configPath string) (*Storefront, error) {
	cm, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return nil, err
	}
	return build(ctx, cm)
}

// NewWithConfig assembles a storefront around an in-memory config, for
// embedding and tests.
func NewWithConfig(ctx context.Context, cfg *types.StorefrontConfig) (*Storefront, error) {
	cm, err := config.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return build(ctx, cm)
}

func build(ctx context.Context, cm *config.ConfigurationManager) (*Storefront, error) {
	cfg := cm.GetConfig()

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, types.WrapError(err, "failed to build logger")
	}

	sfCtx, cancel := context.WithCancel(ctx)

	mm, err := metrics.NewManager(sfCtx, cfg.Metrics, log)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to build metrics manager")
	}

	hm, err := health.NewManager(sfCtx, cm, log)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to build health manager")
	}

	productsCache, err := cache.NewStore(sfCtx, "products", cfg.Caches.Products, log, mm)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to build products cache")
	}

	categoriesCache, err := cache.NewStore(sfCtx, "categories", cfg.Caches.Categories, log, mm)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to build categories cache")
	}

	searchCache, err := cache.NewStore(sfCtx, "search", cfg.Caches.Search, log, mm)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to build search cache")
	}

	batcher := batch.NewBatcher(sfCtx, log, cfg.Batcher)

	source, err := datasource.NewSource(sfCtx, cfg.DataSource, log, mm)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to build datasource")
	}

	store, err := storage.NewStorage(sfCtx, cfg.Storage, log, mm)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to build storage")
	}

	changeBus, err := bus.NewBus(sfCtx, cfg.Bus, log)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to build bus")
	}

	cartManager, err := cart.NewManager(sfCtx, log, cfg.Cart, store, changeBus)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to build cart manager")
	}

	wishlistManager, err := wishlist.NewManager(sfCtx, log, cfg.Wishlist, store, changeBus)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to build wishlist manager")
	}

	searchManager, err := search.NewManager(sfCtx, log, cfg.Search, searchCache, source, store)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to build search manager")
	}

	resolver, err := profile.NewResolver(log, cfg.Profile, source)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to build profile resolver")
	}

	var cronManager types.CronManager
	if cfg.Cron != nil && cfg.Cron.Enabled {
		cronManager, err = cron.NewManager(sfCtx, cm, log, mm)
		if err != nil {
			cancel()
			return nil, types.WrapError(err, "failed to build cron manager")
		}
	}

	s := &Storefront{
		ctx:             sfCtx,
		cancel:          cancel,
		Config:          cm,
		Logger:          log,
		Metrics:         mm,
		Health:          hm,
		ProductsCache:   productsCache,
		CategoriesCache: categoriesCache,
		SearchCache:     searchCache,
		Batcher:         batcher,
		Source:          source,
		Storage:         store,
		Bus:             changeBus,
		Cart:            cartManager,
		Wishlist:        wishlistManager,
		Search:          searchManager,
		Profile:         resolver,
		Cron:            cronManager,
	}

	s.registerHealthCheckers()

	return s, nil
}

// Start brings the storefront up leaf first: infrastructure, then the
// collections that depend on it. A failure stops what already started.
func (s *Storefront) Start() error {
	if err := s.Config.Start(); err != nil {
		return err
	}
	s.started = append(s.started, s.Config)

	order := []types.LifecycleManager{
		s.Health,
		s.Storage,
		s.Bus,
		s.Source,
		s.ProductsCache,
		s.CategoriesCache,
		s.SearchCache,
		s.Cart,
		s.Wishlist,
		s.Search,
	}

	if s.Metrics != nil {
		order = append([]types.LifecycleManager{s.Metrics}, order...)
	}

	for _, component := range order {
		if err := component.Start(); err != nil {
			s.Logger.Error("Component failed to start, rolling back", zap.Error(err))
			s.stopStarted()
			return err
		}
		s.started = append(s.started, component)
	}

	if s.Cron != nil {
		if err := s.registerJobs(); err != nil {
			s.stopStarted()
			return err
		}
		if err := s.Cron.Start(); err != nil {
			s.stopStarted()
			return err
		}
		s.started = append(s.started, s.Cron)
	}

	cfg := s.Config.GetConfig()
	s.Logger.Info("Storefront started",
		zap.String("name", cfg.Name),
		zap.String("version", cfg.Version))
	return nil
}

// Stop shuts components down in reverse start order.
func (s *Storefront) Stop() error {
	var firstErr error

	for i := len(s.started) - 1; i >= 0; i-- {
		if err := s.started[i].Stop(); err != nil {
			s.Logger.Error("Component failed to stop", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.started = nil

	s.cancel()

	s.Logger.Info("Storefront stopped")
	return firstErr
}

// Products builds a paginated product view over the shared cache,
// batcher and source. Each caller owns its view and must Close it.
func (s *Storefront) Products(filters types.ProductFilters) *catalog.ProductsView {
	return catalog.NewProductsView(s.ctx, s.Logger, s.Config.GetConfig().Catalog, s.ProductsCache, s.Batcher, s.Source, filters)
}

func (s *Storefront) Categories() *catalog.CategoriesView {
	return catalog.NewCategoriesView(s.ctx, s.Logger, s.Config.GetConfig().Catalog, s.CategoriesCache, s.Batcher, s.Source)
}

func (s *Storefront) stopStarted() {
	for i := len(s.started) - 1; i >= 0; i-- {
		_ = s.started[i].Stop()
	}
	s.started = nil
}

func (s *Storefront) registerHealthCheckers() {
	s.Health.RegisterChecker("storage", func(ctx context.Context) types.HealthCheck {
		if !s.Storage.IsRunning() {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: "storage not running"}
		}
		if _, err := s.Storage.Keys(); err != nil {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: err.Error()}
		}
		return types.HealthCheck{Status: types.StatusHealthy}
	})

	s.Health.RegisterChecker("bus", func(ctx context.Context) types.HealthCheck {
		if !s.Bus.IsRunning() {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: "bus not running"}
		}
		return types.HealthCheck{Status: types.StatusHealthy}
	})

	s.Health.RegisterChecker("datasource", func(ctx context.Context) types.HealthCheck {
		if !s.Source.IsRunning() {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: "datasource not running"}
		}
		return types.HealthCheck{Status: types.StatusHealthy}
	})

	s.Health.RegisterChecker("caches", func(ctx context.Context) types.HealthCheck {
		details := map[string]interface{}{
			"products":   s.ProductsCache.Stats(),
			"categories": s.CategoriesCache.Stats(),
			"search":     s.SearchCache.Stats(),
		}
		return types.HealthCheck{Status: types.StatusHealthy, Details: details}
	})
}

func (s *Storefront) registerJobs() error {
	cfg := s.Config.GetConfig().Cron

	if cfg.JanitorSpec != "" {
		if err := s.Cron.Add("cache_janitor", cfg.JanitorSpec, s.runJanitor); err != nil {
			return types.WrapError(err, "failed to register janitor job")
		}
	}

	if cfg.WarmupSpec != "" {
		if err := s.Cron.Add("cache_warmup", cfg.WarmupSpec, s.runWarmup); err != nil {
			return types.WrapError(err, "failed to register warmup job")
		}
	}

	return nil
}

// runJanitor sweeps expired entries out of all three caches. Reads purge
// lazily on their own; the sweep keeps idle keyspaces from pinning
// memory between reads.
func (s *Storefront) runJanitor() {
	removed := s.ProductsCache.Purge() + s.CategoriesCache.Purge() + s.SearchCache.Purge()

	if removed > 0 {
		s.Logger.Debug("Cache janitor purged expired entries", zap.Int("removed", removed))
	}
}

// runWarmup seeds the first product page and the category listing so the
// next reader after a TTL lapse hits warm caches.
func (s *Storefront) runWarmup() {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	cfg := s.Config.GetConfig()

	filters := types.ProductFilters{Page: 1, Limit: cfg.Catalog.PageSize}
	if cfg.Cron.WarmupFilter != "" {
		filters.Category = cfg.Cron.WarmupFilter
	}

	products := s.Products(filters)
	defer products.Close()
	if err := products.Refresh(ctx); err != nil {
		s.Logger.Warn("Warmup product fetch failed", zap.Error(err))
	}

	categories := s.Categories()
	defer categories.Close()
	if err := categories.Refresh(ctx); err != nil {
		s.Logger.Warn("Warmup category fetch failed", zap.Error(err))
	}
}
