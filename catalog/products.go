package catalog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/batch"
	"github.com/saiset-co/sai-storefront/cache"
	"github.com/saiset-co/sai-storefront/datasource"
	"github.com/saiset-co/sai-storefront/types"
	"github.com/saiset-co/sai-storefront/utils"
)

const maxSearchLen = 256

// ProductsView is a paginated, cache-aware read model over the product
// collection. Reads are cache-first; misses collapse through the batcher
// so concurrent identical lookups cost one fetch. Search results expire
// faster than plain navigation because they churn faster and are less
// reusable.
type ProductsView struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  types.Logger
	config  *types.CatalogConfig
	cache   types.CacheStore
	batcher *batch.Batcher
	source  types.DataSource

	filters types.ProductFilters
	items   []types.Product
	total   int64
	hasMore bool
	page    int
	loading bool
	lastErr string
	closed  bool
	mu      sync.RWMutex

	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

func NewProductsView(ctx context.Context, logger types.Logger, config *types.CatalogConfig, store types.CacheStore, batcher *batch.Batcher, source types.DataSource, filters types.ProductFilters) *ProductsView {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.Limit < 1 {
		filters.Limit = config.PageSize
	}

	viewCtx, cancel := context.WithCancel(ctx)

	return &ProductsView{
		ctx:     viewCtx,
		cancel:  cancel,
		logger:  logger,
		config:  config,
		cache:   store,
		batcher: batcher,
		source:  source,
		filters: filters,
		items:   make([]types.Product, 0),
		page:    filters.Page,
	}
}

// Load fetches the view's current page, replacing the item list. A
// remote failure keeps the last good items and surfaces the error
// through State.
func (v *ProductsView) Load(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return types.ErrViewClosed
	}
	filters := v.filters
	filters.Page = v.page
	v.loading = true
	v.mu.Unlock()

	page, err := v.fetchPage(ctx, filters, false)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.loading = false
	if err != nil {
		v.lastErr = err.Error()
		return err
	}

	v.items = page.Items
	v.total = page.Total
	v.hasMore = page.HasMore
	v.lastErr = ""

	v.maybePrefetch(filters)
	return nil
}

// LoadMore advances one page and appends its items. The next page is
// served from cache when present.
func (v *ProductsView) LoadMore(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return types.ErrViewClosed
	}
	if !v.hasMore {
		v.mu.Unlock()
		return types.ErrNoMorePages
	}
	filters := v.filters
	filters.Page = v.page + 1
	v.loading = true
	v.mu.Unlock()

	page, err := v.fetchPage(ctx, filters, false)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.loading = false
	if err != nil {
		v.lastErr = err.Error()
		return err
	}

	v.items = append(v.items, page.Items...)
	v.total = page.Total
	v.hasMore = page.HasMore
	v.page = filters.Page
	v.lastErr = ""

	v.maybePrefetch(filters)
	return nil
}

// Refresh bypasses the cache, resets to the first page and replaces the
// list with fresh data.
func (v *ProductsView) Refresh(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return types.ErrViewClosed
	}
	filters := v.filters
	filters.Page = 1
	v.loading = true
	v.mu.Unlock()

	page, err := v.fetchPage(ctx, filters, true)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.loading = false
	if err != nil {
		v.lastErr = err.Error()
		return err
	}

	v.items = page.Items
	v.total = page.Total
	v.hasMore = page.HasMore
	v.page = 1
	v.lastErr = ""
	return nil
}

// Search applies a free-text term after the debounce window, so a term
// typed keystroke by keystroke costs one fetch. The latest call wins.
func (v *ProductsView) Search(term string) error {
	if len(term) > maxSearchLen {
		return types.ErrSearchTooLong
	}

	v.mu.RLock()
	closed := v.closed
	v.mu.RUnlock()
	if closed {
		return types.ErrViewClosed
	}

	v.debounceMu.Lock()
	defer v.debounceMu.Unlock()

	if v.debounceTimer != nil {
		v.debounceTimer.Stop()
	}

	window := v.config.DebounceWindow
	if window <= 0 {
		window = 300 * time.Millisecond
	}

	v.debounceTimer = time.AfterFunc(window, func() {
		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			return
		}
		v.filters.Search = term
		v.page = 1
		v.mu.Unlock()

		if err := v.Load(v.ctx); err != nil {
			v.logger.Debug("Debounced search failed",
				zap.String("term", term),
				zap.Error(err))
		}
	})

	return nil
}

func (v *ProductsView) Items() []types.Product {
	v.mu.RLock()
	defer v.mu.RUnlock()

	items := make([]types.Product, len(v.items))
	copy(items, v.items)
	return items
}

func (v *ProductsView) State() types.ViewState {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return types.ViewState{
		Loading: v.loading,
		Error:   v.lastErr,
		Total:   v.total,
		HasMore: v.hasMore,
		Page:    v.page,
	}
}

func (v *ProductsView) Filters() types.ProductFilters {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.filters
}

// Close detaches the view. Pending debounced searches and prefetches are
// dropped; further operations return ErrViewClosed.
func (v *ProductsView) Close() {
	v.debounceMu.Lock()
	if v.debounceTimer != nil {
		v.debounceTimer.Stop()
		v.debounceTimer = nil
	}
	v.debounceMu.Unlock()

	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()

	v.cancel()
}

func (v *ProductsView) fetchPage(ctx context.Context, filters types.ProductFilters, bypass bool) (*types.ProductPage, error) {
	key := cache.ProductsKey(filters)

	if !bypass {
		if value, ok := v.cache.Get(key); ok {
			if page, ok := coercePage(value); ok {
				return page, nil
			}
			_ = v.cache.Delete(key)
		}
	}

	result, err := v.batcher.Do(ctx, key, func(fetchCtx context.Context) (interface{}, error) {
		return v.fetchRemote(fetchCtx, filters)
	})
	if err != nil {
		return nil, err
	}

	page, ok := coercePage(result)
	if !ok {
		return nil, types.ErrSourceResponseShape
	}

	if err := v.cache.Set(key, page, v.ttlFor(filters)); err != nil {
		v.logger.Warn("Failed to cache product page", zap.Error(err))
	}

	return page, nil
}

func (v *ProductsView) fetchRemote(ctx context.Context, filters types.ProductFilters) (*types.ProductPage, error) {
	query := datasource.BuildProductQuery(filters)

	result, err := v.source.Fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	items := make([]types.Product, 0, len(result.Rows))
	for _, row := range result.Rows {
		var product types.Product
		if err := utils.Remarshal(row, &product); err != nil {
			return nil, types.WrapError(err, "failed to shape product row")
		}
		items = append(items, product)
	}

	return &types.ProductPage{
		Items:   items,
		Total:   result.Total,
		HasMore: int64(query.Offset+len(items)) < result.Total,
		Page:    filters.Page,
	}, nil
}

// maybePrefetch seeds the cache with the next page in the background.
// Fire and forget; failures are swallowed. Caller holds the lock.
func (v *ProductsView) maybePrefetch(filters types.ProductFilters) {
	if !v.config.Prefetch || !v.hasMore || v.closed {
		return
	}

	next := filters
	next.Page = filters.Page + 1

	go func() {
		key := cache.ProductsKey(next)
		if v.cache.Has(key) {
			return
		}

		page, err := v.fetchRemote(v.ctx, next)
		if err != nil {
			v.logger.Debug("Prefetch failed",
				zap.Int("page", next.Page),
				zap.Error(err))
			return
		}

		if err := v.cache.Set(key, page, v.ttlFor(next)); err != nil {
			v.logger.Debug("Prefetch cache write failed", zap.Error(err))
		}
	}()
}

func (v *ProductsView) ttlFor(filters types.ProductFilters) time.Duration {
	if filters.Search != "" {
		return v.config.SearchTTL
	}
	return v.config.NavigationTTL
}

func coercePage(value interface{}) (*types.ProductPage, bool) {
	if page, ok := value.(*types.ProductPage); ok {
		return page, true
	}

	var page types.ProductPage
	if err := utils.Remarshal(value, &page); err != nil {
		return nil, false
	}
	return &page, true
}
