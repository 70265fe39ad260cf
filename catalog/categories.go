package catalog

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/batch"
	"github.com/saiset-co/sai-storefront/cache"
	"github.com/saiset-co/sai-storefront/datasource"
	"github.com/saiset-co/sai-storefront/types"
	"github.com/saiset-co/sai-storefront/utils"
)

// CategoriesView reads the full category list. There is one list per
// storefront so no pagination; the listing sits in its own cache with a
// long TTL because categories barely change.
type CategoriesView struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  types.Logger
	config  *types.CatalogConfig
	cache   types.CacheStore
	batcher *batch.Batcher
	source  types.DataSource

	items   []types.Category
	total   int64
	loading bool
	lastErr string
	closed  bool
	mu      sync.RWMutex
}

func NewCategoriesView(ctx context.Context, logger types.Logger, config *types.CatalogConfig, store types.CacheStore, batcher *batch.Batcher, source types.DataSource) *CategoriesView {
	viewCtx, cancel := context.WithCancel(ctx)

	return &CategoriesView{
		ctx:     viewCtx,
		cancel:  cancel,
		logger:  logger,
		config:  config,
		cache:   store,
		batcher: batcher,
		source:  source,
		items:   make([]types.Category, 0),
	}
}

func (v *CategoriesView) Load(ctx context.Context) error {
	return v.load(ctx, false)
}

// Refresh bypasses the cache and replaces the list.
func (v *CategoriesView) Refresh(ctx context.Context) error {
	return v.load(ctx, true)
}

func (v *CategoriesView) Items() []types.Category {
	v.mu.RLock()
	defer v.mu.RUnlock()

	items := make([]types.Category, len(v.items))
	copy(items, v.items)
	return items
}

func (v *CategoriesView) State() types.ViewState {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return types.ViewState{
		Loading: v.loading,
		Error:   v.lastErr,
		Total:   v.total,
	}
}

func (v *CategoriesView) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()

	v.cancel()
}

func (v *CategoriesView) load(ctx context.Context, bypass bool) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return types.ErrViewClosed
	}
	v.loading = true
	v.mu.Unlock()

	page, err := v.fetch(ctx, bypass)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.loading = false
	if err != nil {
		v.lastErr = err.Error()
		return err
	}

	v.items = page.Items
	v.total = page.Total
	v.lastErr = ""
	return nil
}

func (v *CategoriesView) fetch(ctx context.Context, bypass bool) (*types.CategoryPage, error) {
	key := cache.CategoriesKey()

	if !bypass {
		if value, ok := v.cache.Get(key); ok {
			if page, ok := coerceCategoryPage(value); ok {
				return page, nil
			}
			_ = v.cache.Delete(key)
		}
	}

	result, err := v.batcher.Do(ctx, key, func(fetchCtx context.Context) (interface{}, error) {
		return v.fetchRemote(fetchCtx)
	})
	if err != nil {
		return nil, err
	}

	page, ok := coerceCategoryPage(result)
	if !ok {
		return nil, types.ErrSourceResponseShape
	}

	if err := v.cache.Set(key, page, v.config.CategoriesTTL); err != nil {
		v.logger.Warn("Failed to cache category listing", zap.Error(err))
	}

	return page, nil
}

func (v *CategoriesView) fetchRemote(ctx context.Context) (*types.CategoryPage, error) {
	result, err := v.source.Fetch(ctx, datasource.BuildCategoryQuery())
	if err != nil {
		return nil, err
	}

	items := make([]types.Category, 0, len(result.Rows))
	for _, row := range result.Rows {
		var category types.Category
		if err := utils.Remarshal(row, &category); err != nil {
			return nil, types.WrapError(err, "failed to shape category row")
		}
		items = append(items, category)
	}

	return &types.CategoryPage{
		Items: items,
		Total: result.Total,
	}, nil
}

func coerceCategoryPage(value interface{}) (*types.CategoryPage, bool) {
	if page, ok := value.(*types.CategoryPage); ok {
		return page, true
	}

	var page types.CategoryPage
	if err := utils.Remarshal(value, &page); err != nil {
		return nil, false
	}
	return &page, true
}
