package catalog

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saiset-co/sai-storefront/batch"
	"github.com/saiset-co/sai-storefront/cache"
	"github.com/saiset-co/sai-storefront/datasource"
	"github.com/saiset-co/sai-storefront/logger"
	"github.com/saiset-co/sai-storefront/types"
)

// countingSource wraps a DataSource and counts physical fetches, so
// tests can tell a cache hit from a remote read.
type countingSource struct {
	types.DataSource
	fetches int64
}

func (c *countingSource) Fetch(ctx context.Context, query types.Query) (*types.Result, error) {
	atomic.AddInt64(&c.fetches, 1)
	return c.DataSource.Fetch(ctx, query)
}

func (c *countingSource) count() int64 {
	return atomic.LoadInt64(&c.fetches)
}

type catalogFixture struct {
	source *countingSource
	store  types.CacheStore
	batch  *batch.Batcher
	config *types.CatalogConfig
}

func newCatalogFixture(t *testing.T, productCount int) *catalogFixture {
	t.Helper()

	log := logger.NewNop()

	inner, err := datasource.NewMemorySource(context.Background(), log, &types.DataSourceConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("NewMemorySource failed: %v", err)
	}
	if err := inner.Start(); err != nil {
		t.Fatalf("source Start failed: %v", err)
	}
	t.Cleanup(func() { _ = inner.Stop() })

	rows := make([]map[string]interface{}, 0, productCount)
	for i := 1; i <= productCount; i++ {
		rows = append(rows, map[string]interface{}{
			"id":       fmt.Sprintf("p-%03d", i),
			"name":     fmt.Sprintf("Product %03d", i),
			"price":    float64(i),
			"category": "gear",
			"status":   "active",
		})
	}
	if len(rows) > 0 {
		if _, err := inner.Insert(context.Background(), types.CollectionProducts, rows); err != nil {
			t.Fatalf("seed Insert failed: %v", err)
		}
	}

	store, err := cache.NewMemoryStore(context.Background(), log, &types.CacheConfig{Type: "memory", DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}
	if err := store.Start(); err != nil {
		t.Fatalf("cache Start failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Stop() })

	return &catalogFixture{
		source: &countingSource{DataSource: inner},
		store:  store,
		batch:  batch.NewBatcher(context.Background(), log, &types.BatcherConfig{Window: time.Millisecond}),
		config: &types.CatalogConfig{
			PageSize:       5,
			NavigationTTL:  time.Minute,
			SearchTTL:      time.Minute,
			CategoriesTTL:  time.Minute,
			DebounceWindow: 10 * time.Millisecond,
		},
	}
}

func (f *catalogFixture) newView(t *testing.T, filters types.ProductFilters) *ProductsView {
	t.Helper()

	view := NewProductsView(context.Background(), logger.NewNop(), f.config, f.store, f.batch, f.source, filters)
	t.Cleanup(view.Close)
	return view
}

func TestProductsView_Load(t *testing.T) {
	f := newCatalogFixture(t, 12)
	view := f.newView(t, types.ProductFilters{})

	if err := view.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	items := view.Items()
	if len(items) != 5 {
		t.Fatalf("expected a page of 5, got %d", len(items))
	}

	state := view.State()
	if state.Total != 12 {
		t.Fatalf("expected total 12, got %d", state.Total)
	}
	if !state.HasMore {
		t.Fatal("expected more pages")
	}
	if state.Page != 1 {
		t.Fatalf("expected page 1, got %d", state.Page)
	}
}

func TestProductsView_CacheSharedAcrossViews(t *testing.T) {
	f := newCatalogFixture(t, 12)

	first := f.newView(t, types.ProductFilters{Category: "gear"})
	if err := first.Load(context.Background()); err != nil {
		t.Fatalf("first Load failed: %v", err)
	}
	if f.source.count() != 1 {
		t.Fatalf("expected 1 fetch, got %d", f.source.count())
	}

	// Identical filters resolve from cache, no second fetch.
	second := f.newView(t, types.ProductFilters{Category: "gear"})
	if err := second.Load(context.Background()); err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if f.source.count() != 1 {
		t.Fatalf("expected cached read, got %d fetches", f.source.count())
	}
}

func TestProductsView_LoadMoreAppends(t *testing.T) {
	f := newCatalogFixture(t, 12)
	view := f.newView(t, types.ProductFilters{})

	if err := view.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := view.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore failed: %v", err)
	}

	items := view.Items()
	if len(items) != 10 {
		t.Fatalf("expected 10 accumulated items, got %d", len(items))
	}

	seen := map[string]bool{}
	for _, item := range items {
		if seen[item.ID] {
			t.Fatalf("duplicate item %s across pages", item.ID)
		}
		seen[item.ID] = true
	}

	if state := view.State(); state.Page != 2 {
		t.Fatalf("expected page 2 after LoadMore, got %d", state.Page)
	}

	// Third page is the 2 remaining items, then the view is exhausted.
	if err := view.LoadMore(context.Background()); err != nil {
		t.Fatalf("third LoadMore failed: %v", err)
	}
	if len(view.Items()) != 12 {
		t.Fatalf("expected all 12 items, got %d", len(view.Items()))
	}
	if err := view.LoadMore(context.Background()); err != types.ErrNoMorePages {
		t.Fatalf("expected ErrNoMorePages, got: %v", err)
	}
}

func TestProductsView_RefreshBypassesCache(t *testing.T) {
	f := newCatalogFixture(t, 12)
	view := f.newView(t, types.ProductFilters{})

	view.Load(context.Background())
	fetches := f.source.count()

	if err := view.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if f.source.count() != fetches+1 {
		t.Fatalf("expected refresh to hit the source, fetches %d -> %d", fetches, f.source.count())
	}
	if state := view.State(); state.Page != 1 {
		t.Fatalf("expected refresh to reset to page 1, got %d", state.Page)
	}
}

func TestProductsView_SearchDebounce(t *testing.T) {
	f := newCatalogFixture(t, 12)
	view := f.newView(t, types.ProductFilters{})

	// Rapid re-typing collapses into one fetch of the last term.
	view.Search("Product 0")
	view.Search("Product 00")
	if err := view.Search("Product 003"); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(view.Items()) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("debounced search never applied, items %d", len(view.Items()))
		}
		time.Sleep(5 * time.Millisecond)
	}

	if f.source.count() != 1 {
		t.Fatalf("expected 1 fetch for the final term, got %d", f.source.count())
	}
	if view.Filters().Search != "Product 003" {
		t.Fatalf("expected last term to win, got %q", view.Filters().Search)
	}
}

func TestProductsView_SearchTooLong(t *testing.T) {
	f := newCatalogFixture(t, 0)
	view := f.newView(t, types.ProductFilters{})

	long := make([]byte, maxSearchLen+1)
	for i := range long {
		long[i] = 'a'
	}

	if err := view.Search(string(long)); err != types.ErrSearchTooLong {
		t.Fatalf("expected ErrSearchTooLong, got: %v", err)
	}
}

func TestProductsView_ErrorKeepsLastItems(t *testing.T) {
	f := newCatalogFixture(t, 12)
	view := f.newView(t, types.ProductFilters{})

	view.Load(context.Background())

	// Stopping the underlying source makes the next bypassing read fail.
	// MemorySource clears its collections on Stop but keeps serving, so
	// simulate failure with a cancelled context instead.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	if err := view.Refresh(cancelled); err == nil {
		t.Fatal("expected refresh with cancelled context to fail")
	}

	if len(view.Items()) != 5 {
		t.Fatalf("expected stale items retained on error, got %d", len(view.Items()))
	}
	if state := view.State(); state.Error == "" {
		t.Fatal("expected the failure to surface in view state")
	}
}

func TestProductsView_Prefetch(t *testing.T) {
	f := newCatalogFixture(t, 12)
	f.config.Prefetch = true
	view := f.newView(t, types.ProductFilters{})

	if err := view.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	next := view.Filters()
	next.Page = 2
	key := cache.ProductsKey(next)

	deadline := time.Now().Add(time.Second)
	for !f.store.Has(key) {
		if time.Now().After(deadline) {
			t.Fatal("prefetch never seeded the next page")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// LoadMore now resolves from the prefetched entry.
	fetches := f.source.count()
	if err := view.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore failed: %v", err)
	}
	if f.source.count() != fetches {
		t.Fatalf("expected LoadMore to hit the prefetched cache, fetches %d -> %d", fetches, f.source.count())
	}
}

func TestProductsView_Closed(t *testing.T) {
	f := newCatalogFixture(t, 0)
	view := f.newView(t, types.ProductFilters{})

	view.Close()

	if err := view.Load(context.Background()); err != types.ErrViewClosed {
		t.Fatalf("expected ErrViewClosed from Load, got: %v", err)
	}
	if err := view.Search("term"); err != types.ErrViewClosed {
		t.Fatalf("expected ErrViewClosed from Search, got: %v", err)
	}
}
