package catalog

import (
	"context"
	"testing"

	"github.com/saiset-co/sai-storefront/logger"
	"github.com/saiset-co/sai-storefront/types"
)

func seedCategories(t *testing.T, f *catalogFixture, names ...string) {
	t.Helper()

	rows := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		rows = append(rows, map[string]interface{}{
			"id":   name,
			"name": name,
			"slug": name,
		})
	}
	if _, err := f.source.Insert(context.Background(), types.CollectionCategories, rows); err != nil {
		t.Fatalf("seed Insert failed: %v", err)
	}
}

func (f *catalogFixture) newCategoriesView(t *testing.T) *CategoriesView {
	t.Helper()

	view := NewCategoriesView(context.Background(), logger.NewNop(), f.config, f.store, f.batch, f.source)
	t.Cleanup(view.Close)
	return view
}

func TestCategoriesView_LoadSorted(t *testing.T) {
	f := newCatalogFixture(t, 0)
	seedCategories(t, f, "shoes", "accessories", "jackets")

	view := f.newCategoriesView(t)
	if err := view.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	items := view.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(items))
	}
	if items[0].Name != "accessories" || items[2].Name != "shoes" {
		t.Fatalf("expected name-sorted listing, got %v", items)
	}
	if state := view.State(); state.Total != 3 {
		t.Fatalf("expected total 3, got %d", state.Total)
	}
}

func TestCategoriesView_CachedAcrossViews(t *testing.T) {
	f := newCatalogFixture(t, 0)
	seedCategories(t, f, "shoes")

	first := f.newCategoriesView(t)
	first.Load(context.Background())

	second := f.newCategoriesView(t)
	if err := second.Load(context.Background()); err != nil {
		t.Fatalf("second Load failed: %v", err)
	}

	if f.source.count() != 1 {
		t.Fatalf("expected one fetch for both views, got %d", f.source.count())
	}
}

func TestCategoriesView_RefreshSeesNewData(t *testing.T) {
	f := newCatalogFixture(t, 0)
	seedCategories(t, f, "shoes")

	view := f.newCategoriesView(t)
	view.Load(context.Background())

	seedCategories(t, f, "hats")

	// A plain Load still serves the cached listing.
	view.Load(context.Background())
	if len(view.Items()) != 1 {
		t.Fatalf("expected cached listing of 1, got %d", len(view.Items()))
	}

	if err := view.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(view.Items()) != 2 {
		t.Fatalf("expected refreshed listing of 2, got %d", len(view.Items()))
	}
}

func TestCategoriesView_Closed(t *testing.T) {
	f := newCatalogFixture(t, 0)
	view := f.newCategoriesView(t)

	view.Close()

	if err := view.Load(context.Background()); err != types.ErrViewClosed {
		t.Fatalf("expected ErrViewClosed, got: %v", err)
	}
}
