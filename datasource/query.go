package datasource

import (
	"github.com/saiset-co/sai-storefront/types"
)

const (
	DefaultStatus   = "active"
	DefaultSortBy   = "created_at"
	DefaultPageSize = 12
)

// BuildProductQuery maps a ProductFilters value object to the typed
// query the datasource consumes: equality on category/featured/status,
// one OR group of substring matches for free text, inclusive price
// bounds, single-field sort and offset pagination with an exact count.
func BuildProductQuery(filters types.ProductFilters) types.Query {
	page := filters.Page
	if page < 1 {
		page = 1
	}
	limit := filters.Limit
	if limit < 1 {
		limit = DefaultPageSize
	}

	status := filters.Status
	if status == "" {
		status = DefaultStatus
	}

	query := types.Query{
		Collection: types.CollectionProducts,
		Offset:     (page - 1) * limit,
		Limit:      limit,
		WithCount:  true,
	}

	query.Filters = append(query.Filters, types.Filter{
		Field: "status", Op: types.OpEqual, Value: status,
	})

	if filters.Category != "" {
		query.Filters = append(query.Filters, types.Filter{
			Field: "category", Op: types.OpEqual, Value: filters.Category,
		})
	}

	if filters.Featured != nil {
		query.Filters = append(query.Filters, types.Filter{
			Field: "featured", Op: types.OpEqual, Value: *filters.Featured,
		})
	}

	if filters.MinPrice != nil {
		query.Filters = append(query.Filters, types.Filter{
			Field: "price", Op: types.OpGTE, Value: *filters.MinPrice,
		})
	}

	if filters.MaxPrice != nil {
		query.Filters = append(query.Filters, types.Filter{
			Field: "price", Op: types.OpLTE, Value: *filters.MaxPrice,
		})
	}

	if filters.Search != "" {
		for _, field := range []string{"name", "description", "short_description"} {
			query.Any = append(query.Any, types.Filter{
				Field: field, Op: types.OpContains, Value: filters.Search,
			})
		}
	}

	sortBy := filters.SortBy
	if sortBy == "" {
		sortBy = DefaultSortBy
	}
	query.Sort = &types.Sort{
		Field:      sortBy,
		Descending: filters.SortOrder != "asc",
	}

	return query
}

// BuildCategoryQuery lists every category sorted by name.
func BuildCategoryQuery() types.Query {
	return types.Query{
		Collection: types.CollectionCategories,
		Sort:       &types.Sort{Field: "name"},
		WithCount:  true,
	}
}

// BuildCategoryNameQuery matches categories whose name contains term.
func BuildCategoryNameQuery(term string, limit int) types.Query {
	return types.Query{
		Collection: types.CollectionCategories,
		Any: []types.Filter{
			{Field: "name", Op: types.OpContains, Value: term},
		},
		Sort:  &types.Sort{Field: "name"},
		Limit: limit,
	}
}

// BuildProductSuggestionQuery matches active products whose name or
// description contains term.
func BuildProductSuggestionQuery(term string, limit int) types.Query {
	return types.Query{
		Collection: types.CollectionProducts,
		Filters: []types.Filter{
			{Field: "status", Op: types.OpEqual, Value: DefaultStatus},
		},
		Any: []types.Filter{
			{Field: "name", Op: types.OpContains, Value: term},
			{Field: "description", Op: types.OpContains, Value: term},
		},
		Sort:  &types.Sort{Field: "name"},
		Limit: limit,
	}
}

// BuildProfileQuery fetches one profile row by id.
func BuildProfileQuery(id string) types.Query {
	return types.Query{
		Collection: types.CollectionProfiles,
		Filters: []types.Filter{
			{Field: "id", Op: types.OpEqual, Value: id},
		},
		Limit: 1,
	}
}
