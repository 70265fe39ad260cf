package cache

import (
	"sort"

	"github.com/bytedance/sonic"

	"github.com/saiset-co/sai-storefront/types"
	"github.com/saiset-co/sai-storefront/utils"
)

// BuildKey derives a deterministic cache key from a namespace prefix and
// a filter value object. Params are canonicalized by serializing fields
// in lexicographic order, so two logically identical filter sets produce
// the same key regardless of field order, and any differing field or
// value produces a different key. Nil and omitted fields are dropped.
func BuildKey(prefix string, params interface{}) string {
	if params == nil {
		return prefix
	}

	raw, err := sonic.ConfigDefault.Marshal(params)
	if err != nil {
		return prefix
	}

	var fields map[string]interface{}
	if err := sonic.ConfigDefault.Unmarshal(raw, &fields); err != nil {
		return prefix
	}

	if len(fields) == 0 {
		return prefix
	}

	names := make([]string, 0, len(fields))
	for name, value := range fields {
		if value == nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	buf := make([]byte, 0, len(prefix)+len(names)*24)
	buf = append(buf, prefix...)
	buf = append(buf, ':')

	for i, name := range names {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, name...)
		buf = append(buf, '=')

		encoded, err := sonic.ConfigDefault.Marshal(fields[name])
		if err != nil {
			continue
		}
		buf = append(buf, encoded...)
	}

	return utils.BytesToString(buf)
}

// ProductsKey is the namespaced key for a product page lookup.
func ProductsKey(filters types.ProductFilters) string {
	return BuildKey("products", filters)
}

// CategoriesKey is the fixed key for the category listing.
func CategoriesKey() string {
	return BuildKey("categories", nil)
}

// SuggestionsKey namespaces suggestion lookups by normalized term.
func SuggestionsKey(term string) string {
	return BuildKey("suggestions", map[string]interface{}{"term": utils.NormalizeTerm(term)})
}
