package types

import (
	"context"
	"fmt"
)

const (
	CollectionProducts   = "products"
	CollectionCategories = "categories"
	CollectionOrders     = "orders"
	CollectionProfiles   = "profiles"
	CollectionAddresses  = "addresses"
)

type FilterOp string

const (
	OpEqual    FilterOp = "eq"
	OpGTE      FilterOp = "gte"
	OpLTE      FilterOp = "lte"
	OpContains FilterOp = "contains"
)

type Filter struct {
	Field string      `json:"field"`
	Op    FilterOp    `json:"op"`
	Value interface{} `json:"value"`
}

type Sort struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending"`
}

// Query is a transport-agnostic description of a read against one named
// collection: AND-combined Filters, one optional OR group (Any), a single
// sort and offset pagination. WithCount requests the exact unpaginated
// total alongside the page.
type Query struct {
	Collection string   `json:"collection"`
	Filters    []Filter `json:"filters,omitempty"`
	Any        []Filter `json:"any,omitempty"`
	Sort       *Sort    `json:"sort,omitempty"`
	Offset     int      `json:"offset"`
	Limit      int      `json:"limit"`
	WithCount  bool     `json:"with_count"`
}

type Result struct {
	Rows  []map[string]interface{} `json:"rows"`
	Total int64                    `json:"total"`
}

// SourceError is the error shape the remote side reports: a stable code
// plus a human message.
type SourceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("datasource error %s: %s", e.Code, e.Message)
}

// DataSource abstracts the hosted backend the storefront reads from.
// Implementations own transport; callers only know the Query shape.
type DataSource interface {
	LifecycleManager
	Fetch(ctx context.Context, query Query) (*Result, error)
	Insert(ctx context.Context, collection string, rows []map[string]interface{}) ([]string, error)
	Update(ctx context.Context, collection string, filters []Filter, values map[string]interface{}) (int64, error)
	Delete(ctx context.Context, collection string, filters []Filter) (int64, error)
}

type DataSourceCreator func(config interface{}) (DataSource, error)
