package datasource

import (
	"context"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/types"
	"github.com/saiset-co/sai-storefront/utils"
)

type CloverConfig struct {
	Path string `json:"path"`
}

// CloverSource serves the catalog from an embedded document store. Used
// by single-node deployments and seed tooling; the typed query maps onto
// clover criteria one to one.
type CloverSource struct {
	db     *clover.DB
	logger types.Logger
	config *CloverConfig
	state  atomic.Value
}

func NewCloverSource(ctx context.Context, logger types.Logger, config *types.DataSourceConfig) (types.DataSource, error) {
	cloverConfig := &CloverConfig{}
	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, cloverConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal clover config")
		}
	}

	db, err := clover.Open(cloverConfig.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open clover db")
	}

	cs := &CloverSource{
		db:     db,
		logger: logger,
		config: cloverConfig,
	}

	cs.state.Store(StateStopped)
	return cs, nil
}

func (c *CloverSource) Start() error {
	if !c.transitionState(StateStopped, StateStarting) {
		return types.ErrAlreadyRunning
	}

	defer func() {
		if c.getState() == StateStarting {
			c.setState(StateRunning)
		}
	}()

	c.logger.Info("Clover datasource started", zap.String("path", c.config.Path))
	return nil
}

func (c *CloverSource) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		return types.ErrNotRunning
	}

	defer func() {
		c.setState(StateStopped)
	}()

	if err := c.db.Close(); err != nil {
		return types.WrapError(err, "failed to close clover db")
	}

	c.logger.Info("Clover datasource stopped gracefully")
	return nil
}

func (c *CloverSource) IsRunning() bool {
	return c.getState() == StateRunning
}

func (c *CloverSource) Fetch(ctx context.Context, query types.Query) (*types.Result, error) {
	exists, err := c.db.HasCollection(query.Collection)
	if err != nil {
		return nil, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		return &types.Result{Rows: []map[string]interface{}{}}, nil
	}

	q := c.db.Query(query.Collection)
	q = applyCriteria(q, query)

	if query.Sort != nil {
		direction := 1
		if query.Sort.Descending {
			direction = -1
		}
		q = q.Sort(clover.SortOption{Field: query.Sort.Field, Direction: direction})
	}

	if query.Offset > 0 {
		q = q.Skip(query.Offset)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	docs, err := q.FindAll()
	if err != nil {
		return nil, types.WrapError(err, "failed to find documents")
	}

	result := &types.Result{Rows: make([]map[string]interface{}, 0, len(docs))}

	for _, doc := range docs {
		row := make(map[string]interface{})
		if err := doc.Unmarshal(&row); err != nil {
			continue
		}
		delete(row, "_id")
		result.Rows = append(result.Rows, row)
	}

	if query.WithCount {
		countQuery := applyCriteria(c.db.Query(query.Collection), query)
		total, err := countQuery.Count()
		if err != nil {
			return nil, types.WrapError(err, "failed to count documents")
		}
		result.Total = int64(total)
	}

	return result, nil
}

func (c *CloverSource) Insert(ctx context.Context, collection string, rows []map[string]interface{}) ([]string, error) {
	if len(rows) == 0 {
		return []string{}, nil
	}

	exists, err := c.db.HasCollection(collection)
	if err != nil {
		return nil, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		if err := c.db.CreateCollection(collection); err != nil {
			return nil, types.WrapError(err, "failed to create collection")
		}
	}

	now := time.Now().UnixNano()
	ids := make([]string, 0, len(rows))
	docs := make([]*clover.Document, 0, len(rows))

	for i, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			id = uuid.New().String()
		}

		doc := clover.NewDocument()
		for key, value := range row {
			doc.Set(key, value)
		}
		doc.Set("id", id)
		doc.Set("cr_time", now+int64(i))
		doc.Set("ch_time", now+int64(i))

		docs = append(docs, doc)
		ids = append(ids, id)
	}

	if err := c.db.Insert(collection, docs...); err != nil {
		return nil, types.WrapError(err, "failed to insert documents")
	}

	return ids, nil
}

func (c *CloverSource) Update(ctx context.Context, collection string, filters []types.Filter, values map[string]interface{}) (int64, error) {
	exists, err := c.db.HasCollection(collection)
	if err != nil {
		return 0, types.WrapError(err, "failed to check collection existence")
	}
	if !exists {
		return 0, nil
	}

	q := applyCriteria(c.db.Query(collection), types.Query{Filters: filters})

	count, err := q.Count()
	if err != nil {
		return 0, types.WrapError(err, "failed to count matching documents")
	}
	if count == 0 {
		return 0, nil
	}

	updates := make(map[string]interface{}, len(values)+1)
	for key, value := range values {
		updates[key] = value
	}
	updates["ch_time"] = time.Now().UnixNano()

	if err := q.Update(updates); err != nil {
		return 0, types.WrapError(err, "failed to update documents")
	}

	return int64(count), nil
}

func (c *CloverSource) Delete(ctx context.Context, collection string, filters []types.Filter) (int64, error) {
	exists, err := c.db.HasCollection(collection)
	if err != nil {
		return 0, types.WrapError(err, "failed to check collection existence")
	}
	if !exists {
		return 0, nil
	}

	q := applyCriteria(c.db.Query(collection), types.Query{Filters: filters})

	count, err := q.Count()
	if err != nil {
		return 0, types.WrapError(err, "failed to count matching documents")
	}

	if err := q.Delete(); err != nil {
		return 0, types.WrapError(err, "failed to delete documents")
	}

	return int64(count), nil
}

func applyCriteria(q *clover.Query, query types.Query) *clover.Query {
	for _, filter := range query.Filters {
		q = q.Where(toCriteria(filter))
	}

	if len(query.Any) > 0 {
		combined := toCriteria(query.Any[0])
		for _, filter := range query.Any[1:] {
			combined = combined.Or(toCriteria(filter))
		}
		q = q.Where(combined)
	}

	return q
}

func toCriteria(filter types.Filter) *clover.Criteria {
	field := clover.Field(filter.Field)

	switch filter.Op {
	case types.OpGTE:
		return field.GtEq(filter.Value)
	case types.OpLTE:
		return field.LtEq(filter.Value)
	case types.OpContains:
		term, _ := filter.Value.(string)
		return field.Like("(?i).*" + regexp.QuoteMeta(term) + ".*")
	default:
		return field.Eq(filter.Value)
	}
}

func (c *CloverSource) getState() State {
	return c.state.Load().(State)
}

func (c *CloverSource) setState(newState State) bool {
	currentState := c.getState()
	return c.state.CompareAndSwap(currentState, newState)
}

func (c *CloverSource) transitionState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}
