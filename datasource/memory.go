package datasource

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/saiset-co/sai-storefront/types"
	"github.com/saiset-co/sai-storefront/utils"
)

// MemorySource is the in-process DataSource: collections of row maps with
// the full typed-query semantics (AND filters, one OR group, sort, offset
// pagination, exact counts). It backs tests and local development.
type MemorySource struct {
	collections map[string]map[string]map[string]interface{}
	mutex       sync.RWMutex
	logger      types.Logger
	state       atomic.Value
}

func NewMemorySource(ctx context.Context, logger types.Logger, config *types.DataSourceConfig) (types.DataSource, error) {
	ms := &MemorySource{
		collections: make(map[string]map[string]map[string]interface{}),
		logger:      logger,
	}

	ms.state.Store(StateStopped)
	return ms, nil
}

func (m *MemorySource) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrAlreadyRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	m.logger.Info("Memory datasource started")
	return nil
}

func (m *MemorySource) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrNotRunning
	}

	defer func() {
		m.setState(StateStopped)
	}()

	m.mutex.Lock()
	m.collections = make(map[string]map[string]map[string]interface{})
	m.mutex.Unlock()

	m.logger.Info("Memory datasource stopped gracefully")
	return nil
}

func (m *MemorySource) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *MemorySource) Fetch(ctx context.Context, query types.Query) (*types.Result, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	collection, exists := m.collections[query.Collection]
	if !exists {
		return &types.Result{Rows: []map[string]interface{}{}}, nil
	}

	var matched []map[string]interface{}
	for _, row := range collection {
		if !matchesAll(row, query.Filters) {
			continue
		}
		if !matchesAny(row, query.Any) {
			continue
		}

		rowCopy := make(map[string]interface{})
		deepCopy(row, rowCopy)
		matched = append(matched, rowCopy)
	}

	total := int64(len(matched))

	if query.Sort != nil {
		sortRows(matched, *query.Sort)
	}

	if query.Offset > 0 {
		if query.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[query.Offset:]
		}
	}

	if query.Limit > 0 && query.Limit < len(matched) {
		matched = matched[:query.Limit]
	}

	result := &types.Result{Rows: matched}
	if result.Rows == nil {
		result.Rows = []map[string]interface{}{}
	}
	if query.WithCount {
		result.Total = total
	}

	return result, nil
}

func (m *MemorySource) Insert(ctx context.Context, collection string, rows []map[string]interface{}) ([]string, error) {
	if len(rows) == 0 {
		return []string{}, nil
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.collections[collection]; !exists {
		m.collections[collection] = make(map[string]map[string]interface{})
	}

	ids := make([]string, 0, len(rows))
	now := time.Now().UnixNano()

	for i, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			id = uuid.New().String()
		}

		rowCopy := make(map[string]interface{})
		deepCopy(row, rowCopy)
		rowCopy["id"] = id
		rowCopy["cr_time"] = now + int64(i)
		rowCopy["ch_time"] = now + int64(i)

		m.collections[collection][id] = rowCopy
		ids = append(ids, id)
	}

	return ids, nil
}

func (m *MemorySource) Update(ctx context.Context, collection string, filters []types.Filter, values map[string]interface{}) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	rows, exists := m.collections[collection]
	if !exists {
		return 0, nil
	}

	now := time.Now().UnixNano()
	var updated int64

	for _, row := range rows {
		if !matchesAll(row, filters) {
			continue
		}

		for key, value := range values {
			row[key] = value
		}
		row["ch_time"] = now
		updated++
	}

	return updated, nil
}

func (m *MemorySource) Delete(ctx context.Context, collection string, filters []types.Filter) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	rows, exists := m.collections[collection]
	if !exists {
		return 0, nil
	}

	var toDelete []string
	for id, row := range rows {
		if matchesAll(row, filters) {
			toDelete = append(toDelete, id)
		}
	}

	for _, id := range toDelete {
		delete(rows, id)
	}

	return int64(len(toDelete)), nil
}

func matchesAll(row map[string]interface{}, filters []types.Filter) bool {
	for _, filter := range filters {
		if !matchesFilter(row, filter) {
			return false
		}
	}
	return true
}

func matchesAny(row map[string]interface{}, filters []types.Filter) bool {
	if len(filters) == 0 {
		return true
	}

	for _, filter := range filters {
		if matchesFilter(row, filter) {
			return true
		}
	}
	return false
}

func matchesFilter(row map[string]interface{}, filter types.Filter) bool {
	value, exists := row[filter.Field]
	if !exists {
		return false
	}

	switch filter.Op {
	case types.OpEqual:
		if av, aok := toFloat64(value); aok {
			if bv, bok := toFloat64(filter.Value); bok {
				return av == bv
			}
		}
		return value == filter.Value
	case types.OpGTE:
		return compareNumbers(value, filter.Value, ">=")
	case types.OpLTE:
		return compareNumbers(value, filter.Value, "<=")
	case types.OpContains:
		str, ok := value.(string)
		if !ok {
			return false
		}
		term, ok := filter.Value.(string)
		if !ok {
			return false
		}
		return utils.ContainsFold(str, term)
	default:
		return false
	}
}

func compareNumbers(a, b interface{}, op string) bool {
	aVal, aOk := toFloat64(a)
	bVal, bOk := toFloat64(b)

	if !aOk || !bOk {
		return false
	}

	switch op {
	case ">=":
		return aVal >= bVal
	case "<=":
		return aVal <= bVal
	}
	return false
}

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func sortRows(rows []map[string]interface{}, by types.Sort) {
	sort.SliceStable(rows, func(i, j int) bool {
		if by.Descending {
			return lessValues(rows[j][by.Field], rows[i][by.Field])
		}
		return lessValues(rows[i][by.Field], rows[j][by.Field])
	})
}

func lessValues(a, b interface{}) bool {
	if av, aok := toFloat64(a); aok {
		if bv, bok := toFloat64(b); bok {
			return av < bv
		}
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}

	return false
}

func (m *MemorySource) getState() State {
	return m.state.Load().(State)
}

func (m *MemorySource) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *MemorySource) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}

func deepCopy(src, dst map[string]interface{}) {
	for k, v := range src {
		switch val := v.(type) {
		case map[string]interface{}:
			nested := make(map[string]interface{})
			deepCopy(val, nested)
			dst[k] = nested
		default:
			dst[k] = v
		}
	}
}
