package search

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/cache"
	"github.com/saiset-co/sai-storefront/datasource"
	"github.com/saiset-co/sai-storefront/types"
	"github.com/saiset-co/sai-storefront/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	productSuggestions  = 3
	categorySuggestions = 2
	popularSuggestions  = 2
)

// priceBuckets is the fixed bucket layout facet counts are folded into.
var priceBuckets = []types.PriceBucket{
	{Label: "Under $25", Min: 0, Max: 25},
	{Label: "$25 - $50", Min: 25, Max: 50},
	{Label: "$50 - $100", Min: 50, Max: 100},
	{Label: "$100 - $200", Min: 100, Max: 200},
	{Label: "$200 & up", Min: 200, Max: math.MaxFloat64},
}

// Manager builds ranked suggestion lists from live substring queries and
// keeps a durable, capped, most-recent-first search history. Suggestions
// bypass the catalog caches and use their own short-lived store.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  types.Logger
	config  *types.SearchConfig
	cache   types.CacheStore
	source  types.DataSource
	storage types.Storage

	history []string
	mu      sync.RWMutex
	state   atomic.Value
}

func NewManager(ctx context.Context, logger types.Logger, config *types.SearchConfig, store types.CacheStore, source types.DataSource, storage types.Storage) (*Manager, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	if config.HistoryKey == "" {
		config.HistoryKey = types.StorageKeySearchHistory
	}
	if config.HistoryLimit < 1 {
		config.HistoryLimit = 10
	}
	if config.MaxSuggestions < 1 {
		config.MaxSuggestions = 8
	}

	managerCtx, cancel := context.WithCancel(ctx)

	m := &Manager{
		ctx:     managerCtx,
		cancel:  cancel,
		logger:  logger,
		config:  config,
		cache:   store,
		source:  source,
		storage: storage,
		history: make([]string, 0),
	}

	m.state.Store(StateStopped)

	return m, nil
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		m.logger.Warn("Search manager is already running")
		return types.ErrAlreadyRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	m.hydrateHistory()

	m.logger.Info("Search manager started",
		zap.Int("history_entries", len(m.History())),
		zap.Int("popular_terms", len(m.config.PopularTerms)))
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		m.logger.Warn("Search manager is not running")
		return types.ErrNotRunning
	}

	defer func() {
		m.setState(StateStopped)
	}()

	m.cancel()

	m.logger.Info("Search manager stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

// Suggest builds a ranked suggestion list for a term: up to 3 product
// matches, then up to 2 category matches, then up to 2 popular terms,
// capped overall by MaxSuggestions.
func (m *Manager) Suggest(ctx context.Context, term string) ([]types.Suggestion, error) {
	normalized := utils.NormalizeTerm(term)
	if normalized == "" {
		return []types.Suggestion{}, nil
	}

	key := cache.SuggestionsKey(normalized)
	if value, ok := m.cache.Get(key); ok {
		if suggestions, ok := coerceSuggestions(value); ok {
			return suggestions, nil
		}
		_ = m.cache.Delete(key)
	}

	suggestions := make([]types.Suggestion, 0, m.config.MaxSuggestions)

	products, err := m.source.Fetch(ctx, datasource.BuildProductSuggestionQuery(normalized, productSuggestions))
	if err != nil {
		return nil, types.WrapError(err, "product suggestion query failed")
	}
	for _, row := range products.Rows {
		name, _ := row["name"].(string)
		id, _ := row["id"].(string)
		if name == "" {
			continue
		}
		suggestions = append(suggestions, types.Suggestion{
			Kind:  types.SuggestionProduct,
			Text:  name,
			RefID: id,
		})
	}

	categories, err := m.source.Fetch(ctx, datasource.BuildCategoryNameQuery(normalized, categorySuggestions))
	if err != nil {
		return nil, types.WrapError(err, "category suggestion query failed")
	}
	for _, row := range categories.Rows {
		name, _ := row["name"].(string)
		id, _ := row["id"].(string)
		if name == "" {
			continue
		}
		suggestions = append(suggestions, types.Suggestion{
			Kind:  types.SuggestionCategory,
			Text:  name,
			RefID: id,
		})
	}

	matched := 0
	for _, popular := range m.config.PopularTerms {
		if matched >= popularSuggestions {
			break
		}
		if utils.ContainsFold(popular, normalized) {
			suggestions = append(suggestions, types.Suggestion{
				Kind: types.SuggestionPopular,
				Text: popular,
			})
			matched++
		}
	}

	if len(suggestions) > m.config.MaxSuggestions {
		suggestions = suggestions[:m.config.MaxSuggestions]
	}

	if err := m.cache.Set(key, suggestions, m.config.SuggestionTTL); err != nil {
		m.logger.Warn("Failed to cache suggestions", zap.Error(err))
	}

	return suggestions, nil
}

// Record pushes a term to the front of the history, dropping any earlier
// occurrence and trimming to the cap.
func (m *Manager) Record(term string) {
	normalized := utils.NormalizeTerm(term)
	if normalized == "" {
		return
	}

	m.mu.Lock()

	next := make([]string, 0, len(m.history)+1)
	next = append(next, normalized)
	for _, existing := range m.history {
		if existing == normalized {
			continue
		}
		next = append(next, existing)
	}
	if len(next) > m.config.HistoryLimit {
		next = next[:m.config.HistoryLimit]
	}
	m.history = next

	snapshot := make([]string, len(m.history))
	copy(snapshot, m.history)
	m.mu.Unlock()

	m.persistHistory(snapshot)
}

func (m *Manager) History() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := make([]string, len(m.history))
	copy(history, m.history)
	return history
}

func (m *Manager) ClearHistory() {
	m.mu.Lock()
	m.history = make([]string, 0)
	m.mu.Unlock()

	if err := m.storage.Delete(m.config.HistoryKey); err != nil {
		m.logger.Warn("Failed to clear search history", zap.Error(err))
	}
}

func (m *Manager) Popular() []string {
	popular := make([]string, len(m.config.PopularTerms))
	copy(popular, m.config.PopularTerms)
	return popular
}

// Facets folds an already fetched product page into category and price
// bucket counts. Counts reflect only the given page, not the full
// filtered set.
func (m *Manager) Facets(items []types.Product) types.Facets {
	facets := types.Facets{
		Categories: make(map[string]int),
		Prices:     make([]types.PriceBucket, len(priceBuckets)),
	}
	copy(facets.Prices, priceBuckets)

	for i := range items {
		if items[i].Category != "" {
			facets.Categories[items[i].Category]++
		}

		price := items[i].Price
		for j := range facets.Prices {
			if price >= facets.Prices[j].Min && price < facets.Prices[j].Max {
				facets.Prices[j].Count++
				break
			}
		}
	}

	return facets
}

func (m *Manager) hydrateHistory() {
	data, err := m.storage.Read(m.config.HistoryKey)
	if err != nil {
		if !types.IsError(err, types.ErrStorageKeyNotFound) {
			m.logger.Warn("Failed to read search history, starting empty", zap.Error(err))
		}
		return
	}

	var history []string
	if err := utils.Unmarshal(data, &history); err != nil {
		m.logger.Warn("Search history unparsable, starting empty", zap.Error(err))
		return
	}

	if len(history) > m.config.HistoryLimit {
		history = history[:m.config.HistoryLimit]
	}

	m.mu.Lock()
	m.history = history
	if m.history == nil {
		m.history = make([]string, 0)
	}
	m.mu.Unlock()
}

func (m *Manager) persistHistory(snapshot []string) {
	data, err := utils.Marshal(snapshot)
	if err != nil {
		m.logger.Error("Failed to marshal search history", zap.Error(err))
		return
	}

	if err := m.storage.Write(m.config.HistoryKey, data); err != nil {
		m.logger.Warn("Failed to persist search history", zap.Error(err))
	}
}

func coerceSuggestions(value interface{}) ([]types.Suggestion, bool) {
	if suggestions, ok := value.([]types.Suggestion); ok {
		return suggestions, true
	}

	var suggestions []types.Suggestion
	if err := utils.Remarshal(value, &suggestions); err != nil {
		return nil, false
	}
	return suggestions, true
}

func (m *Manager) getState() State {
	return m.state.Load().(State)
}

func (m *Manager) setState(newState State) bool {
	return m.state.CompareAndSwap(m.getState(), newState)
}

func (m *Manager) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}
