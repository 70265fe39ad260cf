package wishlist

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

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

// Manager owns the durable wishlist. Unlike the cart there is no
// quantity: at most one entry exists per product, and a duplicate add is
// a no-op. Sync semantics otherwise mirror the cart manager.
type Manager struct {
	ctx         context.Context
	cancel      context.CancelFunc
	logger      types.Logger
	config      *types.CollectionConfig
	storage     types.Storage
	bus         types.Bus
	instanceID  string
	items       []types.WishlistItem
	initialized bool
	unsubscribe func()
	mu          sync.RWMutex
	state       atomic.Value
}

func NewManager(ctx context.Context, logger types.Logger, config *types.CollectionConfig, storage types.Storage, bus types.Bus) (*Manager, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	if config.StorageKey == "" {
		config.StorageKey = types.StorageKeyWishlist
	}

	managerCtx, cancel := context.WithCancel(ctx)

	m := &Manager{
		ctx:        managerCtx,
		cancel:     cancel,
		logger:     logger,
		config:     config,
		storage:    storage,
		bus:        bus,
		instanceID: uuid.NewString(),
		items:      make([]types.WishlistItem, 0),
	}

	m.state.Store(StateStopped)

	return m, nil
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		m.logger.Warn("Wishlist manager is already running")
		return types.ErrAlreadyRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	m.hydrate()

	unsubscribe, err := m.bus.Subscribe(types.ChannelWishlist, m.handleChange)
	if err != nil {
		m.setState(StateStopped)
		return types.WrapError(err, "failed to subscribe to wishlist changes")
	}
	m.unsubscribe = unsubscribe

	m.mu.RLock()
	itemsCount := len(m.items)
	m.mu.RUnlock()

	m.logger.Info("Wishlist manager started",
		zap.String("storage_key", m.config.StorageKey),
		zap.Int("items", itemsCount))
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		m.logger.Warn("Wishlist manager is not running")
		return types.ErrNotRunning
	}

	defer func() {
		m.setState(StateStopped)
	}()

	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}

	m.cancel()

	m.logger.Info("Wishlist manager stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.initialized
}

// Add prepends a new item unless the product is already present, in
// which case nothing changes.
func (m *Manager) Add(product types.ProductRef) error {
	if product.ID == "" {
		return types.ErrProductIDEmpty
	}

	m.mu.Lock()

	for i := range m.items {
		if m.items[i].ProductID == product.ID {
			m.mu.Unlock()
			return nil
		}
	}

	item := types.WishlistItem{
		ID:           uuid.NewString(),
		ProductID:    product.ID,
		ProductName:  product.Name,
		ProductPrice: product.Price,
		ProductImage: product.Image,
		AddedAt:      time.Now().Format(time.RFC3339),
	}
	m.items = append([]types.WishlistItem{item}, m.items...)

	snapshot := m.snapshotUnsafe()
	m.mu.Unlock()

	m.persistAndPublish(snapshot)

	m.logger.Debug("Wishlist item added", zap.String("product_id", product.ID))
	return nil
}

func (m *Manager) Remove(itemID string) error {
	m.mu.Lock()

	index := -1
	for i := range m.items {
		if m.items[i].ID == itemID {
			index = i
			break
		}
	}

	if index < 0 {
		m.mu.Unlock()
		return types.Errorf(types.ErrItemNotFound, "item: %s", itemID)
	}

	m.items = append(m.items[:index], m.items[index+1:]...)

	snapshot := m.snapshotUnsafe()
	m.mu.Unlock()

	m.persistAndPublish(snapshot)
	return nil
}

func (m *Manager) RemoveProduct(productID string) error {
	m.mu.Lock()

	index := -1
	for i := range m.items {
		if m.items[i].ProductID == productID {
			index = i
			break
		}
	}

	if index < 0 {
		m.mu.Unlock()
		return types.Errorf(types.ErrItemNotFound, "product: %s", productID)
	}

	m.items = append(m.items[:index], m.items[index+1:]...)

	snapshot := m.snapshotUnsafe()
	m.mu.Unlock()

	m.persistAndPublish(snapshot)
	return nil
}

func (m *Manager) Clear() error {
	m.mu.Lock()
	m.items = make([]types.WishlistItem, 0)
	snapshot := m.snapshotUnsafe()
	m.mu.Unlock()

	m.persistAndPublish(snapshot)
	return nil
}

func (m *Manager) Items() []types.WishlistItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.snapshotUnsafe()
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.items)
}

func (m *Manager) Contains(productID string) bool {
	_, ok := m.Item(productID)
	return ok
}

func (m *Manager) Item(productID string) (types.WishlistItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.items {
		if m.items[i].ProductID == productID {
			return m.items[i], true
		}
	}
	return types.WishlistItem{}, false
}

func (m *Manager) hydrate() {
	defer func() {
		m.mu.Lock()
		m.initialized = true
		m.mu.Unlock()
	}()

	data, err := m.storage.Read(m.config.StorageKey)
	if err != nil {
		if !types.IsError(err, types.ErrStorageKeyNotFound) {
			m.logger.Warn("Failed to read wishlist from storage, starting empty",
				zap.String("storage_key", m.config.StorageKey),
				zap.Error(err))
		}
		return
	}

	var items []types.WishlistItem
	if err := utils.Unmarshal(data, &items); err != nil {
		m.logger.Warn("Wishlist storage data unparsable, starting empty",
			zap.String("storage_key", m.config.StorageKey),
			zap.Error(err))
		return
	}

	m.mu.Lock()
	m.items = items
	if m.items == nil {
		m.items = make([]types.WishlistItem, 0)
	}
	m.mu.Unlock()
}

func (m *Manager) persistAndPublish(snapshot []types.WishlistItem) {
	if m.config.WriteDelay > 0 {
		select {
		case <-time.After(m.config.WriteDelay):
		case <-m.ctx.Done():
			return
		}
	}

	data, err := utils.Marshal(snapshot)
	if err != nil {
		m.logger.Error("Failed to marshal wishlist items", zap.Error(err))
		return
	}

	if err := m.storage.Write(m.config.StorageKey, data); err != nil {
		m.logger.Error("Failed to persist wishlist, memory state retained",
			zap.String("storage_key", m.config.StorageKey),
			zap.Error(err))
	}

	msg := types.ChangeMessage{
		Collection: types.ChannelWishlist,
		Items:      snapshot,
		Source:     m.instanceID,
		Timestamp:  time.Now(),
	}

	if err := m.bus.Publish(msg); err != nil {
		m.logger.Warn("Failed to publish wishlist change", zap.Error(err))
	}
}

func (m *Manager) handleChange(msg types.ChangeMessage) {
	if msg.Source == m.instanceID {
		return
	}

	var items []types.WishlistItem
	if err := utils.Remarshal(msg.Items, &items); err != nil {
		m.logger.Warn("Ignoring malformed wishlist change message", zap.Error(err))
		return
	}

	if items == nil {
		items = make([]types.WishlistItem, 0)
	}

	m.mu.Lock()
	m.items = items
	m.mu.Unlock()

	m.logger.Debug("Wishlist adopted external update",
		zap.String("source", msg.Source),
		zap.Int("items", len(items)))
}

func (m *Manager) snapshotUnsafe() []types.WishlistItem {
	snapshot := make([]types.WishlistItem, len(m.items))
	copy(snapshot, m.items)
	return snapshot
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
