package cart

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

// Manager owns the durable, ordered cart list. Storage holds the source
// of truth; the in-memory slice is a hydrated projection kept in sync
// across instances through the change bus. Concurrent writers from two
// instances race last-writer-wins, there is no merge.
type Manager struct {
	ctx         context.Context
	cancel      context.CancelFunc
	logger      types.Logger
	config      *types.CollectionConfig
	storage     types.Storage
	bus         types.Bus
	instanceID  string
	items       []types.CartItem
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
		config.StorageKey = types.StorageKeyCart
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
		items:      make([]types.CartItem, 0),
	}

	m.state.Store(StateStopped)

	return m, nil
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		m.logger.Warn("Cart manager is already running")
		return types.ErrAlreadyRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	m.hydrate()

	unsubscribe, err := m.bus.Subscribe(types.ChannelCart, m.handleChange)
	if err != nil {
		m.setState(StateStopped)
		return types.WrapError(err, "failed to subscribe to cart changes")
	}
	m.unsubscribe = unsubscribe

	m.mu.RLock()
	itemsCount := len(m.items)
	m.mu.RUnlock()

	m.logger.Info("Cart manager started",
		zap.String("storage_key", m.config.StorageKey),
		zap.Int("items", itemsCount))
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		m.logger.Warn("Cart manager is not running")
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

	m.logger.Info("Cart manager stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

// Initialized reports whether the initial storage read has completed.
// Consumers must not assume the list is populated before this is true.
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.initialized
}

// Add merges into an existing item for the same product or prepends a
// new one. New items go to the front of the list.
func (m *Manager) Add(product types.ProductRef, quantity int) error {
	if product.ID == "" {
		return types.ErrProductIDEmpty
	}

	if quantity < 1 {
		quantity = 1
	}

	m.mu.Lock()

	merged := false
	for i := range m.items {
		if m.items[i].ProductID == product.ID {
			m.items[i].Quantity += quantity
			merged = true
			break
		}
	}

	if !merged {
		item := types.CartItem{
			ID:           uuid.NewString(),
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductPrice: product.Price,
			ProductImage: product.Image,
			Quantity:     quantity,
			AddedAt:      time.Now().Format(time.RFC3339),
		}
		m.items = append([]types.CartItem{item}, m.items...)
	}

	snapshot := m.snapshotUnsafe()
	m.mu.Unlock()

	m.persistAndPublish(snapshot)

	m.logger.Debug("Cart item added",
		zap.String("product_id", product.ID),
		zap.Int("quantity", quantity),
		zap.Bool("merged", merged))
	return nil
}

// Update replaces an item's quantity. Zero or negative removes the item.
func (m *Manager) Update(itemID string, quantity int) error {
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

	if quantity <= 0 {
		m.items = append(m.items[:index], m.items[index+1:]...)
	} else {
		m.items[index].Quantity = quantity
	}

	snapshot := m.snapshotUnsafe()
	m.mu.Unlock()

	m.persistAndPublish(snapshot)
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
	m.items = make([]types.CartItem, 0)
	snapshot := m.snapshotUnsafe()
	m.mu.Unlock()

	m.persistAndPublish(snapshot)
	return nil
}

func (m *Manager) Items() []types.CartItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.snapshotUnsafe()
}

// Total is the sum of price times quantity over the whole cart.
func (m *Manager) Total() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0.0
	for i := range m.items {
		total += m.items[i].ProductPrice * float64(m.items[i].Quantity)
	}
	return total
}

// Count sums quantities, not line items.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for i := range m.items {
		count += m.items[i].Quantity
	}
	return count
}

func (m *Manager) Contains(productID string) bool {
	_, ok := m.Item(productID)
	return ok
}

func (m *Manager) Item(productID string) (types.CartItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.items {
		if m.items[i].ProductID == productID {
			return m.items[i], true
		}
	}
	return types.CartItem{}, false
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
			m.logger.Warn("Failed to read cart from storage, starting empty",
				zap.String("storage_key", m.config.StorageKey),
				zap.Error(err))
		}
		return
	}

	var items []types.CartItem
	if err := utils.Unmarshal(data, &items); err != nil {
		m.logger.Warn("Cart storage data unparsable, starting empty",
			zap.String("storage_key", m.config.StorageKey),
			zap.Error(err))
		return
	}

	m.mu.Lock()
	m.items = items
	if m.items == nil {
		m.items = make([]types.CartItem, 0)
	}
	m.mu.Unlock()
}

// persistAndPublish writes the full list to storage and broadcasts it.
// A storage failure is logged but the in-memory state stands; memory is
// the source of truth for the rest of the session.
func (m *Manager) persistAndPublish(snapshot []types.CartItem) {
	if m.config.WriteDelay > 0 {
		select {
		case <-time.After(m.config.WriteDelay):
		case <-m.ctx.Done():
			return
		}
	}

	data, err := utils.Marshal(snapshot)
	if err != nil {
		m.logger.Error("Failed to marshal cart items", zap.Error(err))
		return
	}

	if err := m.storage.Write(m.config.StorageKey, data); err != nil {
		m.logger.Error("Failed to persist cart, memory state retained",
			zap.String("storage_key", m.config.StorageKey),
			zap.Error(err))
	}

	msg := types.ChangeMessage{
		Collection: types.ChannelCart,
		Items:      snapshot,
		Source:     m.instanceID,
		Timestamp:  time.Now(),
	}

	if err := m.bus.Publish(msg); err != nil {
		m.logger.Warn("Failed to publish cart change", zap.Error(err))
	}
}

// handleChange adopts a list published by another instance wholesale.
// Own messages are skipped by source id.
func (m *Manager) handleChange(msg types.ChangeMessage) {
	if msg.Source == m.instanceID {
		return
	}

	var items []types.CartItem
	if err := utils.Remarshal(msg.Items, &items); err != nil {
		m.logger.Warn("Ignoring malformed cart change message", zap.Error(err))
		return
	}

	if items == nil {
		items = make([]types.CartItem, 0)
	}

	m.mu.Lock()
	m.items = items
	m.mu.Unlock()

	m.logger.Debug("Cart adopted external update",
		zap.String("source", msg.Source),
		zap.Int("items", len(items)))
}

func (m *Manager) snapshotUnsafe() []types.CartItem {
	snapshot := make([]types.CartItem, len(m.items))
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
