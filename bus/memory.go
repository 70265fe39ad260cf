package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/types"
)

type subscription struct {
	id      int64
	handler types.ChangeHandler
}

// MemoryBus fans collection changes out to subscribers in the same
// process. Handlers run on their own goroutine per message; the
// publisher never blocks on a slow subscriber. Messages carry their
// origin in Source, and subscribers that published the change are
// expected to skip it themselves.
type MemoryBus struct {
	ctx           context.Context
	cancel        context.CancelFunc
	logger        types.Logger
	subscriptions map[string][]*subscription
	subsMu        sync.RWMutex
	nextID        int64
	state         atomic.Value
}

func NewMemoryBus(ctx context.Context, logger types.Logger, config *types.BusConfig) (types.Bus, error) {
	busCtx, cancel := context.WithCancel(ctx)

	b := &MemoryBus{
		ctx:           busCtx,
		cancel:        cancel,
		logger:        logger,
		subscriptions: make(map[string][]*subscription),
	}

	b.state.Store(StateStopped)

	return b, nil
}

func (b *MemoryBus) Publish(msg types.ChangeMessage) error {
	if !b.IsRunning() {
		return types.ErrBusNotRunning
	}

	if msg.Collection == "" {
		return types.ErrBusPublishFailed
	}

	b.subsMu.RLock()
	handlers := make([]*subscription, len(b.subscriptions[msg.Collection]))
	copy(handlers, b.subscriptions[msg.Collection])
	b.subsMu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug("No subscribers for collection",
			zap.String("collection", msg.Collection))
		return nil
	}

	for _, sub := range handlers {
		s := sub
		go func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("Change handler panicked",
						zap.String("collection", msg.Collection),
						zap.Any("panic", r))
				}
			}()

			select {
			case <-b.ctx.Done():
			default:
				s.handler(msg)
			}
		}()
	}

	b.logger.Debug("Change published",
		zap.String("collection", msg.Collection),
		zap.String("source", msg.Source),
		zap.Int("subscribers", len(handlers)))

	return nil
}

func (b *MemoryBus) Subscribe(collection string, handler types.ChangeHandler) (func(), error) {
	if collection == "" || handler == nil {
		return nil, types.ErrBusPublishFailed
	}

	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	sub := &subscription{
		id:      atomic.AddInt64(&b.nextID, 1),
		handler: handler,
	}

	b.subscriptions[collection] = append(b.subscriptions[collection], sub)

	b.logger.Debug("Subscribed to collection",
		zap.String("collection", collection),
		zap.Int("total_handlers", len(b.subscriptions[collection])))

	unsubscribe := func() {
		b.subsMu.Lock()
		defer b.subsMu.Unlock()

		subs := b.subscriptions[collection]
		for i, existing := range subs {
			if existing.id == sub.id {
				b.subscriptions[collection] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return unsubscribe, nil
}

func (b *MemoryBus) Start() error {
	if !b.transitionState(StateStopped, StateStarting) {
		b.logger.Warn("Memory bus is already running")
		return types.ErrAlreadyRunning
	}

	defer func() {
		if b.getState() == StateStarting {
			b.setState(StateRunning)
		}
	}()

	b.logger.Info("Memory bus started")
	return nil
}

func (b *MemoryBus) Stop() error {
	if !b.transitionState(StateRunning, StateStopping) {
		b.logger.Warn("Memory bus is not running")
		return types.ErrNotRunning
	}

	defer func() {
		b.setState(StateStopped)
	}()

	b.cancel()

	b.subsMu.Lock()
	b.subscriptions = make(map[string][]*subscription)
	b.subsMu.Unlock()

	b.logger.Info("Memory bus stopped")
	return nil
}

func (b *MemoryBus) IsRunning() bool {
	return b.getState() == StateRunning
}

func (b *MemoryBus) getState() State {
	return b.state.Load().(State)
}

func (b *MemoryBus) setState(newState State) bool {
	return b.state.CompareAndSwap(b.getState(), newState)
}

func (b *MemoryBus) transitionState(from, to State) bool {
	return b.state.CompareAndSwap(from, to)
}
