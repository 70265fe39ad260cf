package batch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/types"
)

const DefaultWindow = 50 * time.Millisecond

// Batcher collapses concurrent same-key fetches into one physical call.
// The first caller for a key arms a window timer; every caller arriving
// before it fires joins the pending batch. When the timer fires the fetch
// runs exactly once and its result or error is delivered to every waiter.
// Callers arriving while the fetch itself is still running join the same
// batch; the entry is removed after delivery, so a later call starts a
// fresh one. At most one fetch per key is ever in flight.
type Batcher struct {
	ctx    context.Context
	logger types.Logger
	window time.Duration
	mu     sync.Mutex
	groups map[string]*group
}

type group struct {
	done   chan struct{}
	result interface{}
	err    error
}

func NewBatcher(ctx context.Context, logger types.Logger, config *types.BatcherConfig) *Batcher {
	window := DefaultWindow
	if config != nil && config.Window > 0 {
		window = config.Window
	}

	return &Batcher{
		ctx:    ctx,
		logger: logger,
		window: window,
		groups: make(map[string]*group),
	}
}

func (b *Batcher) Do(ctx context.Context, key string, fetch types.FetchFunc) (interface{}, error) {
	return b.DoWithWindow(ctx, key, fetch, b.window)
}

func (b *Batcher) DoWithWindow(ctx context.Context, key string, fetch types.FetchFunc, window time.Duration) (interface{}, error) {
	if fetch == nil {
		return nil, types.ErrBatchFetchIsNil
	}
	if window <= 0 {
		window = b.window
	}

	b.mu.Lock()
	g, exists := b.groups[key]
	if !exists {
		g = &group{done: make(chan struct{})}
		b.groups[key] = g

		// The first caller's fetch serves the whole batch, so it runs
		// against the batcher's root context, not this caller's.
		time.AfterFunc(window, func() {
			b.fire(key, g, fetch)
		})
	}
	b.mu.Unlock()

	select {
	case <-g.done:
		return g.result, g.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.groups)
}

func (b *Batcher) fire(key string, g *group, fetch types.FetchFunc) {
	result, err := fetch(b.ctx)
	if err != nil {
		b.logger.Debug("Batched fetch failed",
			zap.String("key", key),
			zap.Error(err))
	}

	g.result = result
	g.err = err
	close(g.done)

	// Remove the group only after delivery: callers arriving while the
	// fetch is in flight join it instead of arming a second one.
	b.mu.Lock()
	delete(b.groups, key)
	b.mu.Unlock()
}
