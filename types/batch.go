package types

import (
	"context"
	"time"
)

// FetchFunc performs the single physical fetch on behalf of a batch.
type FetchFunc func(ctx context.Context) (interface{}, error)

// Batcher collapses near-simultaneous calls sharing a key into one fetch.
// All callers queued within the window receive the same result or error.
type Batcher interface {
	Do(ctx context.Context, key string, fetch FetchFunc) (interface{}, error)
	DoWithWindow(ctx context.Context, key string, fetch FetchFunc, window time.Duration) (interface{}, error)
	Pending() int
}
