package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saiset-co/sai-storefront/logger"
	"github.com/saiset-co/sai-storefront/types"
)

func newTestBatcher(window time.Duration) *Batcher {
	return NewBatcher(context.Background(), logger.NewNop(), &types.BatcherConfig{Window: window})
}

func TestBatcher_CollapsesConcurrentCalls(t *testing.T) {
	b := newTestBatcher(30 * time.Millisecond)

	var calls int32
	fetch := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "payload", nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]interface{}, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = b.Do(context.Background(), "products:page=1", fetch)
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 fetch, got %d", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d got error: %v", i, errs[i])
		}
		if results[i] != "payload" {
			t.Fatalf("caller %d got %v, want 'payload'", i, results[i])
		}
	}
}

func TestBatcher_DistinctKeysFetchSeparately(t *testing.T) {
	b := newTestBatcher(10 * time.Millisecond)

	var calls int32
	fetch := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			b.Do(context.Background(), key, fetch)
		}(key)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 fetches for 3 keys, got %d", got)
	}
}

func TestBatcher_ErrorReachesAllWaiters(t *testing.T) {
	b := newTestBatcher(20 * time.Millisecond)

	fetch := func(ctx context.Context) (interface{}, error) {
		return nil, types.ErrSourceUnavailable
	}

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = b.Do(context.Background(), "failing", fetch)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != types.ErrSourceUnavailable {
			t.Fatalf("caller %d expected ErrSourceUnavailable, got: %v", i, err)
		}
	}
}

func TestBatcher_RetryAfterFailureIsClean(t *testing.T) {
	b := newTestBatcher(5 * time.Millisecond)

	var calls int32
	fetch := func(ctx context.Context) (interface{}, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, types.ErrSourceUnavailable
		}
		return "recovered", nil
	}

	if _, err := b.Do(context.Background(), "key", fetch); err != types.ErrSourceUnavailable {
		t.Fatalf("expected first call to fail, got: %v", err)
	}

	// The failed batch was removed after delivery, so this is a fresh
	// fetch rather than a replay of the cached error.
	result, err := b.Do(context.Background(), "key", fetch)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result != "recovered" {
		t.Fatalf("expected 'recovered', got %v", result)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 fetches, got %d", got)
	}
}

func TestBatcher_NilFetch(t *testing.T) {
	b := newTestBatcher(5 * time.Millisecond)

	if _, err := b.Do(context.Background(), "key", nil); err != types.ErrBatchFetchIsNil {
		t.Fatalf("expected ErrBatchFetchIsNil, got: %v", err)
	}
}

func TestBatcher_CallerCancellation(t *testing.T) {
	b := newTestBatcher(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetch := func(ctx context.Context) (interface{}, error) {
		return "late", nil
	}

	if _, err := b.Do(ctx, "key", fetch); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
}

func TestBatcher_PendingDrainsAfterFire(t *testing.T) {
	b := newTestBatcher(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Do(context.Background(), "key", func(ctx context.Context) (interface{}, error) {
			return nil, nil
		})
	}()

	<-done

	// Removal happens just after delivery, so give it a moment.
	deadline := time.Now().Add(time.Second)
	for b.Pending() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected no pending groups after delivery, got %d", b.Pending())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBatcher_SlowFetchKeepsSingleFlight(t *testing.T) {
	b := newTestBatcher(10 * time.Millisecond)

	var calls, inFlight, maxInFlight int32
	fetch := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		current := atomic.AddInt32(&inFlight, 1)
		for {
			max := atomic.LoadInt32(&maxInFlight)
			if current <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, current) {
				break
			}
		}
		time.Sleep(80 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "slow", nil
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.Do(context.Background(), "key", fetch)
	}()
	go func() {
		defer wg.Done()
		// Arrives after the window has fired but while the fetch is
		// still running; it must join the in-flight batch.
		time.Sleep(40 * time.Millisecond)
		result, err := b.Do(context.Background(), "key", fetch)
		if err != nil {
			t.Errorf("late caller got error: %v", err)
		}
		if result != "slow" {
			t.Errorf("late caller got %v, want 'slow'", result)
		}
	}()
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 fetch, got %d", got)
	}
	if got := atomic.LoadInt32(&maxInFlight); got != 1 {
		t.Fatalf("expected at most 1 in-flight fetch, got %d", got)
	}
}
