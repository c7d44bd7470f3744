package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	lastPage int
	perPage  int
	delays   map[int]time.Duration
	failures map[int]error

	mu        sync.Mutex
	requested []int
	completed []int
	inFlight  int32
	maxFlight int32
}

func (f *fakeFetcher) FetchPage(ctx context.Context, endpoint string, pageNum int) ([]string, int, error) {
	f.mu.Lock()
	f.requested = append(f.requested, pageNum)
	f.mu.Unlock()

	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.maxFlight)
		if n <= peak || atomic.CompareAndSwapInt32(&f.maxFlight, peak, n) {
			break
		}
	}

	if d := f.delays[pageNum]; d > 0 {
		time.Sleep(d)
	}

	f.mu.Lock()
	f.completed = append(f.completed, pageNum)
	f.mu.Unlock()

	if err := f.failures[pageNum]; err != nil {
		return nil, 0, err
	}

	items := make([]string, 0, f.perPage)
	for i := 0; i < f.perPage; i++ {
		items = append(items, fmt.Sprintf("p%d-%d", pageNum, i))
	}
	return items, f.lastPage, nil
}

func TestFetchAllPages_SinglePage(t *testing.T) {
	f := &fakeFetcher{lastPage: 1, perPage: 3}
	bf := NewBatchFetcher(f, DefaultConfig())

	items, err := bf.FetchAllPages(context.Background(), "/cases")
	require.NoError(t, err)

	assert.Equal(t, []string{"p1-0", "p1-1", "p1-2"}, items)
	assert.Equal(t, []int{1}, f.requested, "no request beyond page 1")
}

func TestFetchAllPages_PageOrderIndependentOfCompletion(t *testing.T) {
	f := &fakeFetcher{
		lastPage: 3,
		perPage:  2,
		delays:   map[int]time.Duration{2: 100 * time.Millisecond},
	}
	bf := NewBatchFetcher(f, DefaultConfig())

	items, err := bf.FetchAllPages(context.Background(), "/cases")
	require.NoError(t, err)

	require.Equal(t, []int{1, 3, 2}, f.completed, "page 3 should finish before page 2")
	assert.Equal(t, []string{"p1-0", "p1-1", "p2-0", "p2-1", "p3-0", "p3-1"}, items)
}

func TestFetchAllPages_ManyPages(t *testing.T) {
	f := &fakeFetcher{lastPage: 25, perPage: 1}
	bf := NewBatchFetcher(f, Config{MaxConcurrency: 4})

	items, err := bf.FetchAllPages(context.Background(), "/cases")
	require.NoError(t, err)
	require.Len(t, items, 25)

	for i, item := range items {
		assert.Equal(t, fmt.Sprintf("p%d-0", i+1), item)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&f.maxFlight), int32(4))
}

func TestFetchAllPages_FirstPageError(t *testing.T) {
	boom := errors.New("bad token")
	f := &fakeFetcher{lastPage: 5, perPage: 1, failures: map[int]error{1: boom}}
	bf := NewBatchFetcher(f, DefaultConfig())

	items, err := bf.FetchAllPages(context.Background(), "/cases")
	require.Error(t, err)
	assert.Nil(t, items)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "page 1")
	assert.Equal(t, []int{1}, f.requested)
}

func TestFetchAllPages_AnyPageErrorFailsBatch(t *testing.T) {
	boom := errors.New("status 500")
	f := &fakeFetcher{
		lastPage: 4,
		perPage:  2,
		failures: map[int]error{3: boom},
	}
	bf := NewBatchFetcher(f, DefaultConfig())

	items, err := bf.FetchAllPages(context.Background(), "/cases")
	require.Error(t, err)
	assert.Nil(t, items, "no partial results")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "page 3")
}

func TestFetchAllPages_ErrorWithSmallPoolDrains(t *testing.T) {
	boom := errors.New("status 500")
	f := &fakeFetcher{
		lastPage: 200,
		perPage:  1,
		failures: map[int]error{2: boom, 3: boom, 4: boom},
	}
	bf := NewBatchFetcher(f, Config{MaxConcurrency: 2})

	done := make(chan error, 1)
	go func() {
		_, err := bf.FetchAllPages(context.Background(), "/cases")
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("FetchAllPages did not return")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Less(t, len(f.requested), 200, "queued pages are not dispatched after the first error")
}

func TestFetchAllPages_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeFetcher{lastPage: 3, perPage: 1}
	bf := NewBatchFetcher(ctxFetcher{inner: f, cancelAfterFirst: cancel}, Config{MaxConcurrency: 1})

	_, err := bf.FetchAllPages(ctx, "/cases")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// ctxFetcher cancels the parent context after page 1 and honours it.
type ctxFetcher struct {
	inner            PageFetcher
	cancelAfterFirst context.CancelFunc
}

func (c ctxFetcher) FetchPage(ctx context.Context, endpoint string, pageNum int) ([]string, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	items, last, err := c.inner.FetchPage(ctx, endpoint, pageNum)
	if pageNum == 1 {
		c.cancelAfterFirst()
	}
	return items, last, err
}

func TestNewBatchFetcher_Defaults(t *testing.T) {
	bf := NewBatchFetcher(&fakeFetcher{}, Config{})
	assert.Equal(t, 10, bf.config.MaxConcurrency)
}
