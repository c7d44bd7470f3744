package results

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Sternrassler/qatouch-reporter/internal/testutil"
	"github.com/Sternrassler/qatouch-reporter/pkg/qatouch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingUpdater struct {
	mu       sync.Mutex
	calls    [][]qatouch.ResultEntry
	runKeys  []string
	comments []string
	failures int
}

func (u *recordingUpdater) UpdateBulkStatus(_ context.Context, results []qatouch.ResultEntry, runKey, comments string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.calls = append(u.calls, results)
	u.runKeys = append(u.runKeys, runKey)
	u.comments = append(u.comments, comments)
	if u.failures > 0 {
		u.failures--
		return errors.New("status 500")
	}
	return nil
}

func TestRecord_MapsStatuses(t *testing.T) {
	a := NewAggregator()

	require.NoError(t, a.Record(1, "passed"))
	require.NoError(t, a.Record(2, "failed"))
	require.NoError(t, a.Record(3, "skipped"))

	assert.Equal(t, []qatouch.ResultEntry{
		{Case: 1, Status: qatouch.StatusPassed},
		{Case: 2, Status: qatouch.StatusFailed},
		{Case: 3, Status: qatouch.StatusBlocked},
	}, a.Batch())
}

func TestRecord_RejectsUnknownStatus(t *testing.T) {
	a := NewAggregator()
	require.NoError(t, a.Record(1, "passed"))

	err := a.Record(2, "xfailed")
	assert.ErrorIs(t, err, qatouch.ErrInvalidStatus)
	assert.Equal(t, 1, a.Len(), "batch must be unchanged")
}

func TestRecord_RejectsInvalidCaseID(t *testing.T) {
	a := NewAggregator()

	assert.ErrorIs(t, a.Record(0, "passed"), qatouch.ErrInvalidCaseID)
	assert.ErrorIs(t, a.Record(-4, "failed"), qatouch.ErrInvalidCaseID)
	assert.Zero(t, a.Len())
}

func TestRecord_KeepsDuplicates(t *testing.T) {
	a := NewAggregator()
	require.NoError(t, a.Record(7, "failed"))
	require.NoError(t, a.Record(7, "passed"))

	assert.Equal(t, []qatouch.ResultEntry{
		{Case: 7, Status: qatouch.StatusFailed},
		{Case: 7, Status: qatouch.StatusPassed},
	}, a.Batch())
}

func TestRecord_Concurrent(t *testing.T) {
	a := NewAggregator()

	var wg sync.WaitGroup
	for i := 1; i <= 200; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			assert.NoError(t, a.Record(id, "passed"))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 200, a.Len())
}

func TestBatch_ReturnsCopy(t *testing.T) {
	a := NewAggregator()
	require.NoError(t, a.Record(1, "passed"))

	batch := a.Batch()
	batch[0].Case = 99

	assert.Equal(t, 1, a.Batch()[0].Case)
}

func TestFlush_SendsOnceAfterSuccess(t *testing.T) {
	a := NewAggregator()
	require.NoError(t, a.Record(1, "passed"))
	require.NoError(t, a.Record(2, "failed"))

	u := &recordingUpdater{}
	require.NoError(t, a.Flush(context.Background(), u, "TR1", "done"))
	require.NoError(t, a.Flush(context.Background(), u, "TR1", "done"))

	require.Len(t, u.calls, 1)
	assert.Equal(t, "TR1", u.runKeys[0])
	assert.Equal(t, "done", u.comments[0])
	assert.Len(t, u.calls[0], 2)
	assert.True(t, a.Flushed())
}

func TestFlush_RetryAfterFailure(t *testing.T) {
	a := NewAggregator()
	require.NoError(t, a.Record(1, "passed"))

	u := &recordingUpdater{failures: 1}
	err := a.Flush(context.Background(), u, "TR1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.False(t, a.Flushed())

	require.NoError(t, a.Flush(context.Background(), u, "TR1", ""))
	assert.Len(t, u.calls, 2)
	assert.True(t, a.Flushed())
}

func TestRecord_AfterFlushRejected(t *testing.T) {
	a := NewAggregator()
	require.NoError(t, a.Record(1, "passed"))

	u := &recordingUpdater{}
	require.NoError(t, a.Flush(context.Background(), u, "TR1", ""))

	err := a.Record(2, "failed")
	require.ErrorIs(t, err, ErrFlushed)
	assert.Contains(t, err.Error(), "case 2")
	assert.Equal(t, 1, a.Len(), "late result is not appended")

	require.NoError(t, a.Flush(context.Background(), u, "TR1", ""))
	assert.Len(t, u.calls, 1)
}

func TestRecord_AfterFailedFlushStillAccepted(t *testing.T) {
	a := NewAggregator()
	require.NoError(t, a.Record(1, "passed"))

	u := &recordingUpdater{failures: 1}
	require.Error(t, a.Flush(context.Background(), u, "TR1", ""))

	require.NoError(t, a.Record(2, "failed"))
	require.NoError(t, a.Flush(context.Background(), u, "TR1", ""))
	require.Len(t, u.calls, 2)
	assert.Len(t, u.calls[1], 2)
}

func TestFlush_EmptyBatch(t *testing.T) {
	a := NewAggregator()
	u := &recordingUpdater{}

	require.NoError(t, a.Flush(context.Background(), u, "TR1", ""))
	require.Len(t, u.calls, 1)
	assert.NotNil(t, u.calls[0])
	assert.Empty(t, u.calls[0])
}

func TestFlush_EndToEnd(t *testing.T) {
	mock := testutil.NewMockQATouch()
	defer mock.Close()

	cfg := qatouch.DefaultConfig(qatouch.Credentials{Subdomain: "acme", APIToken: "t", ProjectKey: "PRJ"})
	cfg.BaseURL = mock.URL()
	client, err := qatouch.New(cfg)
	require.NoError(t, err)
	defer client.Close()

	a := NewAggregator()
	for id, outcome := range []string{"passed", "failed", "skipped"} {
		require.NoError(t, a.Record(id+1, outcome))
	}

	require.NoError(t, a.Flush(context.Background(), client, "TR5", "ci"))

	updates := mock.GetStatusUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, `[{"case":1,"status":1},{"case":2,"status":5},{"case":3,"status":3}]`, updates[0].Get("result"))
	assert.Equal(t, "TR5", updates[0].Get("test_run"))
	assert.Equal(t, "PRJ", updates[0].Get("project"))
}

func ExampleAggregator() {
	a := NewAggregator()
	_ = a.Record(12, "passed")
	_ = a.Record(13, "skipped")

	for _, r := range a.Batch() {
		fmt.Println(r.Case, r.Status)
	}
	// Output:
	// 12 passed
	// 13 blocked
}
