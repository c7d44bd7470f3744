// Package results collects test outcomes during a run and sends them to
// QA Touch as a single bulk status update.
package results

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sternrassler/qatouch-reporter/pkg/logging"
	"github.com/Sternrassler/qatouch-reporter/pkg/qatouch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	resultsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qatouch_results_recorded_total",
		Help: "Total test results recorded by status",
	}, []string{"status"})

	flushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qatouch_result_flushes_total",
		Help: "Total bulk result flushes by outcome",
	}, []string{"result"})
)

// ErrFlushed is returned by Record once the batch has been sent.
var ErrFlushed = errors.New("results already flushed")

// BulkStatusUpdater sends a batch of results to a test run.
// *qatouch.Client implements it.
type BulkStatusUpdater interface {
	UpdateBulkStatus(ctx context.Context, results []qatouch.ResultEntry, runKey, comments string) error
}

// Aggregator accumulates results in recording order. It is safe for
// concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	batch   []qatouch.ResultEntry
	flushed bool
	logger  zerolog.Logger
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		logger: logging.NewLogger(logging.ComponentResults),
	}
}

// Record appends the result of one case. statusText is "passed", "skipped"
// or "failed"; anything else returns qatouch.ErrInvalidStatus and leaves the
// batch unchanged. After a successful Flush it returns ErrFlushed.
func (a *Aggregator) Record(caseID int, statusText string) error {
	status, err := qatouch.ParseStatus(statusText)
	if err != nil {
		return err
	}

	entry := qatouch.ResultEntry{Case: caseID, Status: status}
	if err := entry.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	if a.flushed {
		a.mu.Unlock()
		return fmt.Errorf("%w: case %d not sent", ErrFlushed, caseID)
	}
	a.batch = append(a.batch, entry)
	a.mu.Unlock()

	resultsRecordedTotal.WithLabelValues(status.String()).Inc()
	a.logger.Debug().Int("case", caseID).Str("status", status.String()).Msg("Result recorded")
	return nil
}

// Batch returns a copy of the recorded results in insertion order.
func (a *Aggregator) Batch() []qatouch.ResultEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]qatouch.ResultEntry{}, a.batch...)
}

// Len returns the number of recorded results.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.batch)
}

// Flushed reports whether the batch has been sent successfully.
func (a *Aggregator) Flushed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushed
}

// Flush sends the whole batch in one request. After a successful flush,
// further calls do nothing. A failed flush may be retried by calling Flush
// again. An empty batch is still sent, as [].
func (a *Aggregator) Flush(ctx context.Context, updater BulkStatusUpdater, runKey, comments string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.flushed {
		return nil
	}

	batch := append([]qatouch.ResultEntry{}, a.batch...)
	if err := updater.UpdateBulkStatus(ctx, batch, runKey, comments); err != nil {
		flushesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("flush %d results to test run %s: %w", len(batch), runKey, err)
	}

	a.flushed = true
	flushesTotal.WithLabelValues("ok").Inc()
	a.logger.Debug().Str("testrun", runKey).Int("results", len(batch)).Msg("Results flushed")
	return nil
}
