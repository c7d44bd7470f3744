// Package reporter ties a QA Touch client and a result aggregator to one
// test session: results are recorded while tests run and sent to the test
// run once, at the end of the session.
package reporter

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sternrassler/qatouch-reporter/pkg/logging"
	"github.com/Sternrassler/qatouch-reporter/pkg/qatouch"
	"github.com/Sternrassler/qatouch-reporter/pkg/results"
	"github.com/rs/zerolog"
)

// DefaultComments is attached to every status update unless overridden.
const DefaultComments = "Status changed by qatouch-reporter."

// Config holds the reporter configuration.
type Config struct {
	Client qatouch.Config

	// Key of the test run whose results are updated (REQUIRED)
	TestRunKey string

	// Comment stored with the status change
	Comments string
}

// DefaultConfig returns a default configuration for the given account and run.
func DefaultConfig(creds qatouch.Credentials, testRunKey string) Config {
	return Config{
		Client:     qatouch.DefaultConfig(creds),
		TestRunKey: testRunKey,
		Comments:   DefaultComments,
	}
}

// Reporter is the session context of one test run report.
type Reporter struct {
	client   *qatouch.Client
	results  *results.Aggregator
	runKey   string
	comments string
	logger   zerolog.Logger
}

// New validates the configuration and creates a reporter. Missing settings
// fail with qatouch.ErrConfiguration before any network call.
func New(cfg Config) (*Reporter, error) {
	if err := cfg.Client.Credentials.Validate(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.TestRunKey) == "" {
		return nil, fmt.Errorf("%w: test run key is required", qatouch.ErrConfiguration)
	}

	if cfg.Comments == "" {
		cfg.Comments = DefaultComments
	}

	client, err := qatouch.New(cfg.Client)
	if err != nil {
		return nil, err
	}

	return &Reporter{
		client:   client,
		results:  results.NewAggregator(),
		runKey:   cfg.TestRunKey,
		comments: cfg.Comments,
		logger:   logging.NewLogger(logging.ComponentReporter),
	}, nil
}

// Record stores the outcome ("passed", "skipped" or "failed") of one case.
// Results recorded after FlushAll succeeded fail with results.ErrFlushed.
func (r *Reporter) Record(caseID int, outcome string) error {
	return r.results.Record(caseID, outcome)
}

// FlushAll sends every recorded result in one bulk update. Calling it again
// after a successful flush does nothing.
func (r *Reporter) FlushAll(ctx context.Context) error {
	if r.results.Flushed() {
		return nil
	}

	n := r.results.Len()
	if err := r.results.Flush(ctx, r.client, r.runKey, r.comments); err != nil {
		return err
	}

	r.logger.Info().
		Str("testrun", r.runKey).
		Int("results", n).
		Msg("Test run results reported")
	return nil
}

// Results returns the recorded results in recording order.
func (r *Reporter) Results() []qatouch.ResultEntry {
	return r.results.Batch()
}

// TestRunKey returns the key of the reported test run.
func (r *Reporter) TestRunKey() string {
	return r.runKey
}

// Client returns the underlying QA Touch client.
func (r *Reporter) Client() *qatouch.Client {
	return r.client
}

// Close releases the client's connections.
func (r *Reporter) Close() error {
	return r.client.Close()
}
