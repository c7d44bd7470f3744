// Package adapter turns `go test -json` output into QA Touch results.
//
// A test is linked to a QA Touch case by a TR<id> token in the last segment
// of its name:
//
//	func TestLogin_TR12(t *testing.T)           // case 12
//	t.Run("TR7", func(t *testing.T) { ... })    // case 7
//
// Tests without a token are ignored. Tests that start but never report an
// end event, for example because the test binary panicked, are recorded as
// failed.
package adapter

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/Sternrassler/qatouch-reporter/pkg/logging"
	"github.com/rs/zerolog"
	"gotest.tools/gotestsum/testjson"
)

// DefaultMarker matches a TR<id> token delimited by underscores or the
// ends of the name segment.
var DefaultMarker = regexp.MustCompile(`(?:^|_)TR(\d+)(?:_|$)`)

// badEventPrefix is prepended by testjson to "FAIL ..." summary lines that
// go test writes between JSON events.
const badEventPrefix = "bad output from test2json: "

// Recorder receives the outcome of a marked test. *reporter.Reporter and
// *results.Aggregator implement it.
type Recorder interface {
	Record(caseID int, outcome string) error
}

// Config holds adapter configuration.
type Config struct {
	// Marker extracts the case id from a test name segment. Its first
	// capture group must be the numeric id. Default: DefaultMarker.
	Marker *regexp.Regexp

	// Tee receives every input line unchanged (optional).
	Tee io.Writer
}

// Summary counts what Run saw.
type Summary struct {
	Lines    int
	Tests    int
	Recorded int
	Unmarked int
	NonJSON  int
	Failed   int
}

// GoTestAdapter feeds test outcomes from a test2json stream to a Recorder.
type GoTestAdapter struct {
	recorder Recorder
	marker   *regexp.Regexp
	tee      io.Writer
	logger   zerolog.Logger
}

// NewGoTestAdapter creates an adapter that records into recorder.
func NewGoTestAdapter(recorder Recorder, cfg Config) *GoTestAdapter {
	if cfg.Marker == nil {
		cfg.Marker = DefaultMarker
	}

	return &GoTestAdapter{
		recorder: recorder,
		marker:   cfg.Marker,
		tee:      cfg.Tee,
		logger:   logging.NewLogger(logging.ComponentAdapter),
	}
}

// CaseID returns the case id carried by the last segment of a test name.
func (a *GoTestAdapter) CaseID(testName string) (int, bool) {
	name := testjson.TestName(testName)
	segment := name.Name()
	if name.IsSubTest() {
		segment = segment[len(name.Parent())+1:]
	}

	m := a.marker.FindStringSubmatch(segment)
	if len(m) < 2 {
		return 0, false
	}

	id, err := strconv.Atoi(m[1])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Run reads events until EOF and records the final outcome of every marked
// test. Lines that are not JSON events, such as build output, are skipped.
func (a *GoTestAdapter) Run(ctx context.Context, r io.Reader) (Summary, error) {
	h := &eventHandler{ctx: ctx, adapter: a}

	exec, err := testjson.ScanTestOutput(testjson.ScanConfig{
		Stdout:                   r,
		Handler:                  h,
		IgnoreNonJSONOutputLines: true,
	})
	if exec != nil {
		h.sum.Tests = exec.Total()
	}
	if h.err != nil {
		return h.sum, h.err
	}
	if err != nil {
		return h.sum, fmt.Errorf("read test events: %w", err)
	}
	return h.sum, nil
}

// eventHandler implements testjson.EventHandler for one Run. ScanTestOutput
// calls it from a single goroutine because no stderr reader is given.
type eventHandler struct {
	ctx     context.Context
	adapter *GoTestAdapter
	sum     Summary

	// err stops the scan. Events synthesized after a stop are ignored.
	err error
}

func (h *eventHandler) Event(ev testjson.TestEvent, _ *testjson.Execution) error {
	if h.err != nil {
		return h.err
	}
	if err := h.ctx.Err(); err != nil {
		h.err = err
		return err
	}

	// Events for tests that never finished carry no raw line.
	if raw := ev.Bytes(); raw != nil {
		h.sum.Lines++
		if err := h.tee(string(raw)); err != nil {
			return err
		}
	}

	if ev.Action == "" {
		h.sum.NonJSON++
		return nil
	}
	if ev.PackageEvent() {
		return nil
	}

	outcome, ok := outcomes[ev.Action]
	if !ok {
		return nil
	}
	if ev.Action == testjson.ActionFail {
		h.sum.Failed++
	}

	caseID, ok := h.adapter.CaseID(ev.Test)
	if !ok {
		h.sum.Unmarked++
		return nil
	}

	if err := h.adapter.recorder.Record(caseID, outcome); err != nil {
		h.err = fmt.Errorf("record %s: %w", ev.Test, err)
		return h.err
	}
	h.sum.Recorded++

	h.adapter.logger.Debug().
		Str("package", ev.Package).
		Str("test", ev.Test).
		Int("case", caseID).
		Str("outcome", outcome).
		Bool("finished", ev.Bytes() != nil).
		Msg("Test outcome recorded")
	return nil
}

// Err receives lines that are not JSON events.
func (h *eventHandler) Err(text string) error {
	if h.err != nil {
		return h.err
	}
	h.sum.Lines++
	h.sum.NonJSON++
	return h.tee(strings.TrimPrefix(text, badEventPrefix))
}

func (h *eventHandler) tee(line string) error {
	if h.adapter.tee == nil {
		return nil
	}
	if _, err := fmt.Fprintf(h.adapter.tee, "%s\n", line); err != nil {
		h.err = fmt.Errorf("tee output: %w", err)
		return h.err
	}
	return nil
}

var outcomes = map[testjson.Action]string{
	testjson.ActionPass: "passed",
	testjson.ActionFail: "failed",
	testjson.ActionSkip: "skipped",
}
