package qatouch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is a QA Touch test run result code.
type Status int

// Result codes understood by QA Touch. Skipped tests are reported as blocked.
const (
	StatusPassed  Status = 1
	StatusBlocked Status = 3
	StatusFailed  Status = 5
)

// ParseStatus maps a test outcome ("passed", "skipped", "failed") to its
// result code. Matching ignores case and surrounding space.
func ParseStatus(text string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "passed":
		return StatusPassed, nil
	case "skipped":
		return StatusBlocked, nil
	case "failed":
		return StatusFailed, nil
	default:
		return 0, fmt.Errorf("%w: %q (want passed, skipped or failed)", ErrInvalidStatus, text)
	}
}

// Valid reports whether s is one of the known result codes.
func (s Status) Valid() bool {
	switch s {
	case StatusPassed, StatusBlocked, StatusFailed:
		return true
	}
	return false
}

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusBlocked:
		return "blocked"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ResultEntry is one case result in a bulk status update.
type ResultEntry struct {
	Case   int    `json:"case"`
	Status Status `json:"status"`
}

// Validate checks the case id and status code.
func (r ResultEntry) Validate() error {
	if r.Case <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCaseID, r.Case)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: case %d has code %d", ErrInvalidStatus, r.Case, int(r.Status))
	}
	return nil
}

// EncodeResults renders entries as the compact JSON array carried in the
// "result" query parameter. An empty batch encodes as [].
func EncodeResults(entries []ResultEntry) (string, error) {
	if entries == nil {
		entries = []ResultEntry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}
	return string(b), nil
}
