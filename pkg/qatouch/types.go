package qatouch

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
)

// flexString decodes a JSON string, number or other value into its text form.
// QA Touch returns some identifiers as strings on one endpoint and numbers on
// another.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		*f = flexString(b)
	}
	return nil
}

// listCasesResponse is one page of GET /getAllTestCases.
type listCasesResponse struct {
	Data []struct {
		CaseKey flexString `json:"case_key"`
	} `json:"data"`
	Link struct {
		Last string `json:"last"`
	} `json:"link"`
	Msg flexString `json:"msg"`
}

// createRunResponse is the body of POST /testRun/specific.
type createRunResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		TestRunID flexString `json:"testrun_id"`
	} `json:"data"`
	ErrorMsg flexString `json:"error_msg"`
	Msg      flexString `json:"msg"`
}

// statusResponse is the body of PATCH /testRunResults/status/multiple.
type statusResponse struct {
	Success  bool       `json:"success"`
	Msg      flexString `json:"msg"`
	ErrorMsg flexString `json:"error_msg"`
}

var lastPagePattern = regexp.MustCompile(`[?&]page=(\d+)`)

// maxPages bounds the page count accepted from a listing. Page slots and
// workers are sized from it, so a larger value is treated as malformed.
const maxPages = 10000

// parseLastPage extracts the page number from a "link.last" URL. An empty
// link means the listing has a single page.
func parseLastPage(link string) (int, bool) {
	if link == "" {
		return 1, true
	}
	m := lastPagePattern.FindStringSubmatch(link)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || n > maxPages {
		return 0, false
	}
	return n, true
}

// firstNonEmpty returns the first non-empty message, or fallback.
func firstNonEmpty(fallback string, msgs ...flexString) string {
	for _, m := range msgs {
		if m != "" {
			return string(m)
		}
	}
	return fallback
}
