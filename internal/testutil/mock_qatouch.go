// Package testutil provides testing utilities for the QA Touch client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines a canned response for a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// CreatedRun records one POST /testRun/specific call.
type CreatedRun struct {
	Query   url.Values
	CaseIDs []string
}

// MockQATouch is a configurable mock QA Touch API server. By default it
// serves a paginated automation case listing, creates test runs and accepts
// bulk status updates.
type MockQATouch struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	domain string
	token  string

	cases      []string
	perPage    int
	pageDelays map[int]time.Duration
	nextRunID  int

	// Tracking
	RequestCount      int
	PageRequests      []int
	LastRequestHeader http.Header
	StatusUpdates     []url.Values
	CreatedRuns       []CreatedRun
}

// NewMockQATouch creates a new mock QA Touch server.
func NewMockQATouch() *MockQATouch {
	mock := &MockQATouch{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		perPage:    20,
		pageDelays: make(map[int]time.Duration),
		nextRunID:  1000,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		domain, token := mock.domain, mock.token
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if token != "" && (r.Header.Get("api-token") != token || r.Header.Get("domain") != domain) {
			writeJSON(w, http.StatusUnauthorized, `{"error":"Unauthorized"}`)
			return
		}

		if exists {
			handler(w, r)
			return
		}

		switch {
		case strings.HasPrefix(r.URL.Path, "/getAllTestCases/"):
			mock.listHandler(w, r)
		case r.URL.Path == "/testRun/specific" && r.Method == http.MethodPost:
			mock.createRunHandler(w, r)
		case r.URL.Path == "/testRunResults/status/multiple" && r.Method == http.MethodPatch:
			mock.statusHandler(w, r)
		default:
			writeJSON(w, http.StatusNotFound, `{"error":"Not Found"}`)
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockQATouch) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockQATouch) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockQATouch) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PageRequests = nil
	m.LastRequestHeader = nil
	m.StatusUpdates = nil
	m.CreatedRuns = nil
}

// RequireCredentials makes the server answer 401 unless both the domain and
// api-token headers match.
func (m *MockQATouch) RequireCredentials(domain, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domain = domain
	m.token = token
}

// SetCases sets the automation case keys served by the listing endpoint.
func (m *MockQATouch) SetCases(keys []string, perPage int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases = append([]string(nil), keys...)
	if perPage > 0 {
		m.perPage = perPage
	}
}

// SetPageDelay delays the response for one listing page.
func (m *MockQATouch) SetPageDelay(page int, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageDelays[page] = d
}

// SetHandler sets a custom handler for a specific path.
func (m *MockQATouch) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockQATouch) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockQATouch) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPageRequests returns the listing pages requested, in arrival order.
func (m *MockQATouch) GetPageRequests() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.PageRequests...)
}

// GetStatusUpdates returns the query of every bulk status update received.
func (m *MockQATouch) GetStatusUpdates() []url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]url.Values(nil), m.StatusUpdates...)
}

// GetCreatedRuns returns every test run creation received.
func (m *MockQATouch) GetCreatedRuns() []CreatedRun {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]CreatedRun(nil), m.CreatedRuns...)
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockQATouch) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

// listHandler serves one page of the case listing.
func (m *MockQATouch) listHandler(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	m.mu.Lock()
	m.PageRequests = append(m.PageRequests, page)
	cases, perPage, delay := m.cases, m.perPage, m.pageDelays[page]
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	lastPage := (len(cases) + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}

	start := (page - 1) * perPage
	end := start + perPage
	if start > len(cases) {
		start = len(cases)
	}
	if end > len(cases) {
		end = len(cases)
	}

	type caseItem struct {
		CaseKey string `json:"case_key"`
	}
	items := make([]caseItem, 0, end-start)
	for _, key := range cases[start:end] {
		items = append(items, caseItem{CaseKey: key})
	}

	body := map[string]any{"data": items}
	if len(items) == 0 {
		body["msg"] = "No records found"
	} else {
		last := *r.URL
		q := last.Query()
		q.Set("page", strconv.Itoa(lastPage))
		last.RawQuery = q.Encode()
		body["link"] = map[string]string{"last": m.server.URL + last.RequestURI()}
	}

	b, _ := json.Marshal(body)
	writeJSON(w, http.StatusOK, string(b))
}

// createRunHandler records a test run creation and returns a new run id.
func (m *MockQATouch) createRunHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, `{"error":"bad form"}`)
		return
	}

	m.mu.Lock()
	m.nextRunID++
	id := m.nextRunID
	m.CreatedRuns = append(m.CreatedRuns, CreatedRun{
		Query:   r.URL.Query(),
		CaseIDs: r.PostForm["caseId[]"],
	})
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, fmt.Sprintf(`{"success":true,"data":[{"testrun_id":"TR%d"}]}`, id))
}

// statusHandler records a bulk status update.
func (m *MockQATouch) statusHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.StatusUpdates = append(m.StatusUpdates, r.URL.Query())
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, `{"success":true,"msg":"Test run results updated"}`)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// NewJSONResponse creates a 200 OK response with the given JSON body.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewServiceFailureResponse creates a 200 response whose body reports failure.
func NewServiceFailureResponse(msg string) MockResponse {
	b, _ := json.Marshal(map[string]any{"success": false, "error_msg": msg})
	return NewJSONResponse(string(b))
}
