// Package qatouch provides the QA Touch HTTP client with rate limiting,
// paginated listing fetches and bulk test run updates.
package qatouch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/qatouch-reporter/pkg/cache"
	"github.com/Sternrassler/qatouch-reporter/pkg/logging"
	"github.com/Sternrassler/qatouch-reporter/pkg/pagination"
	"github.com/Sternrassler/qatouch-reporter/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Version is reported in the default User-Agent. Set at build time.
var Version = "0.1.0"

// DefaultBaseURL is the QA Touch REST API root.
const DefaultBaseURL = "https://api.qatouch.com/api/v1"

// Endpoint names used in errors and metric labels.
const (
	EndpointListCases     = "getAllTestCases"
	EndpointCreateRun     = "testRun/specific"
	EndpointUpdateResults = "testRunResults/status/multiple"
)

// Prometheus metrics for QA Touch client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qatouch_requests_total",
		Help: "Total QA Touch requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qatouch_request_duration_seconds",
		Help:    "QA Touch request duration in seconds by endpoint, including rate limit waits",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qatouch_errors_total",
		Help: "Total QA Touch errors by class",
	}, []string{"class"})
)

// Credentials identify a QA Touch account and project.
type Credentials struct {
	Subdomain  string
	APIToken   string
	ProjectKey string
}

// Validate reports the first missing credential.
func (c Credentials) Validate() error {
	switch {
	case strings.TrimSpace(c.Subdomain) == "":
		return fmt.Errorf("%w: subdomain is required", ErrConfiguration)
	case strings.TrimSpace(c.APIToken) == "":
		return fmt.Errorf("%w: api token is required", ErrConfiguration)
	case strings.TrimSpace(c.ProjectKey) == "":
		return fmt.Errorf("%w: project key is required", ErrConfiguration)
	}
	return nil
}

// TestRunParams describes a test run to create.
type TestRunParams struct {
	AssignTo     string
	MilestoneKey string
	Name         string
}

// Config holds the client configuration.
type Config struct {
	Credentials Credentials

	// API root, without a trailing slash
	BaseURL   string
	UserAgent string

	// Rate Limiting: at most RatePermits requests in any RateWindow
	RatePermits int
	RateWindow  time.Duration

	// Concurrency
	MaxConcurrency int // Max pages in flight during a listing fetch

	// Per-request timeout
	Timeout time.Duration

	// Optional Redis for a shared rate window and the case-key cache
	Redis    *redis.Client
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(creds Credentials) Config {
	return Config{
		Credentials:    creds,
		BaseURL:        DefaultBaseURL,
		UserAgent:      "qatouch-reporter/" + Version,
		RatePermits:    ratelimit.DefaultPermits,
		RateWindow:     ratelimit.DefaultWindow,
		MaxConcurrency: pagination.DefaultConfig().MaxConcurrency,
		Timeout:        30 * time.Second,
		CacheTTL:       cache.DefaultTTL,
	}
}

// Client is the QA Touch API client. It is safe for concurrent use; every
// request draws a permit from the same limiter.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	pages      *pagination.BatchFetcher
	cache      *cache.Manager
	config     Config
	baseURL    string
	logger     zerolog.Logger
}

// New creates a new QA Touch client. No network activity happens here.
func New(cfg Config, opts ...ratelimit.Option) (*Client, error) {
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}

	if cfg.RatePermits <= 0 {
		return nil, fmt.Errorf("%w: rate permits must be > 0 (got %d)", ErrConfiguration, cfg.RatePermits)
	}

	if cfg.RateWindow <= 0 {
		return nil, fmt.Errorf("%w: rate window must be > 0 (got %s)", ErrConfiguration, cfg.RateWindow)
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid base url %q", ErrConfiguration, cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = "qatouch-reporter/" + Version
	}

	logger := logging.NewLogger(logging.ComponentClient)

	var window ratelimit.Window
	if cfg.Redis != nil {
		window = ratelimit.NewRedisWindow(cfg.Redis, cfg.Credentials.Subdomain, cfg.RatePermits, cfg.RateWindow)
	} else {
		window = ratelimit.NewMemoryWindow(cfg.RatePermits, cfg.RateWindow)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxConcurrency > transport.MaxIdleConnsPerHost {
		transport.MaxIdleConnsPerHost = cfg.MaxConcurrency
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		limiter: ratelimit.NewLimiter(window, logger, opts...),
		config:  cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
	}
	c.pages = pagination.NewBatchFetcher(c, pagination.Config{MaxConcurrency: cfg.MaxConcurrency})

	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis, cfg.CacheTTL)
	}

	return c, nil
}

// do sends one rate-limited request and decodes a 200 JSON body into out.
func (c *Client) do(ctx context.Context, endpoint string, req *http.Request, out any) error {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if err := c.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("acquire rate permit: %w", err)
	}

	req.Header.Set("domain", c.config.Credentials.Subdomain)
	req.Header.Set("api-token", c.config.Credentials.APIToken)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing QA Touch request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return &RequestError{
			Endpoint: endpoint,
			Method:   req.Method,
			Class:    ErrorClassNetwork,
			Message:  "request failed",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Debug().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("QA Touch request error")
		return &RequestError{
			Endpoint:   endpoint,
			Method:     req.Method,
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return c.bodyError(endpoint, req.Method, ErrorClassMalformed, "decode response body", err)
	}
	return nil
}

// bodyError builds a RequestError for a 200 response that cannot be used.
func (c *Client) bodyError(endpoint, method string, class ErrorClass, msg string, err error) *RequestError {
	errorsTotal.WithLabelValues(string(class)).Inc()
	return &RequestError{
		Endpoint:   endpoint,
		Method:     method,
		StatusCode: http.StatusOK,
		Class:      class,
		Message:    msg,
		Err:        err,
	}
}

// FetchPage fetches one page of a case listing. lastPage is only parsed for
// page 1. It implements pagination.PageFetcher.
func (c *Client) FetchPage(ctx context.Context, listingURL string, pageNum int) ([]string, int, error) {
	u, err := url.Parse(listingURL)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: invalid listing url %q: %v", ErrConfiguration, listingURL, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(pageNum))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	var body listCasesResponse
	if err := c.do(ctx, EndpointListCases, req, &body); err != nil {
		return nil, 0, err
	}

	if len(body.Data) == 0 {
		return nil, 0, c.bodyError(EndpointListCases, req.Method, ErrorClassService,
			firstNonEmpty("response contains no data", body.Msg), nil)
	}

	keys := make([]string, 0, len(body.Data))
	for _, tc := range body.Data {
		keys = append(keys, string(tc.CaseKey))
	}

	lastPage := 0
	if pageNum == 1 {
		var ok bool
		lastPage, ok = parseLastPage(body.Link.Last)
		if !ok {
			return nil, 0, c.bodyError(EndpointListCases, req.Method, ErrorClassMalformed,
				fmt.Sprintf("no page number in last link %q", body.Link.Last), nil)
		}
	}

	return keys, lastPage, nil
}

// FetchAllPages returns every case key of a paginated listing, in page order.
// Pages after the first are fetched concurrently; any failing page fails the
// whole call.
func (c *Client) FetchAllPages(ctx context.Context, listingURL string) ([]string, error) {
	return c.pages.FetchAllPages(ctx, listingURL)
}

// AutomationCasesURL returns the listing URL of the project's automation cases.
func (c *Client) AutomationCasesURL() string {
	return fmt.Sprintf("%s/%s/%s/?mode=Automation",
		c.baseURL, EndpointListCases, url.PathEscape(c.config.Credentials.ProjectKey))
}

// ListAutomationCaseKeys returns the keys of all automation cases in the
// project. With Redis configured, results are cached for Config.CacheTTL.
func (c *Client) ListAutomationCaseKeys(ctx context.Context) ([]string, error) {
	listingURL := c.AutomationCasesURL()

	var key cache.CacheKey
	if c.cache != nil {
		var err error
		key, err = cache.KeyForURL(c.config.Credentials.Subdomain, listingURL)
		if err != nil {
			return nil, fmt.Errorf("cache key: %w", err)
		}

		keys, err := c.cache.Get(ctx, key)
		if err == nil {
			c.logger.Debug().Str("key", key.String()).Int("cases", len(keys)).Msg("Case keys served from cache")
			return keys, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
		}
	}

	keys, err := c.FetchAllPages(ctx, listingURL)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, keys); err != nil {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache case keys")
		}
	}

	return keys, nil
}

// CreateBulk creates a test run containing the given cases and returns its key.
func (c *Client) CreateBulk(ctx context.Context, params TestRunParams, caseKeys []string) (string, error) {
	q := url.Values{}
	q.Set("projectKey", c.config.Credentials.ProjectKey)
	q.Set("assignTo", params.AssignTo)
	q.Set("milestoneKey", params.MilestoneKey)
	q.Set("testRun", params.Name)

	form := url.Values{"caseId[]": caseKeys}

	endpointURL := fmt.Sprintf("%s/%s?%s", c.baseURL, EndpointCreateRun, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var body createRunResponse
	if err := c.do(ctx, EndpointCreateRun, req, &body); err != nil {
		return "", err
	}

	if !body.Success {
		return "", c.bodyError(EndpointCreateRun, req.Method, ErrorClassService,
			firstNonEmpty("success flag is false", body.ErrorMsg, body.Msg), nil)
	}

	if len(body.Data) == 0 || body.Data[0].TestRunID == "" {
		return "", c.bodyError(EndpointCreateRun, req.Method, ErrorClassMalformed, "response has no testrun_id", nil)
	}

	runKey := string(body.Data[0].TestRunID)
	c.logger.Debug().
		Str("testrun", runKey).
		Int("cases", len(caseKeys)).
		Msg("Test run created")

	return runKey, nil
}

// UpdateBulkStatus sets the result of every listed case in the test run in a
// single request. Entries keep their order in the encoded payload.
func (c *Client) UpdateBulkStatus(ctx context.Context, results []ResultEntry, runKey, comments string) error {
	if strings.TrimSpace(runKey) == "" {
		return fmt.Errorf("%w: test run key is required", ErrConfiguration)
	}
	for _, r := range results {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	payload, err := EncodeResults(results)
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("project", c.config.Credentials.ProjectKey)
	q.Set("test_run", runKey)
	q.Set("comments", comments)
	q.Set("result", payload)

	endpointURL := fmt.Sprintf("%s/%s?%s", c.baseURL, EndpointUpdateResults, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpointURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	var body statusResponse
	if err := c.do(ctx, EndpointUpdateResults, req, &body); err != nil {
		return err
	}

	if !body.Success {
		return c.bodyError(EndpointUpdateResults, req.Method, ErrorClassService,
			firstNonEmpty("success flag is false", body.ErrorMsg, body.Msg), nil)
	}

	c.logger.Debug().
		Str("testrun", runKey).
		Int("results", len(results)).
		Str("msg", string(body.Msg)).
		Msg("Test run statuses updated")

	return nil
}

// Close releases pooled connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
