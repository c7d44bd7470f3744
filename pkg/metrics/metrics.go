// Package metrics provides the Prometheus registry and HTTP endpoint for the
// QA Touch reporter. All metrics are defined in their respective packages
// (qatouch, ratelimit, pagination, cache, results) via promauto.
//
// This package also documents every available metric.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registry used by the reporter.
// All metrics are automatically registered via promauto in their respective packages.
// The /metrics handler registers its own request counters here too.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source the /metrics endpoint exposes.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// NewMux returns a mux serving /metrics and /health.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		Registry,
		promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}),
	))
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// Server exposes metrics over HTTP for the lifetime of a command.
type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan error
}

// Serve starts serving metrics on addr (e.g. ":9090") in the background.
func Serve(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           NewMux(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		done:     make(chan error, 1),
	}

	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}

// Metrics Documentation
//
// Request Metrics (pkg/qatouch):
//   - qatouch_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - qatouch_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint, including permit waits
//   - qatouch_errors_total{class} (Counter): Errors by class (client, server, network, service, malformed)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - qatouch_rate_limit_permits_total (Counter): Permits granted
//   - qatouch_rate_limit_waits_total (Counter): Permit requests that had to wait
//   - qatouch_rate_limit_wait_seconds (Histogram): Time spent waiting for a permit
//
// Pagination Metrics (pkg/pagination):
//   - qatouch_pages_fetched_total{result} (Counter): Listing pages fetched (ok, error)
//
// Cache Metrics (pkg/cache):
//   - qatouch_cache_hits_total (Counter): Case listing cache hits
//   - qatouch_cache_misses_total (Counter): Case listing cache misses
//   - qatouch_cache_errors_total{operation} (Counter): Cache operation errors
//
// Result Metrics (pkg/results):
//   - qatouch_results_recorded_total{status} (Counter): Results recorded by status
//   - qatouch_result_flushes_total{result} (Counter): Bulk flushes (ok, error)
//
// Example Prometheus Queries:
//
//   # Share of requests that waited for a permit
//   rate(qatouch_rate_limit_waits_total[5m]) / rate(qatouch_rate_limit_permits_total[5m])
//
//   # Request Error Rate
//   rate(qatouch_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(qatouch_request_duration_seconds_bucket[5m]))
//
//   # Cache Hit Rate
//   sum(rate(qatouch_cache_hits_total[5m])) /
//   (sum(rate(qatouch_cache_hits_total[5m])) + sum(rate(qatouch_cache_misses_total[5m])))
