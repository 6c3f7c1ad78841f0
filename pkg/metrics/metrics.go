// Package metrics exposes the Prometheus registry used by the extractor.
// All metrics are defined in their respective packages (client, retry,
// extract, ratelimit, cache, sink) to keep those packages self-contained.
//
// The extractor is a batch job, so instead of serving /metrics it dumps the
// registry in node-exporter textfile format at the end of a run.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the extractor.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads the metrics registered through Registry.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes every gathered metric to path in the text exposition
// format, creating the parent directory. The file is replaced atomically.
func WriteTextfile(path string) error {
	return WriteTextfileFrom(Gatherer, path)
}

// WriteTextfileFrom is WriteTextfile for an explicit gatherer.
func WriteTextfileFrom(g prometheus.Gatherer, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - callrail_requests_total{endpoint, status} (Counter): Requests by endpoint path and HTTP status
//   - callrail_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint path
//   - callrail_errors_total{kind} (Counter): Errors by kind (unauthenticated, rate_limited, server_failure, ...)
//   - callrail_circuit_breaker_state (Gauge): 0=closed, 1=half-open, 2=open
//
// Retry Metrics (pkg/retry):
//   - callrail_retries_total{kind} (Counter): Retry attempts by error kind
//   - callrail_retry_backoff_seconds{kind} (Histogram): Backoff duration by error kind
//   - callrail_retry_exhausted_total{kind} (Counter): Operations that used every attempt
//
// Extraction Metrics (pkg/extract):
//   - callrail_batches_total{endpoint, outcome} (Counter): Fetch windows by outcome (ok, failed)
//   - callrail_records_total{endpoint} (Counter): Records extracted per endpoint
//
// Budget Metrics (pkg/ratelimit):
//   - callrail_budget_used{window} (Gauge): Requests used in the hour/day window
//   - callrail_budget_blocks_total (Counter): Requests refused because a window was exhausted
//   - callrail_budget_throttles_total (Counter): Requests made close to exhaustion
//
// Scope Cache Metrics (pkg/cache):
//   - callrail_scope_cache_hits_total{kind} (Counter): Cached account/company ids reused
//   - callrail_scope_cache_misses_total{kind} (Counter): Ids looked up through the API
//   - callrail_scope_cache_errors_total{operation} (Counter): Redis errors by operation
//
// Output Metrics (pkg/sink):
//   - callrail_sink_files_total{format} (Counter): Files written by format
//
// Example Prometheus Queries:
//
//   # Batch failure ratio per endpoint
//   sum by (endpoint) (callrail_batches_total{outcome="failed"}) /
//   sum by (endpoint) (callrail_batches_total)
//
//   # Hourly budget headroom
//   1000 - callrail_budget_used{window="hour"}
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(callrail_request_duration_seconds_bucket[5m]))
