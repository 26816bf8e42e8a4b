// Package metrics provides Prometheus metrics for the host and the relay.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Host request metrics
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostyoself_requests_total",
			Help: "Total relay requests answered by the host",
		},
		[]string{"type", "status"},
	)

	bytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hostyoself_bytes_served_total",
			Help: "Total file bytes sent to the relay",
		},
	)

	// Connection metrics
	connectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostyoself_connection_state",
			Help: "Relay connection state (0 disconnected, 1 connecting, 2 open, 3 closed)",
		},
	)

	reconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hostyoself_reconnects_total",
			Help: "Total relay dial attempts after a close",
		},
	)

	catalogEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostyoself_catalog_entries",
			Help: "Number of files in the catalog",
		},
	)

	// Source metrics
	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hostyoself_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	s3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostyoself_s3_operations_total",
			Help: "Total S3 operations",
		},
		[]string{"operation", "status"},
	)

	// Relay HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostyoself_relay_http_requests_total",
			Help: "Total number of HTTP requests handled by the relay",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hostyoself_relay_http_request_duration_seconds",
			Help:    "Relay HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	relayPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostyoself_relay_peers",
			Help: "Number of connected hosts",
		},
	)

	relayFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostyoself_relay_fetches_total",
			Help: "Total file fetches forwarded to hosts",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records a relay request answered by the host.
func RecordRequest(msgType string, status int) {
	requestsTotal.WithLabelValues(msgType, strconv.Itoa(status)).Inc()
}

// RecordBytesServed adds to the served bytes counter.
func RecordBytesServed(n int64) {
	bytesServed.Add(float64(n))
}

// SetConnectionState sets the current connection state.
func SetConnectionState(state int) {
	connectionState.Set(float64(state))
}

// RecordReconnect records a redial.
func RecordReconnect() {
	reconnectsTotal.Inc()
}

// SetCatalogEntries sets the number of catalog entries.
func SetCatalogEntries(n int) {
	catalogEntries.Set(float64(n))
}

// RecordS3Operation records an S3 operation.
func RecordS3Operation(operation string, duration time.Duration, success bool) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	s3OperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordHTTPRequest records a relay HTTP request. Paths are left out of the
// labels since every domain and file would create a series.
func RecordHTTPRequest(method string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// SetRelayPeers sets the number of connected hosts.
func SetRelayPeers(n int) {
	relayPeers.Set(float64(n))
}

// RecordRelayFetch records the outcome of a forwarded fetch.
func RecordRelayFetch(result string) {
	relayFetchesTotal.WithLabelValues(result).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
// Websocket upgrades pass through untouched so the handler can hijack.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, rw.statusCode, time.Since(start))
	})
}
