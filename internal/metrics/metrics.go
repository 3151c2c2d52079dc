// Package metrics exposes Prometheus instrumentation for the HTTP API, the
// entropy pool, and the extraction/conditioning/validation pipeline.
package metrics

import (
	"context"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

var defaultRegistry = prometheus.DefaultRegisterer

// Config holds metrics configuration.
type Config struct {
	EnableSourceLabel bool
}

// Metrics holds all application metrics.
type Metrics struct {
	config Config

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestBytes    *prometheus.CounterVec

	poolBlocksAdded     *prometheus.CounterVec
	poolBlocksTaken     *prometheus.CounterVec
	poolBytesServed     *prometheus.CounterVec
	poolOperationErrors *prometheus.CounterVec

	extractionDuration   *prometheus.HistogramVec
	conditioningDuration prometheus.Histogram
	validationDuration   prometheus.Histogram
	validationPass       prometheus.Counter
	validationReject     prometheus.Counter

	refillCyclesTotal prometheus.Counter

	goroutines       prometheus.Gauge
	memoryAllocBytes prometheus.Gauge
	memorySysBytes   prometheus.Gauge

	hardwareAccelerationEnabled *prometheus.GaugeVec
}

// NewMetrics creates a new metrics instance registered against the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithConfig(Config{EnableSourceLabel: true})
}

// NewMetricsWithConfig creates a new metrics instance with the provided
// configuration.
func NewMetricsWithConfig(cfg Config) *Metrics {
	return newMetricsWithRegistry(defaultRegistry, cfg)
}

// NewMetricsWithRegistry creates a new metrics instance with a custom
// registry, primarily useful in tests to avoid duplicate registration.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetricsWithRegistry(reg, Config{EnableSourceLabel: true})
}

func newMetricsWithRegistry(reg prometheus.Registerer, cfg Config) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		config: cfg,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		httpRequestBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_response_bytes_total",
				Help: "Total bytes of entropy served over HTTP",
			},
			[]string{"method", "path"},
		),
		poolBlocksAdded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pool_blocks_added_total",
				Help: "Total number of entropy blocks admitted to the pool",
			},
			[]string{"source"},
		),
		poolBlocksTaken: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pool_blocks_taken_total",
				Help: "Total number of successful Take requests served from the pool",
			},
			[]string{"source"},
		),
		poolBytesServed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pool_bytes_served_total",
				Help: "Total number of entropy bytes dispensed",
			},
			[]string{"source"},
		),
		poolOperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pool_operation_errors_total",
				Help: "Total number of pool operation errors",
			},
			[]string{"operation", "error_type"},
		),
		extractionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extraction_duration_seconds",
				Help:    "Noise extraction duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		conditioningDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conditioning_duration_seconds",
				Help:    "Conditioner whitening duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),
		validationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "validation_duration_seconds",
				Help:    "Statistical validation duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),
		validationPass: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "validation_pass_total",
				Help: "Total number of blocks that passed statistical validation",
			},
		),
		validationReject: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "validation_reject_total",
				Help: "Total number of blocks rejected by statistical validation",
			},
		),
		refillCyclesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "refill_cycles_total",
				Help: "Total number of refill loop iterations",
			},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_sys_bytes",
				Help: "Total bytes of memory obtained from OS",
			},
		),
		hardwareAccelerationEnabled: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hardware_acceleration_enabled",
				Help: "Hash acceleration status (1=enabled, 0=disabled)",
			},
			[]string{"type"},
		),
	}
}

// SetHardwareAccelerationStatus sets the hash-acceleration status metric.
func (m *Metrics) SetHardwareAccelerationStatus(accelType string, enabled bool) {
	val := 0.0
	if enabled {
		val = 1.0
	}
	m.hardwareAccelerationEnabled.WithLabelValues(accelType).Set(val)
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, bytes int64) {
	label := sanitizePathLabel(path)
	labels := prometheus.Labels{"method": method, "path": label, "status": http.StatusText(status)}

	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.httpRequestsTotal.With(labels).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.httpRequestsTotal.With(labels).Inc()
		}
		if observer, ok := m.httpRequestDuration.With(labels).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.httpRequestDuration.With(labels).Observe(duration.Seconds())
		}
	} else {
		m.httpRequestsTotal.With(labels).Inc()
		m.httpRequestDuration.With(labels).Observe(duration.Seconds())
	}

	m.httpRequestBytes.WithLabelValues(method, label).Add(float64(bytes))
}

// sanitizePathLabel reduces high-cardinality paths to stable labels, e.g.
// "/random/4096" => "/random/*".
func sanitizePathLabel(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segs) <= 1 {
		return "/" + segs[0]
	}
	return "/" + segs[0] + "/*"
}

func (m *Metrics) sourceLabel(source string) string {
	if !m.config.EnableSourceLabel {
		return "*"
	}
	return source
}

// RecordPoolAdd records an entropy block admitted to the pool.
func (m *Metrics) RecordPoolAdd(source string) {
	m.poolBlocksAdded.WithLabelValues(m.sourceLabel(source)).Inc()
}

// RecordPoolTake records bytes dispensed from the pool.
func (m *Metrics) RecordPoolTake(ctx context.Context, source string, bytesServed int) {
	label := m.sourceLabel(source)
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.poolBlocksTaken.WithLabelValues(label).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.poolBlocksTaken.WithLabelValues(label).Inc()
		}
	} else {
		m.poolBlocksTaken.WithLabelValues(label).Inc()
	}
	m.poolBytesServed.WithLabelValues(label).Add(float64(bytesServed))
}

// RecordPoolError records a pool operation error.
func (m *Metrics) RecordPoolError(operation, errorType string) {
	m.poolOperationErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordExtraction records one noise-extraction call's duration.
func (m *Metrics) RecordExtraction(source string, duration time.Duration) {
	m.extractionDuration.WithLabelValues(m.sourceLabel(source)).Observe(duration.Seconds())
}

// RecordConditioning records one conditioning call's duration.
func (m *Metrics) RecordConditioning(duration time.Duration) {
	m.conditioningDuration.Observe(duration.Seconds())
}

// RecordValidation records one validation call's duration and outcome.
func (m *Metrics) RecordValidation(duration time.Duration, passed bool) {
	m.validationDuration.Observe(duration.Seconds())
	if passed {
		m.validationPass.Inc()
	} else {
		m.validationReject.Inc()
	}
}

// RecordRefillCycle records one completed refill loop iteration.
func (m *Metrics) RecordRefillCycle() {
	m.refillCyclesTotal.Inc()
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// StartSystemMetricsCollector starts a goroutine that periodically updates
// system metrics.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// getExemplar extracts a trace ID from context and returns Prometheus
// Labels for exemplar attachment.
func getExemplar(ctx context.Context) prometheus.Labels {
	if ctx == nil {
		return nil
	}
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if spanContext.IsValid() {
		return prometheus.Labels{"trace_id": spanContext.TraceID().String()}
	}
	return nil
}
