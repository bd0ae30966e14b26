package observability

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsClient is the metrics recording interface shared by every component.
type MetricsClient interface {
	RecordCounter(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	RecordTimer(name string, duration time.Duration, labels map[string]string)

	// RecordCacheOperation records a cache get/set with its outcome.
	RecordCacheOperation(operation string, success bool, durationSeconds float64)
	// RecordOperation records a component operation with its outcome.
	RecordOperation(component string, operation string, success bool, durationSeconds float64, labels map[string]string)

	// StartTimer returns a stop function that records the elapsed time.
	StartTimer(name string, labels map[string]string) func()

	Close() error
}

// PrometheusMetricsClient implements MetricsClient on the Prometheus client.
type PrometheusMetricsClient struct {
	namespace string
	subsystem string

	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec

	mu sync.RWMutex
}

// NewPrometheusMetricsClient creates a metrics client. Namespace is the
// product, subsystem the service (embed, search, rerank, trajectory).
func NewPrometheusMetricsClient(namespace, subsystem string) *PrometheusMetricsClient {
	c := &PrometheusMetricsClient{
		namespace:  namespace,
		subsystem:  subsystem,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	c.registerDefaultMetrics()
	return c
}

// registerDefaultMetrics pre-registers the metrics every service emits so
// they appear with zero values before first use.
func (c *PrometheusMetricsClient) registerDefaultMetrics() {
	c.getOrCreateCounter("api_requests_total", "Total API requests", []string{"method", "endpoint", "status"})
	c.getOrCreateHistogram("api_request_duration_seconds", "API request duration", []string{"method", "endpoint"}, prometheus.DefBuckets)

	c.getOrCreateCounter("cache_operations_total", "Total cache operations", []string{"operation", "result"})
	c.getOrCreateHistogram("cache_operation_duration_seconds", "Cache operation duration", []string{"operation"}, prometheus.DefBuckets)

	c.getOrCreateCounter("operations_total", "Total component operations", []string{"component", "operation", "status"})
	c.getOrCreateHistogram("operation_duration_seconds", "Component operation duration", []string{"component", "operation"}, prometheus.DefBuckets)

	c.getOrCreateCounter("provider_failures_total", "Provider failures by reason", []string{"provider", "reason"})
	c.getOrCreateGauge("circuit_breaker_state", "Circuit breaker state (0=closed, 1=half-open, 2=open)", []string{"name"})

	c.getOrCreateHistogram("pipeline_stage_duration_seconds", "Search pipeline stage duration", []string{"stage"}, prometheus.DefBuckets)
	c.getOrCreateGauge("pipeline_stage_count", "Candidates surviving each pipeline stage", []string{"stage"})
	c.getOrCreateGauge("shadow_agreement_ratio", "Shadow-mode agreement between ML and rule-based trajectory", []string{"dimension"})

	c.getOrCreateGauge("health_check_status", "Health check status (1=healthy, 0=unhealthy)", []string{"component"})
}

func (c *PrometheusMetricsClient) fq(name string) string {
	return fmt.Sprintf("%s_%s_%s", c.namespace, c.subsystem, name)
}

func (c *PrometheusMetricsClient) getOrCreateCounter(name, help string, labelNames []string) *prometheus.CounterVec {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.counters[name]; ok {
		return v
	}
	v := promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      help,
	}, labelNames)
	c.counters[name] = v
	return v
}

func (c *PrometheusMetricsClient) getOrCreateGauge(name, help string, labelNames []string) *prometheus.GaugeVec {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.gauges[name]; ok {
		return v
	}
	v := promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      help,
	}, labelNames)
	c.gauges[name] = v
	return v
}

func (c *PrometheusMetricsClient) getOrCreateHistogram(name, help string, labelNames []string, buckets []float64) *prometheus.HistogramVec {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.histograms[name]; ok {
		return v
	}
	v := promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labelNames)
	c.histograms[name] = v
	return v
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (c *PrometheusMetricsClient) RecordCounter(name string, value float64, labels map[string]string) {
	c.getOrCreateCounter(name, fmt.Sprintf("Counter %s", name), labelNames(labels)).
		With(prometheus.Labels(labels)).Add(value)
}

func (c *PrometheusMetricsClient) RecordGauge(name string, value float64, labels map[string]string) {
	c.getOrCreateGauge(name, fmt.Sprintf("Gauge %s", name), labelNames(labels)).
		With(prometheus.Labels(labels)).Set(value)
}

func (c *PrometheusMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {
	c.getOrCreateHistogram(name, fmt.Sprintf("Histogram %s", name), labelNames(labels), prometheus.DefBuckets).
		With(prometheus.Labels(labels)).Observe(value)
}

func (c *PrometheusMetricsClient) RecordTimer(name string, duration time.Duration, labels map[string]string) {
	c.RecordHistogram(name, duration.Seconds(), labels)
}

func (c *PrometheusMetricsClient) RecordCacheOperation(operation string, success bool, durationSeconds float64) {
	result := "ok"
	if !success {
		result = "error"
	}
	c.RecordCounter("cache_operations_total", 1, map[string]string{"operation": operation, "result": result})
	c.RecordHistogram("cache_operation_duration_seconds", durationSeconds, map[string]string{"operation": operation})
}

func (c *PrometheusMetricsClient) RecordOperation(component, operation string, success bool, durationSeconds float64, labels map[string]string) {
	status := "success"
	if !success {
		status = "failure"
	}
	c.RecordCounter("operations_total", 1, map[string]string{"component": component, "operation": operation, "status": status})
	c.RecordHistogram("operation_duration_seconds", durationSeconds, map[string]string{"component": component, "operation": operation})
}

func (c *PrometheusMetricsClient) StartTimer(name string, labels map[string]string) func() {
	start := time.Now()
	return func() {
		c.RecordTimer(name, time.Since(start), labels)
	}
}

func (c *PrometheusMetricsClient) Close() error { return nil }

// NoopMetricsClient discards all metrics. Used in tests.
type NoopMetricsClient struct{}

func NewNoopMetricsClient() MetricsClient { return &NoopMetricsClient{} }

func (m *NoopMetricsClient) RecordCounter(name string, value float64, labels map[string]string)   {}
func (m *NoopMetricsClient) RecordGauge(name string, value float64, labels map[string]string)     {}
func (m *NoopMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {}
func (m *NoopMetricsClient) RecordTimer(name string, duration time.Duration, labels map[string]string) {
}
func (m *NoopMetricsClient) RecordCacheOperation(operation string, success bool, durationSeconds float64) {
}
func (m *NoopMetricsClient) RecordOperation(component, operation string, success bool, durationSeconds float64, labels map[string]string) {
}
func (m *NoopMetricsClient) StartTimer(name string, labels map[string]string) func() {
	return func() {}
}
func (m *NoopMetricsClient) Close() error { return nil }
