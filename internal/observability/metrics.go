package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "inventory"

// PrometheusMetrics records stock operation outcomes on its own registry.
type PrometheusMetrics struct {
	registry      *prometheus.Registry
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	lockFailures  prometheus.Counter
	compensations *prometheus.CounterVec
}

func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stock_operations_total",
			Help:      "Stock operations by operation and result.",
		}, []string{"operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stock_operation_duration_seconds",
			Help:      "Latency of stock operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stock_optimistic_retries_total",
			Help:      "Optimistic version conflicts that triggered a retry.",
		}, []string{"operation"}),
		lockFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stock_lock_failures_total",
			Help:      "Stock lock acquisitions that timed out.",
		}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stock_counter_compensations_total",
			Help:      "Cache counter decrements rolled back.",
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		m.operations,
		m.duration,
		m.retries,
		m.lockFailures,
		m.compensations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *PrometheusMetrics) ObserveOperation(op, result string, d time.Duration) {
	m.operations.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *PrometheusMetrics) IncRetry(op string) {
	m.retries.WithLabelValues(op).Inc()
}

func (m *PrometheusMetrics) IncLockFailure() {
	m.lockFailures.Inc()
}

func (m *PrometheusMetrics) IncCompensation(op string) {
	m.compensations.WithLabelValues(op).Inc()
}

func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
