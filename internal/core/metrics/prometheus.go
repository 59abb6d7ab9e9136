package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// circuit states mapped onto gauge values
const (
	circuitClosed   = 0
	circuitHalfOpen = 1
	circuitOpen     = 2
)

// PrometheusCollector implements Collector using Prometheus metrics.
type PrometheusCollector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	evaluationsTotal *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	deliveriesTotal  *prometheus.CounterVec
	circuitState     *prometheus.GaugeVec
	activeAlerts     prometheus.Gauge
}

// NewPrometheusCollector creates a collector with its own registry so tests
// and repeated construction never collide on metric names.
func NewPrometheusCollector(prefix string) *PrometheusCollector {
	if prefix == "" {
		prefix = "alerting"
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &PrometheusCollector{
		registry: registry,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		evaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_evaluations_total",
				Help: "Total number of rule evaluations by outcome",
			},
			[]string{"outcome"},
		),
		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_alert_transitions_total",
				Help: "Total number of alert lifecycle transitions",
			},
			[]string{"severity", "event"},
		),
		deliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_deliveries_total",
				Help: "Total number of notification deliveries by result",
			},
			[]string{"channel_type", "result"},
		),
		circuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: prefix + "_channel_circuit_state",
				Help: "Channel circuit breaker state (0 closed, 1 half_open, 2 open)",
			},
			[]string{"channel_id"},
		),
		activeAlerts: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: prefix + "_active_alerts",
				Help: "Number of live (active or acknowledged) alert instances",
			},
		),
	}
}

func (c *PrometheusCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (c *PrometheusCollector) RecordEvaluation(outcome string) {
	c.evaluationsTotal.WithLabelValues(outcome).Inc()
}

func (c *PrometheusCollector) RecordTransition(severity, event string) {
	c.transitionsTotal.WithLabelValues(severity, event).Inc()
}

func (c *PrometheusCollector) RecordDelivery(channelType, result string) {
	c.deliveriesTotal.WithLabelValues(channelType, result).Inc()
}

func (c *PrometheusCollector) SetCircuitState(channelID, state string) {
	var v float64
	switch state {
	case "half_open":
		v = circuitHalfOpen
	case "open":
		v = circuitOpen
	default:
		v = circuitClosed
	}
	c.circuitState.WithLabelValues(channelID).Set(v)
}

func (c *PrometheusCollector) SetActiveAlerts(count float64) {
	c.activeAlerts.Set(count)
}

// Handler serves the collector's registry for the /metrics endpoint.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
