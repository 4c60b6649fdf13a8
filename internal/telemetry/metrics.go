package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	serviceUp       *prometheus.GaugeVec
	commandRuns     *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
}

// NewMetrics registers every collector on reg. A nil reg gets a private
// registry so tests and repeated construction never collide.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rccdash",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rccdash",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		serviceUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "rccdash",
				Name:      "service_up",
				Help:      "Last TCP reachability result per sibling service (1 up, 0 down).",
			},
			[]string{"service"},
		),
		commandRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rccdash",
				Subsystem: "rcc",
				Name:      "commands_total",
				Help:      "rcc invocations by subcommand and outcome.",
			},
			[]string{"command", "outcome"},
		),
		commandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rccdash",
				Subsystem: "rcc",
				Name:      "command_duration_seconds",
				Help:      "rcc invocation duration in seconds.",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 120, 300},
			},
			[]string{"command"},
		),
	}
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) ObserveProbe(service string, reachable bool) {
	if m == nil {
		return
	}
	v := 0.0
	if reachable {
		v = 1
	}
	m.serviceUp.WithLabelValues(service).Set(v)
}

func (m *Metrics) ObserveCommand(command, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.commandRuns.WithLabelValues(command, outcome).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
