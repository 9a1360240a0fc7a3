// Package metrics exposes Prometheus collectors for the shell host.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ridecheck/ridecheck/internal/shell"
)

const namespace = "ridecheck"

// ShellMetrics records controller activity. It implements shell.Metrics.
type ShellMetrics struct {
	routes             *prometheus.CounterVec
	networkFailures    *prometheus.CounterVec
	storeFailures      prometheus.Counter
	installs           *prometheus.CounterVec
	generationsDeleted prometheus.Counter
}

var _ shell.Metrics = (*ShellMetrics)(nil)

// NewShellMetrics creates the collectors and registers them with reg.
func NewShellMetrics(reg prometheus.Registerer) (*ShellMetrics, error) {
	m := &ShellMetrics{
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shell",
			Name:      "routed_requests_total",
			Help:      "Requests answered by the cache controller, by strategy and response source.",
		}, []string{"strategy", "source"}),
		networkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shell",
			Name:      "network_failures_total",
			Help:      "Upstream fetches that failed at the transport level.",
		}, []string{"strategy"}),
		storeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shell",
			Name:      "store_failures_total",
			Help:      "Background cache writes that were discarded after failing.",
		}),
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shell",
			Name:      "installs_total",
			Help:      "Install attempts by outcome.",
		}, []string{"success"}),
		generationsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shell",
			Name:      "generations_deleted_total",
			Help:      "Stale cache generations removed on activation.",
		}),
	}

	for _, c := range []prometheus.Collector{m.routes, m.networkFailures, m.storeFailures, m.installs, m.generationsDeleted} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register shell metrics: %w", err)
		}
	}
	return m, nil
}

func (m *ShellMetrics) RecordRoute(strategy shell.Strategy, source shell.Source) {
	m.routes.WithLabelValues(string(strategy), string(source)).Inc()
}

func (m *ShellMetrics) RecordNetworkFailure(strategy shell.Strategy) {
	m.networkFailures.WithLabelValues(string(strategy)).Inc()
}

func (m *ShellMetrics) RecordStoreFailure() { m.storeFailures.Inc() }

func (m *ShellMetrics) RecordInstall(success bool) {
	m.installs.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func (m *ShellMetrics) RecordGenerationDeleted() { m.generationsDeleted.Inc() }

// HTTPMetrics records requests served by the host adapter.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics creates the collectors and registers them with reg.
func NewHTTPMetrics(reg prometheus.Registerer) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	if err := reg.Register(m.requests); err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}
	if err := reg.Register(m.duration); err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}
	return m, nil
}

// Observe records one served request.
func (m *HTTPMetrics) Observe(route, method string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RegisterGauge exposes a value computed at scrape time, such as the number
// of connected application instances.
func RegisterGauge(reg prometheus.Registerer, name, help string, fn func() float64) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
	if err := reg.Register(g); err != nil {
		return fmt.Errorf("register gauge %s: %w", name, err)
	}
	return nil
}
