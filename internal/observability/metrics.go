// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "truthboard"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	Registry *prometheus.Registry

	// Remote call metrics
	RemoteCalls        *prometheus.CounterVec
	RemoteCallDuration *prometheus.HistogramVec
	RemoteCallTimeouts *prometheus.CounterVec

	// Loading state
	ActiveRequests prometheus.Gauge

	// Balance metrics
	LedgerFetches      *prometheus.CounterVec
	PortfolioRefreshes *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered on a dedicated registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		RemoteCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "calls_total",
			Help:      "Total number of settled remote calls",
		}, []string{"service", "method", "status"}),
		RemoteCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "call_duration_seconds",
			Help:      "Duration of remote calls",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{"service", "method"}),
		RemoteCallTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "call_timeouts_total",
			Help:      "Remote calls force-settled after the tracking timeout",
		}, []string{"service", "method"}),

		ActiveRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "loading",
			Name:      "active_requests",
			Help:      "Current number of in-flight tracked requests",
		}),

		LedgerFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "ledger_fetches_total",
			Help:      "Ledger balance reads by outcome",
		}, []string{"ledger", "status"}),
		PortfolioRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "portfolio_refreshes_total",
			Help:      "Aggregated portfolio refreshes by outcome",
		}, []string{"status"}),
	}
}

// Handler returns an HTTP handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// StatusLabel maps a success flag to a metric label value.
func StatusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
