// Package metrics exposes Prometheus instrumentation for panel
// synchronization, reconciliation, and export operations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors panelmap reports.
type Metrics struct {
	registry *prometheus.Registry

	SyncTotal     *prometheus.CounterVec
	SyncDuration  prometheus.Histogram
	UpstreamTotal *prometheus.CounterVec
	ExportTotal   *prometheus.CounterVec
	PanelVersions *prometheus.GaugeVec
}

// New creates a metrics set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SyncTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panelmap",
			Name:      "sync_total",
			Help:      "Panel synchronization attempts by outcome.",
		}, []string{"outcome"}),
		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "panelmap",
			Name:      "sync_duration_seconds",
			Help:      "Wall time of panel synchronization runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		UpstreamTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panelmap",
			Name:      "upstream_requests_total",
			Help:      "Upstream API requests by service and result.",
		}, []string{"service", "result"}),
		ExportTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panelmap",
			Name:      "export_total",
			Help:      "BED exports by result.",
		}, []string{"result"}),
		PanelVersions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "panelmap",
			Name:      "panel_version",
			Help:      "Current local version of each tracked panel.",
		}, []string{"rcode"}),
	}
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSync records one synchronization outcome.
func (m *Metrics) ObserveSync(outcome string, seconds float64) {
	m.SyncTotal.WithLabelValues(outcome).Inc()
	m.SyncDuration.Observe(seconds)
}
