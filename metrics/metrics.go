package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instrumentation for the import and
// poll cycles.
type Metrics struct {
	registry *prometheus.Registry

	ImportsTotal *prometheus.CounterVec
	PollsTotal   *prometheus.CounterVec
	PollDuration prometheus.Histogram
	LastPoll     prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ImportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "datahub_schedule_imports_total",
			Help: "Schedule import attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		PollsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "datahub_realtime_polls_total",
			Help: "Realtime poll attempts by provider, entity type and outcome.",
		}, []string{"provider", "entity_type", "outcome"}),
		PollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "datahub_realtime_poll_duration_seconds",
			Help:    "Duration of a full realtime poll cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		LastPoll: factory.NewGauge(prometheus.GaugeOpts{
			Name: "datahub_realtime_last_poll_timestamp_seconds",
			Help: "Unix time of the last completed realtime poll cycle.",
		}),
	}
}

// Handler returns an HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes the metrics on addr. Blocks.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
