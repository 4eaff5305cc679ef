package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kinocat/catalog-seeder/pkg/utils/logger"
)

// Metrics exposes the run's progressive counters on a job-local registry so
// concurrent test runs never collide on the default global one.
type Metrics struct {
	registry *prometheus.Registry
	records  *prometheus.CounterVec
}

func NewMetrics(runID string) *Metrics {
	registry := prometheus.NewRegistry()
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "catalog_seeder",
		Name:        "records_total",
		Help:        "Per-stage record outcomes for the current seeding run.",
		ConstLabels: prometheus.Labels{"run_id": runID},
	}, []string{"outcome"})
	registry.MustRegister(records)
	return &Metrics{registry: registry, records: records}
}

// Observe mirrors a stats increment into the registry. Shape matches the
// stats observer hook.
func (m *Metrics) Observe(name string, delta int64) {
	m.records.WithLabelValues(name).Add(float64(delta))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr in the background for the lifetime of the
// run. A batch job's listener failing is not worth aborting the load over.
func (m *Metrics) Serve(addr string, l logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			l.Warn("metrics listener stopped", "addr", addr, "error", err.Error())
		}
	}()
}
