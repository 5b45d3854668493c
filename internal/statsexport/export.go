// Package statsexport optionally exposes stats.Tracker snapshots as
// Prometheus metrics. It is wired behind the Observer interface so the
// sequencer core never imports Prometheus directly: internal/app always
// feeds a Registry from its log-flusher service, and serves it over HTTP
// only when a metrics address is configured.
package statsexport

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/behrlich/audiosequencer/internal/stats"
)

// Observer receives a named stats.Snapshot whenever the owning service or
// sequencer wants its timing distribution recorded. Implementations must
// not block the tick-critical caller.
type Observer interface {
	Observe(name string, snap stats.Snapshot)
}

// Registry is a Prometheus-backed Observer: one gauge vector each for the
// mean, p99, max and sample count of a snapshot (min and p50 are not
// exported), labeled by the track name (e.g. "sequencer.tick",
// "capture.release", "capture.execution").
type Registry struct {
	registerer prometheus.Registerer
	mean       *prometheus.GaugeVec
	p99        *prometheus.GaugeVec
	max        *prometheus.GaugeVec
	count      *prometheus.GaugeVec
}

// NewRegistry builds a Registry against reg, registering its gauge vectors.
// Pass prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer to expose via promhttp.Handler().
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		registerer: reg,
		mean:       factory.NewGaugeVec(prometheus.GaugeOpts{Name: "audiosequencer_timing_mean_ms"}, []string{"track"}),
		p99:        factory.NewGaugeVec(prometheus.GaugeOpts{Name: "audiosequencer_timing_p99_ms"}, []string{"track"}),
		max:        factory.NewGaugeVec(prometheus.GaugeOpts{Name: "audiosequencer_timing_max_ms"}, []string{"track"}),
		count:      factory.NewGaugeVec(prometheus.GaugeOpts{Name: "audiosequencer_timing_sample_count"}, []string{"track"}),
	}
}

// Observe records snap's summary values under the given track name.
func (r *Registry) Observe(name string, snap stats.Snapshot) {
	r.mean.WithLabelValues(name).Set(snap.Mean)
	r.p99.WithLabelValues(name).Set(snap.P99)
	r.max.WithLabelValues(name).Set(snap.Max)
	r.count.WithLabelValues(name).Set(float64(snap.Count))
}

// Handler returns an http.Handler exposing the registry's metrics for
// scraping. Callers mount it on whatever address internal/config supplies.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
