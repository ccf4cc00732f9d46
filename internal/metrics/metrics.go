// Package metrics records aggregation run metrics in a Prometheus registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the collectors of one process. Collectors are registered on
// a private registry so several Recorders can coexist in tests.
type Recorder struct {
	registry      *prometheus.Registry
	sources       *prometheus.CounterVec
	entries       *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	lastRun       prometheus.Gauge
}

// NewRecorder creates and registers the collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sources: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surge_ruleset_sources_total",
				Help: "Sources processed, by outcome",
			},
			[]string{"status"},
		),
		entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surge_ruleset_entries_total",
				Help: "Entries written to artifacts, by list type",
			},
			[]string{"type"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surge_ruleset_dropped_total",
				Help: "Rule lines that produced no entry, by reason",
			},
			[]string{"reason"},
		),
		fetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "surge_ruleset_fetch_duration_seconds",
				Help:    "Source fetch latency",
				Buckets: prometheus.DefBuckets,
			},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "surge_ruleset_last_run_timestamp_seconds",
				Help: "Completion time of the last aggregation run",
			},
		),
	}
	r.registry.MustRegister(r.sources, r.entries, r.dropped, r.fetchDuration, r.lastRun)
	return r
}

// Registry exposes the registry for HTTP handlers.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Source counts one processed source.
func (r *Recorder) Source(status string) {
	r.sources.WithLabelValues(status).Inc()
}

// Entries counts written domains and CIDRs.
func (r *Recorder) Entries(domains, cidrs int) {
	r.entries.WithLabelValues("domain").Add(float64(domains))
	r.entries.WithLabelValues("cidr").Add(float64(cidrs))
}

// Dropped counts lines dropped for reason.
func (r *Recorder) Dropped(reason string, n int) {
	if n > 0 {
		r.dropped.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveFetch records the duration of one fetch.
func (r *Recorder) ObserveFetch(d time.Duration) {
	r.fetchDuration.Observe(d.Seconds())
}

// RunCompleted stamps the completion time of a run.
func (r *Recorder) RunCompleted(t time.Time) {
	r.lastRun.Set(float64(t.Unix()))
}

// WriteTextfile writes the current metrics in the node_exporter textfile
// format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
