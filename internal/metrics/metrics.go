// Package metrics holds the run's Prometheus collectors on a private registry.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shpitdev/leads-enrichment-module/internal/enrich/poller"
)

const namespace = "leads_enrichment"

// Job outcomes.
const (
	OutcomeSucceeded   = "succeeded"
	OutcomeFailed      = "failed"
	OutcomeTimedOut    = "timed_out"
	OutcomeSubmitError = "submit_error"
	OutcomeError       = "error"
)

// Metrics holds the run series on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	pollAttempts *prometheus.CounterVec
	jobs         *prometheus.CounterVec
	jobDuration  prometheus.Histogram
	records      prometheus.Gauge
}

// New registers every series on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		pollAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "poll",
				Name:      "attempts_total",
				Help:      "Status polls by canonical status (no_data and error for soft misses).",
			},
			[]string{"status"},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "job",
				Name:      "outcomes_total",
				Help:      "Finished enrichment jobs by outcome.",
			},
			[]string{"outcome"},
		),
		jobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "job",
				Name:      "duration_seconds",
				Help:      "Time from submission to a terminal outcome.",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 900},
			},
		),
		records: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "job",
				Name:      "enriched_records",
				Help:      "Enriched record count of the last completed job.",
			},
		),
	}
	m.Registry.MustRegister(m.pollAttempts, m.jobs, m.jobDuration, m.records)
	return m
}

// ObserveAttempt counts one poll. It fits poller.Options.OnAttempt.
func (m *Metrics) ObserveAttempt(a poller.Attempt) {
	label := strings.ToLower(string(a.Status))
	switch {
	case a.Err != nil:
		label = "error"
	case a.SoftMiss:
		label = "no_data"
	case label == "":
		label = "unknown"
	}
	m.pollAttempts.WithLabelValues(label).Inc()
}

// ObserveJob records the terminal outcome of a job.
func (m *Metrics) ObserveJob(outcome string, d time.Duration) {
	m.jobs.WithLabelValues(outcome).Inc()
	m.jobDuration.Observe(d.Seconds())
}

// SetRecords records the enriched-record count of a completed job.
func (m *Metrics) SetRecords(n int64) {
	m.records.Set(float64(n))
}

// WriteTextfile writes every collector in Prometheus text format, for node_exporter's textfile
// collector or a post-run scrape.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
