package usage

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusReporter counts charged units and the records behind them, labelled by unit.
type PrometheusReporter struct {
	units   *prometheus.CounterVec
	records *prometheus.CounterVec
}

// NewPrometheusReporter registers the usage counters on reg, reusing ones already there.
func NewPrometheusReporter(reg prometheus.Registerer) (*PrometheusReporter, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &PrometheusReporter{
		units: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "leads_enrichment",
				Subsystem: "usage",
				Name:      "units_total",
				Help:      "Billable usage units charged.",
			},
			[]string{"unit"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "leads_enrichment",
				Subsystem: "usage",
				Name:      "records_total",
				Help:      "Enriched records behind the charged units.",
			},
			[]string{"unit"},
		),
	}
	var err error
	if p.units, err = registerCounterVec(reg, p.units); err != nil {
		return nil, err
	}
	if p.records, err = registerCounterVec(reg, p.records); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PrometheusReporter) AddUsage(_ context.Context, ev Event) error {
	p.units.WithLabelValues(ev.Unit).Add(float64(ev.Quantity))
	p.records.WithLabelValues(ev.Unit).Add(float64(ev.Records))
	return nil
}

func (p *PrometheusReporter) Close() error { return nil }

// registerCounterVec registers c, or returns the already-registered collector of the same name.
func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
			return existing, nil
		}
	}
	return nil, fmt.Errorf("register usage metrics: %w", err)
}
