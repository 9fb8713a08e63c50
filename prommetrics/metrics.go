// Package prommetrics exports worker telemetry as Prometheus metrics.
package prommetrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/velmie/worklog"
)

const namespace = "worklog"

// Metrics implements worklog.Metrics on Prometheus collectors.
type Metrics struct {
	executeDuration prometheus.Histogram
	processed       prometheus.Counter
	errors          prometheus.Counter
	retries         prometheus.Counter
	dead            prometheus.Counter
	active          prometheus.Gauge
	outstanding     prometheus.Gauge
}

var _ worklog.Metrics = (*Metrics)(nil)

// New creates the collectors and registers them on reg. The log name is
// attached as a constant label so several workers can share a registry.
func New(reg prometheus.Registerer, log string) (*Metrics, error) {
	labels := prometheus.Labels{"log": log}
	m := &Metrics{
		executeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "execute_duration_seconds",
			Help:        "Time spent in one executor attempt.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "entries_processed_total",
			Help:        "Entries executed successfully.",
			ConstLabels: labels,
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "attempt_errors_total",
			Help:        "Executor attempts that returned an error.",
			ConstLabels: labels,
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "retries_total",
			Help:        "Retries scheduled after a failed attempt.",
			ConstLabels: labels,
		}),
		dead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "entries_dead_total",
			Help:        "Entries moved to the fail log.",
			ConstLabels: labels,
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "active_consumers",
			Help:        "Consumers currently running.",
			ConstLabels: labels,
		}),
		outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "outstanding_entries",
			Help:        "Entries read from the log and not yet completed.",
			ConstLabels: labels,
		}),
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("worklog prommetrics: register: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.executeDuration,
		m.processed,
		m.errors,
		m.retries,
		m.dead,
		m.active,
		m.outstanding,
	}
}

func (m *Metrics) ObserveExecuteDuration(duration time.Duration) {
	m.executeDuration.Observe(duration.Seconds())
}

func (m *Metrics) AddProcessed(count int) { m.processed.Add(float64(count)) }

func (m *Metrics) AddErrors(count int) { m.errors.Add(float64(count)) }

func (m *Metrics) AddRetries(count int) { m.retries.Add(float64(count)) }

func (m *Metrics) AddDead(count int) { m.dead.Add(float64(count)) }

func (m *Metrics) SetActiveConsumers(count int) { m.active.Set(float64(count)) }

func (m *Metrics) SetOutstanding(count int) { m.outstanding.Set(float64(count)) }
