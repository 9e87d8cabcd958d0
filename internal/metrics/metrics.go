// Package metrics exposes Prometheus collectors for ingestion runs.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics reports pipeline activity
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	failures      *prometheus.CounterVec
	uploads       *prometheus.CounterVec
	recordWrites  prometheus.Counter
	runsActive    prometheus.Gauge
}

var (
	defaultOnce   sync.Once
	sharedMetrics *Metrics
)

// Default returns the metrics registered with the global registry
func Default() *Metrics {
	defaultOnce.Do(func() {
		sharedMetrics = MustNew(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNew builds a Metrics registered with reg. Collectors already present
// in reg are reused; any other registration error panics.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "catalog_ingest",
				Name:      "stage_duration_seconds",
				Help:      "Duration spent in each ingestion stage.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage", "status"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "catalog_ingest",
				Name:      "failures_total",
				Help:      "Ingestion runs that failed, by stage and error kind.",
			},
			[]string{"stage", "kind"},
		),
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "catalog_ingest",
				Name:      "asset_uploads_total",
				Help:      "Media assets uploaded to destination storage.",
			},
			[]string{"kind"},
		),
		recordWrites: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "catalog_ingest",
				Name:      "record_writes_total",
				Help:      "Catalog records written to the table store.",
			},
		),
		runsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "catalog_ingest",
				Name:      "runs_active",
				Help:      "Ingestion runs currently executing.",
			},
		),
	}

	m.stageDuration = register(reg, m.stageDuration)
	m.failures = register(reg, m.failures)
	m.uploads = register(reg, m.uploads)
	m.recordWrites = register(reg, m.recordWrites)
	m.runsActive = register(reg, m.runsActive)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveStage records the time spent in a stage
func (m *Metrics) ObserveStage(stage string, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// IncFailure counts a failed run
func (m *Metrics) IncFailure(stage string, kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage, kind).Inc()
}

// IncUpload counts one uploaded asset
func (m *Metrics) IncUpload(kind string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(kind).Inc()
}

// IncRecordWrite counts one committed record
func (m *Metrics) IncRecordWrite() {
	if m == nil {
		return
	}
	m.recordWrites.Inc()
}

// RunStarted marks a run as active
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsActive.Inc()
}

// RunFinished marks a run as done
func (m *Metrics) RunFinished() {
	if m == nil {
		return
	}
	m.runsActive.Dec()
}
