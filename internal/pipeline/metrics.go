package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for one run. Each run gets its
// own registry.
type Metrics struct {
	registry     *prometheus.Registry
	stageSeconds *prometheus.CounterVec
	batchSeconds prometheus.Histogram
	records      prometheus.Counter
	batches      *prometheus.CounterVec
	peakRSS      prometheus.Gauge
	budgetEvents prometheus.Counter
}

// NewMetrics creates and registers the run collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mwapipe_stage_seconds_total",
			Help: "Wall-clock seconds spent in each pipeline stage",
		}, []string{"stage"}),
		batchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mwapipe_batch_duration_seconds",
			Help:    "Wall-clock seconds per batch including the read",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mwapipe_records_processed_total",
			Help: "Records that passed through every stage",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mwapipe_batches_total",
			Help: "Batches by final status",
		}, []string{"status"}),
		peakRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mwapipe_peak_rss_bytes",
			Help: "Highest resident set size sampled during the run",
		}),
		budgetEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mwapipe_budget_exceeded_total",
			Help: "Samples whose RSS exceeded budget times tolerance",
		}),
	}

	m.registry.MustRegister(m.stageSeconds, m.batchSeconds, m.records, m.batches, m.peakRSS, m.budgetEvents)
	return m
}

// Registry returns the run's registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeBatch(b BatchResult) {
	if m == nil {
		return
	}
	for _, st := range b.Stages {
		m.stageSeconds.WithLabelValues(st.Stage).Add(st.Duration.Seconds())
	}
	if b.Status == BatchCompleted || b.Status == BatchFailed {
		m.batchSeconds.Observe(b.Duration.Seconds())
	}
	if b.Status == BatchCompleted {
		m.records.Add(float64(b.Range.Len()))
	}
}

func (m *Metrics) observeResult(r *Result) {
	if m == nil {
		return
	}
	for _, status := range []string{BatchCompleted, BatchFailed, BatchNotAttempted, BatchSkipped} {
		m.batches.WithLabelValues(status).Add(float64(r.CountByStatus(status)))
	}
	m.peakRSS.Set(float64(r.PeakRSSBytes))
	m.budgetEvents.Add(float64(len(r.Events)))
}
