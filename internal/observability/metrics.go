package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hotspot_patrol"

// Metrics holds the Prometheus collectors for ingestion and clustering.
type Metrics struct {
	// Ingestion metrics.
	RecordsFetched  *prometheus.CounterVec // labels: source
	SightingsStored *prometheus.CounterVec // labels: source
	FieldsRejected  *prometheus.CounterVec // labels: source, field
	SourceErrors    *prometheus.CounterVec // labels: source
	ReportsStored   prometheus.Counter

	// Clustering metrics.
	ClusterRuns     *prometheus.CounterVec // labels: outcome={success,invalid,store_error}
	ClusterRunTime  prometheus.Histogram
	CurrentClusters prometheus.Gauge
	NoisePoints     prometheus.Gauge

	Detections *prometheus.CounterVec // labels: detector
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.RecordsFetched,
		m.SightingsStored,
		m.FieldsRejected,
		m.SourceErrors,
		m.ReportsStored,
		m.ClusterRuns,
		m.ClusterRunTime,
		m.CurrentClusters,
		m.NoisePoints,
		m.Detections,
	)

	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Raw records received from each sighting source.",
		}, []string{"source"}),
		SightingsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sightings_stored_total",
			Help:      "Normalized sightings written to the store.",
		}, []string{"source"}),
		FieldsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fields_rejected_total",
			Help:      "Raw record fields dropped by the normalizer as malformed.",
		}, []string{"source", "field"}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Failed fetches per sighting source.",
		}, []string{"source"}),
		ReportsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_stored_total",
			Help:      "Text reports extracted and stored.",
		}),
		ClusterRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cluster_runs_total",
			Help:      "Hotspot recomputations by outcome.",
		}, []string{"outcome"}),
		ClusterRunTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cluster_run_duration_seconds",
			Help:      "Duration of a full read, cluster and replace cycle.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		CurrentClusters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hotspots",
			Help:      "Number of hotspots in the current cluster set.",
		}),
		NoisePoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "noise_sightings",
			Help:      "Geolocated sightings left unclustered by the last run.",
		}),
		Detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Image detection requests served.",
		}, []string{"detector"}),
	}
}
