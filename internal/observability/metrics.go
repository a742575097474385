package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "snih_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the SNIH harvester.
type Metrics struct {
	// Upstream SNIH web service.
	UpstreamRequests *prometheus.CounterVec   // labels: endpoint, outcome={success,error}
	UpstreamDuration *prometheus.HistogramVec // labels: endpoint
	CacheLookups     *prometheus.CounterVec   // labels: endpoint, result={hit,miss}

	// Normalization and synthesis.
	RecordsNormalized   *prometheus.CounterVec // labels: dataset
	RecordsSkipped      *prometheus.CounterVec // labels: dataset
	FacilityDiagnostics *prometheus.CounterVec // labels: kind

	// Export and publication.
	RecordsExported  *prometheus.CounterVec // labels: dataset, format
	MessagesProduced prometheus.Counter
	BatchSize        prometheus.Histogram

	// Serve mode.
	MetadataHarvestDuration prometheus.Histogram
	MetadataRefreshes       *prometheus.CounterVec // labels: outcome={success,error}
	ServerRunning           prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "SNIH web service requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "SNIH web service request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by endpoint and result.",
		}, []string{"endpoint", "result"}),
		RecordsNormalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_normalized_total",
			Help:      "Records normalized by dataset kind.",
		}, []string{"dataset"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Malformed records skipped by dataset kind.",
		}, []string{"dataset"}),
		FacilityDiagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facility_diagnostics_total",
			Help:      "Non-fatal facility synthesis findings by kind.",
		}, []string{"kind"}),
		RecordsExported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_exported_total",
			Help:      "Records written to the export sink by dataset and format.",
		}, []string{"dataset", "format"}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total messages written to the publish topic.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per Kafka write.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		MetadataHarvestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "metadata_harvest_duration_seconds",
			Help:      "Duration of a full station/variable/association harvest.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		MetadataRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_refreshes_total",
			Help:      "Metadata refresh attempts by outcome.",
		}, []string{"outcome"}),
		ServerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_running",
			Help:      "1 while serve mode is active, 0 when shut down.",
		}),
	}

	prometheus.MustRegister(
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.CacheLookups,
		m.RecordsNormalized,
		m.RecordsSkipped,
		m.FacilityDiagnostics,
		m.RecordsExported,
		m.MessagesProduced,
		m.BatchSize,
		m.MetadataHarvestDuration,
		m.MetadataRefreshes,
		m.ServerRunning,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		UpstreamRequests:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "upstream_requests_total"}, []string{"endpoint", "outcome"}),
		UpstreamDuration:        prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "upstream_duration_seconds"}, []string{"endpoint"}),
		CacheLookups:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "cache_lookups_total"}, []string{"endpoint", "result"}),
		RecordsNormalized:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "records_normalized_total"}, []string{"dataset"}),
		RecordsSkipped:          prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "records_skipped_total"}, []string{"dataset"}),
		FacilityDiagnostics:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "facility_diagnostics_total"}, []string{"kind"}),
		RecordsExported:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "records_exported_total"}, []string{"dataset", "format"}),
		MessagesProduced:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "messages_produced_total"}),
		BatchSize:               prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "batch_size"}),
		MetadataHarvestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "metadata_harvest_duration_seconds"}),
		MetadataRefreshes:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "metadata_refreshes_total"}, []string{"outcome"}),
		ServerRunning:           prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "server_running"}),
	}
}
