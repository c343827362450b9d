package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store holds the collectors for one process, on a private registry.
type Store struct {
	Registry            *prometheus.Registry
	RunActive           prometheus.Gauge
	RunDuration         prometheus.Histogram
	TableDuration       *prometheus.HistogramVec
	TablesTotal         *prometheus.CounterVec
	RowsTransferred     *prometheus.CounterVec
	WindowsProcessed    *prometheus.CounterVec
	WindowDuration      *prometheus.HistogramVec
	ErrorsTotal         *prometheus.CounterVec
	ConnectionsAttempts *prometheus.CounterVec
}

func NewMetricsStore() *Store {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Store{
		Registry: registry,
		RunActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tablesync_run_active",
			Help: "1 while a transfer run is in progress.",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tablesync_run_duration_seconds",
			Help:    "Duration of a complete run over all requested tables.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 15),
		}),
		TableDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tablesync_table_duration_seconds",
			Help:    "Duration of one table's transfer, by chosen strategy.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 16),
		}, []string{"table", "strategy"}),
		TablesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tablesync_tables_total",
			Help: "Tables processed, by outcome (synced, skipped, failed).",
		}, []string{"outcome"}),
		RowsTransferred: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tablesync_rows_transferred_total",
			Help: "Rows written to the destination.",
		}, []string{"table"}),
		WindowsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tablesync_windows_processed_total",
			Help: "Primary-key windows copied by the batch strategy.",
		}, []string{"table"}),
		WindowDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tablesync_window_duration_seconds",
			Help:    "Duration of one primary-key window copy.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}, []string{"table"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tablesync_errors_total",
			Help: "Errors by kind (config, schema, usage, adapter, connection).",
		}, []string{"kind", "table"}),
		ConnectionsAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tablesync_connection_attempts_total",
			Help: "Database connection attempts by role and result.",
		}, []string{"role", "result"}),
	}
}
