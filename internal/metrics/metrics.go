// Package metrics provides Prometheus metrics for reldb.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for reldb.
type Metrics struct {
	// Pager metrics
	PageReadsTotal     prometheus.Counter
	PageWritesTotal     prometheus.Counter
	PageCacheResident   prometheus.Gauge
	PageFlushesTotal    prometheus.Counter

	// B+Tree metrics
	NodeSplitsTotal prometheus.Counter
	TreeDepth       *prometheus.GaugeVec

	// Row store metrics
	TablesTotal prometheus.Gauge
	IndicesTotal prometheus.Gauge
	RowsAddedTotal   *prometheus.CounterVec
	RowsDeletedTotal *prometheus.CounterVec

	// Query engine metrics
	QueriesTotal     *prometheus.CounterVec
	QueryDuration    *prometheus.HistogramVec
	RowsScannedTotal prometheus.Counter
	RowsFilteredTotal prometheus.Counter
	RowsJoinedTotal   prometheus.Counter

	ServerStartTime time.Time
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	m.PageReadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reldb_page_reads_total",
		Help: "Total number of pages loaded from disk into the pager cache",
	})
	m.PageWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reldb_page_writes_total",
		Help: "Total number of pages marked dirty",
	})
	m.PageCacheResident = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reldb_page_cache_resident",
		Help: "Page count of the pager, set each time a page is pushed",
	})
	m.PageFlushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reldb_page_flushes_total",
		Help: "Total number of dirty pages flushed to disk",
	})

	m.NodeSplitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reldb_btree_node_splits_total",
		Help: "Total number of B+Tree node splits",
	})
	m.TreeDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reldb_btree_depth",
		Help: "Current depth of a B+Tree, by source",
	}, []string{"source"})

	m.TablesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reldb_tables_total",
		Help: "Total number of tables in the schema catalog",
	})
	m.IndicesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reldb_indices_total",
		Help: "Total number of secondary indices in the schema catalog",
	})
	m.RowsAddedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reldb_rows_added_total",
		Help: "Total number of rows added, by table",
	}, []string{"table"})
	m.RowsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reldb_rows_deleted_total",
		Help: "Total number of rows deleted, by table",
	}, []string{"table"})

	m.QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reldb_queries_total",
		Help: "Total number of queries executed, by kind and status",
	}, []string{"kind", "status"})
	m.QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reldb_query_duration_seconds",
		Help:    "Duration of executed queries in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"kind"})
	m.RowsScannedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reldb_rows_scanned_total",
		Help: "Total number of rows pulled out of a scan source",
	})
	m.RowsFilteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reldb_rows_filtered_total",
		Help: "Total number of rows dropped by a filter process item",
	})
	m.RowsJoinedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reldb_rows_joined_total",
		Help: "Total number of row pairs produced by a join process item",
	})

	return m
}

// RecordQuery records completion of a query with its status.
func (m *Metrics) RecordQuery(kind string, status string, duration time.Duration) {
	m.QueriesTotal.WithLabelValues(kind, status).Inc()
	m.QueryDuration.WithLabelValues(kind).Observe(duration.Seconds())
}
