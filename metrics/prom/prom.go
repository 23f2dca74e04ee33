// Package prom exports run metrics to Prometheus.
//
// Batch runs are too short-lived to be scraped, so the usual way to ship the
// metrics is a node-exporter textfile written when the run ends:
//
//	c := prom.New()
//	_, err := imgrank.Run(ctx, cfg, imgrank.WithMetricsCollector(c))
//	_ = c.WriteTextfile("/var/lib/node_exporter/imgrank.prom")
package prom

import (
	"time"

	"github.com/hupe1980/imgrank"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Options contains configuration options for the collector.
type Options struct {
	Namespace string
	// Registry receives the metrics. A fresh registry is created if nil.
	Registry *prometheus.Registry
	// ConstLabels are attached to every metric, e.g. the run name.
	ConstLabels prometheus.Labels
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	Namespace: "imgrank",
}

// Collector implements imgrank.MetricsCollector with Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	loads        *prometheus.CounterVec
	loadRows     *prometheus.CounterVec
	loadLatency  *prometheus.HistogramVec
	poolBatches  *prometheus.CounterVec
	poolItems    *prometheus.CounterVec
	poolLatency  *prometheus.HistogramVec
	searches     *prometheus.CounterVec
	queries      prometheus.Counter
	searchK      prometheus.Gauge
	searchTime   prometheus.Histogram
	rankFiles    *prometheus.CounterVec
	rankRecords  prometheus.Counter
	rankBytes    prometheus.Gauge
	lastFinished prometheus.Gauge
}

var _ imgrank.MetricsCollector = (*Collector)(nil)

// New creates a collector and registers its metrics.
func New(optFns ...func(o *Options)) *Collector {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	f := promauto.With(opts.Registry)
	ns, cl := opts.Namespace, opts.ConstLabels

	return &Collector{
		registry: opts.Registry,
		loads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, ConstLabels: cl,
			Name: "loads_total",
			Help: "Feature set loads by role and status",
		}, []string{"role", "status"}),
		loadRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, ConstLabels: cl,
			Name: "load_rows_total",
			Help: "Feature rows loaded",
		}, []string{"role"}),
		loadLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, ConstLabels: cl,
			Name:    "load_duration_seconds",
			Help:    "Latency of feature set loads, pooling included",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"role"}),
		poolBatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, ConstLabels: cl,
			Name: "pool_batches_total",
			Help: "Pooled batches",
		}, []string{"role"}),
		poolItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, ConstLabels: cl,
			Name: "pool_items_total",
			Help: "Pooled items",
		}, []string{"role"}),
		poolLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, ConstLabels: cl,
			Name:    "pool_batch_duration_seconds",
			Help:    "Latency of one pooling batch",
			Buckets: prometheus.DefBuckets,
		}, []string{"role"}),
		searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, ConstLabels: cl,
			Name: "searches_total",
			Help: "Search stages by status",
		}, []string{"status"}),
		queries: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, ConstLabels: cl,
			Name: "search_queries_total",
			Help: "Queries answered",
		}),
		searchK: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, ConstLabels: cl,
			Name: "search_k",
			Help: "Neighbors requested per query in the last search",
		}),
		searchTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, ConstLabels: cl,
			Name:    "search_duration_seconds",
			Help:    "Latency of the search stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		rankFiles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, ConstLabels: cl,
			Name: "rank_files_total",
			Help: "Rank files written by status",
		}, []string{"status"}),
		rankRecords: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, ConstLabels: cl,
			Name: "rank_records_total",
			Help: "Rank file records written",
		}),
		rankBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, ConstLabels: cl,
			Name: "rank_file_bytes",
			Help: "Size of the last rank file",
		}),
		lastFinished: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, ConstLabels: cl,
			Name: "last_rank_file_timestamp_seconds",
			Help: "Unix time the last rank file was written",
		}),
	}
}

// Registry returns the registry holding the metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// WriteTextfile writes the metrics in the text exposition format to path,
// atomically, for the node-exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordLoad implements imgrank.MetricsCollector.
func (c *Collector) RecordLoad(role string, rows int, d time.Duration, err error) {
	c.loads.WithLabelValues(role, status(err)).Inc()
	c.loadLatency.WithLabelValues(role).Observe(d.Seconds())
	if err == nil {
		c.loadRows.WithLabelValues(role).Add(float64(rows))
	}
}

// RecordPoolBatch implements imgrank.MetricsCollector.
func (c *Collector) RecordPoolBatch(role string, items int, d time.Duration) {
	c.poolBatches.WithLabelValues(role).Inc()
	c.poolItems.WithLabelValues(role).Add(float64(items))
	c.poolLatency.WithLabelValues(role).Observe(d.Seconds())
}

// RecordSearch implements imgrank.MetricsCollector.
func (c *Collector) RecordSearch(queries, k int, d time.Duration, err error) {
	c.searches.WithLabelValues(status(err)).Inc()
	c.searchTime.Observe(d.Seconds())
	c.searchK.Set(float64(k))
	if err == nil {
		c.queries.Add(float64(queries))
	}
}

// RecordRankFile implements imgrank.MetricsCollector.
func (c *Collector) RecordRankFile(records, bytes int, _ time.Duration, err error) {
	c.rankFiles.WithLabelValues(status(err)).Inc()
	if err != nil {
		return
	}
	c.rankRecords.Add(float64(records))
	c.rankBytes.Set(float64(bytes))
	c.lastFinished.SetToCurrentTime()
}
