package imgrank

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting run metrics.
// metrics/prom provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordLoad is called after each feature set load.
	// role is "collection" or "query", rows the number of loaded items.
	RecordLoad(role string, rows int, duration time.Duration, err error)

	// RecordPoolBatch is called after each pooled batch.
	RecordPoolBatch(role string, items int, duration time.Duration)

	// RecordSearch is called after the search stage.
	RecordSearch(queries, k int, duration time.Duration, err error)

	// RecordRankFile is called after the rank file is stored.
	RecordRankFile(records, bytes int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLoad(string, int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordPoolBatch(string, int, time.Duration)    {}
func (NoopMetricsCollector) RecordSearch(int, int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordRankFile(int, int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and tests without external dependencies.
type BasicMetricsCollector struct {
	LoadCount        atomic.Int64
	LoadErrors       atomic.Int64
	LoadRows         atomic.Int64
	LoadTotalNanos   atomic.Int64
	PoolBatches      atomic.Int64
	PoolItems        atomic.Int64
	PoolTotalNanos   atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchQueries    atomic.Int64
	SearchTotalNanos atomic.Int64
	RankFileCount    atomic.Int64
	RankFileErrors   atomic.Int64
	RankFileRecords  atomic.Int64
	RankFileBytes    atomic.Int64
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(_ string, rows int, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LoadErrors.Add(1)
		return
	}
	b.LoadRows.Add(int64(rows))
}

// RecordPoolBatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPoolBatch(_ string, items int, duration time.Duration) {
	b.PoolBatches.Add(1)
	b.PoolItems.Add(int64(items))
	b.PoolTotalNanos.Add(duration.Nanoseconds())
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(queries, _ int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
		return
	}
	b.SearchQueries.Add(int64(queries))
}

// RecordRankFile implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRankFile(records, bytes int, _ time.Duration, err error) {
	b.RankFileCount.Add(1)
	if err != nil {
		b.RankFileErrors.Add(1)
		return
	}
	b.RankFileRecords.Add(int64(records))
	b.RankFileBytes.Add(int64(bytes))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		LoadCount:          b.LoadCount.Load(),
		LoadErrors:         b.LoadErrors.Load(),
		LoadRows:           b.LoadRows.Load(),
		PoolBatches:        b.PoolBatches.Load(),
		PoolItems:          b.PoolItems.Load(),
		PoolAvgBatchNanos:  avg(b.PoolTotalNanos.Load(), b.PoolBatches.Load()),
		SearchCount:        b.SearchCount.Load(),
		SearchErrors:       b.SearchErrors.Load(),
		SearchQueries:      b.SearchQueries.Load(),
		SearchAvgQueryNano: avg(b.SearchTotalNanos.Load(), b.SearchQueries.Load()),
		RankFileCount:      b.RankFileCount.Load(),
		RankFileErrors:     b.RankFileErrors.Load(),
		RankFileRecords:    b.RankFileRecords.Load(),
		RankFileBytes:      b.RankFileBytes.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	LoadCount          int64
	LoadErrors         int64
	LoadRows           int64
	PoolBatches        int64
	PoolItems          int64
	PoolAvgBatchNanos  int64
	SearchCount        int64
	SearchErrors       int64
	SearchQueries      int64
	SearchAvgQueryNano int64
	RankFileCount      int64
	RankFileErrors     int64
	RankFileRecords    int64
	RankFileBytes      int64
}
