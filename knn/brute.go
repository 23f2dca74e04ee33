package knn

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/imgrank/distance"
	"github.com/hupe1980/imgrank/internal/errs"
	"github.com/hupe1980/imgrank/internal/pool"
	"github.com/hupe1980/imgrank/internal/queue"
	"github.com/hupe1980/imgrank/tensor"
	"golang.org/x/sync/errgroup"
)

// Options contains configuration options for brute-force search.
type Options struct {
	// Workers is the number of goroutines sharing the query rows.
	// Each worker owns a disjoint range of result slots, so the output does not
	// depend on this value. Values <= 0 use GOMAXPROCS.
	Workers int

	// ExcludeDuplicates drops reference rows that are exact duplicates of an
	// earlier row from the candidate set.
	ExcludeDuplicates bool
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	Workers: 1,
}

// Stats describes the last query call.
type Stats struct {
	Queries            int
	K                  int
	MeanNearest        float64
	Elapsed            time.Duration
	MeanTimePerQuery   time.Duration
	ExcludedReferences int
}

// BruteForce is an exact nearest-neighbor searcher.
type BruteForce struct {
	metric distance.Metric
	fn     distance.Func
	opts   Options

	ref      *tensor.Matrix
	rows     []uint32 // candidate reference rows, ascending
	excluded *roaring.Bitmap

	stats Stats
}

// New creates a brute-force searcher for the named metric
// ("angular", "euclidean" or "hamming").
// An unsupported metric is rejected here, never at query time.
func New(metric string, optFns ...func(o *Options)) (*BruteForce, error) {
	m, ok := distance.ParseMetric(metric)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	return NewWithMetric(m, optFns...)
}

// NewWithMetric creates a brute-force searcher for m.
func NewWithMetric(m distance.Metric, optFns ...func(o *Options)) (*BruteForce, error) {
	fn, err := distance.Provider(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMetric, err)
	}

	opts := DefaultOptions
	for _, f := range optFns {
		f(&opts)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	return &BruteForce{metric: m, fn: fn, opts: opts}, nil
}

func (*BruteForce) Name() string { return "BruteForce()" }

// Metric returns the configured metric.
func (b *BruteForce) Metric() distance.Metric { return b.metric }

// Fit holds ref as the reference set. For the angular metric a normalized copy
// is kept; otherwise ref is retained and must not be mutated afterwards.
func (b *BruteForce) Fit(ref *tensor.Matrix) error {
	if ref == nil || ref.Rows() == 0 {
		return fmt.Errorf("%w: empty reference matrix", errs.ErrDataIntegrity)
	}

	b.excluded = roaring.New()
	if b.opts.ExcludeDuplicates {
		seen := make(map[string]struct{}, ref.Rows())
		for i := 0; i < ref.Rows(); i++ {
			key := rowKey(ref.Row(i))
			if _, dup := seen[key]; dup {
				b.excluded.Add(uint32(i))
				continue
			}
			seen[key] = struct{}{}
		}
	}

	allowed := roaring.New()
	allowed.AddRange(0, uint64(ref.Rows()))
	allowed.AndNot(b.excluded)
	b.rows = allowed.ToArray()

	if b.metric == distance.MetricAngular {
		norm := tensor.Zeros(ref.Rows(), ref.Cols())
		copy(norm.Data(), ref.Data())
		for i := 0; i < norm.Rows(); i++ {
			distance.NormalizeL2InPlace(norm.Row(i))
		}
		ref = norm
	}
	b.ref = ref
	return nil
}

// Size returns the number of candidate reference rows.
func (b *BruteForce) Size() int { return len(b.rows) }

// Excluded returns the number of reference rows removed as duplicates.
func (b *BruteForce) Excluded() int {
	if b.excluded == nil {
		return 0
	}
	return int(b.excluded.GetCardinality())
}

// Stats returns statistics of the last query call.
func (b *BruteForce) Stats() Stats { return b.stats }

// Query returns, for every query row, the reference rows of its k nearest
// neighbors.
func (b *BruteForce) Query(ctx context.Context, q *tensor.Matrix, k int) ([][]int, error) {
	positions, _, err := b.search(ctx, q, k)
	return positions, err
}

// QueryWithDistances is like Query but also returns the distances, in the same
// order as the positions.
func (b *BruteForce) QueryWithDistances(ctx context.Context, q *tensor.Matrix, k int) ([][]int, [][]float64, error) {
	return b.search(ctx, q, k)
}

// ValidateK checks k against the fitted reference set.
func (b *BruteForce) ValidateK(k int) error {
	if b.ref == nil {
		return ErrNotFitted
	}
	if k <= 0 || k > len(b.rows) {
		return fmt.Errorf("%w: k=%d, reference size %d", ErrInvalidK, k, len(b.rows))
	}
	return nil
}

func (b *BruteForce) search(ctx context.Context, q *tensor.Matrix, k int) ([][]int, [][]float64, error) {
	if err := b.ValidateK(k); err != nil {
		return nil, nil, err
	}
	if q.Cols() != b.ref.Cols() {
		return nil, nil, &ErrDimensionMismatch{Expected: b.ref.Cols(), Actual: q.Cols()}
	}

	start := time.Now()
	n := q.Rows()
	positions := make([][]int, n)
	distances := make([][]float64, n)

	workers := min(b.opts.Workers, max(n, 1))
	chunk := (n + workers - 1) / max(workers, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			scratch := pool.Get(q.Cols())
			defer pool.Put(scratch)
			normalize := b.metric == distance.MetricAngular
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				row := q.Row(i)
				if normalize {
					copy(scratch.Vec, row)
					distance.NormalizeL2InPlace(scratch.Vec)
					row = scratch.Vec
				}
				positions[i], distances[i] = b.searchOne(scratch.Heap, row, k)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	b.stats = Stats{
		Queries:            n,
		K:                  k,
		Elapsed:            time.Since(start),
		ExcludedReferences: b.Excluded(),
	}
	if n > 0 {
		var sum float64
		for _, d := range distances {
			sum += d[0]
		}
		b.stats.MeanNearest = sum / float64(n)
		b.stats.MeanTimePerQuery = b.stats.Elapsed / time.Duration(n)
	}
	return positions, distances, nil
}

func (b *BruteForce) searchOne(heap *queue.PriorityQueue, query []float64, k int) ([]int, []float64) {
	heap.Reset()
	for _, r := range b.rows {
		row := int(r)
		heap.Offer(queue.PriorityQueueItem{Node: row, Distance: b.fn(query, b.ref.Row(row))}, k)
	}

	items := heap.DrainAscending()
	pos := make([]int, len(items))
	dist := make([]float64, len(items))
	for i, it := range items {
		pos[i] = it.Node
		dist[i] = it.Distance
	}
	return pos, dist
}

func rowKey(row []float64) string {
	buf := make([]byte, 8*len(row))
	for i, v := range row {
		bits := math.Float64bits(v)
		for j := 0; j < 8; j++ {
			buf[8*i+j] = byte(bits >> (8 * j))
		}
	}
	return string(buf)
}
