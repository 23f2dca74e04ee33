package pooling

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/imgrank/internal/errs"
	"github.com/hupe1980/imgrank/resource"
	"github.com/hupe1980/imgrank/tensor"
	"golang.org/x/time/rate"
)

// Options contains configuration options for the pooling engine.
type Options struct {
	// Policy selects the reduction.
	Policy Policy

	// BatchSize is the number of items materialized at once. Must be > 0.
	BatchSize int

	// Sigmoid applies an element-wise logistic to the input before reduction.
	Sigmoid bool

	// Projection, when set, applies the model head normalization to the
	// pooled vectors (architecture-matching mode).
	Projection *Projection

	// GeMP and GeMEps parameterize the gem policy.
	GeMP   float64
	GeMEps float64

	// Controller bounds the working memory of a batch. May be nil.
	Controller *resource.Controller

	// Logger receives progress messages. May be nil.
	Logger *slog.Logger
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	Policy:    PolicySum,
	BatchSize: 1000,
	GeMP:      DefaultGeMP,
	GeMEps:    DefaultGeMEps,
}

// BatchStats describes one processed batch.
type BatchStats struct {
	Index    int
	Items    int
	Duration time.Duration
}

// Engine pools channel tensors batch by batch.
type Engine struct {
	opts   Options
	reduce Func

	// OnBatch, if set, is called after every batch.
	OnBatch func(BatchStats)
}

// NewEngine validates the options and returns an Engine. Invalid options are
// reported here, before any batch is processed.
func NewEngine(optFns ...func(o *Options)) (*Engine, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if !opts.Policy.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnknownPolicy, opts.Policy)
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", errs.ErrConfig, opts.BatchSize)
	}
	if opts.Policy == PolicyGeM && opts.GeMP == 0 {
		return nil, fmt.Errorf("%w: gem exponent must be non-zero", errs.ErrConfig)
	}
	if opts.Projection != nil && opts.Projection.Norm == nil {
		return nil, fmt.Errorf("%w: projection without head normalization", errs.ErrConfig)
	}

	return &Engine{
		opts:   opts,
		reduce: reducer(opts.Policy, opts.GeMP, opts.GeMEps),
	}, nil
}

// Options returns the engine configuration.
func (e *Engine) Options() Options { return e.opts }

// Pool reduces t to an (N, C) matrix. Items are processed in input order in
// batches of BatchSize; ctx is checked between batches.
func (e *Engine) Pool(ctx context.Context, t *tensor.Tensor4) (*tensor.Matrix, error) {
	shape := t.Shape()
	if e.opts.Projection != nil {
		if err := e.opts.Projection.Validate(shape.C); err != nil {
			return nil, err
		}
	}

	out := tensor.Zeros(shape.N, shape.C)
	itemSize := shape.ItemSize()
	buf := make([]float64, min(e.opts.BatchSize, max(shape.N, 1))*itemSize)
	progress := rate.Sometimes{Interval: time.Second}
	batches := (shape.N + e.opts.BatchSize - 1) / e.opts.BatchSize

	for b, lo := 0, 0; lo < shape.N; b, lo = b+1, lo+e.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hi := min(lo+e.opts.BatchSize, shape.N)
		start := time.Now()

		bytes := int64((hi - lo) * itemSize * 8)
		if err := e.opts.Controller.AcquireMemory(ctx, bytes); err != nil {
			return nil, err
		}
		e.poolBatch(t.Slice(lo, hi), buf, out.SliceRows(lo, hi))
		e.opts.Controller.ReleaseMemory(bytes)

		if e.OnBatch != nil {
			e.OnBatch(BatchStats{Index: b, Items: hi - lo, Duration: time.Since(start)})
		}
		if e.opts.Logger != nil {
			progress.Do(func() {
				e.opts.Logger.InfoContext(ctx, "pooling progress",
					"policy", e.opts.Policy.String(),
					"batch", b+1,
					"batches", batches,
					"items", hi,
				)
			})
		}
	}

	return out, nil
}

func (e *Engine) poolBatch(batch *tensor.Tensor4, buf []float64, out *tensor.Matrix) {
	shape := batch.Shape()
	work := buf[:shape.Len()]
	for i, v := range batch.Data() {
		work[i] = float64(v)
	}
	if e.opts.Sigmoid {
		Sigmoid(work)
	}

	itemSize := shape.ItemSize()
	for n := 0; n < shape.N; n++ {
		row := out.Row(n)
		e.reduce(work[n*itemSize:(n+1)*itemSize], shape.C, shape.H, shape.W, row)
	}
	if e.opts.Projection != nil {
		e.opts.Projection.Apply(out)
	}
}

// Pool is a convenience wrapper that pools t with a single policy and default
// settings otherwise.
func Pool(ctx context.Context, t *tensor.Tensor4, policy Policy, optFns ...func(o *Options)) (*tensor.Matrix, error) {
	fns := append([]func(o *Options){func(o *Options) { o.Policy = policy }}, optFns...)
	e, err := NewEngine(fns...)
	if err != nil {
		return nil, err
	}
	return e.Pool(ctx, t)
}
