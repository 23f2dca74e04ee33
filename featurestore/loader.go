package featurestore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hupe1980/imgrank/blobstore"
	"github.com/hupe1980/imgrank/container"
	"github.com/hupe1980/imgrank/internal/errs"
	"github.com/hupe1980/imgrank/pooling"
	"github.com/hupe1980/imgrank/pretrained"
	"github.com/hupe1980/imgrank/resource"
	"github.com/hupe1980/imgrank/tensor"
)

// Options contains configuration options for a Loader.
type Options struct {
	// Store holds the feature files. Defaults to the local file system.
	Store blobstore.BlobStore

	// WantsPooling pools 4-D channel features into vectors.
	WantsPooling bool
	// Pooling configures the pooling engine. Projection and Controller are
	// set by the loader.
	Pooling pooling.Options

	// FollowArchitecture passes pooled vectors through the head
	// normalization of Head, with the stored classifier weights attached.
	FollowArchitecture bool
	Head               pretrained.Head

	// FirstVariantOnly keeps only "*_1.jpg" entries of text feature files.
	FirstVariantOnly bool

	// FirstN keeps the first n rows, LastN the last n. At most one may be set.
	FirstN int
	LastN  int

	// Select, if set, drops items it does not match.
	Select *Selector

	// OnBatch, if set, is called after every pooled batch.
	OnBatch func(pooling.BatchStats)

	Controller *resource.Controller
	Logger     *slog.Logger
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	Pooling: pooling.DefaultOptions,
}

// Result is a loaded feature set.
type Result struct {
	Features *tensor.Matrix
	IDs      []string
	// Pooled is true if the stored features were channel tensors.
	Pooled bool
	// Projection is the head projection used, if any. Its classifier
	// weights can produce logits from Features.
	Projection *pooling.Projection
	Elapsed    time.Duration
}

// Loader loads feature sets. It is safe for concurrent use.
type Loader struct {
	opts Options
}

// New validates the options and returns a Loader.
func New(optFns ...func(o *Options)) (*Loader, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Store == nil {
		opts.Store = blobstore.NewLocalStore("")
	}
	if opts.FirstN < 0 || opts.LastN < 0 {
		return nil, fmt.Errorf("%w: row limits must not be negative", errs.ErrConfig)
	}
	if opts.FirstN > 0 && opts.LastN > 0 {
		return nil, fmt.Errorf("%w: first and last row limits are mutually exclusive", errs.ErrConfig)
	}
	if opts.FollowArchitecture && opts.Head == nil {
		return nil, ErrMissingHead
	}
	if opts.WantsPooling {
		// Reject bad pooling settings before any file is touched.
		if _, err := pooling.NewEngine(func(o *pooling.Options) { *o = opts.Pooling }); err != nil {
			return nil, err
		}
	}

	return &Loader{opts: opts}, nil
}

// Options returns the loader configuration.
func (l *Loader) Options() Options { return l.opts }

// Load reads name and returns its features and identifiers. Names ending in
// ".txt" are text feature files, everything else is a feature container.
func (l *Loader) Load(ctx context.Context, name string) (*Result, error) {
	start := time.Now()

	var (
		res *Result
		err error
	)
	if strings.HasSuffix(name, ".txt") {
		res, err = l.loadText(ctx, name)
	} else {
		res, err = l.loadContainer(ctx, name)
	}
	if err != nil {
		return nil, err
	}

	if res.Features.Rows() != len(res.IDs) {
		return nil, &ErrRowCountMismatch{Path: name, Rows: res.Features.Rows(), IDs: len(res.IDs)}
	}
	if err := l.filter(res); err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)

	if l.opts.Logger != nil {
		l.opts.Logger.InfoContext(ctx, "features loaded",
			"path", name,
			"rows", res.Features.Rows(),
			"dim", res.Features.Cols(),
			"pooled", res.Pooled,
			"duration", res.Elapsed,
		)
	}
	return res, nil
}

func (l *Loader) loadText(ctx context.Context, name string) (*Result, error) {
	b, err := l.opts.Store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("featurestore: open %s: %w", name, err)
	}
	defer b.Close()

	r := resource.NewRateLimitedReaderAt(ctx, blobstore.ReaderAt(ctx, b), l.opts.Controller)
	m, ids, err := container.ReadText(io.NewSectionReader(r, 0, b.Size()), container.TextOptions{
		FirstVariantOnly: l.opts.FirstVariantOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("featurestore: %s: %w", name, err)
	}
	return &Result{Features: m, IDs: ids}, nil
}

func (l *Loader) loadContainer(ctx context.Context, name string) (*Result, error) {
	b, err := l.opts.Store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("featurestore: open %s: %w", name, err)
	}
	defer b.Close()

	rd, err := container.NewReader(resource.NewRateLimitedReaderAt(ctx, blobstore.ReaderAt(ctx, b), l.opts.Controller), b.Size())
	if err != nil {
		return nil, fmt.Errorf("featurestore: %s: %w", name, err)
	}

	names, err := rd.Strings(container.FieldNames)
	if err != nil {
		return nil, fmt.Errorf("featurestore: %s: %w", name, err)
	}
	ids := make([]string, len(names))
	for i, n := range names {
		ids[i] = strings.TrimSuffix(n, ".jpg")
	}

	feats, err := rd.Float32(container.FieldFeatures)
	if err != nil {
		return nil, fmt.Errorf("featurestore: %s: %w", name, err)
	}
	// Check before pooling so a bad file fails without the pooling cost.
	if feats.Rows() != len(ids) {
		return nil, &ErrRowCountMismatch{Path: name, Rows: feats.Rows(), IDs: len(ids)}
	}

	switch feats.Rank() {
	case 2:
		m, err := feats.Matrix()
		if err != nil {
			return nil, fmt.Errorf("featurestore: %s: %w", name, err)
		}
		return &Result{Features: m, IDs: ids}, nil

	case 4:
		if !l.opts.WantsPooling {
			return nil, fmt.Errorf("featurestore: %s: %w", name, ErrChannelTensorWithoutPooling)
		}
		t, err := feats.Tensor4()
		if err != nil {
			return nil, fmt.Errorf("featurestore: %s: %w", name, err)
		}

		var proj *pooling.Projection
		if l.opts.FollowArchitecture {
			proj = &pooling.Projection{Norm: l.opts.Head.Normalizer()}
			if rd.Has(container.FieldWeights) {
				w, err := rd.Float32(container.FieldWeights)
				if err != nil {
					return nil, fmt.Errorf("featurestore: %s: %w", name, err)
				}
				if proj.Weights, err = w.Matrix(); err != nil {
					return nil, fmt.Errorf("featurestore: %s: %s: %w", name, container.FieldWeights, err)
				}
			}
		}

		engine, err := pooling.NewEngine(func(o *pooling.Options) {
			*o = l.opts.Pooling
			o.Projection = proj
			o.Controller = l.opts.Controller
			if o.Logger == nil {
				o.Logger = l.opts.Logger
			}
		})
		if err != nil {
			return nil, err
		}
		engine.OnBatch = l.opts.OnBatch
		m, err := engine.Pool(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("featurestore: pool %s: %w", name, err)
		}
		return &Result{Features: m, IDs: ids, Pooled: true, Projection: proj}, nil

	default:
		return nil, fmt.Errorf("%w: featurestore: %s: %s has shape %v, want 2-D or 4-D",
			errs.ErrDataIntegrity, name, container.FieldFeatures, feats.Shape)
	}
}

// filter applies the selector and the row limits, keeping rows and ids
// aligned.
func (l *Loader) filter(res *Result) error {
	n := len(res.IDs)
	keep := make([]int, 0, n)
	for i, id := range res.IDs {
		if l.opts.Select != nil {
			ok, err := l.opts.Select.Match(id, i)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		keep = append(keep, i)
	}

	switch {
	case l.opts.FirstN > 0 && l.opts.FirstN < len(keep):
		keep = keep[:l.opts.FirstN]
	case l.opts.LastN > 0 && l.opts.LastN < len(keep):
		keep = keep[len(keep)-l.opts.LastN:]
	}
	if len(keep) == n {
		return nil
	}

	ids := make([]string, len(keep))
	for i, r := range keep {
		ids[i] = res.IDs[r]
	}
	res.IDs = ids
	res.Features = res.Features.SelectRows(keep)
	return nil
}

// Load is a convenience wrapper around New and Loader.Load.
func Load(ctx context.Context, name string, optFns ...func(o *Options)) (*tensor.Matrix, []string, error) {
	l, err := New(optFns...)
	if err != nil {
		return nil, nil, err
	}
	res, err := l.Load(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	return res.Features, res.IDs, nil
}
