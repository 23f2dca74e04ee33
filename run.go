package imgrank

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/hupe1980/imgrank/container"
	"github.com/hupe1980/imgrank/distance"
	"github.com/hupe1980/imgrank/featurestore"
	"github.com/hupe1980/imgrank/internal/hash"
	"github.com/hupe1980/imgrank/knn"
	"github.com/hupe1980/imgrank/pooling"
	"github.com/hupe1980/imgrank/pretrained"
	"github.com/hupe1980/imgrank/rankfile"
)

// Report summarizes a finished run.
type Report struct {
	Seed int64

	CollectionRows   int
	QueryRows        int
	Dim              int
	CollectionPooled bool
	QueryPooled      bool

	Output       string
	Records      int
	OutputBytes  int
	OutputCRC32C uint32
	// LogitsOutput names the head logits file, if one was written.
	LogitsOutput string

	Search knn.Stats

	LoadDuration   time.Duration
	SearchDuration time.Duration
	WriteDuration  time.Duration
	Total          time.Duration
}

// Run executes one ranking run. The configuration is validated in full
// before any input is opened; the rank file is assembled in memory and
// stored with a single Put, so a failed run leaves no partial output.
func Run(ctx context.Context, cfg Config, optFns ...Option) (*Report, error) {
	start := time.Now()
	o := applyOptions(optFns)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p, err := newPipeline(ctx, cfg, o)
	if err != nil {
		return nil, err
	}

	rep := &Report{Seed: cfg.Seed, Output: cfg.Output}

	loadStart := time.Now()
	coll, err := p.load(ctx, "collection", cfg.Collection, p.collection)
	if err != nil {
		return nil, err
	}
	query, err := p.load(ctx, "query", cfg.Query, p.query)
	if err != nil {
		return nil, err
	}
	rep.LoadDuration = time.Since(loadStart)
	rep.CollectionRows, rep.QueryRows = coll.Features.Rows(), query.Features.Rows()
	rep.CollectionPooled, rep.QueryPooled = coll.Pooled, query.Pooled
	rep.Dim = coll.Features.Cols()

	searchStart := time.Now()
	positions, distances, err := p.search(ctx, coll, query, cfg.Search.K)
	stats := p.searcher.Stats()
	stats.K = cfg.Search.K
	o.metricsCollector.RecordSearch(query.Features.Rows(), cfg.Search.K, time.Since(searchStart), err)
	o.logger.LogSearch(ctx, stats, err)
	if err != nil {
		return nil, err
	}
	rep.Search = stats
	rep.SearchDuration = time.Since(searchStart)

	writeStart := time.Now()
	// Everything is rendered before the first Put so that a failing stage
	// never leaves a rank file behind.
	var logits []byte
	if cfg.Rank.HeadLogits {
		if logits, err = renderLogits(query); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	err = rankfile.Format(&buf, coll.IDs, query.IDs, positions, distances,
		rankfile.WithRunTag(cfg.Rank.RunTag),
		rankfile.WithIteration(cfg.Rank.Iteration),
	)
	if err == nil {
		err = o.outputStore.Put(ctx, cfg.Output, buf.Bytes())
	}
	for _, ps := range positions {
		rep.Records += len(ps)
	}
	o.metricsCollector.RecordRankFile(rep.Records, buf.Len(), time.Since(writeStart), err)
	o.logger.LogRankFile(ctx, cfg.Output, rep.Records, buf.Len(), err)
	if err != nil {
		return nil, fmt.Errorf("rank file %s: %w", cfg.Output, err)
	}
	rep.OutputBytes = buf.Len()
	rep.OutputCRC32C = hash.CRC32C(buf.Bytes())

	if logits != nil {
		name := strings.TrimSuffix(cfg.Output, path.Ext(cfg.Output)) + ".logits.txt"
		if err := o.outputStore.Put(ctx, name, logits); err != nil {
			return nil, fmt.Errorf("head logits %s: %w", name, err)
		}
		o.logger.InfoContext(ctx, "head logits written", "output", name)
		rep.LogitsOutput = name
	}
	rep.WriteDuration = time.Since(writeStart)
	rep.Total = time.Since(start)

	o.logger.InfoContext(ctx, "run completed",
		"collection", rep.CollectionRows,
		"queries", rep.QueryRows,
		"dim", rep.Dim,
		"records", rep.Records,
		"crc32c", fmt.Sprintf("%08x", rep.OutputCRC32C),
		"duration", rep.Total,
	)
	return rep, nil
}

type pipeline struct {
	opts       options
	collection *featurestore.Loader
	query      *featurestore.Loader
	searcher   *knn.BruteForce
}

// newPipeline builds every stage. All configuration errors surface here,
// before the first feature file is read.
func newPipeline(ctx context.Context, cfg Config, o options) (*pipeline, error) {
	metric, _ := distance.ParseMetric(cfg.Search.Metric)
	searcher, err := knn.NewWithMetric(metric, func(ko *knn.Options) {
		ko.Workers = cfg.Search.Workers
		ko.ExcludeDuplicates = cfg.Search.ExcludeDuplicates
	})
	if err != nil {
		return nil, err
	}

	policy, err := pooling.ParsePolicy(cfg.Pooling.Policy)
	if err != nil {
		return nil, err
	}

	var head pretrained.Head
	if cfg.Pooling.FollowArchitecture {
		if head, err = resolveHead(ctx, cfg.Pooling, o); err != nil {
			return nil, err
		}
	}

	p := &pipeline{opts: o, searcher: searcher}
	for _, side := range []struct {
		role   string
		filter FilterConfig
		dst    **featurestore.Loader
	}{
		{"collection", cfg.CollectionFilter, &p.collection},
		{"query", cfg.QueryFilter, &p.query},
	} {
		var sel *featurestore.Selector
		if side.filter.Select != "" {
			if sel, err = featurestore.NewSelector(side.filter.Select); err != nil {
				return nil, fmt.Errorf("%s_filter.select: %w", side.role, err)
			}
		}

		role := side.role
		l, err := featurestore.New(func(fo *featurestore.Options) {
			fo.Store = o.store
			fo.WantsPooling = cfg.Pooling.Enabled
			fo.Pooling.Policy = policy
			fo.Pooling.BatchSize = cfg.Pooling.BatchSize
			fo.Pooling.Sigmoid = cfg.Pooling.Sigmoid
			if cfg.Pooling.GeMP != 0 {
				fo.Pooling.GeMP = cfg.Pooling.GeMP
			}
			fo.FollowArchitecture = cfg.Pooling.FollowArchitecture
			fo.Head = head
			fo.FirstVariantOnly = side.filter.FirstVariantOnly
			fo.FirstN = side.filter.FirstN
			fo.LastN = side.filter.LastN
			fo.Select = sel
			fo.OnBatch = func(s pooling.BatchStats) {
				o.metricsCollector.RecordPoolBatch(role, s.Items, s.Duration)
				o.logger.LogPoolBatch(ctx, role, s)
			}
			fo.Controller = o.controller
			fo.Logger = o.logger.WithRole(role).Logger
		})
		if err != nil {
			return nil, fmt.Errorf("%s loader: %w", side.role, err)
		}
		*side.dst = l
	}
	return p, nil
}

func resolveHead(ctx context.Context, pc PoolingConfig, o options) (pretrained.Head, error) {
	if pc.HeadFile != "" {
		return pretrained.LoadHead(ctx, o.store, pc.HeadFile, o.codec)
	}
	if o.heads == nil {
		return nil, fmt.Errorf("model %q: %w", pc.Model, featurestore.ErrMissingHead)
	}
	return o.heads.Head(ctx, pc.Model)
}

func (p *pipeline) load(ctx context.Context, role, name string, l *featurestore.Loader) (*featurestore.Result, error) {
	start := time.Now()
	res, err := l.Load(ctx, name)
	if err != nil {
		p.opts.metricsCollector.RecordLoad(role, 0, time.Since(start), err)
		p.opts.logger.LogLoad(ctx, role, name, 0, 0, err)
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	p.opts.metricsCollector.RecordLoad(role, res.Features.Rows(), time.Since(start), nil)
	p.opts.logger.LogLoad(ctx, role, name, res.Features.Rows(), res.Features.Cols(), nil)
	return res, nil
}

func (p *pipeline) search(ctx context.Context, coll, query *featurestore.Result, k int) ([][]int, [][]float64, error) {
	if err := p.searcher.Fit(coll.Features); err != nil {
		return nil, nil, fmt.Errorf("collection: %w", err)
	}
	// k can only be checked against the collection once it is loaded.
	if err := p.searcher.ValidateK(k); err != nil {
		return nil, nil, err
	}
	return p.searcher.QueryWithDistances(ctx, query.Features, k)
}

// renderLogits returns the classifier logits of the queries in the text
// feature format.
func renderLogits(query *featurestore.Result) ([]byte, error) {
	if query.Projection == nil || query.Projection.Weights == nil {
		return nil, fmt.Errorf("%w: head logits need pooled query features with %s",
			ErrDataIntegrity, container.FieldWeights)
	}
	logits, err := query.Projection.Logits(query.Features)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := container.WriteText(&buf, logits, query.IDs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
