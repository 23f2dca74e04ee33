package imgrank

import (
	"log/slog"

	"github.com/hupe1980/imgrank/blobstore"
	"github.com/hupe1980/imgrank/codec"
	"github.com/hupe1980/imgrank/pretrained"
	"github.com/hupe1980/imgrank/resource"
)

type options struct {
	codec            codec.Codec
	store            blobstore.BlobStore
	outputStore      blobstore.BlobStore
	heads            pretrained.HeadProvider
	controller       *resource.Controller
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Run.
type Option func(*options)

// WithCodec configures the codec used for decoding head files.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithStore sets the store the feature files and head files are read from.
// Unless WithOutputStore is given, the rank file is written there as well.
//
// Example with MinIO:
//
//	client, _ := minio.Connect(minio.Options{Endpoint: "localhost:9000", ...})
//	report, _ := imgrank.Run(ctx, cfg, imgrank.WithStore(minio.NewStore(client, "features", "")))
func WithStore(s blobstore.BlobStore) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithOutputStore sets the store the rank file is written to.
func WithOutputStore(s blobstore.BlobStore) Option {
	return func(o *options) {
		o.outputStore = s
	}
}

// WithHeads supplies pretrained heads by model name for
// architecture-matching runs without a head file.
func WithHeads(p pretrained.HeadProvider) Option {
	return func(o *options) {
		o.heads = p
	}
}

// WithController bounds pooling memory and input read throughput.
func WithController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithMetricsCollector configures a metrics collector for the run.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &imgrank.BasicMetricsCollector{}
//	_, _ = imgrank.Run(ctx, cfg, imgrank.WithMetricsCollector(metrics))
//	stats := metrics.GetStats()
//	fmt.Printf("queries: %d, avg: %dns\n", stats.SearchQueries, stats.SearchAvgQueryNano)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for the run.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.store == nil {
		o.store = blobstore.NewLocalStore("")
	}
	if o.outputStore == nil {
		o.outputStore = o.store
	}
	return o
}
