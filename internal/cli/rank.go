package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/hupe1980/imgrank"
	"github.com/hupe1980/imgrank/blobstore"
	"github.com/hupe1980/imgrank/config"
	"github.com/hupe1980/imgrank/metrics/prom"
	"github.com/hupe1980/imgrank/pretrained"
	"github.com/spf13/cobra"
)

const outputLockTimeout = 30 * time.Second

type rankFlags struct {
	config string

	collection string
	query      string
	output     string
	pooling    bool
	policy     string
	batchSize  int
	sigmoid    bool
	follow     bool
	model      string
	head       string
	metric     string
	k          int
	workers    int
	root       string
	logLevel   string
	metricsOut string
}

func newRankCommand() *cobra.Command {
	var f rankFlags
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank the query images against the collection and write a rank file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			return runRank(cmd, cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.config, "config", "c", "", "YAML run configuration")
	fl.StringVar(&f.collection, "collection", "", "collection feature file")
	fl.StringVar(&f.query, "query", "", "query feature file")
	fl.StringVarP(&f.output, "output", "o", "", "rank file to write")
	fl.BoolVar(&f.pooling, "pooling", false, "pool 4-D channel features")
	fl.StringVar(&f.policy, "policy", "", "pooling policy (sum, max, gem, channel_wise_weighting, spatial_wise_weighting)")
	fl.IntVar(&f.batchSize, "batch-size", 0, "pooling batch size")
	fl.BoolVar(&f.sigmoid, "sigmoid", false, "apply a sigmoid before pooling")
	fl.BoolVar(&f.follow, "follow-architecture", false, "apply the model head normalization after pooling")
	fl.StringVar(&f.model, "model", "", "model whose head is followed")
	fl.StringVar(&f.head, "head", "", "head file (JSON) with the normalization parameters")
	fl.StringVar(&f.metric, "metric", "", "distance metric (angular, euclidean, hamming)")
	fl.IntVar(&f.k, "k", 0, "neighbors per query")
	fl.IntVar(&f.workers, "workers", 0, "search workers (0 uses all CPUs)")
	fl.StringVar(&f.root, "root", "", "base directory of the local store")
	fl.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fl.StringVar(&f.metricsOut, "metrics-textfile", "", "write Prometheus metrics to this file after the run")
	return cmd
}

// load reads the config file, if any, and lets explicitly set flags
// override it.
func (f *rankFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		var err error
		if cfg, err = config.Load(f.config); err != nil {
			return nil, err
		}
	}

	set := cmd.Flags().Changed
	if set("collection") {
		cfg.Collection = f.collection
	}
	if set("query") {
		cfg.Query = f.query
	}
	if set("output") {
		cfg.Output = f.output
	}
	if set("pooling") {
		cfg.Pooling.Enabled = f.pooling
	}
	if set("policy") {
		cfg.Pooling.Policy = f.policy
		// Naming a policy implies pooling.
		cfg.Pooling.Enabled = true
	}
	if set("batch-size") {
		cfg.Pooling.BatchSize = f.batchSize
	}
	if set("sigmoid") {
		cfg.Pooling.Sigmoid = f.sigmoid
	}
	if set("follow-architecture") {
		cfg.Pooling.FollowArchitecture = f.follow
	}
	if set("model") {
		cfg.Pooling.Model = f.model
	}
	if set("head") {
		cfg.Pooling.HeadFile = f.head
	}
	if set("metric") {
		cfg.Search.Metric = f.metric
	}
	if set("k") {
		cfg.Search.K = f.k
	}
	if set("workers") {
		cfg.Search.Workers = f.workers
	}
	if set("root") {
		cfg.Storage.Kind = config.StorageLocal
		cfg.Storage.Root = f.root
	}
	if set("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if set("metrics-textfile") {
		cfg.MetricsTextfile = f.metricsOut
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runRank(cmd *cobra.Command, cfg *config.Config) error {
	ctx := cmd.Context()
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	rc := cfg.Controller()
	store, err := cfg.OpenStore(ctx, rc)
	if err != nil {
		return err
	}

	if local, ok := localStore(store); ok {
		unlock, err := lockOutput(ctx, local.Path(cfg.Output)+".lock")
		if err != nil {
			return err
		}
		defer unlock()
	}

	metrics := prom.New()
	report, err := imgrank.Run(ctx, cfg.ToPipeline(),
		imgrank.WithStore(store),
		imgrank.WithHeads(pretrained.NewRegistry()),
		imgrank.WithController(rc),
		imgrank.WithLogger(logger),
		imgrank.WithMetricsCollector(metrics),
	)
	if cfg.MetricsTextfile != "" {
		if werr := metrics.WriteTextfile(cfg.MetricsTextfile); werr != nil {
			logger.WarnContext(ctx, "metrics textfile not written", "path", cfg.MetricsTextfile, "error", werr)
		}
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "collection: %d images, queries: %d, dim: %d\n", report.CollectionRows, report.QueryRows, report.Dim)
	fmt.Fprintf(w, "search:     k=%d, mean nearest distance %.6f, %s per query\n",
		report.Search.K, report.Search.MeanNearest, report.Search.MeanTimePerQuery)
	fmt.Fprintf(w, "rank file:  %s (%d records, %d bytes, crc32c %08x)\n",
		report.Output, report.Records, report.OutputBytes, report.OutputCRC32C)
	if report.LogitsOutput != "" {
		fmt.Fprintf(w, "logits:     %s\n", report.LogitsOutput)
	}
	fmt.Fprintf(w, "total:      %s\n", report.Total.Round(time.Millisecond))
	return nil
}

// localStore unwraps a caching store down to a local one.
func localStore(s blobstore.BlobStore) (*blobstore.LocalStore, bool) {
	if c, ok := s.(*blobstore.CachingStore); ok {
		s = c.Inner()
	}
	l, ok := s.(*blobstore.LocalStore)
	return l, ok
}

// lockOutput takes an exclusive lock next to a local rank file so that two
// runs cannot write the same output.
func lockOutput(ctx context.Context, path string) (func(), error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	l := flock.New(path)

	ctx, cancel := context.WithTimeout(ctx, outputLockTimeout)
	defer cancel()
	locked, err := l.TryLockContext(ctx, 200*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("another run is writing this output (lock: %s): %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("another run is writing this output (lock: %s)", path)
	}
	return func() { _ = l.Unlock() }, nil
}
