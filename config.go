package imgrank

import (
	"fmt"

	"github.com/hupe1980/imgrank/distance"
	"github.com/hupe1980/imgrank/featurestore"
	"github.com/hupe1980/imgrank/knn"
	"github.com/hupe1980/imgrank/pooling"
	"github.com/hupe1980/imgrank/rankfile"
)

// BackendCPU is the only compute backend.
const BackendCPU = "cpu"

// Config describes one ranking run. It replaces every piece of ambient
// process state: the seed and backend are fields like any other.
type Config struct {
	// Collection, Query and Output name blobs in the configured stores.
	Collection string
	Query      string
	Output     string

	// Seed is recorded in the report. Every stage is deterministic, so it
	// only matters to feature producers such as the synth command.
	Seed    int64
	Backend string

	Pooling          PoolingConfig
	Search           SearchConfig
	CollectionFilter FilterConfig
	QueryFilter      FilterConfig
	Rank             RankConfig
}

// PoolingConfig configures how channel tensors become vectors.
type PoolingConfig struct {
	// Enabled pools 4-D features. Without it such inputs are rejected.
	Enabled   bool
	Policy    string
	BatchSize int
	Sigmoid   bool
	GeMP      float64

	// FollowArchitecture applies the model head normalization. The head
	// comes from HeadFile if set, otherwise from the provider by Model.
	FollowArchitecture bool
	Model              string
	HeadFile           string
}

// SearchConfig configures the exact neighbor search.
type SearchConfig struct {
	Metric            string
	K                 int
	Workers           int
	ExcludeDuplicates bool
}

// FilterConfig trims a loaded feature set.
type FilterConfig struct {
	// FirstVariantOnly keeps only "*_1" items of text feature files.
	FirstVariantOnly bool
	FirstN           int
	LastN            int
	// Select is a CEL expression over id, item, variant and row.
	Select string
}

// RankConfig configures the rank file.
type RankConfig struct {
	RunTag    string
	Iteration string
	// HeadLogits also writes the query logits of the classifier head next
	// to the rank file. Requires FollowArchitecture.
	HeadLogits bool
}

// DefaultConfig returns the pipeline defaults: pooling disabled (sum policy
// in batches of 1000 once enabled), angular distance, the 100 nearest images.
func DefaultConfig() Config {
	return Config{
		Backend: BackendCPU,
		Pooling: PoolingConfig{
			Policy:    pooling.PolicySum.String(),
			BatchSize: pooling.DefaultOptions.BatchSize,
			GeMP:      pooling.DefaultGeMP,
		},
		Search: SearchConfig{
			Metric:  distance.MetricAngular.String(),
			K:       100,
			Workers: 1,
		},
		QueryFilter: FilterConfig{FirstVariantOnly: true},
		Rank: RankConfig{
			RunTag:    rankfile.DefaultRunTag,
			Iteration: rankfile.DefaultIteration,
		},
	}
}

// Validate checks everything that can be checked without reading inputs.
func (c Config) Validate() error {
	switch {
	case c.Collection == "":
		return &ConfigError{Field: "collection", Reason: "required"}
	case c.Query == "":
		return &ConfigError{Field: "query", Reason: "required"}
	case c.Output == "":
		return &ConfigError{Field: "output", Reason: "required"}
	}
	if c.Backend != "" && c.Backend != BackendCPU {
		return fmt.Errorf("%w: %q", ErrUnsupportedBackend, c.Backend)
	}

	if _, err := pooling.ParsePolicy(c.Pooling.Policy); err != nil {
		return err
	}
	if c.Pooling.BatchSize <= 0 {
		return &ConfigError{Field: "pooling.batch_size", Reason: fmt.Sprintf("must be > 0, got %d", c.Pooling.BatchSize)}
	}
	if c.Pooling.FollowArchitecture {
		if !c.Pooling.Enabled {
			return &ConfigError{Field: "pooling.follow_architecture", Reason: "requires pooling"}
		}
		if c.Pooling.Model == "" && c.Pooling.HeadFile == "" {
			return fmt.Errorf("pooling.model: %w", featurestore.ErrMissingHead)
		}
	}
	if c.Rank.HeadLogits && !c.Pooling.FollowArchitecture {
		return &ConfigError{Field: "rank.head_logits", Reason: "requires pooling.follow_architecture"}
	}

	if _, ok := distance.ParseMetric(c.Search.Metric); !ok {
		return fmt.Errorf("search.metric: %w: %q", knn.ErrUnknownMetric, c.Search.Metric)
	}
	if c.Search.K <= 0 {
		return &ConfigError{Field: "search.k", Reason: fmt.Sprintf("must be > 0, got %d", c.Search.K)}
	}

	if err := c.CollectionFilter.validate("collection_filter"); err != nil {
		return err
	}
	return c.QueryFilter.validate("query_filter")
}

func (f FilterConfig) validate(field string) error {
	if f.FirstN < 0 || f.LastN < 0 {
		return &ConfigError{Field: field, Reason: "row limits must not be negative"}
	}
	if f.FirstN > 0 && f.LastN > 0 {
		return &ConfigError{Field: field, Reason: "first_n and last_n are mutually exclusive"}
	}
	return nil
}
