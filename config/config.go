// Package config reads imgrank run configurations from YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hupe1980/imgrank"
	"github.com/hupe1980/imgrank/internal/errs"
	"gopkg.in/yaml.v3"
)

// Pooling is the pooling section.
type Pooling struct {
	Enabled            bool    `yaml:"enabled"`
	Policy             string  `yaml:"policy"`
	BatchSize          int     `yaml:"batch_size"`
	Sigmoid            bool    `yaml:"sigmoid,omitempty"`
	GeMP               float64 `yaml:"gem_p,omitempty"`
	FollowArchitecture bool    `yaml:"follow_architecture,omitempty"`
	Model              string  `yaml:"model,omitempty"`
	HeadFile           string  `yaml:"head_file,omitempty"`
}

// Search is the search section.
type Search struct {
	Metric            string `yaml:"metric"`
	K                 int    `yaml:"k"`
	Workers           int    `yaml:"workers,omitempty"`
	ExcludeDuplicates bool   `yaml:"exclude_duplicates,omitempty"`
}

// Filter trims one side of the run.
type Filter struct {
	FirstVariantOnly bool   `yaml:"first_variant_only,omitempty"`
	FirstN           int    `yaml:"first_n,omitempty"`
	LastN            int    `yaml:"last_n,omitempty"`
	Select           string `yaml:"select,omitempty"`
}

// Rank is the rank file section.
type Rank struct {
	RunTag     string `yaml:"run_tag,omitempty"`
	Iteration  string `yaml:"iteration,omitempty"`
	HeadLogits bool   `yaml:"head_logits,omitempty"`
}

// Storage selects where inputs are read and the rank file is written.
type Storage struct {
	// Kind is "local", "minio" or "s3".
	Kind string `yaml:"kind"`
	// Root is the base directory of the local store.
	Root string `yaml:"root,omitempty"`

	Bucket       string `yaml:"bucket,omitempty"`
	Prefix       string `yaml:"prefix,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	Region       string `yaml:"region,omitempty"`
	AccessKey    string `yaml:"access_key,omitempty"`
	SecretKey    string `yaml:"secret_key,omitempty"`
	Secure       bool   `yaml:"secure,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty"`

	// CacheBytes enables a block cache in front of remote stores.
	CacheBytes     int64 `yaml:"cache_bytes,omitempty"`
	CacheBlockSize int64 `yaml:"cache_block_size,omitempty"`
}

// Resources bounds pooling memory and read throughput.
type Resources struct {
	MemoryLimitBytes   int64 `yaml:"memory_limit_bytes,omitempty"`
	IOLimitBytesPerSec int64 `yaml:"io_limit_bytes_per_sec,omitempty"`
}

// Logging configures the run logger.
type Logging struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level,omitempty"`
	// Format is text or json.
	Format string `yaml:"format,omitempty"`
}

// Config is the in-memory representation of a run file.
type Config struct {
	Collection string `yaml:"collection"`
	Query      string `yaml:"query"`
	Output     string `yaml:"output"`
	Seed       int64  `yaml:"seed,omitempty"`
	Backend    string `yaml:"backend,omitempty"`

	Pooling          Pooling   `yaml:"pooling"`
	Search           Search    `yaml:"search"`
	CollectionFilter Filter    `yaml:"collection_filter,omitempty"`
	QueryFilter      Filter    `yaml:"query_filter,omitempty"`
	Rank             Rank      `yaml:"rank,omitempty"`
	Storage          Storage   `yaml:"storage"`
	Resources        Resources `yaml:"resources,omitempty"`
	Logging          Logging   `yaml:"logging,omitempty"`

	// MetricsTextfile, if set, receives Prometheus metrics after the run.
	MetricsTextfile string `yaml:"metrics_textfile,omitempty"`
}

// Default returns a Config holding imgrank.DefaultConfig and a local store.
func Default() *Config {
	d := imgrank.DefaultConfig()
	return &Config{
		Backend: d.Backend,
		Pooling: Pooling{
			Policy:    d.Pooling.Policy,
			BatchSize: d.Pooling.BatchSize,
			GeMP:      d.Pooling.GeMP,
		},
		Search: Search{
			Metric:  d.Search.Metric,
			K:       d.Search.K,
			Workers: d.Search.Workers,
		},
		QueryFilter: Filter{FirstVariantOnly: d.QueryFilter.FirstVariantOnly},
		Rank: Rank{
			RunTag:    d.Rank.RunTag,
			Iteration: d.Rank.Iteration,
		},
		Storage: Storage{Kind: StorageLocal},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load reads and parses a config file. Values missing from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected so that
// typos do not silently fall back to defaults. ${VAR} references in the
// storage credentials are expanded from the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: invalid YAML: %v", errs.ErrConfig, err)
	}
	cfg.Storage.AccessKey = os.ExpandEnv(cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = os.ExpandEnv(cfg.Storage.SecretKey)
	return cfg, nil
}

// Marshal encodes cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validate checks the run settings and the storage section.
func (c *Config) Validate() error {
	if err := c.ToPipeline().Validate(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: logging.format: unknown format %q", errs.ErrConfig, c.Logging.Format)
	}
	return c.Storage.validate()
}

// ToPipeline converts the file representation to the run configuration.
func (c *Config) ToPipeline() imgrank.Config {
	return imgrank.Config{
		Collection: c.Collection,
		Query:      c.Query,
		Output:     c.Output,
		Seed:       c.Seed,
		Backend:    c.Backend,
		Pooling: imgrank.PoolingConfig{
			Enabled:            c.Pooling.Enabled,
			Policy:             c.Pooling.Policy,
			BatchSize:          c.Pooling.BatchSize,
			Sigmoid:            c.Pooling.Sigmoid,
			GeMP:               c.Pooling.GeMP,
			FollowArchitecture: c.Pooling.FollowArchitecture,
			Model:              c.Pooling.Model,
			HeadFile:           c.Pooling.HeadFile,
		},
		Search: imgrank.SearchConfig{
			Metric:            c.Search.Metric,
			K:                 c.Search.K,
			Workers:           c.Search.Workers,
			ExcludeDuplicates: c.Search.ExcludeDuplicates,
		},
		CollectionFilter: c.CollectionFilter.toPipeline(),
		QueryFilter:      c.QueryFilter.toPipeline(),
		Rank: imgrank.RankConfig{
			RunTag:     c.Rank.RunTag,
			Iteration:  c.Rank.Iteration,
			HeadLogits: c.Rank.HeadLogits,
		},
	}
}

func (f Filter) toPipeline() imgrank.FilterConfig {
	return imgrank.FilterConfig{
		FirstVariantOnly: f.FirstVariantOnly,
		FirstN:           f.FirstN,
		LastN:            f.LastN,
		Select:           f.Select,
	}
}

// Level parses Logging.Level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.Logging.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.Logging.Level))); err != nil {
		return 0, fmt.Errorf("%w: logging.level: %v", errs.ErrConfig, err)
	}
	return l, nil
}

// Logger builds the run logger.
func (c *Config) Logger() (*imgrank.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}
	if c.Logging.Format == "json" {
		return imgrank.NewJSONLogger(level), nil
	}
	return imgrank.NewTextLogger(level), nil
}
