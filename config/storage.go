package config

import (
	"context"
	"fmt"

	"github.com/hupe1980/imgrank/blobstore"
	"github.com/hupe1980/imgrank/blobstore/minio"
	"github.com/hupe1980/imgrank/blobstore/s3"
	"github.com/hupe1980/imgrank/internal/cache"
	"github.com/hupe1980/imgrank/internal/errs"
	"github.com/hupe1980/imgrank/resource"
)

// Storage kinds.
const (
	StorageLocal = "local"
	StorageMinIO = "minio"
	StorageS3    = "s3"
)

func (s Storage) validate() error {
	switch s.Kind {
	case "", StorageLocal:
	case StorageMinIO:
		if s.Endpoint == "" {
			return fmt.Errorf("%w: storage.endpoint is required for minio", errs.ErrConfig)
		}
		fallthrough
	case StorageS3:
		if s.Bucket == "" {
			return fmt.Errorf("%w: storage.bucket is required for %s", errs.ErrConfig, s.Kind)
		}
	default:
		return fmt.Errorf("%w: storage.kind: unknown kind %q", errs.ErrConfig, s.Kind)
	}
	if s.CacheBytes < 0 || s.CacheBlockSize < 0 {
		return fmt.Errorf("%w: storage cache sizes must not be negative", errs.ErrConfig)
	}
	return nil
}

// Controller builds the resource controller of the run.
func (c *Config) Controller() *resource.Controller {
	return resource.NewController(resource.Config{
		MemoryLimitBytes:   c.Resources.MemoryLimitBytes,
		IOLimitBytesPerSec: c.Resources.IOLimitBytesPerSec,
	})
}

// OpenStore connects the configured store. With CacheBytes set the store is
// wrapped in a block cache whose memory is charged to rc.
func (c *Config) OpenStore(ctx context.Context, rc *resource.Controller) (blobstore.BlobStore, error) {
	s := c.Storage
	if err := s.validate(); err != nil {
		return nil, err
	}

	var store blobstore.BlobStore
	switch s.Kind {
	case "", StorageLocal:
		store = blobstore.NewLocalStore(s.Root)
	case StorageMinIO:
		client, err := minio.Connect(minio.Options{
			Endpoint:  s.Endpoint,
			AccessKey: s.AccessKey,
			SecretKey: s.SecretKey,
			Region:    s.Region,
			Secure:    s.Secure,
		})
		if err != nil {
			return nil, fmt.Errorf("storage: connect minio %s: %w", s.Endpoint, err)
		}
		store = minio.NewStore(client, s.Bucket, s.Prefix)
	case StorageS3:
		st, err := s3.New(ctx, s.Bucket, func(o *s3.Options) {
			o.Prefix = s.Prefix
			o.Region = s.Region
			o.Endpoint = s.Endpoint
			o.UsePathStyle = s.UsePathStyle
		})
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		store = st
	}

	if s.CacheBytes > 0 {
		blockSize := s.CacheBlockSize
		if blockSize == 0 {
			blockSize = blobstore.DefaultCacheBlockSize
		}
		store = blobstore.NewCachingStore(store, cache.NewLRU(s.CacheBytes, rc), blockSize)
	}
	return store, nil
}
