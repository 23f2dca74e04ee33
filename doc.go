// Package imgrank ranks image collections against query images by the
// similarity of their CNN features.
//
// A run loads two feature sets, the collection and the queries, pools raw
// channel tensors into vectors when asked to, finds the k nearest collection
// images of every query by exact search, and writes a TREC rank file:
//
//	<query>\tQ0\t<image>\t<rank>\t<1 - distance>\tCUR
//
// # Quick Start
//
//	cfg := imgrank.DefaultConfig()
//	cfg.Collection = "collection.imgf"
//	cfg.Query = "queries.imgf"
//	cfg.Output = "run.txt"
//	cfg.Pooling.Enabled = true
//	cfg.Pooling.Policy = "gem"
//	cfg.Search.K = 100
//
//	report, err := imgrank.Run(ctx, cfg, imgrank.WithLogLevel(slog.LevelInfo))
//
// # Storage
//
// Inputs and the rank file go through a blobstore.BlobStore. The default is
// the local file system; blobstore/minio and blobstore/s3 serve object
// storage:
//
//	store, _ := s3.New(ctx, "features", s3.WithPrefix("runs/"))
//	report, err := imgrank.Run(ctx, cfg, imgrank.WithStore(store))
//
// # Determinism
//
// Pooling, search and formatting are deterministic. Running the same
// configuration on the same inputs twice produces byte-identical rank files,
// and Report.OutputCRC32C makes that easy to check.
//
// # Errors
//
// Every failure matches either ErrInvalidConfig or ErrDataIntegrity with
// errors.Is. Configuration errors are reported before any input is read
// whenever they can be detected statically.
package imgrank
