// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
//	store, err := s3.New(ctx, "benchmarks",
//	    s3.WithPrefix("imgrank/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
// Reads are ranged GETs. Small blobs are written with a single PutObject
// carrying a CRC32C checksum; larger ones go through the multipart uploader.
package s3
