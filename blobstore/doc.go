// Package blobstore abstracts where feature containers, head files and rank
// files live.
//
// Built-in implementations:
//
//   - LocalStore: local filesystem, reads through mmap, atomic Put
//   - MemoryStore: in-memory, for tests and dry runs
//   - CachingStore: block cache in front of a remote store
//   - minio.Store and s3.Store in the sub-packages
//
// Blobs are immutable once written: Put replaces a blob as a whole.
package blobstore
