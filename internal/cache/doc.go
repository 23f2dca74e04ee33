// Package cache provides a byte-bounded LRU of immutable blob blocks, used to
// coalesce the many small reads a container header parse issues against
// remote object stores.
package cache
