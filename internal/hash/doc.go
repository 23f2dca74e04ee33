// Package hash provides the CRC32-Castagnoli checksums used for container
// field payloads and rank-file digests.
//
// One-shot:
//
//	sum := hash.CRC32C(payload)
//
// Streaming:
//
//	h := hash.NewCRC32C()
//	io.Copy(h, r)
//	sum := h.Sum32()
package hash
