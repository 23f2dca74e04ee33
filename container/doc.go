// Package container implements the feature container, a single-file,
// self-describing store of named fields produced by feature extraction.
//
// Layout:
//
//	magic "IMGF" | version u16 | codec name (u8 length + bytes) |
//	header length u32 | header | field payloads
//
// The header lists every field with its dtype, shape, compression, payload
// offset (relative to the end of the header), stored length, raw length and
// the CRC32 (Castagnoli) of the raw payload. All integers are little-endian.
//
// float32 payloads are packed little-endian. strings payloads are a sequence
// of uvarint length-prefixed UTF-8 values.
//
// A container is written in one pass and never grown in place.
//
// The package also reads the tab separated text feature format
// (ReadText), where every line is "<image path>\t<comma separated floats>".
package container
