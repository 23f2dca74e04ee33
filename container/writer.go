package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/imgrank/codec"
	"github.com/hupe1980/imgrank/internal/conv"
	"github.com/hupe1980/imgrank/internal/errs"
	"github.com/hupe1980/imgrank/internal/hash"
)

// WriteOptions contains configuration options for Write.
type WriteOptions struct {
	// Compression applied to float32 fields.
	Compression Compression
	// StringCompression applied to strings fields.
	StringCompression Compression
	// Codec encodes the header.
	Codec codec.Codec
}

// DefaultWriteOptions contains the default configuration options.
var DefaultWriteOptions = WriteOptions{
	Compression:       CompressionZstd,
	StringCompression: CompressionGzip,
	Codec:             codec.Default,
}

type pendingField struct {
	info    FieldInfo
	payload []byte
}

// Write encodes f as a complete container.
func Write(w io.Writer, f *File, optFns ...func(o *WriteOptions)) error {
	opts := DefaultWriteOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if len(opts.Codec.Name()) > math.MaxUint8 {
		return fmt.Errorf("%w: codec name too long", errs.ErrConfig)
	}

	if err := f.Features.validate(); err != nil {
		return fmt.Errorf("container: %s: %w", FieldFeatures, err)
	}
	if f.Features.Rank() != 2 && f.Features.Rank() != 4 {
		return fmt.Errorf("%w: %s must be 2-D or 4-D, got shape %v",
			errs.ErrDataIntegrity, FieldFeatures, f.Features.Shape)
	}

	var fields []pendingField
	add := func(name string, dtype DType, shape []int, raw []byte, c Compression) error {
		stored, err := compress(raw, c)
		if err != nil {
			return fmt.Errorf("container: compress %s: %w", name, err)
		}
		fields = append(fields, pendingField{
			info: FieldInfo{
				Name:        name,
				DType:       dtype,
				Shape:       shape,
				Compression: c,
				Length:      int64(len(stored)),
				RawLength:   int64(len(raw)),
				CRC32:       hash.CRC32C(raw),
			},
			payload: stored,
		})
		return nil
	}

	if err := add(FieldNames, DTypeStrings, []int{len(f.Names)}, encodeStrings(f.Names), opts.StringCompression); err != nil {
		return err
	}
	if f.Dirs != nil {
		if err := add(FieldDirs, DTypeStrings, []int{len(f.Dirs)}, encodeStrings(f.Dirs), opts.StringCompression); err != nil {
			return err
		}
	}
	if err := add(FieldFeatures, DTypeFloat32, f.Features.Shape, encodeFloat32(f.Features.Data), opts.Compression); err != nil {
		return err
	}
	if f.Weights != nil {
		if err := f.Weights.validate(); err != nil {
			return fmt.Errorf("container: %s: %w", FieldWeights, err)
		}
		if err := add(FieldWeights, DTypeFloat32, f.Weights.Shape, encodeFloat32(f.Weights.Data), opts.Compression); err != nil {
			return err
		}
	}

	hdr := Header{Attributes: f.Attributes}
	var offset int64
	for i := range fields {
		fields[i].info.Offset = offset
		offset += fields[i].info.Length
		hdr.Fields = append(hdr.Fields, fields[i].info)
	}

	hdrBytes, err := opts.Codec.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("container: encode header: %w", err)
	}
	hdrLen, err := conv.IntToUint32(len(hdrBytes))
	if err != nil {
		return fmt.Errorf("%w: header too large: %v", errs.ErrDataIntegrity, err)
	}

	var pre bytes.Buffer
	pre.WriteString(magic)
	_ = binary.Write(&pre, binary.LittleEndian, Version)
	pre.WriteByte(byte(len(opts.Codec.Name())))
	pre.WriteString(opts.Codec.Name())
	_ = binary.Write(&pre, binary.LittleEndian, hdrLen)
	pre.Write(hdrBytes)

	if _, err := w.Write(pre.Bytes()); err != nil {
		return err
	}
	for _, pf := range fields {
		if _, err := w.Write(pf.payload); err != nil {
			return err
		}
	}
	return nil
}

func encodeFloat32(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(x))
	}
	return out
}

func encodeStrings(v []string) []byte {
	var buf []byte
	for _, s := range v {
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		buf = append(buf, s...)
	}
	return buf
}
