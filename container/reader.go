package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/hupe1980/imgrank/codec"
	"github.com/hupe1980/imgrank/internal/conv"
	"github.com/hupe1980/imgrank/internal/hash"
)

// Reader decodes fields of a container on demand.
type Reader struct {
	r          io.ReaderAt
	size       int64
	header     Header
	payloadOff int64
}

// NewReader parses the container header from r.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	sr := io.NewSectionReader(r, 0, size)

	var pre [prefixSize + 1]byte
	if _, err := io.ReadFull(sr, pre[:]); err != nil {
		return nil, fmt.Errorf("%w: short prefix: %v", ErrCorrupt, err)
	}
	if string(pre[:4]) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, pre[:4])
	}
	version := binary.LittleEndian.Uint16(pre[4:6])
	if version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}

	name := make([]byte, pre[6])
	if _, err := io.ReadFull(sr, name); err != nil {
		return nil, fmt.Errorf("%w: short codec name: %v", ErrCorrupt, err)
	}
	c, ok := codec.ByName(string(name))
	if !ok {
		return nil, fmt.Errorf("%w: unknown header codec %q", ErrCorrupt, name)
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(sr, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: short header length: %v", ErrCorrupt, err)
	}
	hdrLen := int64(binary.LittleEndian.Uint32(lenBuf[:]))
	start := int64(prefixSize + 1 + len(name) + 4)
	if start+hdrLen > size {
		return nil, fmt.Errorf("%w: header length %d exceeds file size %d", ErrCorrupt, hdrLen, size)
	}

	hdrBytes := make([]byte, hdrLen)
	if _, err := io.ReadFull(sr, hdrBytes); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrCorrupt, err)
	}

	rd := &Reader{r: r, size: size, payloadOff: start + hdrLen}
	if err := c.Unmarshal(hdrBytes, &rd.header); err != nil {
		return nil, fmt.Errorf("%w: decode header: %v", ErrCorrupt, err)
	}
	rd.header.Version = version
	rd.header.Codec = c.Name()

	for _, f := range rd.header.Fields {
		if err := checkField(f, size-rd.payloadOff); err != nil {
			return nil, err
		}
	}
	return rd, nil
}

// checkField validates the header values of f against the payload size
// before anything is allocated from them.
func checkField(f FieldInfo, payload int64) error {
	if f.Offset < 0 || f.Length < 0 || f.Length > payload || f.Offset > payload-f.Length {
		return fmt.Errorf("%w: field %q payload out of bounds", ErrCorrupt, f.Name)
	}
	if f.RawLength < 0 {
		return fmt.Errorf("%w: field %q has negative raw length %d", ErrCorrupt, f.Name, f.RawLength)
	}
	if limit := maxRawLength(f.Compression, f.Length); f.RawLength > limit {
		return fmt.Errorf("%w: field %q raw length %d exceeds %d for %s payload of %d bytes",
			ErrCorrupt, f.Name, f.RawLength, limit, f.Compression, f.Length)
	}

	n, err := conv.Product(f.Shape)
	if err != nil {
		return fmt.Errorf("%w: field %q: %v", ErrCorrupt, f.Name, err)
	}
	switch f.DType {
	case DTypeFloat32:
		if n > math.MaxInt/4 || f.RawLength != 4*int64(n) {
			return fmt.Errorf("%w: field %q shape %v does not match %d bytes", ErrCorrupt, f.Name, f.Shape, f.RawLength)
		}
	case DTypeStrings:
		// Every value takes at least its one-byte length prefix.
		if int64(n) > f.RawLength {
			return fmt.Errorf("%w: field %q shape %v does not fit %d bytes", ErrCorrupt, f.Name, f.Shape, f.RawLength)
		}
	}
	return nil
}

// Header returns the parsed header.
func (r *Reader) Header() Header { return r.header }

// Has reports whether the container stores the named field.
func (r *Reader) Has(name string) bool {
	_, ok := r.header.Field(name)
	return ok
}

func (r *Reader) raw(name string, dtype DType) (FieldInfo, []byte, error) {
	f, ok := r.header.Field(name)
	if !ok {
		return f, nil, fmt.Errorf("%w: %q", ErrFieldNotFound, name)
	}
	if f.DType != dtype {
		return f, nil, fmt.Errorf("%w: field %q has dtype %s, want %s", ErrCorrupt, name, f.DType, dtype)
	}

	stored := make([]byte, f.Length)
	if _, err := r.r.ReadAt(stored, r.payloadOff+f.Offset); err != nil && err != io.EOF {
		return f, nil, fmt.Errorf("container: read %s: %w", name, err)
	}

	data, err := decompress(stored, f.Compression, f.RawLength)
	if err != nil {
		return f, nil, fmt.Errorf("%w: decompress %s: %v", ErrCorrupt, name, err)
	}
	if int64(len(data)) != f.RawLength {
		return f, nil, fmt.Errorf("%w: field %q has %d bytes, header says %d", ErrCorrupt, name, len(data), f.RawLength)
	}
	if sum := hash.CRC32C(data); sum != f.CRC32 {
		return f, nil, &ChecksumError{Field: name, Expected: f.CRC32, Actual: sum}
	}
	return f, data, nil
}

// Float32 decodes a float32 field.
func (r *Reader) Float32(name string) (Array, error) {
	f, data, err := r.raw(name, DTypeFloat32)
	if err != nil {
		return Array{}, err
	}
	if len(data) != 4*f.Elements() {
		return Array{}, fmt.Errorf("%w: field %q shape %v does not match %d bytes", ErrCorrupt, name, f.Shape, len(data))
	}
	out := make([]float32, f.Elements())
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return Array{Shape: append([]int(nil), f.Shape...), Data: out}, nil
}

// Strings decodes a strings field. Values must be valid UTF-8.
func (r *Reader) Strings(name string) ([]string, error) {
	f, data, err := r.raw(name, DTypeStrings)
	if err != nil {
		return nil, err
	}
	n := f.Elements()
	out := make([]string, 0, n)
	for len(data) > 0 {
		u, k := binary.Uvarint(data)
		if k <= 0 || uint64(len(data)-k) < u {
			return nil, fmt.Errorf("%w: truncated string in field %q", ErrCorrupt, name)
		}
		l, err := conv.Uint64ToInt(u)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrCorrupt, name, err)
		}
		s := data[k : k+l]
		if !utf8.Valid(s) {
			return nil, fmt.Errorf("%w: field %q value %d is not valid UTF-8", ErrCorrupt, name, len(out))
		}
		out = append(out, string(s))
		data = data[k+l:]
	}
	if len(out) != n {
		return nil, fmt.Errorf("%w: field %q has %d values, header says %d", ErrCorrupt, name, len(out), n)
	}
	return out, nil
}

// File decodes every known field.
func (r *Reader) File() (*File, error) {
	names, err := r.Strings(FieldNames)
	if err != nil {
		return nil, err
	}
	feats, err := r.Float32(FieldFeatures)
	if err != nil {
		return nil, err
	}
	f := &File{Names: names, Features: feats, Attributes: r.header.Attributes}

	if r.Has(FieldDirs) {
		if f.Dirs, err = r.Strings(FieldDirs); err != nil {
			return nil, err
		}
	}
	if r.Has(FieldWeights) {
		w, err := r.Float32(FieldWeights)
		if err != nil {
			return nil, err
		}
		f.Weights = &w
	}
	return f, nil
}

// Read decodes a whole container.
func Read(r io.ReaderAt, size int64) (*File, error) {
	rd, err := NewReader(r, size)
	if err != nil {
		return nil, err
	}
	return rd.File()
}
