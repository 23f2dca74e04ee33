package container

import (
	"errors"
	"fmt"

	"github.com/hupe1980/imgrank/internal/errs"
)

const (
	magic = "IMGF"

	// Version is the current container format version.
	Version uint16 = 1

	prefixSize = 4 + 2 // magic + version
)

// Well-known field names.
const (
	FieldNames    = "image_names"
	FieldDirs     = "image_dirs"
	FieldFeatures = "image_features"
	FieldWeights  = "weights_classifier"
)

// DType is the element type of a field.
type DType string

const (
	DTypeFloat32 DType = "float32"
	DTypeStrings DType = "strings"
)

// Compression is the codec applied to a field payload.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression validates a compression name. The empty string means none.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(s); c {
	case "":
		return CompressionNone, nil
	case CompressionNone, CompressionGzip, CompressionZstd, CompressionLZ4:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown compression %q", errs.ErrConfig, s)
	}
}

// FieldInfo describes one stored field.
type FieldInfo struct {
	Name        string      `json:"name"`
	DType       DType       `json:"dtype"`
	Shape       []int       `json:"shape"`
	Compression Compression `json:"compression"`
	Offset      int64       `json:"offset"`
	Length      int64       `json:"length"`
	RawLength   int64       `json:"raw_length"`
	CRC32       uint32      `json:"crc32"`
}

// Elements returns the product of the shape.
func (f FieldInfo) Elements() int {
	n := 1
	for _, d := range f.Shape {
		n *= d
	}
	return n
}

// Header is the decoded container header.
type Header struct {
	Version uint16      `json:"-"`
	Codec   string      `json:"-"`
	Fields  []FieldInfo `json:"fields"`
	// Attributes carries free-form producer metadata (model name, pooling
	// policy of a pooled container, ...).
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Field returns the named field description.
func (h Header) Field(name string) (FieldInfo, bool) {
	for _, f := range h.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// ErrCorrupt is returned for malformed containers.
var ErrCorrupt = fmt.Errorf("%w: corrupt container", errs.ErrDataIntegrity)

// ErrFieldNotFound is returned when a required field is missing.
var ErrFieldNotFound = errors.New("container: field not found")

// ChecksumError reports a CRC mismatch on a field payload.
type ChecksumError struct {
	Field    string
	Expected uint32
	Actual   uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("container: checksum mismatch in field %q: expected %08x, got %08x",
		e.Field, e.Expected, e.Actual)
}

// Unwrap makes errors.Is(err, ErrCorrupt) hold.
func (e *ChecksumError) Unwrap() error { return ErrCorrupt }
