package tensor

import (
	"fmt"

	"github.com/hupe1980/imgrank/internal/errs"
)

// Shape4 is the shape of a channel tensor.
type Shape4 struct {
	N, C, H, W int
}

// ItemSize returns the number of values of a single item (C*H*W).
func (s Shape4) ItemSize() int { return s.C * s.H * s.W }

// Spatial returns the number of values of a single channel map (H*W).
func (s Shape4) Spatial() int { return s.H * s.W }

// Len returns the total number of values.
func (s Shape4) Len() int { return s.N * s.ItemSize() }

func (s Shape4) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", s.N, s.C, s.H, s.W)
}

// Tensor4 is a dense (N, C, H, W) float32 tensor.
type Tensor4 struct {
	shape Shape4
	data  []float32
}

// NewTensor4 wraps data as a tensor of the given shape. data is not copied.
func NewTensor4(shape Shape4, data []float32) (*Tensor4, error) {
	if shape.N < 0 || shape.C <= 0 || shape.H <= 0 || shape.W <= 0 {
		return nil, fmt.Errorf("%w: invalid tensor shape %s", errs.ErrDataIntegrity, shape)
	}
	if len(data) != shape.Len() {
		return nil, fmt.Errorf("%w: tensor shape %s needs %d values, got %d",
			errs.ErrDataIntegrity, shape, shape.Len(), len(data))
	}
	return &Tensor4{shape: shape, data: data}, nil
}

// ZerosTensor4 allocates a zero-filled tensor.
func ZerosTensor4(shape Shape4) *Tensor4 {
	return &Tensor4{shape: shape, data: make([]float32, shape.Len())}
}

// Shape returns the tensor shape.
func (t *Tensor4) Shape() Shape4 { return t.shape }

// Len returns N.
func (t *Tensor4) Len() int { return t.shape.N }

// Data returns the backing slice.
func (t *Tensor4) Data() []float32 { return t.data }

// Item returns the C*H*W values of item n.
func (t *Tensor4) Item(n int) []float32 {
	size := t.shape.ItemSize()
	return t.data[n*size : (n+1)*size]
}

// Channel returns the H*W values of channel c of item n.
func (t *Tensor4) Channel(n, c int) []float32 {
	sp := t.shape.Spatial()
	off := n*t.shape.ItemSize() + c*sp
	return t.data[off : off+sp]
}

// At returns the value at (n, c, h, w).
func (t *Tensor4) At(n, c, h, w int) float32 {
	return t.data[t.offset(n, c, h, w)]
}

// Set stores v at (n, c, h, w).
func (t *Tensor4) Set(n, c, h, w int, v float32) {
	t.data[t.offset(n, c, h, w)] = v
}

func (t *Tensor4) offset(n, c, h, w int) int {
	s := t.shape
	return ((n*s.C+c)*s.H+h)*s.W + w
}

// Slice returns a view of items [lo, hi).
func (t *Tensor4) Slice(lo, hi int) *Tensor4 {
	if lo < 0 || hi > t.shape.N || lo > hi {
		panic(fmt.Sprintf("tensor: slice [%d:%d] out of range for %d items", lo, hi, t.shape.N))
	}
	size := t.shape.ItemSize()
	shape := t.shape
	shape.N = hi - lo
	return &Tensor4{shape: shape, data: t.data[lo*size : hi*size]}
}
