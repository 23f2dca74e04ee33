package container

import (
	"fmt"

	"github.com/hupe1980/imgrank/internal/errs"
	"github.com/hupe1980/imgrank/tensor"
)

// Array is a dense float32 field value.
type Array struct {
	Shape []int
	Data  []float32
}

// ArrayFromTensor4 wraps a channel tensor without copying.
func ArrayFromTensor4(t *tensor.Tensor4) Array {
	s := t.Shape()
	return Array{Shape: []int{s.N, s.C, s.H, s.W}, Data: t.Data()}
}

// ArrayFromMatrix converts a matrix to float32.
func ArrayFromMatrix(m *tensor.Matrix) Array {
	return Array{Shape: []int{m.Rows(), m.Cols()}, Data: m.Float32()}
}

// Rank returns the number of dimensions.
func (a Array) Rank() int { return len(a.Shape) }

// Rows returns the leading dimension, or 0 for an empty array.
func (a Array) Rows() int {
	if len(a.Shape) == 0 {
		return 0
	}
	return a.Shape[0]
}

// Tensor4 views a 4-D array as a channel tensor.
func (a Array) Tensor4() (*tensor.Tensor4, error) {
	if a.Rank() != 4 {
		return nil, fmt.Errorf("%w: expected 4-D array, got shape %v", errs.ErrDataIntegrity, a.Shape)
	}
	return tensor.NewTensor4(tensor.Shape4{N: a.Shape[0], C: a.Shape[1], H: a.Shape[2], W: a.Shape[3]}, a.Data)
}

// Matrix converts a 2-D array to a float64 matrix.
func (a Array) Matrix() (*tensor.Matrix, error) {
	if a.Rank() != 2 {
		return nil, fmt.Errorf("%w: expected 2-D array, got shape %v", errs.ErrDataIntegrity, a.Shape)
	}
	return tensor.FromFloat32(a.Shape[0], a.Shape[1], a.Data)
}

func (a Array) validate() error {
	n := 1
	for _, d := range a.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension in shape %v", errs.ErrDataIntegrity, a.Shape)
		}
		n *= d
	}
	if len(a.Shape) == 0 || n != len(a.Data) {
		return fmt.Errorf("%w: shape %v needs %d values, got %d", errs.ErrDataIntegrity, a.Shape, n, len(a.Data))
	}
	return nil
}

// File is the in-memory content of a container.
type File struct {
	Names    []string
	Dirs     []string
	Features Array
	// Weights are the classifier projection weights, stored (C, K). Optional.
	Weights *Array
	// Attributes are copied into the header.
	Attributes map[string]string
}
