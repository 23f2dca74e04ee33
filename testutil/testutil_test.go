package testutil

import (
	"testing"

	"github.com/hupe1980/imgrank/distance"
	"github.com/hupe1980/imgrank/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix(t *testing.T) {
	rng := NewRNG(4711)
	m := rng.Matrix(8, 32)

	assert.Equal(t, 8, m.Rows())
	assert.Equal(t, 32, m.Cols())
	for _, v := range m.Data() {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}

	rng.Reset()
	assert.Equal(t, m.Data(), rng.Matrix(8, 32).Data())
}

func TestQuantizedMatrix(t *testing.T) {
	m := NewRNG(1).QuantizedMatrix(10, 4, 3)
	for _, v := range m.Data() {
		assert.Contains(t, []float64{0, 1, 2}, v)
	}
}

func TestTensor4(t *testing.T) {
	shape := tensor.Shape4{N: 2, C: 3, H: 4, W: 5}
	x := NewRNG(9).Tensor4(shape)
	assert.Equal(t, shape, x.Shape())
	assert.Len(t, x.Data(), 120)
}

func TestExactTopK(t *testing.T) {
	ref, err := tensor.FromRows([][]float64{{0}, {2}, {1}, {1}})
	require.NoError(t, err)

	pos, dist := ExactTopK([]float64{1}, ref, 3, distance.Euclidean)
	assert.Equal(t, []int{2, 3, 0}, pos)
	assert.Equal(t, []float64{0, 0, 1}, dist)

	pos, _ = ExactTopK([]float64{1}, ref, 10, distance.Euclidean)
	assert.Len(t, pos, 4)
}

func TestPermutation(t *testing.T) {
	p := NewRNG(3).Permutation(6)
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5}, p)
}
