package testutil

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/hupe1980/imgrank/distance"
	"github.com/hupe1980/imgrank/tensor"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// FillUniform fills dst with random values in range [0, 1).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// FillGaussian fills dst with standard normal values.
func (r *RNG) FillGaussian(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = float32(r.rand.NormFloat64())
	}
}

// Matrix generates a rows x cols matrix with values in [0, 1).
func (r *RNG) Matrix(rows, cols int) *tensor.Matrix {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := tensor.Zeros(rows, cols)
	data := m.Data()
	for i := range data {
		data[i] = r.rand.Float64()
	}
	return m
}

// QuantizedMatrix generates a matrix whose values are drawn from
// {0, 1, ..., levels-1}. Few levels produce many equal distances, which is
// what tie-breaking tests need.
func (r *RNG) QuantizedMatrix(rows, cols, levels int) *tensor.Matrix {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := tensor.Zeros(rows, cols)
	data := m.Data()
	for i := range data {
		data[i] = float64(r.rand.Intn(levels))
	}
	return m
}

// Tensor4 generates a channel tensor with standard normal activations,
// which exercises both negative inputs and the clamping paths of pooling.
func (r *RNG) Tensor4(shape tensor.Shape4) *tensor.Tensor4 {
	t := tensor.ZerosTensor4(shape)
	r.FillGaussian(t.Data())
	return t
}

// ExactTopK computes the k nearest reference rows for query by a full sort.
// It is the ground truth the heap-based search is checked against.
func ExactTopK(query []float64, ref *tensor.Matrix, k int, fn distance.Func) ([]int, []float64) {
	type cand struct {
		row  int
		dist float64
	}
	all := make([]cand, ref.Rows())
	for i := range all {
		all[i] = cand{row: i, dist: fn(query, ref.Row(i))}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].dist < all[j].dist })

	k = min(k, len(all))
	pos := make([]int, k)
	dist := make([]float64, k)
	for i := 0; i < k; i++ {
		pos[i] = all[i].row
		dist[i] = all[i].dist
	}
	return pos, dist
}

// Permutation returns a random permutation of [0, n).
func (r *RNG) Permutation(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Perm(n)
}

// AlmostEqual reports whether a and b differ by at most tol element-wise.
func AlmostEqual(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}
