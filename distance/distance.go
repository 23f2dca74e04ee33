package distance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float64) float64 {
	return floats.Dot(a, b)
}

// SquaredL2 calculates the squared L2 distance between two vectors.
func SquaredL2(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Euclidean calculates the L2 distance between two vectors.
func Euclidean(a, b []float64) float64 {
	return math.Sqrt(SquaredL2(a, b))
}

// Hamming returns the fraction of positions at which a and b differ.
func Hamming(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	var diff int
	for i := range a {
		if a[i] != b[i] {
			diff++
		}
	}
	return float64(diff) / float64(len(a))
}

// Angular returns 1 - cos(a, b) for vectors that are already L2-normalized.
// The result is clipped to [0, 2] to absorb rounding error.
func Angular(a, b []float64) float64 {
	d := 1 - floats.Dot(a, b)
	switch {
	case d < 0:
		return 0
	case d > 2:
		return 2
	}
	return d
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false, leaving v untouched, if v has zero L2 norm.
func NormalizeL2InPlace(v []float64) bool {
	if len(v) == 0 {
		return false
	}
	norm := floats.Norm(v, 2)
	if norm == 0 {
		return false
	}
	floats.Scale(1/norm, v)
	return true
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	MetricAngular Metric = iota
	MetricEuclidean
	MetricHamming
)

func (m Metric) String() string {
	switch m {
	case MetricAngular:
		return "angular"
	case MetricEuclidean:
		return "euclidean"
	case MetricHamming:
		return "hamming"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseMetric maps a metric name to its Metric.
func ParseMetric(name string) (Metric, bool) {
	switch name {
	case "angular", "cosine":
		return MetricAngular, true
	case "euclidean", "l2":
		return MetricEuclidean, true
	case "hamming":
		return MetricHamming, true
	default:
		return 0, false
	}
}

// Func is a function type for distance calculation.
type Func func(a, b []float64) float64

// Provider returns the distance function for the given metric.
// For MetricAngular the returned function expects normalized inputs.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricAngular:
		return Angular, nil
	case MetricEuclidean:
		return Euclidean, nil
	case MetricHamming:
		return Hamming, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}
