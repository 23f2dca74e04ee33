// Package distance provides the vector distance kernels used by exact search.
//
// Kernels operate on float64 slices and delegate the arithmetic to
// gonum/floats. All kernels are pure and deterministic: identical inputs yield
// bit-identical outputs regardless of call order.
//
// # Supported Metrics
//
//   - MetricAngular: 1 - cosine similarity, clipped to [0, 2]
//   - MetricEuclidean: L2 distance
//   - MetricHamming: fraction of coordinates that differ
//
// # Usage
//
//	fn, _ := distance.Provider(distance.MetricEuclidean)
//	d := fn(a, b)
package distance
