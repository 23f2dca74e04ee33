// Package testutil provides deterministic data generators for tests,
// benchmarks and the synth command.
//
// # Random Data Generation
//
//	rng := testutil.NewRNG(seed)
//	m := rng.Matrix(100, 64)                     // uniform [0, 1) rows
//	t := rng.Tensor4(tensor.Shape4{N: 8, C: 4, H: 3, W: 3})
//
// # Exact Search (Ground Truth)
//
//	pos, dist := testutil.ExactTopK(query, reference, k, distance.Euclidean)
package testutil
