// Package knn implements exact brute-force k-nearest-neighbor search.
//
// BruteForce holds the reference matrix and answers queries by computing the
// distance from every query row to every reference row. No approximation and
// no index structure is involved, so results are the true nearest neighbors.
//
// Results are ordered by ascending distance with ties broken by ascending
// reference row. The order is a pure function of (reference, query, metric, k)
// and does not depend on the number of workers.
//
//	bf, err := knn.New("angular")
//	if err != nil { ... }
//	if err := bf.Fit(collection); err != nil { ... }
//	positions, distances, err := bf.QueryWithDistances(ctx, queries, 1000)
package knn
