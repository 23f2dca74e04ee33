// Package tensor provides the two numeric containers the pipeline moves
// between stages.
//
// Tensor4 holds raw channel feature maps with shape (N, C, H, W) in row-major
// float32 layout, exactly as the extraction collaborator persists them.
// Matrix holds pooled or extracted embeddings with shape (N, D) in float64 and
// exposes a gonum view for linear algebra.
//
// Row i of either container belongs to identifier i of the accompanying
// identifier sequence. Row slicing returns views that share storage.
package tensor
