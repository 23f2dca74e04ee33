// Package pooling reduces channel feature tensors (N, C, H, W) to embedding
// matrices (N, C).
//
// The policy set is closed: sum, max, gem, channel_wise_weighting and
// spatial_wise_weighting. Each policy is a pure per-item function, so the
// Engine can process items in bounded batches and concatenate the results in
// input order without affecting the output.
//
// An optional Projection replays the final normalization stage of the model
// head that produced the features (for ConvNeXt a LayerNorm over channels),
// so pooled vectors live in the same space as the model's own embeddings.
package pooling
