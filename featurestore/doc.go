// Package featurestore loads feature matrices and their identifiers from
// feature containers or text feature files, pooling channel tensors on the
// way when asked to.
//
// Every load returns exactly one identifier per matrix row, in row order.
package featurestore
