// Package errs holds the error classes shared by every imgrank package.
//
// Packages wrap these sentinels in their own typed errors so that callers can
// classify any failure with errors.Is without knowing which stage produced it.
package errs

import "errors"

var (
	// ErrConfig marks a configuration error. These are detected before any
	// batch is processed whenever the problem is statically knowable.
	ErrConfig = errors.New("invalid configuration")

	// ErrDataIntegrity marks inconsistent input data, such as a feature matrix
	// whose row count differs from its identifier sequence.
	ErrDataIntegrity = errors.New("data integrity violation")
)
