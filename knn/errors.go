package knn

import (
	"errors"
	"fmt"

	"github.com/hupe1980/imgrank/internal/errs"
)

var (
	// ErrUnknownMetric is returned by New for an unsupported metric name.
	ErrUnknownMetric = fmt.Errorf("%w: unsupported metric", errs.ErrConfig)

	// ErrInvalidK is returned when k is not in [1, reference size].
	ErrInvalidK = fmt.Errorf("%w: invalid k", errs.ErrConfig)

	// ErrNotFitted is returned when querying before Fit.
	ErrNotFitted = errors.New("knn: index not fitted")
)

// ErrDimensionMismatch indicates a query/reference dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return errs.ErrDataIntegrity }
