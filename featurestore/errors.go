package featurestore

import (
	"fmt"

	"github.com/hupe1980/imgrank/internal/errs"
)

// ErrRowCountMismatch is returned when a container holds a different number
// of feature rows and identifiers.
type ErrRowCountMismatch struct {
	Path string
	Rows int
	IDs  int
}

func (e *ErrRowCountMismatch) Error() string {
	return fmt.Sprintf("featurestore: %s: %d feature rows but %d identifiers", e.Path, e.Rows, e.IDs)
}

// Unwrap makes errors.Is(err, errs.ErrDataIntegrity) hold.
func (e *ErrRowCountMismatch) Unwrap() error { return errs.ErrDataIntegrity }

// ErrChannelTensorWithoutPooling is returned for 4-D features when pooling was
// not requested; a channel tensor cannot be searched directly.
var ErrChannelTensorWithoutPooling = fmt.Errorf("%w: 4-D channel features require pooling", errs.ErrConfig)

// ErrMissingHead is returned when the architecture is followed without a
// pretrained head.
var ErrMissingHead = fmt.Errorf("%w: following the model architecture requires a pretrained head", errs.ErrConfig)
