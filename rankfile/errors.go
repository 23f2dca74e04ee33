package rankfile

import (
	"fmt"

	"github.com/hupe1980/imgrank/internal/errs"
)

// ErrLengthMismatch is returned when ids, positions and distances disagree
// in length.
var ErrLengthMismatch = fmt.Errorf("%w: rank input lengths differ", errs.ErrDataIntegrity)

// QueryKeyError is returned when a query id does not carry the expected
// item number. It matches ErrQueryKey with errors.Is.
type QueryKeyError struct {
	Index int
	ID    string
	Want  int
	// Got is the parsed key. Only meaningful when Parsed is set.
	Got int
	// Parsed reports whether the id carried a numeric key at all.
	Parsed bool
}

func (e *QueryKeyError) Error() string {
	if !e.Parsed {
		return fmt.Sprintf("rankfile: query %d: id %q has no numeric key, want %d", e.Index, e.ID, e.Want)
	}
	return fmt.Sprintf("rankfile: query %d: id %q has key %d, want %d", e.Index, e.ID, e.Got, e.Want)
}

// Is reports whether target is ErrQueryKey or the data-integrity sentinel.
func (e *QueryKeyError) Is(target error) bool {
	return target == ErrQueryKey || target == errs.ErrDataIntegrity
}

// ErrQueryKey matches every QueryKeyError.
var ErrQueryKey = fmt.Errorf("%w: query key does not match its position", errs.ErrDataIntegrity)
