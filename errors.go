package imgrank

import (
	"fmt"

	"github.com/hupe1980/imgrank/internal/errs"
)

var (
	// ErrInvalidConfig marks configuration errors: unknown pooling policy or
	// metric, k outside the collection size, contradictory options.
	ErrInvalidConfig = errs.ErrConfig

	// ErrDataIntegrity marks inconsistent inputs: row counts that differ from
	// identifier counts, malformed query ids, corrupt containers.
	ErrDataIntegrity = errs.ErrDataIntegrity

	// ErrUnsupportedBackend is returned for any compute backend but "cpu".
	ErrUnsupportedBackend = fmt.Errorf("%w: unsupported backend", errs.ErrConfig)
)

// ConfigError reports an invalid Config field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }
