// Package codec selects the encoding of self-describing metadata blocks.
//
// Feature containers and head files record the codec name next to the bytes it
// produced, so a reader always decodes with the writer's codec.
package codec

import (
	"fmt"
	"sort"

	"github.com/hupe1980/imgrank/internal/errs"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

var builtin = map[string]Codec{
	JSON{}.Name():   JSON{},
	GoJSON{}.Name(): GoJSON{},
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	c, ok := builtin[name]
	return c, ok
}

// Lookup is ByName with an error for unknown names. An empty name selects
// Default.
func Lookup(name string) (Codec, error) {
	if name == "" {
		return Default, nil
	}
	c, ok := ByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q (known: %v)", errs.ErrConfig, name, Names())
	}
	return c, nil
}

// Names lists the built-in codec names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for n := range builtin {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Default is used when writing new containers.
var Default Codec = GoJSON{}
