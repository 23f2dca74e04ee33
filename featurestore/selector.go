package featurestore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/hupe1980/imgrank/internal/errs"
)

// Selector is a compiled CEL predicate deciding which items a load keeps.
//
// Variables:
//
//	id      string  identifier without extension, e.g. "12_3"
//	item    int     number before the first "_", or -1
//	variant string  text after the first "_", or ""
//	row     int     zero-based row in the source
//
// Example: `item <= 100 && variant == "1"`.
type Selector struct {
	expr string
	prg  cel.Program
}

var selectorEnv = func() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("item", cel.IntType),
		cel.Variable("variant", cel.StringType),
		cel.Variable("row", cel.IntType),
	)
	if err != nil {
		panic(err)
	}
	return env
}()

// NewSelector compiles expr. Compile errors and non-boolean expressions are
// configuration errors.
func NewSelector(expr string) (*Selector, error) {
	ast, issues := selectorEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: selector %q: %v", errs.ErrConfig, expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: selector %q must be boolean, got %s", errs.ErrConfig, expr, ast.OutputType())
	}
	prg, err := selectorEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: selector %q: %v", errs.ErrConfig, expr, err)
	}
	return &Selector{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (s *Selector) String() string { return s.expr }

// Match evaluates the predicate for one item.
func (s *Selector) Match(id string, row int) (bool, error) {
	item := int64(-1)
	prefix, variant, _ := strings.Cut(id, "_")
	if n, err := strconv.ParseInt(prefix, 10, 64); err == nil {
		item = n
	}

	out, _, err := s.prg.Eval(map[string]any{
		"id":      id,
		"item":    item,
		"variant": variant,
		"row":     int64(row),
	})
	if err != nil {
		return false, fmt.Errorf("featurestore: selector %q on %q: %w", s.expr, id, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("featurestore: selector %q returned %T", s.expr, out.Value())
	}
	return b, nil
}
