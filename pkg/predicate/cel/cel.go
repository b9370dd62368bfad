// Package cel adapts google/cel-go into a predicate.Clause, the concrete
// compiler spec.md carves out as an external collaborator for the
// where-clause runtime (pkg/predicate).
package cel

import (
	"fmt"

	celgo "github.com/google/cel-go/cel"

	"github.com/seriesdb/seriesdb/pkg/predicate"
	"github.com/seriesdb/seriesdb/pkg/value"
)

// FieldSpec declares one series' name and dynamic kind — the minimum a CEL
// environment needs to type-check an expression against it.
type FieldSpec struct {
	Name string
	Kind value.Kind
}

func celType(k value.Kind) (*celgo.Type, error) {
	switch k {
	case value.KindBool:
		return celgo.BoolType, nil
	case value.KindInt64:
		return celgo.IntType, nil
	case value.KindUint64:
		return celgo.UintType, nil
	case value.KindDouble:
		return celgo.DoubleType, nil
	case value.KindString:
		return celgo.StringType, nil
	default:
		return nil, fmt.Errorf("cel: unsupported field kind %v", k)
	}
}

type clause struct {
	prog   celgo.Program
	fields []FieldSpec
}

func (c *clause) Series() []string {
	names := make([]string, len(c.fields))
	for i, f := range c.fields {
		names[i] = f.Name
	}
	return names
}

// Eval feeds values (in the same order as c.fields, matching Series()) to
// the compiled program. A runtime evaluation error (e.g. a no-such-overload
// from a type mismatch the env didn't catch) is treated as non-matching
// rather than propagated, since Clause.Eval has no error return.
func (c *clause) Eval(values []value.Cell) bool {
	vars := make(map[string]any, len(c.fields))
	for i, f := range c.fields {
		vars[f.Name] = toCELValue(values[i])
	}
	out, _, err := c.prog.Eval(vars)
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

func toCELValue(c value.Cell) any {
	switch c.Kind {
	case value.KindBool:
		return c.Bool
	case value.KindInt64:
		return c.Int64
	case value.KindUint64:
		return c.Uint64
	case value.KindDouble:
		return c.Double
	case value.KindString:
		return c.Str
	default:
		return nil
	}
}

// Compile compiles expr against fields, returning a predicate.Clause. expr
// must evaluate to bool. Declare only the fields within one record store's
// namespace (node or edge series, never both) so predicate.Classify can
// still tell which namespace the resulting clause belongs to — Compile
// itself has no namespace concept, it only type-checks and binds variables.
func Compile(expr string, fields []FieldSpec) (predicate.Clause, error) {
	opts := make([]celgo.EnvOption, 0, len(fields))
	for _, f := range fields {
		t, err := celType(f.Kind)
		if err != nil {
			return nil, err
		}
		opts = append(opts, celgo.Variable(f.Name, t))
	}

	env, err := celgo.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("cel: new env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("cel: compile %q: %w", expr, iss.Err())
	}
	if ast.OutputType() != celgo.BoolType {
		return nil, fmt.Errorf("cel: expression %q does not evaluate to bool", expr)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel: program %q: %w", expr, err)
	}
	return &clause{prog: prg, fields: fields}, nil
}
