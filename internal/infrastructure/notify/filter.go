package notify

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"softcascade/internal/core/entity"
	"softcascade/internal/domain/lifecycle"
)

// Filter is a compiled CEL predicate over a lifecycle event. The expression
// sees three variables: event (string), entity (the entity type name) and key (int).
//
//	entity != "course_teacher" && event == "after_soft_delete"
type Filter struct {
	expr    string
	program cel.Program
}

// NewFilter compiles expr. An empty expression yields a filter that matches
// everything.
func NewFilter(expr string) (*Filter, error) {
	if expr == "" {
		return &Filter{}, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("event", cel.StringType),
		cel.Variable("entity", cel.StringType),
		cel.Variable("key", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build filter program: %w", err)
	}
	return &Filter{expr: expr, program: program}, nil
}

// Match evaluates the filter for one record.
func (f *Filter) Match(kind lifecycle.EventKind, rec *entity.Record) (bool, error) {
	if f == nil || f.program == nil {
		return true, nil
	}

	out, _, err := f.program.Eval(map[string]any{
		"event":  string(kind),
		"entity": rec.Type,
		"key":    int64(rec.Key),
	})
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q: %w", f.expr, err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T", f.expr, out.Value())
	}
	return matched, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}
