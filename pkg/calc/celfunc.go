package calc

import (
	"context"

	"github.com/docalc/docalc/internal/expressions"
	"github.com/docalc/docalc/pkg/schema"
)

// RegisterCELFunction registers a computation function whose body is a CEL
// expression. The expression sees its inputs as the list variable "args",
// e.g. "args[0] * 1.21" or "size(args) > 1 ? args[1] : args[0]".
//
// The expression is compiled during registration so configuration mistakes
// fail at setup time rather than mid-batch.
func RegisterCELFunction(r *Registry, engine *expressions.CELEngine, name, expression string) error {
	if engine == nil {
		return schema.NewError(schema.ErrCodeValidation, "cel engine is nil")
	}
	if expression == "" {
		return schema.NewErrorf(schema.ErrCodeValidation, "cel function %q has empty expression", name)
	}

	// Warm-up evaluation with no args. A compile failure is a configuration
	// error; a runtime failure (e.g. indexing into the empty list) is fine.
	if _, err := engine.Evaluate(context.Background(), expression, map[string]any{"args": []any{}}); err != nil {
		if schema.IsCode(err, schema.ErrCodeValidation) {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"cel function %q does not compile", name).WithCause(err)
		}
	}

	fn := func(args ...any) (any, error) {
		values := make([]any, len(args))
		copy(values, args)
		out, err := engine.Evaluate(context.Background(), expression, map[string]any{"args": values})
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeCalculation,
				"cel function %q failed", name).WithCause(err)
		}
		return out, nil
	}
	return r.Register(name, fn)
}

// RegisterCELFunctions registers a batch of name -> CEL expression pairs,
// typically loaded from configuration.
func RegisterCELFunctions(r *Registry, engine *expressions.CELEngine, definitions map[string]string) error {
	for name, expression := range definitions {
		if err := RegisterCELFunction(r, engine, name, expression); err != nil {
			return err
		}
	}
	return nil
}
