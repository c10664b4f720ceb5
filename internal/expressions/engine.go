package expressions

import "context"

// Engine evaluates expressions embedded in configuration.
// Two implementations: Expr (format-rule conditions and boolean guards)
// and CEL (config-defined calculation functions).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
