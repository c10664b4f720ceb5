package safeeval

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/docalc/docalc/pkg/schema"
)

// maxFormatDepth caps nesting of conditional/arithmetic expressions inside
// a format rule, bounding its evaluation cost.
const maxFormatDepth = 10

// specPattern is the only accepted format-specifier shape: fixed decimal
// places plus one of decimal/fixed/general/exponential/percent.
var specPattern = regexp.MustCompile(`^\.?\d*[dfge%]$`)

var lambdaHeader = regexp.MustCompile(`^lambda\s+(\w+)\s*:\s*(.+)$`)

// EvaluateFormat evaluates a one-argument formatting rule of the shape
// "lambda x: <template expression>" against value, returning the formatted
// string. The body is validated in full (whitelist, specifier pattern,
// nesting depth) before anything is evaluated.
func EvaluateFormat(funcStr string, value any) (string, error) {
	param, body, err := splitLambda(funcStr)
	if err != nil {
		return "", err
	}

	node, err := parse(body, modeFormat)
	if err != nil {
		return "", err
	}
	if err := validateFormat(node, param, 0); err != nil {
		return "", err
	}

	out, err := eval(node, map[string]any{param: value})
	if err != nil {
		if err == errDivZero {
			return "", schema.NewError(schema.ErrCodeEvalExecution, "division by zero in format rule")
		}
		return "", err
	}
	return Str(out), nil
}

// ValidateFormat reports whether a format rule is safe, without applying it.
func ValidateFormat(funcStr string) bool {
	param, body, err := splitLambda(funcStr)
	if err != nil {
		return false
	}
	node, err := parse(body, modeFormat)
	if err != nil {
		return false
	}
	return validateFormat(node, param, 0) == nil
}

func splitLambda(funcStr string) (param, body string, err error) {
	trimmed := strings.TrimSpace(funcStr)
	if trimmed == "" {
		return "", "", schema.NewError(schema.ErrCodeEvalSyntax, "format rule must be a non-empty string")
	}
	if !strings.HasPrefix(trimmed, "lambda") {
		return "", "", schema.NewError(schema.ErrCodeEvalDisallowed, "only single-parameter lambda expressions are allowed")
	}
	m := lambdaHeader.FindStringSubmatch(trimmed)
	if m == nil {
		return "", "", schema.NewError(schema.ErrCodeEvalSyntax, "malformed lambda expression")
	}
	return m[1], strings.TrimSpace(m[2]), nil
}

// validateFormat enforces the format-mode contract ahead of evaluation:
// only the lambda parameter may be referenced, calls stay inside the
// whitelist, format specifiers match specPattern, and nesting stays under
// maxFormatDepth.
func validateFormat(node Node, param string, depth int) error {
	if depth > maxFormatDepth {
		return schema.NewError(schema.ErrCodeEvalTooComplex, "expression too complex")
	}

	switch n := node.(type) {
	case *NumberNode, *StringNode:
		return nil
	case *NameNode:
		if n.Name != param && !allowedFunctions[n.Name] {
			return schema.NewErrorf(schema.ErrCodeEvalUndefined, "undefined name: %s", n.Name)
		}
		return nil
	case *UnaryNode:
		return validateFormat(n.Operand, param, depth+1)
	case *BinaryNode:
		if err := validateFormat(n.Left, param, depth+1); err != nil {
			return err
		}
		return validateFormat(n.Right, param, depth+1)
	case *CompareNode:
		if err := validateFormat(n.Left, param, depth+1); err != nil {
			return err
		}
		for _, c := range n.Comparators {
			if err := validateFormat(c, param, depth+1); err != nil {
				return err
			}
		}
		return nil
	case *CallNode:
		if !allowedFunctions[n.Func] {
			return schema.NewErrorf(schema.ErrCodeEvalDisallowed, "function call not allowed: %s", n.Func)
		}
		for _, a := range n.Args {
			if err := validateFormat(a, param, depth+1); err != nil {
				return err
			}
		}
		return nil
	case *CondNode:
		if err := validateFormat(n.Test, param, depth+1); err != nil {
			return err
		}
		if err := validateFormat(n.Body, param, depth+1); err != nil {
			return err
		}
		return validateFormat(n.Orelse, param, depth+1)
	case *TemplateNode:
		for _, part := range n.Parts {
			if part.Expr == nil {
				continue
			}
			if part.Spec != "" && !specPattern.MatchString(part.Spec) {
				return schema.NewErrorf(schema.ErrCodeEvalDisallowed, "unsafe format spec: %s", part.Spec)
			}
			if err := validateFormat(part.Expr, param, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeEvalDisallowed, "unsupported node type %T", node)
}

// applySpec renders a value with a validated format specifier.
func applySpec(v any, spec string) (string, error) {
	if spec == "" {
		return Str(v), nil
	}
	if !specPattern.MatchString(spec) {
		return "", schema.NewErrorf(schema.ErrCodeEvalDisallowed, "unsafe format spec: %s", spec)
	}

	kind := spec[len(spec)-1]
	precision := -1
	digits := strings.TrimSuffix(strings.TrimPrefix(spec, "."), string(kind))
	if digits != "" {
		precision = 0
		for _, c := range digits {
			precision = precision*10 + int(c-'0')
		}
	}

	f, _, i, err := asNumber(v)
	if err != nil {
		return "", err
	}

	switch kind {
	case 'd':
		if f != math.Trunc(f) {
			return "", schema.NewErrorf(schema.ErrCodeEvalExecution, "cannot format %v with 'd'", v)
		}
		if i == 0 && f != 0 {
			i = int64(f)
		}
		return fmt.Sprintf("%d", i), nil
	case 'f':
		if precision < 0 {
			precision = 6
		}
		return fmt.Sprintf("%.*f", precision, f), nil
	case 'e':
		if precision < 0 {
			precision = 6
		}
		return fmt.Sprintf("%.*e", precision, f), nil
	case 'g':
		if precision < 0 {
			precision = 6
		}
		return fmt.Sprintf("%.*g", precision, f), nil
	case '%':
		if precision < 0 {
			precision = 6
		}
		return fmt.Sprintf("%.*f%%", precision, f*100), nil
	}
	return "", schema.NewErrorf(schema.ErrCodeEvalDisallowed, "unsafe format spec: %s", spec)
}
