package safeeval

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/docalc/docalc/pkg/schema"
)

// allowedFunctions is the fixed call whitelist shared by both modes.
var allowedFunctions = map[string]bool{
	"abs":   true,
	"round": true,
	"max":   true,
	"min":   true,
	"sum":   true,
	"len":   true,
	"float": true,
	"int":   true,
	"str":   true,
}

// errDivZero is a sentinel: formula mode maps it to 0, format mode reports
// it as an execution failure.
var errDivZero = schema.NewError(schema.ErrCodeEvalExecution, "division by zero")

// EvaluateFormula parses and evaluates a formula expression against the
// given variable binding. Validation is all-or-nothing: undefined names and
// disallowed constructs are rejected before evaluation begins. Division by
// zero yields 0 rather than an error.
func EvaluateFormula(src string, variables map[string]any) (any, error) {
	node, err := parse(src, modeFormula)
	if err != nil {
		return nil, err
	}
	if err := checkNames(node, func(name string) bool {
		_, ok := variables[name]
		return ok
	}); err != nil {
		return nil, err
	}
	out, err := eval(node, variables)
	if err != nil {
		if err == errDivZero {
			return 0.0, nil
		}
		return nil, err
	}
	return out, nil
}

// checkNames walks the tree verifying every name is bound and every call
// targets an allowed function, so evaluation can never touch anything
// outside the whitelist.
func checkNames(node Node, bound func(string) bool) error {
	switch n := node.(type) {
	case *NumberNode, *StringNode:
		return nil
	case *NameNode:
		if !bound(n.Name) && !allowedFunctions[n.Name] {
			return schema.NewErrorf(schema.ErrCodeEvalUndefined, "undefined variable or function: %s", n.Name)
		}
		return nil
	case *UnaryNode:
		return checkNames(n.Operand, bound)
	case *BinaryNode:
		if err := checkNames(n.Left, bound); err != nil {
			return err
		}
		return checkNames(n.Right, bound)
	case *CompareNode:
		if err := checkNames(n.Left, bound); err != nil {
			return err
		}
		for _, c := range n.Comparators {
			if err := checkNames(c, bound); err != nil {
				return err
			}
		}
		return nil
	case *CallNode:
		if !allowedFunctions[n.Func] {
			return schema.NewErrorf(schema.ErrCodeEvalDisallowed, "function call not allowed: %s", n.Func)
		}
		for _, a := range n.Args {
			if err := checkNames(a, bound); err != nil {
				return err
			}
		}
		return nil
	case *CondNode:
		if err := checkNames(n.Test, bound); err != nil {
			return err
		}
		if err := checkNames(n.Body, bound); err != nil {
			return err
		}
		return checkNames(n.Orelse, bound)
	case *TemplateNode:
		for _, part := range n.Parts {
			if part.Expr == nil {
				continue
			}
			if err := checkNames(part.Expr, bound); err != nil {
				return err
			}
		}
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeEvalDisallowed, "unsupported node type %T", node)
}

func eval(node Node, env map[string]any) (any, error) {
	switch n := node.(type) {
	case *NumberNode:
		if n.IsInt {
			return n.Int, nil
		}
		return n.Value, nil

	case *StringNode:
		return n.Value, nil

	case *NameNode:
		if v, ok := env[n.Name]; ok {
			return v, nil
		}
		return nil, schema.NewErrorf(schema.ErrCodeEvalUndefined, "undefined variable or function: %s", n.Name)

	case *UnaryNode:
		v, err := eval(n.Operand, env)
		if err != nil {
			return nil, err
		}
		f, isInt, i, err := asNumber(v)
		if err != nil {
			return nil, err
		}
		if n.Op == "-" {
			if isInt {
				return -i, nil
			}
			return -f, nil
		}
		return v, nil

	case *BinaryNode:
		left, err := eval(n.Left, env)
		if err != nil {
			return nil, err
		}
		right, err := eval(n.Right, env)
		if err != nil {
			return nil, err
		}
		return binaryOp(n.Op, left, right)

	case *CompareNode:
		left, err := eval(n.Left, env)
		if err != nil {
			return nil, err
		}
		for i, op := range n.Ops {
			right, err := eval(n.Comparators[i], env)
			if err != nil {
				return nil, err
			}
			ok, err := compare(op, left, right)
			if err != nil {
				return nil, err
			}
			if !ok {
				return false, nil
			}
			left = right
		}
		return true, nil

	case *CallNode:
		args := make([]any, len(n.Args))
		for i, a := range n.Args {
			v, err := eval(a, env)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return callFunction(n.Func, args)

	case *CondNode:
		test, err := eval(n.Test, env)
		if err != nil {
			return nil, err
		}
		if truthy(test) {
			return eval(n.Body, env)
		}
		return eval(n.Orelse, env)

	case *TemplateNode:
		var sb strings.Builder
		for _, part := range n.Parts {
			if part.Expr == nil {
				sb.WriteString(part.Literal)
				continue
			}
			v, err := eval(part.Expr, env)
			if err != nil {
				return nil, err
			}
			s, err := applySpec(v, part.Spec)
			if err != nil {
				return nil, err
			}
			sb.WriteString(s)
		}
		return sb.String(), nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeEvalDisallowed, "unsupported node type %T", node)
}

func binaryOp(op string, left, right any) (any, error) {
	// String concatenation is the only non-numeric binary operation.
	if op == "+" {
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
	}

	lf, lInt, li, err := asNumber(left)
	if err != nil {
		return nil, err
	}
	rf, rInt, ri, err := asNumber(right)
	if err != nil {
		return nil, err
	}
	bothInt := lInt && rInt

	switch op {
	case "+":
		if bothInt {
			return li + ri, nil
		}
		return lf + rf, nil
	case "-":
		if bothInt {
			return li - ri, nil
		}
		return lf - rf, nil
	case "*":
		if bothInt {
			return li * ri, nil
		}
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, errDivZero
		}
		return lf / rf, nil
	case "//":
		if rf == 0 {
			return nil, errDivZero
		}
		res := math.Floor(lf / rf)
		if bothInt {
			return int64(res), nil
		}
		return res, nil
	case "%":
		if rf == 0 {
			return nil, errDivZero
		}
		res := math.Mod(lf, rf)
		if res != 0 && (res < 0) != (rf < 0) {
			res += rf
		}
		if bothInt {
			return int64(res), nil
		}
		return res, nil
	case "**":
		res := math.Pow(lf, rf)
		if bothInt && ri >= 0 && res == math.Trunc(res) && !math.IsInf(res, 0) {
			return int64(res), nil
		}
		return res, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeEvalDisallowed, "unsupported binary operator: %s", op)
}

func compare(op string, left, right any) (bool, error) {
	if ls, lok := left.(string); lok {
		if rs, rok := right.(string); rok {
			switch op {
			case "<":
				return ls < rs, nil
			case "<=":
				return ls <= rs, nil
			case ">":
				return ls > rs, nil
			case ">=":
				return ls >= rs, nil
			case "==":
				return ls == rs, nil
			case "!=":
				return ls != rs, nil
			}
		}
	}

	lf, _, _, lerr := asNumber(left)
	rf, _, _, rerr := asNumber(right)
	if lerr != nil || rerr != nil {
		// Mixed types only support (in)equality.
		switch op {
		case "==":
			return false, nil
		case "!=":
			return true, nil
		}
		return false, schema.NewErrorf(schema.ErrCodeEvalExecution,
			"cannot order %T and %T", left, right)
	}

	switch op {
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	case "==":
		return lf == rf, nil
	case "!=":
		return lf != rf, nil
	}
	return false, schema.NewErrorf(schema.ErrCodeEvalDisallowed, "unsupported comparison: %s", op)
}

func callFunction(name string, args []any) (any, error) {
	switch name {
	case "abs":
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		f, isInt, i, err := asNumber(args[0])
		if err != nil {
			return nil, err
		}
		if isInt {
			if i < 0 {
				return -i, nil
			}
			return i, nil
		}
		return math.Abs(f), nil

	case "round":
		if err := arity(name, args, 1, 2); err != nil {
			return nil, err
		}
		f, _, _, err := asNumber(args[0])
		if err != nil {
			return nil, err
		}
		if len(args) == 1 {
			return int64(math.RoundToEven(f)), nil
		}
		_, _, digits, err := asNumber(args[1])
		if err != nil {
			return nil, err
		}
		scale := math.Pow(10, float64(digits))
		return math.RoundToEven(f*scale) / scale, nil

	case "max", "min":
		if err := arity(name, args, 1, -1); err != nil {
			return nil, err
		}
		best, bestInt, bestI, err := asNumber(args[0])
		if err != nil {
			return nil, err
		}
		for _, a := range args[1:] {
			f, isInt, i, err := asNumber(a)
			if err != nil {
				return nil, err
			}
			better := f > best
			if name == "min" {
				better = f < best
			}
			if better {
				best, bestInt, bestI = f, isInt, i
			}
		}
		if bestInt {
			return bestI, nil
		}
		return best, nil

	case "sum":
		total := 0.0
		allInt := true
		for _, a := range args {
			f, isInt, _, err := asNumber(a)
			if err != nil {
				return nil, err
			}
			total += f
			allInt = allInt && isInt
		}
		if allInt {
			return int64(total), nil
		}
		return total, nil

	case "len":
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeEvalExecution, "len() expects a string, got %T", args[0])
		}
		return int64(len(s)), nil

	case "float":
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		f, _, _, err := asNumber(args[0])
		if err != nil {
			return nil, err
		}
		return f, nil

	case "int":
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		f, _, _, err := asNumber(args[0])
		if err != nil {
			return nil, err
		}
		return int64(math.Trunc(f)), nil

	case "str":
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		return Str(args[0]), nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeEvalDisallowed, "function call not allowed: %s", name)
}

func arity(name string, args []any, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		return schema.NewErrorf(schema.ErrCodeEvalExecution, "%s(): wrong number of arguments (%d)", name, len(args))
	}
	return nil
}

// asNumber coerces a value to float64, also reporting whether it carries
// an integral identity (and its int64 form).
func asNumber(v any) (f float64, isInt bool, i int64, err error) {
	switch x := v.(type) {
	case int64:
		return float64(x), true, x, nil
	case int:
		return float64(x), true, int64(x), nil
	case float64:
		return x, false, 0, nil
	case float32:
		return float64(x), false, 0, nil
	case bool:
		if x {
			return 1, true, 1, nil
		}
		return 0, true, 0, nil
	case string:
		if iv, perr := strconv.ParseInt(strings.TrimSpace(x), 10, 64); perr == nil {
			return float64(iv), true, iv, nil
		}
		if fv, perr := strconv.ParseFloat(strings.TrimSpace(x), 64); perr == nil {
			return fv, false, 0, nil
		}
	}
	return 0, false, 0, schema.NewErrorf(schema.ErrCodeEvalExecution, "not a number: %v", v)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case int:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	}
	return true
}

// Str renders a value the way the source configurations expect: integral
// floats keep a trailing ".0", integers have no decimal point.
func Str(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eE") && !math.IsInf(x, 0) && !math.IsNaN(x) {
			s += ".0"
		}
		return s
	}
	return fmt.Sprintf("%v", v)
}
