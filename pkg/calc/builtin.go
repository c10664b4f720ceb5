package calc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docalc/docalc/internal/safeeval"
	"github.com/docalc/docalc/pkg/schema"
)

// Built-in function names. Each is also registered under a "calculate_"
// prefixed alias so older mapping configurations keep resolving.
const (
	FuncEnergyClassRating = "energy_class_rating"
	FuncEnergyEfficacy    = "energy_efficacy"
	FuncPercentage        = "percentage"
	FuncFormatNumber      = "format_number"
	FuncConcat            = "concat"
	FuncMultiply          = "multiply"
	FuncDivide            = "divide"
)

// RegisterBuiltins registers the built-in computation functions on r,
// under both their plain names and their "calculate_" aliases.
func RegisterBuiltins(r *Registry) {
	builtins := map[string]Function{
		FuncEnergyClassRating: EnergyClassRating,
		FuncEnergyEfficacy:    EnergyEfficacy,
		FuncPercentage:        Percentage,
		FuncFormatNumber:      FormatNumber,
		FuncConcat:            Concat,
		FuncMultiply:          Multiply,
		FuncDivide:            Divide,
	}
	for name, fn := range builtins {
		r.Register(name, fn)
		r.Register("calculate_"+name, fn)
	}
}

// toFloat coerces numeric-ish values to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// falsy reports whether v is absent, empty, or numerically zero.
func falsy(v any) bool {
	switch n := v.(type) {
	case nil:
		return true
	case string:
		return n == ""
	case bool:
		return !n
	default:
		f, ok := toFloat(v)
		return ok && f == 0
	}
}

// EnergyClassRating maps luminous efficacy (flux / wattage, in lm/W) to an
// energy label class. Returns "N/A" when wattage is missing or zero, or
// flux is missing or not numeric.
func EnergyClassRating(args ...any) (any, error) {
	if len(args) < 2 {
		return nil, schema.NewErrorf(schema.ErrCodeCalculation,
			"energy_class_rating requires wattage and flux, got %d args", len(args))
	}
	wattage, flux := args[0], args[1]
	if falsy(wattage) || falsy(flux) {
		return "N/A", nil
	}
	w, okW := toFloat(wattage)
	f, okF := toFloat(flux)
	if !okW || !okF || w == 0 {
		return "N/A", nil
	}

	efficacy := f / w
	switch {
	case efficacy >= 210:
		return "A++", nil
	case efficacy >= 185:
		return "A+", nil
	case efficacy >= 160:
		return "A", nil
	case efficacy >= 135:
		return "B", nil
	case efficacy >= 110:
		return "C", nil
	case efficacy >= 85:
		return "D", nil
	default:
		return "E", nil
	}
}

// EnergyEfficacy formats flux / wattage with two decimals, or "N/A" when
// either input is unusable.
func EnergyEfficacy(args ...any) (any, error) {
	if len(args) < 2 {
		return nil, schema.NewErrorf(schema.ErrCodeCalculation,
			"energy_efficacy requires wattage and flux, got %d args", len(args))
	}
	wattage, flux := args[0], args[1]
	if falsy(wattage) || falsy(flux) {
		return "N/A", nil
	}
	w, okW := toFloat(wattage)
	f, okF := toFloat(flux)
	if !okW || !okF || w == 0 {
		return "N/A", nil
	}
	return fmt.Sprintf("%.2f", f/w), nil
}

// Percentage formats value as a percentage of total. A missing, zero or
// non-numeric total yields "0.00%".
func Percentage(args ...any) (any, error) {
	if len(args) < 2 {
		return nil, schema.NewErrorf(schema.ErrCodeCalculation,
			"percentage requires value and total, got %d args", len(args))
	}
	value, okV := toFloat(args[0])
	total, okT := toFloat(args[1])
	if !okV || !okT || total == 0 {
		return "0.00%", nil
	}
	return fmt.Sprintf("%.2f%%", value/total*100), nil
}

// FormatNumber renders a numeric value with a fixed number of decimals
// (default two). Non-numeric values pass through as their string form.
func FormatNumber(args ...any) (any, error) {
	if len(args) < 1 {
		return nil, schema.NewError(schema.ErrCodeCalculation, "format_number requires a value")
	}
	decimals := 2
	if len(args) >= 2 {
		if d, ok := toFloat(args[1]); ok {
			decimals = int(d)
		}
	}
	f, ok := toFloat(args[0])
	if !ok {
		return safeeval.Str(args[0]), nil
	}
	return fmt.Sprintf("%.*f", decimals, f), nil
}

// Concat joins the string forms of its arguments with a single space,
// skipping missing values.
func Concat(args ...any) (any, error) {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		parts = append(parts, safeeval.Str(a))
	}
	return strings.Join(parts, " "), nil
}

// Multiply returns the product of its first two arguments, or 0.0 when
// either is not numeric.
func Multiply(args ...any) (any, error) {
	if len(args) < 2 {
		return nil, schema.NewErrorf(schema.ErrCodeCalculation,
			"multiply requires two values, got %d args", len(args))
	}
	a, okA := toFloat(args[0])
	b, okB := toFloat(args[1])
	if !okA || !okB {
		return 0.0, nil
	}
	return a * b, nil
}

// Divide returns numerator / denominator. When the denominator is zero or
// either value is not numeric, the optional third argument is returned as
// the default (0.0 when omitted).
func Divide(args ...any) (any, error) {
	if len(args) < 2 {
		return nil, schema.NewErrorf(schema.ErrCodeCalculation,
			"divide requires numerator and denominator, got %d args", len(args))
	}
	def := 0.0
	if len(args) >= 3 {
		if d, ok := toFloat(args[2]); ok {
			def = d
		}
	}
	a, okA := toFloat(args[0])
	b, okB := toFloat(args[1])
	if !okA || !okB || b == 0 {
		return def, nil
	}
	return a / b, nil
}
