package safeeval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docalc/docalc/pkg/schema"
)

func TestEvaluateFormula_Arithmetic(t *testing.T) {
	vars := map[string]any{"A": 2.0, "B": 8.0}

	t.Run("division and multiplication", func(t *testing.T) {
		out, err := EvaluateFormula("B/A*1000", vars)
		require.NoError(t, err)
		assert.Equal(t, 4000.0, out)
	})

	t.Run("addition and subtraction", func(t *testing.T) {
		out, err := EvaluateFormula("A + B - 1", vars)
		require.NoError(t, err)
		assert.Equal(t, 9.0, out)
	})

	t.Run("power", func(t *testing.T) {
		out, err := EvaluateFormula("2 ** 10", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1024), out)
	})

	t.Run("power is right associative", func(t *testing.T) {
		out, err := EvaluateFormula("2 ** 3 ** 2", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(512), out)
	})

	t.Run("floor division", func(t *testing.T) {
		out, err := EvaluateFormula("7 // 2", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(3), out)
	})

	t.Run("floor division of negatives rounds down", func(t *testing.T) {
		out, err := EvaluateFormula("-7 // 2", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(-4), out)
	})

	t.Run("modulo takes the divisor sign", func(t *testing.T) {
		out, err := EvaluateFormula("-7 % 3", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), out)
	})

	t.Run("unary minus", func(t *testing.T) {
		out, err := EvaluateFormula("-A * 3", vars)
		require.NoError(t, err)
		assert.Equal(t, -6.0, out)
	})

	t.Run("parentheses", func(t *testing.T) {
		out, err := EvaluateFormula("(A + B) * 2", vars)
		require.NoError(t, err)
		assert.Equal(t, 20.0, out)
	})
}

func TestEvaluateFormula_DivisionByZero(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		out, err := EvaluateFormula("10 / 0", nil)
		require.NoError(t, err)
		assert.Equal(t, 0.0, out)
	})

	t.Run("via variable", func(t *testing.T) {
		out, err := EvaluateFormula("A / B", map[string]any{"A": 5.0, "B": 0.0})
		require.NoError(t, err)
		assert.Equal(t, 0.0, out)
	})

	t.Run("floor division", func(t *testing.T) {
		out, err := EvaluateFormula("5 // 0", nil)
		require.NoError(t, err)
		assert.Equal(t, 0.0, out)
	})

	t.Run("modulo", func(t *testing.T) {
		out, err := EvaluateFormula("5 % 0", nil)
		require.NoError(t, err)
		assert.Equal(t, 0.0, out)
	})
}

func TestEvaluateFormula_AllowedFunctions(t *testing.T) {
	cases := []struct {
		expr string
		want any
	}{
		{"abs(-3)", int64(3)},
		{"abs(-3.5)", 3.5},
		{"round(2.5)", int64(2)}, // banker's rounding
		{"round(3.14159, 2)", 3.14},
		{"max(1, 5, 3)", int64(5)},
		{"min(2.5, 1.5)", 1.5},
		{"sum(1, 2, 3)", int64(6)},
		{"float(3)", 3.0},
		{"int(3.9)", int64(3)},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			out, err := EvaluateFormula(tc.expr, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		})
	}
}

func TestEvaluateFormula_Comparisons(t *testing.T) {
	t.Run("simple", func(t *testing.T) {
		out, err := EvaluateFormula("3 > 2", nil)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("chained", func(t *testing.T) {
		out, err := EvaluateFormula("1 < 2 < 3", nil)
		require.NoError(t, err)
		assert.Equal(t, true, out)

		out, err = EvaluateFormula("1 < 3 < 2", nil)
		require.NoError(t, err)
		assert.Equal(t, false, out)
	})

	t.Run("conditional expression", func(t *testing.T) {
		out, err := EvaluateFormula("100 if x >= 1 else 0", map[string]any{"x": 2.0})
		require.NoError(t, err)
		assert.Equal(t, int64(100), out)

		out, err = EvaluateFormula("100 if x >= 1 else 0", map[string]any{"x": 0.0})
		require.NoError(t, err)
		assert.Equal(t, int64(0), out)
	})
}

func TestEvaluateFormula_Rejections(t *testing.T) {
	t.Run("import chain is a disallowed construct", func(t *testing.T) {
		_, err := EvaluateFormula("__import__('os').system('x')", nil)
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEvalDisallowed), "got %v", err)
	})

	t.Run("attribute access", func(t *testing.T) {
		_, err := EvaluateFormula("a.b", map[string]any{"a": 1})
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEvalDisallowed))
	})

	t.Run("subscripting", func(t *testing.T) {
		_, err := EvaluateFormula("a[0]", map[string]any{"a": 1})
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEvalDisallowed))
	})

	t.Run("disallowed function call", func(t *testing.T) {
		_, err := EvaluateFormula("open('f')", nil)
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEvalDisallowed))
	})

	t.Run("string literal in formula", func(t *testing.T) {
		_, err := EvaluateFormula("'abc'", nil)
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEvalDisallowed))
	})

	t.Run("undefined variable", func(t *testing.T) {
		_, err := EvaluateFormula("A + 1", nil)
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEvalUndefined))
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := EvaluateFormula("1 +", nil)
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEvalSyntax))
	})

	t.Run("empty expression", func(t *testing.T) {
		_, err := EvaluateFormula("", nil)
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEvalSyntax))
	})

	t.Run("rejection happens before evaluation", func(t *testing.T) {
		// The undefined name sits after a divide-by-zero; if evaluation ran
		// first the formula would short-circuit to 0 instead of erroring.
		_, err := EvaluateFormula("1/0 + missing", nil)
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEvalUndefined))
	})
}

func TestEvaluateFormula_VariableBinding(t *testing.T) {
	out, err := EvaluateFormula("B/A*1000", map[string]any{"A": int64(2), "B": int64(8)})
	require.NoError(t, err)
	assert.Equal(t, 4000.0, out)
}
