package safeeval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docalc/docalc/pkg/schema"
)

func TestEvaluateFormat_FixedDecimals(t *testing.T) {
	out, err := EvaluateFormat("lambda x: f'{x:.2f}'", 3.14159)
	require.NoError(t, err)
	assert.Equal(t, "3.14", out)
}

func TestEvaluateFormat_ConditionalRule(t *testing.T) {
	rule := "lambda x: f'{x:.4f}' if x < 1 else f'{x:.2f}'"

	out, err := EvaluateFormat(rule, 0.12345)
	require.NoError(t, err)
	assert.Equal(t, "0.1234", out)

	out, err = EvaluateFormat(rule, 12.3456)
	require.NoError(t, err)
	assert.Equal(t, "12.35", out)
}

func TestEvaluateFormat_SpecifierKinds(t *testing.T) {
	cases := []struct {
		name  string
		rule  string
		value any
		want  string
	}{
		{"decimal", "lambda v: f'{v:d}'", 42.0, "42"},
		{"percent", "lambda v: f'{v:.1%}'", 0.256, "25.6%"},
		{"exponential", "lambda v: f'{v:.2e}'", 1500000.0, "1.50e+06"},
		{"general", "lambda v: f'{v:.3g}'", 1234.5, "1.23e+03"},
		{"no spec stringifies", "lambda v: f'{v}'", 2.5, "2.5"},
		{"literal text around", "lambda v: f'value: {v:.1f} lm'", 8.25, "value: 8.2 lm"},
		{"escaped braces", "lambda v: f'{{{v:.0f}}}'", 7.0, "{7}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := EvaluateFormat(tc.rule, tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		})
	}
}

func TestEvaluateFormat_ArithmeticInTemplate(t *testing.T) {
	out, err := EvaluateFormat("lambda x: f'{x * 100:.1f}'", 0.5)
	require.NoError(t, err)
	assert.Equal(t, "50.0", out)
}

func TestEvaluateFormat_AllowedCall(t *testing.T) {
	out, err := EvaluateFormat("lambda x: f'{abs(x):.1f}'", -2.5)
	require.NoError(t, err)
	assert.Equal(t, "2.5", out)
}

func TestEvaluateFormat_PlainStringBody(t *testing.T) {
	out, err := EvaluateFormat("lambda x: 'high' if x >= 100 else 'low'", 150.0)
	require.NoError(t, err)
	assert.Equal(t, "high", out)
}

func TestEvaluateFormat_Rejections(t *testing.T) {
	t.Run("not a lambda", func(t *testing.T) {
		_, err := EvaluateFormat("f'{x:.2f}'", 1.0)
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEvalDisallowed))
	})

	t.Run("unsafe format spec", func(t *testing.T) {
		_, err := EvaluateFormat("lambda x: f'{x:>30s}'", 1.0)
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEvalDisallowed))
	})

	t.Run("foreign name", func(t *testing.T) {
		_, err := EvaluateFormat("lambda x: f'{y:.2f}'", 1.0)
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEvalUndefined))
	})

	t.Run("attribute access in body", func(t *testing.T) {
		_, err := EvaluateFormat("lambda x: x.denominator", 1.0)
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEvalDisallowed))
	})

	t.Run("disallowed call in template", func(t *testing.T) {
		_, err := EvaluateFormat("lambda x: f'{open(x)}'", 1.0)
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEvalDisallowed))
	})

	t.Run("excessive nesting", func(t *testing.T) {
		rule := "lambda x: x + 1 + 1 + 1 + 1 + 1 + 1 + 1 + 1 + 1 + 1 + 1 + 1"
		_, err := EvaluateFormat(rule, 1.0)
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEvalTooComplex))
	})

	t.Run("empty rule", func(t *testing.T) {
		_, err := EvaluateFormat("", 1.0)
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeEvalSyntax))
	})
}

func TestValidateFormat(t *testing.T) {
	assert.True(t, ValidateFormat("lambda x: f'{x:.2f}'"))
	assert.True(t, ValidateFormat("lambda v: f'{v:.1%}' if v < 1 else f'{v:.0f}'"))
	assert.False(t, ValidateFormat("lambda x: x.__class__"))
	assert.False(t, ValidateFormat("x + 1"))
	assert.False(t, ValidateFormat("lambda x: f'{x:>10}'"))
}
