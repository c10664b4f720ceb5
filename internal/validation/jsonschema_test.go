package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docalc/docalc/pkg/schema"
)

func intPtr(i int) *int { return &i }

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	require.NoError(t, err)
	return v
}

func TestValidateMappingConfig(t *testing.T) {
	v := newValidator(t)

	t.Run("valid config", func(t *testing.T) {
		err := v.ValidateMappingConfig(&schema.FieldMappingConfig{
			FieldMappings: []schema.FieldMapping{
				{
					TemplateField: "energy_class",
					SourceField:   "calculated_data.energy_class",
					Function:      "energy_class_rating",
					Args:          []string{"extracted_data.wattage", "extracted_data.flux"},
				},
			},
		})
		assert.NoError(t, err)
	})

	t.Run("empty template field", func(t *testing.T) {
		err := v.ValidateMappingConfig(&schema.FieldMappingConfig{
			FieldMappings: []schema.FieldMapping{
				{TemplateField: "", SourceField: "calculated_data.x"},
			},
		})
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	})

	t.Run("duplicate template fields", func(t *testing.T) {
		err := v.ValidateMappingConfig(&schema.FieldMappingConfig{
			FieldMappings: []schema.FieldMapping{
				{TemplateField: "x", SourceField: "calculated_data.a"},
				{TemplateField: "x", SourceField: "calculated_data.b"},
			},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("nil config", func(t *testing.T) {
		assert.Error(t, v.ValidateMappingConfig(nil))
	})
}

func TestValidateSteps(t *testing.T) {
	v := newValidator(t)

	t.Run("valid pipeline", func(t *testing.T) {
		err := v.ValidateSteps([]schema.TransformStep{
			{Type: schema.StepSkipColumns, Columns: []int{2}},
			{Type: schema.StepAddColumn, Position: 0, Source: "row_index"},
			{Type: schema.StepCalculate, Column: intPtr(1), Operation: "average", Decimal: intPtr(2)},
			{Type: schema.StepCalculate, Column: intPtr(2), Operation: "formula=B{row}/A{row}*1000"},
			{Type: schema.StepFormatColumn, Column: intPtr(1), Decimal: intPtr(1)},
			{Type: schema.StepReorder, Order: []int{1, 0}},
			{Type: schema.StepFilterRows, Condition: "remove_empty"},
			{Type: schema.StepCustomTransform, Transformer: "beam_table_transformer"},
		})
		assert.NoError(t, err)
	})

	t.Run("unknown step type", func(t *testing.T) {
		err := v.ValidateSteps([]schema.TransformStep{{Type: "transpose"}})
		require.Error(t, err)
		assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	})

	t.Run("calculate without column", func(t *testing.T) {
		err := v.ValidateSteps([]schema.TransformStep{
			{Type: schema.StepCalculate, Operation: "sum"},
		})
		require.Error(t, err)
	})

	t.Run("calculate with unknown operation", func(t *testing.T) {
		err := v.ValidateSteps([]schema.TransformStep{
			{Type: schema.StepCalculate, Column: intPtr(0), Operation: "median"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "median")
	})

	t.Run("format_column without function or decimal", func(t *testing.T) {
		err := v.ValidateSteps([]schema.TransformStep{
			{Type: schema.StepFormatColumn, Column: intPtr(0)},
		})
		require.Error(t, err)
	})

	t.Run("reorder without order", func(t *testing.T) {
		err := v.ValidateSteps([]schema.TransformStep{{Type: schema.StepReorder}})
		require.Error(t, err)
	})

	t.Run("skip_columns without columns is only a warning", func(t *testing.T) {
		err := v.ValidateSteps([]schema.TransformStep{{Type: schema.StepSkipColumns}})
		assert.NoError(t, err)
	})

	t.Run("empty pipeline", func(t *testing.T) {
		assert.NoError(t, v.ValidateSteps(nil))
	})
}
